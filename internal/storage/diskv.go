package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/peterbourgon/diskv/v3"

	"ontime/pkg/logx"
)

// diskvStore keeps one file per record.
//
// Layout under Path:
//   - tx/<unix nanos>_<id>        transition records (JSON)
//   - snap/<scope b64>/<kind>     collection snapshots (raw bytes)
type diskvStore struct {
	d   *diskv.Diskv
	log logx.Logger
	max int

	mu     sync.Mutex
	writes int
}

const (
	txPrefix   = "tx/"
	snapPrefix = "snap/"
	pruneEvery = 100
)

func openDiskv(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for diskv driver")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return &diskvStore{
		d: diskv.New(diskv.Options{
			BasePath:          path,
			AdvancedTransform: keyToPath,
			InverseTransform:  pathToKey,
			CacheSizeMax:      1024 * 1024,
		}),
		log: log,
		max: cfg.MaxTransitions,
	}, nil
}

func keyToPath(key string) *diskv.PathKey {
	parts := strings.Split(key, "/")
	return &diskv.PathKey{
		Path:     parts[:len(parts)-1],
		FileName: parts[len(parts)-1],
	}
}

func pathToKey(pk *diskv.PathKey) string {
	if len(pk.Path) == 0 {
		return pk.FileName
	}
	return strings.Join(pk.Path, "/") + "/" + pk.FileName
}

func txKey(t Transition) string {
	return fmt.Sprintf("%s%020d_%s", txPrefix, t.At.UnixNano(), t.ID)
}

func snapKey(scopeID, kind string) string {
	return snapPrefix + base64.RawURLEncoding.EncodeToString([]byte(scopeID)) + "/" + kind
}

func (s *diskvStore) Close() error { return nil }

func (s *diskvStore) AppendTransition(ctx context.Context, t Transition) error {
	_ = ctx
	if t.At.IsZero() {
		t.At = time.Now()
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := s.d.Write(txKey(t), b); err != nil {
		return err
	}

	s.mu.Lock()
	s.writes++
	due := s.writes%pruneEvery == 0
	s.mu.Unlock()
	if due {
		if err := s.prune(); err != nil {
			s.log.Debug("journal prune failed", logx.Err(err))
		}
	}
	return nil
}

func (s *diskvStore) txKeys(ctx context.Context) []string {
	var keys []string
	for k := range s.d.KeysPrefix(txPrefix, ctx.Done()) {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *diskvStore) Transitions(ctx context.Context, limit int) ([]Transition, error) {
	keys := s.txKeys(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(keys) {
		limit = len(keys)
	}
	out := make([]Transition, 0, limit)
	for i := len(keys) - 1; i >= 0 && len(out) < limit; i-- {
		b, err := s.d.Read(keys[i])
		if err != nil {
			s.log.Debug("skip unreadable transition", logx.String("key", keys[i]), logx.Err(err))
			continue
		}
		var t Transition
		if err := json.Unmarshal(b, &t); err != nil {
			s.log.Debug("skip corrupt transition", logx.String("key", keys[i]), logx.Err(err))
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *diskvStore) prune() error {
	keys := s.txKeys(context.Background())
	extra := len(keys) - s.max
	var errs []error
	for i := 0; i < extra; i++ {
		if err := s.d.Erase(keys[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *diskvStore) PutSnapshot(ctx context.Context, scopeID, kind string, data []byte) error {
	_ = ctx
	if scopeID == "" || kind == "" {
		return errors.New("snapshot scope and kind are required")
	}
	return s.d.Write(snapKey(scopeID, kind), data)
}

func (s *diskvStore) GetSnapshot(ctx context.Context, scopeID, kind string) ([]byte, bool, error) {
	_ = ctx
	key := snapKey(scopeID, kind)
	if !s.d.Has(key) {
		return nil, false, nil
	}
	b, err := s.d.Read(key)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}
