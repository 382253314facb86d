package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ontime/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	max int

	opCount atomic.Uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, max: cfg.MaxTransitions}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendTransition(ctx context.Context, t Transition) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if t.At.IsZero() {
		t.At = time.Now()
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	ok := 0
	if t.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions(id, at, kind, scope_id, task_id, entry_id, ok, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		t.ID, t.At.UnixNano(), t.Kind, t.ScopeID, nullStr(t.TaskID), nullStr(t.EntryID), ok, nullStr(t.Error), t.TookMS,
	)
	if err == nil && s.opCount.Add(1)%pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.prune(pctx); perr != nil {
			s.log.Debug("journal prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) Transitions(ctx context.Context, limit int) ([]Transition, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, kind, scope_id, task_id, entry_id, ok, err, took_ms
		 FROM transitions ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			t                      Transition
			at                     int64
			ok                     int
			taskID, entryID, errMs sql.NullString
		)
		if err := rows.Scan(&t.ID, &at, &t.Kind, &t.ScopeID, &taskID, &entryID, &ok, &errMs, &t.TookMS); err != nil {
			return nil, err
		}
		t.At = time.Unix(0, at)
		t.OK = ok == 1
		t.TaskID = taskID.String
		t.EntryID = entryID.String
		t.Error = errMs.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM transitions WHERE id NOT IN (
			SELECT id FROM transitions ORDER BY at DESC LIMIT ?
		)`, s.max)
	return err
}

func (s *sqliteStore) PutSnapshot(ctx context.Context, scopeID, kind string, data []byte) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if scopeID == "" || kind == "" {
		return errors.New("snapshot scope and kind are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots(scope_id, kind, data, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(scope_id, kind) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		scopeID, kind, data, time.Now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) GetSnapshot(ctx context.Context, scopeID, kind string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, ErrDisabled
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE scope_id = ? AND kind = ?`, scopeID, kind).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
