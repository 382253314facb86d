package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Chat    ChatConfig
}

// FileConfig appends JSON lines to Path (default ./ontime.log).
type FileConfig struct {
	Enabled bool
	Path    string
}

// ChatConfig forwards records at or above MinLevel (default warn) to the
// ChatSink, at most RatePerSec per second.
type ChatConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

// ChatSink receives formatted log records. It must be safe for concurrent use.
type ChatSink interface {
	SendText(ctx context.Context, text string) error
}

// Service owns the outputs behind every Logger derived from it. Apply swaps
// them without invalidating those loggers.
type Service struct {
	root atomic.Pointer[zerolog.Logger]

	mu       sync.Mutex
	file     *os.File
	filePath string
	chat     *chatWriter
}

// New applies cfg and returns the service and its root logger. sink may be nil.
func New(cfg Config, sink ChatSink) (*Service, Logger) {
	s := &Service{}
	if sink != nil {
		s.chat = newChatWriter(sink)
	}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) current() *zerolog.Logger { return s.root.Load() }

func (s *Service) Logger() Logger { return Logger{src: s} }

// Apply rebuilds the outputs. The log file stays open when its path is
// unchanged. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outs []io.Writer
	if cfg.Console {
		outs = append(outs, consoleWriter(os.Stderr))
	}
	if f := s.openFile(cfg.File); f != nil {
		outs = append(outs, zerolog.SyncWriter(f))
	}
	if cfg.Chat.Enabled && s.chat != nil {
		s.chat.configure(cfg.Chat)
		outs = append(outs, s.chat)
	}
	if len(outs) == 0 {
		outs = append(outs, consoleWriter(os.Stderr))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(outs...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// openFile returns the file for fc, reusing the open one when possible.
// Callers hold mu.
func (s *Service) openFile(fc FileConfig) *os.File {
	path := strings.TrimSpace(fc.Path)
	if path == "" {
		path = "./ontime.log"
	}
	if !fc.Enabled || path != s.filePath {
		if s.file != nil {
			_ = s.file.Close()
		}
		s.file, s.filePath = nil, ""
	}
	if !fc.Enabled || s.file != nil {
		return s.file
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		return nil
	}
	s.file, s.filePath = f, path
	return f
}

// Close stops the chat worker and closes the log file.
func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file, s.filePath = nil, ""
	chat := s.chat
	s.mu.Unlock()

	if chat != nil {
		chat.stop()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}
