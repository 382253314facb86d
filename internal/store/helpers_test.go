package store

import (
	"testing"

	"ontime/pkg/logx"
)

type tWriter struct{ t *testing.T }

func (w tWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func testLogger(t *testing.T) logx.Logger {
	return logx.NewWriter(tWriter{t}, "debug")
}
