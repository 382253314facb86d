package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("schedule t1: %w", NewTransport("POST /time-entries", http.StatusBadGateway, nil))
	if !IsTransport(wrapped) {
		t.Fatalf("expected transport error through wrapping")
	}
	if !IsRetryable(wrapped) {
		t.Fatalf("502 should be retryable")
	}
	if IsValidation(wrapped) || IsMissingScope(wrapped) {
		t.Fatalf("transport error misclassified")
	}

	if IsRetryable(NewTransport("PUT /tasks/t1", http.StatusBadRequest, nil)) {
		t.Fatalf("400 should not be retryable")
	}
	if !IsRetryable(NewTransport("GET /tasks", 0, context.DeadlineExceeded)) {
		t.Fatalf("network failure should be retryable")
	}
	if !IsNotFound(NewTransport("DELETE /tasks/t1", http.StatusNotFound, nil)) {
		t.Fatalf("404 should match ErrNotFound")
	}
	if !errors.Is(NewTransport("GET /tasks", 0, context.Canceled), context.Canceled) {
		t.Fatalf("cause should unwrap")
	}
}

func TestMissingScopeAndValidation(t *testing.T) {
	err := NewMissingScope("create task")
	if !IsMissingScope(err) || err.Error() != "create task: no active scope" {
		t.Fatalf("unexpected missing scope error: %v", err)
	}
	verr := NewValidation("task_id", "unknown task")
	if !IsValidation(verr) || IsTransport(verr) {
		t.Fatalf("unexpected validation classification: %v", verr)
	}
	if IsRetryable(verr) {
		t.Fatalf("validation errors are never retryable")
	}
}
