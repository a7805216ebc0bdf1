package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"auth", AuthError("token expired", nil), ErrorClassAuth},
		{"validation", ValidationError("missing id", nil), ErrorClassValidation},
		{"conflict", ConflictError("exclusive job running", nil), ErrorClassConflict},
		{"transient", TransientNetworkError(errors.New("dial tcp"), "shopify unreachable", nil), ErrorClassTransient},
		{"wrapped auth", fmt.Errorf("import: %w", AuthError("bad token", nil)), ErrorClassAuth},
		{"deadline", context.DeadlineExceeded, ErrorClassTransient},
		{"unknown", errors.New("boom"), ErrorClassTransient},
		{"invalid transition", fmt.Errorf("%w: done -> queued", ErrInvalidJobStateTransition), ErrorClassValidation},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
	if !ErrorClassTransient.Recoverable() || ErrorClassAuth.Recoverable() || ErrorClassConflict.Recoverable() {
		t.Fatalf("only transient failures are recoverable")
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := InvalidTransitionError("job_1", JobStateRunning, JobStateCancelled)
	if !errors.Is(err, ErrInvalidJobStateTransition) {
		t.Fatalf("expected wrapped sentinel")
	}
	if err.TextCode != SyncErrorInvalidTransition {
		t.Fatalf("expected %s, got %s", SyncErrorInvalidTransition, err.TextCode)
	}
	if err.Metadata["from"] != "running" || err.Metadata["to"] != "cancelled" {
		t.Fatalf("unexpected metadata %#v", err.Metadata)
	}
}

func TestMapError(t *testing.T) {
	mapped := MapError(fmt.Errorf("lookup: %w", ErrJobNotFound))
	if mapped.Category != goerrors.CategoryNotFound {
		t.Fatalf("expected not found category, got %s", mapped.Category)
	}
	if mapped.Code != http.StatusNotFound || mapped.TextCode != SyncErrorNotFound {
		t.Fatalf("unexpected envelope %d %s", mapped.Code, mapped.TextCode)
	}

	rich := AuthError("nope", nil)
	if got := MapError(rich); got.TextCode != SyncErrorUnauthorized || got.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected auth envelope %d %s", got.Code, got.TextCode)
	}

	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
