package domain

import (
	"errors"
	"fmt"
	"testing"
)

// sentinels in taxonomy order; the HTTP layer maps each to a distinct
// status code, so no sentinel may alias another.
var sentinels = []error{
	ErrInvalidArgument,
	ErrUnauthorized,
	ErrNotFound,
	ErrConflict,
	ErrUpstreamFailure,
	ErrUpstreamTimeout,
	ErrInternal,
}

func TestSentinelsAreDistinct(t *testing.T) {
	for i, a := range sentinels {
		for j, b := range sentinels {
			want := i == j
			if got := errors.Is(a, b); got != want {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", a, b, got, want)
			}
		}
	}
}

func TestSentinelSurvivesWrapping(t *testing.T) {
	// Callers wrap sentinel-first with detail, then adapters add an op
	// prefix; errors.Is must see through both layers.
	inner := fmt.Errorf("%w: problem codeforces/1234A", ErrNotFound)
	outer := fmt.Errorf("op=similar.by_problem: %w", inner)

	if !errors.Is(outer, ErrNotFound) {
		t.Fatalf("wrapped chain lost its sentinel: %v", outer)
	}
	if errors.Is(outer, ErrConflict) {
		t.Errorf("chain %v must not match ErrConflict", outer)
	}
	if got, want := outer.Error(), "op=similar.by_problem: not found: problem codeforces/1234A"; got != want {
		t.Errorf("composed message = %q, want %q", got, want)
	}
}

func TestSentinelMessages(t *testing.T) {
	for err, want := range map[error]string{
		ErrInvalidArgument: "invalid argument",
		ErrUnauthorized:    "unauthorized",
		ErrNotFound:        "not found",
		ErrConflict:        "conflict",
		ErrUpstreamFailure: "upstream failure",
		ErrUpstreamTimeout: "upstream timeout",
		ErrInternal:        "internal error",
	} {
		if err.Error() != want {
			t.Errorf("sentinel message = %q, want %q", err.Error(), want)
		}
	}
}
