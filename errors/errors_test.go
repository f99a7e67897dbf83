package errors

import (
	"fmt"
	"testing"
	"time"
)

func TestPulseError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeInvalidInput, "bad input")
	if err.Code != ErrCodeInvalidInput {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidInput, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("connection refused")
	wrapped := Wrap(cause, ErrCodeFetchTransient, "fetch failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeFetchTransient) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeFetchTerminal) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("source", "pool").WithDetail("attempt", 3)
	if detailed.Details["source"] != "pool" {
		t.Error("WithDetail should add details")
	}
}

func TestIsFollowsFmtWrapping(t *testing.T) {
	inner := FetchTerminal("primary", fmt.Errorf("password authentication failed"))
	outer := fmt.Errorf("tick 3: %w", inner)

	if !Is(outer, ErrCodeFetchTerminal) {
		t.Error("Is should see through fmt.Errorf wrapping")
	}
	if GetCode(outer) != ErrCodeFetchTerminal {
		t.Errorf("expected code %s, got %s", ErrCodeFetchTerminal, GetCode(outer))
	}
	if v, ok := Detail(outer, "source"); !ok || v != "primary" {
		t.Errorf("expected source detail 'primary', got %v", v)
	}
}

func TestIsFindsNestedCodes(t *testing.T) {
	err := RecorderIO("/tmp/x.pgsl", SessionOpen("/tmp/x.pgsl", fmt.Errorf("disk full")))
	if !Is(err, ErrCodeSessionOpen) {
		t.Error("Is should match a code nested in the cause chain")
	}
}

func TestErrorConstructors(t *testing.T) {
	err := CompositionDeadline("system", 250*time.Millisecond)
	if err.Code != ErrCodeCompositionDeadline {
		t.Errorf("expected code %s, got %s", ErrCodeCompositionDeadline, err.Code)
	}
	if err.Details["deadline"] != "250ms" {
		t.Error("CompositionDeadline should include deadline detail")
	}

	err = SessionInUse("/data/a.pgsl", 4242)
	if err.Code != ErrCodeSessionInUse {
		t.Errorf("expected code %s, got %s", ErrCodeSessionInUse, err.Code)
	}
	if err.Details["pid"] != 4242 {
		t.Error("SessionInUse should include pid detail")
	}

	err = ReplayTruncated(1024)
	if err.Details["offset"] != int64(1024) {
		t.Error("ReplayTruncated should include offset detail")
	}

	err = FrameEncode(17, fmt.Errorf("unsupported value"))
	if Is(err, ErrCodeRecorderIO) {
		t.Error("FrameEncode must not read as a write failure")
	}
	if err.Details["sequence"] != uint64(17) {
		t.Error("FrameEncode should include sequence detail")
	}
}
