package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestParseOperationKind(t *testing.T) {
	cases := map[string]OperationKind{
		"edit":              OpEdit,
		" Upscale ":         OpUpscale,
		"remove_background": OpRemoveBackground,
		"CAMERA-CONTROL":    OpCameraControl,
	}
	for raw, want := range cases {
		got, err := ParseOperationKind(raw)
		if err != nil || got != want {
			t.Fatalf("ParseOperationKind(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseOperationKind("sketch"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestOperationCost(t *testing.T) {
	if OpVideo.Cost() != 5 || OpTurntable.Cost() != 3 || OpUpscale.Cost() != 2 || OpEdit.Cost() != 1 {
		t.Fatalf("unexpected cost table")
	}
	for _, kind := range OperationKinds() {
		if kind.Cost() <= 0 {
			t.Fatalf("%s has non-positive cost", kind)
		}
	}
}

func TestParseLane(t *testing.T) {
	if lane, err := ParseLane(""); err != nil || lane != LaneInteractive {
		t.Fatalf("empty lane = %q, %v", lane, err)
	}
	if lane, err := ParseLane("LOW"); err != nil || lane != LaneLow {
		t.Fatalf("LOW = %q, %v", lane, err)
	}
	if _, err := ParseLane("urgent"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestKeyFingerprintHidesKey(t *testing.T) {
	cases := map[string]string{
		"":                                     "absent",
		"abc:def123":                           "len=10 format=id:secret",
		"sk-live-123456":                       "len=14 format=sk",
		"3f2504e0-4f89-11d3-9a0c-0305e82c3301": "len=36 format=uuid",
		"plainkey":                             "len=8 format=opaque",
	}
	for key, want := range cases {
		if got := KeyFingerprint(key); got != want {
			t.Fatalf("KeyFingerprint(%q) = %q; want %q", key, got, want)
		}
	}
	cred := Credential{ID: "c1", Key: "sk-very-secret"}
	if s := fmt.Sprint(cred); strings.Contains(s, "very-secret") {
		t.Fatalf("String leaked key material: %s", s)
	}
}

func TestProviderErrorClassification(t *testing.T) {
	transient := &ProviderError{Class: ProviderClassTransient, StatusCode: 503, Message: "busy"}
	if !IsRetryable(transient) || !errors.Is(transient, ErrProviderTransient) {
		t.Fatalf("transient error should be retryable")
	}
	auth := fmt.Errorf("call: %w", &ProviderError{Class: ProviderClassAuth, StatusCode: 401})
	if IsRetryable(auth) || !IsAuthFailure(auth) || !errors.Is(auth, ErrProviderTerminal) {
		t.Fatalf("auth error should be terminal and auth-class")
	}
	policy := &ProviderError{Class: ProviderClassContentPolicy}
	if IsRetryable(policy) || IsAuthFailure(policy) {
		t.Fatalf("content policy error misclassified")
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	cases := map[time.Duration]int{
		0:                       1,
		300 * time.Millisecond:  1,
		time.Second:             1,
		1500 * time.Millisecond: 2,
	}
	for d, want := range cases {
		err := &RateLimitError{Subject: "user:u1", RetryAfter: d}
		if got := err.RetryAfterSeconds(); got != want {
			t.Fatalf("RetryAfterSeconds(%s) = %d; want %d", d, got, want)
		}
		if !errors.Is(err, ErrRateLimited) {
			t.Fatalf("RateLimitError should unwrap to ErrRateLimited")
		}
	}
}

func TestBatchCounters(t *testing.T) {
	p := BatchProject{TotalCount: 3, CompletedCount: 2, FailedCount: 1}
	if !p.Finished() {
		t.Fatalf("2 completed + 1 failed of 3 should be finished")
	}
	p.FailedCount = 0
	if p.Finished() {
		t.Fatalf("batch with a pending unit reported finished")
	}
	c := StatusCounts{Total: 4, Completed: 1, Failed: 1, Processing: 1, Pending: 1}
	if !c.Consistent() {
		t.Fatalf("counts should be consistent")
	}
	c.Pending = 0
	if c.Consistent() {
		t.Fatalf("counts missing a unit reported consistent")
	}
}

func TestAvailableNeverNegative(t *testing.T) {
	if got := (CreditAccount{Balance: 5, Reserved: 3}).Available(); got != 2 {
		t.Fatalf("Available = %d", got)
	}
}
