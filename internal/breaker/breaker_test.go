package breaker

import (
	"testing"
	"time"
)

func TestOpensAfterThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	b := newBreaker("svc.test", cfg)

	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("request %d: unexpected block: %v", i, err)
		}
		b.RecordFailure(503)
	}

	if err := b.Allow(); err == nil {
		t.Fatal("expected breaker to be open after reaching failure threshold")
	}
	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
}

func TestClientErrorsDoNotOpenBreaker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 2
	b := newBreaker("svc.test", cfg)

	for i := 0; i < 10; i++ {
		b.Allow()
		b.RecordFailure(404) // not in FailureStatusCodes
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want Closed (4xx should not trip breaker)", b.State())
	}
}

func TestHalfOpenAfterRecoveryTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.RecoveryTimeout = 10 * time.Millisecond
	b := newBreaker("svc.test", cfg)

	b.Allow()
	b.RecordFailure(500)
	if b.State() != Closed {
		t.Fatalf("expected still closed before Allow re-evaluates, got %v", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected half-open probe to be allowed, got error: %v", err)
	}
	if b.State() != HalfOpen {
		t.Errorf("state = %v, want HalfOpen", b.State())
	}
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.RecoveryTimeout = time.Millisecond
	cfg.SuccessThreshold = 2
	b := newBreaker("svc.test", cfg)

	b.Allow()
	b.RecordFailure(500)
	time.Sleep(5 * time.Millisecond)
	b.Allow() // transitions to half-open

	b.RecordSuccess()
	if b.State() != HalfOpen {
		t.Fatalf("expected still half-open after 1 success, got %v", b.State())
	}
	b.RecordSuccess()
	if b.State() != Closed {
		t.Errorf("state = %v, want Closed after success threshold met", b.State())
	}
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.RecoveryTimeout = time.Millisecond
	b := newBreaker("svc.test", cfg)

	b.Allow()
	b.RecordFailure(500)
	time.Sleep(5 * time.Millisecond)
	b.Allow()
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}
	b.RecordFailure(500)
	if b.State() != Open {
		t.Errorf("state = %v, want Open after half-open probe fails", b.State())
	}
}

func TestRegistryIsolatesHosts(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	a := r.Get("a.test")
	b := r.Get("b.test")
	if a == b {
		t.Fatal("expected distinct breakers per host")
	}
	if r.Get("a.test") != a {
		t.Fatal("expected Get to return the same breaker on repeat calls")
	}
}

func TestMonotonicStateChangeCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	b := newBreaker("svc.test", cfg)

	before := b.Stats().StateChanges
	b.Allow()
	b.RecordFailure(500)
	b.Allow() // triggers CLOSED->OPEN transition
	after := b.Stats().StateChanges
	if after <= before {
		t.Errorf("expected state change count to increase, before=%d after=%d", before, after)
	}
}
