package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerTripsAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker(2, 1, 10*time.Millisecond)
	var transitions []string
	cb.SetStateChangeCallback(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	fail := func() error { return errors.New("down") }
	_ = cb.Execute(fail, nil)
	_ = cb.Execute(fail, nil)
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }, nil); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }, nil); err != nil {
		t.Fatalf("half-open trial call should run, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.GetState())
	}
	if len(transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %v", transitions)
	}
}

func TestBreakerIgnoresUncountedErrors(t *testing.T) {
	cb := NewCircuitBreaker(1, 1, time.Minute)
	notFound := errors.New("not found")
	err := cb.Execute(func() error { return notFound }, func(err error) bool { return !errors.Is(err, notFound) })
	if !errors.Is(err, notFound) {
		t.Fatalf("expected the call error, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("uncounted errors must not trip the breaker")
	}
}
