package market

import (
	"errors"
	"testing"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Params{Symbol: "BASE/QUOTE", TickSize: 5}); err != nil {
		t.Fatalf("register: %v", err)
	}
	m, err := r.Get("BASE/QUOTE")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Status != Active {
		t.Fatalf("new market should start Active, got %v", m.Status)
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Params{Symbol: "BASE/QUOTE"})
	if err := r.Register(Params{Symbol: "BASE/QUOTE"}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestSetStatusRejectsTransitionFromSettled(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Params{Symbol: "BASE/QUOTE"})
	if err := r.SetStatus("BASE/QUOTE", Settled); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := r.SetStatus("BASE/QUOTE", Active); err != ErrTerminalState {
		t.Fatalf("expected ErrTerminalState, got %v", err)
	}
}

func TestRoundToTickAndTickIndex(t *testing.T) {
	p := Params{TickSize: 10}
	if got := p.RoundToTick(104); got != 100 {
		t.Fatalf("RoundToTick(104) = %d, want 100", got)
	}
	if got := p.TickIndex(104); got != 10 {
		t.Fatalf("TickIndex(104) = %d, want 10", got)
	}
}
