package connection

import (
	"errors"
	"testing"
)

func TestMachine_HappyPath(t *testing.T) {
	m := newMachine(0, 0)

	if got := m.snapshot().state; got != Disconnected {
		t.Fatalf("initial state = %v, want Disconnected", got)
	}

	m.connecting()
	if got := m.snapshot().state; got != Connecting {
		t.Fatalf("state = %v, want Connecting", got)
	}

	m.connectSucceeded()
	snap := m.snapshot()
	if snap.state != Connected {
		t.Fatalf("state = %v, want Connected", snap.state)
	}
	if snap.attempt != 0 {
		t.Errorf("attempt = %d, want 0 when connected", snap.attempt)
	}
	if snap.lastErr != nil {
		t.Errorf("lastErr = %v, want nil when connected", snap.lastErr)
	}
}

func TestMachine_ConnectFailedCountsAttempts(t *testing.T) {
	m := newMachine(0, 0)
	errBoom := errors.New("boom")

	for i := 1; i <= 5; i++ {
		if retry := m.connectFailed(errBoom); !retry {
			t.Fatalf("connectFailed %d: retry = false with unlimited budget", i)
		}
		snap := m.snapshot()
		if snap.attempt != i {
			t.Fatalf("attempt = %d, want %d", snap.attempt, i)
		}
		if snap.state != Reconnecting {
			t.Fatalf("state = %v, want Reconnecting", snap.state)
		}
		if !errors.Is(snap.lastErr, errBoom) {
			t.Fatalf("lastErr = %v, want %v", snap.lastErr, errBoom)
		}
	}
}

func TestMachine_SuccessResetsCounters(t *testing.T) {
	m := newMachine(0, 0)

	m.connectFailed(errors.New("one"))
	m.connectFailed(NewAuthError(errors.New("denied")))
	m.connectSucceeded()

	snap := m.snapshot()
	if snap.attempt != 0 || snap.authFailures != 0 {
		t.Errorf("counters = (%d, %d), want (0, 0) after success", snap.attempt, snap.authFailures)
	}
}

func TestMachine_TransientBudget(t *testing.T) {
	m := newMachine(3, 0)
	errBoom := errors.New("boom")

	if !m.connectFailed(errBoom) || !m.connectFailed(errBoom) {
		t.Fatal("retry should be allowed below the budget")
	}
	if m.connectFailed(errBoom) {
		t.Fatal("retry allowed at the budget")
	}
	if got := m.snapshot().state; got != Failed {
		t.Fatalf("state = %v, want Failed", got)
	}
}

func TestMachine_AuthBudget(t *testing.T) {
	m := newMachine(0, 3)
	authErr := NewAuthError(errors.New("bad token"))

	if !m.connectFailed(authErr) || !m.connectFailed(authErr) {
		t.Fatal("retry should be allowed below the auth budget")
	}
	if m.connectFailed(authErr) {
		t.Fatal("retry allowed at the auth budget")
	}
	if got := m.snapshot().state; got != Failed {
		t.Fatalf("state = %v, want Failed", got)
	}

	// Transient failures do not consume the auth budget.
	m2 := newMachine(0, 3)
	for i := 0; i < 10; i++ {
		if !m2.connectFailed(errors.New("transient")) {
			t.Fatal("transient failure exhausted the auth budget")
		}
	}
}

func TestMachine_LinkLost(t *testing.T) {
	m := newMachine(0, 0)
	m.connecting()
	m.connectSucceeded()

	if !m.linkLost(errors.New("reset by peer")) {
		t.Fatal("linkLost retry = false with unlimited budget")
	}
	snap := m.snapshot()
	if snap.state != Reconnecting {
		t.Fatalf("state = %v, want Reconnecting", snap.state)
	}
	if snap.attempt != 1 {
		t.Errorf("attempt = %d, want 1 after link loss", snap.attempt)
	}
}

func TestMachine_Teardown(t *testing.T) {
	states := []struct {
		maxAttempts int
		setup       func(m *machine)
	}{
		{0, func(m *machine) {}},
		{0, func(m *machine) { m.connecting() }},
		{0, func(m *machine) { m.connecting(); m.connectSucceeded() }},
		{0, func(m *machine) { m.connectFailed(errors.New("x")) }},
		{1, func(m *machine) { m.connectFailed(errors.New("x")) }}, // Failed
	}

	for i, tt := range states {
		m := newMachine(tt.maxAttempts, 0)
		tt.setup(m)
		m.teardown()
		if got := m.snapshot().state; got != Disconnected {
			t.Errorf("case %d: state after teardown = %v, want Disconnected", i, got)
		}
	}
}

func TestMachine_Reset(t *testing.T) {
	m := newMachine(1, 0)

	if err := m.reset(); !errors.Is(err, ErrNotFailed) {
		t.Fatalf("reset from Disconnected = %v, want ErrNotFailed", err)
	}

	m.connectFailed(errors.New("boom"))
	if got := m.snapshot().state; got != Failed {
		t.Fatalf("state = %v, want Failed", got)
	}

	if err := m.reset(); err != nil {
		t.Fatalf("reset from Failed = %v, want nil", err)
	}
	snap := m.snapshot()
	if snap.state != Disconnected || snap.attempt != 0 || snap.lastErr != nil {
		t.Errorf("after reset: state=%v attempt=%d lastErr=%v", snap.state, snap.attempt, snap.lastErr)
	}
}

func TestIsAuthError(t *testing.T) {
	plain := errors.New("plain")
	if IsAuthError(plain) {
		t.Error("plain error classified as auth")
	}

	auth := NewAuthError(plain)
	if !IsAuthError(auth) {
		t.Error("AuthError not classified as auth")
	}
	if !errors.Is(auth, plain) {
		t.Error("AuthError should unwrap to the inner error")
	}

	wrapped := errors.Join(errors.New("outer"), auth)
	if !IsAuthError(wrapped) {
		t.Error("wrapped AuthError not classified as auth")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Disconnected, "disconnected"},
		{Connecting, "connecting"},
		{Connected, "connected"},
		{Reconnecting, "reconnecting"},
		{Failed, "failed"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
