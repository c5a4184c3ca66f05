package connection

import (
	"sync"
	"time"
)

// machine holds the lifecycle state for one device connection.
//
// It is purely bookkeeping: callers decide when to invoke transitions, the
// machine decides what state results and whether another attempt is allowed.
// All methods are safe for concurrent use.
type machine struct {
	mu sync.Mutex

	state        State
	attempt      int // consecutive transient failures
	authFailures int // consecutive authentication failures
	lastErr      error
	nextRetry    time.Time

	maxAttempts     int // 0 = unlimited
	maxAuthAttempts int // 0 = unlimited
}

func newMachine(maxAttempts, maxAuthAttempts int) *machine {
	return &machine{
		state:           Disconnected,
		maxAttempts:     maxAttempts,
		maxAuthAttempts: maxAuthAttempts,
	}
}

// connecting marks a connect attempt as in flight.
func (m *machine) connecting() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Connecting
	m.nextRetry = time.Time{}
}

// waiting marks the machine as waiting out a backoff delay ending at deadline.
func (m *machine) waiting(deadline time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Reconnecting
	m.nextRetry = deadline
}

// connectSucceeded records an established link and clears all failure counters.
func (m *machine) connectSucceeded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Connected
	m.attempt = 0
	m.authFailures = 0
	m.lastErr = nil
	m.nextRetry = time.Time{}
}

// connectFailed records a failed connect attempt and reports whether another
// attempt is allowed. Authentication failures are budgeted separately from
// transient errors; exhausting either budget moves the machine to Failed.
func (m *machine) connectFailed(err error) (retry bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err

	if IsAuthError(err) {
		m.authFailures++
		if m.maxAuthAttempts > 0 && m.authFailures >= m.maxAuthAttempts {
			m.state = Failed
			return false
		}
	} else {
		m.attempt++
		if m.maxAttempts > 0 && m.attempt >= m.maxAttempts {
			m.state = Failed
			return false
		}
	}

	m.state = Reconnecting
	return true
}

// linkLost records a dropped established link. It counts against the
// transient budget like a failed connect.
func (m *machine) linkLost(err error) (retry bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
	m.attempt++
	if m.maxAttempts > 0 && m.attempt >= m.maxAttempts {
		m.state = Failed
		return false
	}
	m.state = Reconnecting
	return true
}

// teardown moves the machine to Disconnected regardless of current state.
func (m *machine) teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Disconnected
	m.attempt = 0
	m.authFailures = 0
	m.nextRetry = time.Time{}
}

// reset clears a Failed machine back to Disconnected. It returns ErrNotFailed
// in any other state.
func (m *machine) reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Failed {
		return ErrNotFailed
	}
	m.state = Disconnected
	m.attempt = 0
	m.authFailures = 0
	m.lastErr = nil
	m.nextRetry = time.Time{}
	return nil
}

// snapshot is a point-in-time copy of the machine's state.
type snapshot struct {
	state        State
	attempt      int
	authFailures int
	lastErr      error
	nextRetry    time.Time
}

func (m *machine) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshot{
		state:        m.state,
		attempt:      m.attempt,
		authFailures: m.authFailures,
		lastErr:      m.lastErr,
		nextRetry:    m.nextRetry,
	}
}
