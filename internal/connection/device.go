package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/devicelink/internal/backoff"
	"github.com/nerrad567/devicelink/internal/event"
)

// Strategy establishes a link to a device. Implementations live in the
// transport package; the supervisor only cares about the outcome.
type Strategy interface {
	// Connect attempts to establish the link. On success it returns a
	// Session; on failure it returns an error, wrapped in AuthError if the
	// device rejected credentials.
	Connect(ctx context.Context) (Session, error)
}

// Session is an established device link.
type Session interface {
	// Serve runs the link until it drops or ctx is cancelled. A nil return
	// is treated as a lost link like any error.
	Serve(ctx context.Context) error

	// Close releases link resources. Called exactly once after Serve returns.
	Close() error
}

// Logger is the minimal logging interface the supervisor requires.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Options configures connection supervision.
type Options struct {
	// Backoff computes reconnect delays. Defaults to a jittered exponential
	// policy of 2s doubling to 30s.
	Backoff backoff.Policy

	// MaxAttempts limits consecutive transient failures before the
	// connection is marked Failed. 0 means unlimited.
	MaxAttempts int

	// MaxAuthAttempts limits consecutive authentication failures before the
	// connection is marked Failed. 0 means unlimited.
	MaxAuthAttempts int

	// ConnectTimeout bounds a single connect attempt. 0 means no bound
	// beyond the supervisor's context.
	ConnectTimeout time.Duration

	// Logger receives supervision logs. Defaults to a no-op logger.
	Logger Logger
}

func (o Options) withDefaults() Options {
	if o.Backoff == nil {
		o.Backoff = backoff.Exponential{
			Base:   2 * time.Second,
			Max:    30 * time.Second,
			Jitter: true,
		}
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// Stats is a snapshot of per-device supervision counters.
type Stats struct {
	Connects  uint64
	Errors    uint64
	NextRetry time.Time
}

// Device is one supervised device connection.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Device struct {
	id       string
	strategy Strategy
	machine  *machine
	bus      *event.Bus
	opts     Options

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	connects atomic.Uint64
	errs     atomic.Uint64
}

func newDevice(id string, strategy Strategy, bus *event.Bus, opts Options) *Device {
	return &Device{
		id:       id,
		strategy: strategy,
		machine:  newMachine(opts.MaxAttempts, opts.MaxAuthAttempts),
		bus:      bus,
		opts:     opts,
	}
}

// ID returns the device identifier.
func (d *Device) ID() string {
	return d.id
}

// State returns the current lifecycle state.
func (d *Device) State() State {
	return d.machine.snapshot().state
}

// Attempt returns the count of consecutive transient failures.
func (d *Device) Attempt() int {
	return d.machine.snapshot().attempt
}

// LastError returns the most recent connect or link error, nil when connected.
func (d *Device) LastError() error {
	return d.machine.snapshot().lastErr
}

// Stats returns supervision counters for this device.
func (d *Device) Stats() Stats {
	return Stats{
		Connects:  d.connects.Load(),
		Errors:    d.errs.Load(),
		NextRetry: d.machine.snapshot().nextRetry,
	}
}

// start launches the supervisor goroutine. Caller must hold d.mu.
func (d *Device) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	go d.run(ctx, done)
}

// Teardown stops supervision and releases the link.
//
// The connection ends Disconnected regardless of its prior state, with a
// single Disconnected event published on the first effective call. Repeat
// calls are no-ops.
func (d *Device) Teardown() {
	d.mu.Lock()
	if d.cancel != nil {
		cancel, done := d.cancel, d.done
		d.cancel = nil
		d.done = nil
		d.mu.Unlock()
		cancel()
		<-done
		d.mu.Lock()
	}

	if d.machine.snapshot().state == Disconnected {
		d.mu.Unlock()
		return
	}
	d.machine.teardown()
	d.mu.Unlock()

	d.opts.Logger.Info("device torn down", "device", d.id)
	d.bus.Publish(event.Event{Type: event.Disconnected, Device: d.id})
}

// Reset clears a Failed connection and starts supervising it again.
// Returns ErrNotFailed in any other state.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.machine.reset(); err != nil {
		return err
	}

	// The run loop has already exited; Failed is only reached from inside it.
	if d.cancel != nil {
		d.cancel()
	}
	d.startLocked()
	return nil
}

// run is the supervision loop: wait out backoff, connect, serve, classify
// the outcome, repeat. It returns when ctx is cancelled or the machine
// reaches Failed.
func (d *Device) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		snap := d.machine.snapshot()
		failures := snap.attempt + snap.authFailures
		if delay := d.opts.Backoff.Delay(failures); delay > 0 {
			d.machine.waiting(time.Now().Add(delay))
			d.opts.Logger.Debug("waiting before reconnect",
				"device", d.id, "delay", delay, "failures", failures)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		d.machine.connecting()
		sess, err := d.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.errs.Add(1)
			retry := d.machine.connectFailed(err)
			d.bus.Publish(event.Event{
				Type:   event.ConnectionError,
				Device: d.id,
				Err:    err.Error(),
			})
			if !retry {
				d.opts.Logger.Error("connection failed permanently",
					"device", d.id, "error", err)
				return
			}
			d.opts.Logger.Warn("connect failed",
				"device", d.id, "error", err)
			continue
		}

		d.machine.connectSucceeded()
		d.connects.Add(1)
		d.opts.Logger.Info("device connected", "device", d.id)
		d.bus.Publish(event.Event{Type: event.Connected, Device: d.id})

		serveErr := sess.Serve(ctx)
		if cerr := sess.Close(); cerr != nil {
			d.opts.Logger.Debug("session close", "device", d.id, "error", cerr)
		}

		if ctx.Err() != nil {
			return
		}
		if serveErr == nil {
			serveErr = errors.New("connection: link closed")
		}

		d.errs.Add(1)
		retry := d.machine.linkLost(serveErr)
		d.bus.Publish(event.Event{
			Type:   event.ConnectionError,
			Device: d.id,
			Err:    serveErr.Error(),
		})
		if !retry {
			d.opts.Logger.Error("connection failed permanently",
				"device", d.id, "error", serveErr)
			return
		}
		d.opts.Logger.Warn("link lost", "device", d.id, "error", serveErr)
	}
}

func (d *Device) connect(ctx context.Context) (Session, error) {
	if d.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.ConnectTimeout)
		defer cancel()
	}
	return d.strategy.Connect(ctx)
}
