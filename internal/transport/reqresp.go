package transport

import (
	"context"
	"time"

	retry "github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/nerrad567/devicelink/internal/connection"
)

// RequestResponse is the strategy for devices with no persistent link, such
// as plain HTTP APIs.
//
// Connect verifies reachability by running Probe, retrying transient
// failures a few times with exponential backoff. Authentication failures are
// not retried; they surface immediately so the supervisor can budget them.
// The resulting session holds no resources and simply idles until teardown.
//
// Actual device calls do not go through the session at all: wrap them in a
// Caller, which reports errors to the caller per call and trips a circuit
// breaker when the device misbehaves repeatedly.
type RequestResponse struct {
	// Probe checks device reachability, for example by fetching a status
	// endpoint. Required.
	Probe func(ctx context.Context) error

	// MaxProbeRetries bounds transient probe retries within one connect
	// attempt. Defaults to 2.
	MaxProbeRetries uint64
}

// Connect verifies the device is reachable.
func (r *RequestResponse) Connect(ctx context.Context) (connection.Session, error) {
	retries := r.MaxProbeRetries
	if retries == 0 {
		retries = 2
	}

	op := func() error {
		err := r.Probe(ctx)
		if err != nil && connection.IsAuthError(err) {
			return retry.Permanent(err)
		}
		return err
	}

	policy := retry.WithContext(retry.WithMaxRetries(retry.NewExponentialBackOff(), retries), ctx)
	if err := retry.Retry(op, policy); err != nil {
		return nil, err
	}

	return idleSession{}, nil
}

// idleSession represents a verified but resourceless link.
type idleSession struct{}

func (idleSession) Serve(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (idleSession) Close() error { return nil }

// Caller runs individual request-response calls to a device behind a circuit
// breaker. Call errors go to the caller, never to the connection supervisor.
type Caller struct {
	breaker *gobreaker.CircuitBreaker
}

// NewCaller creates a Caller named after the device it fronts.
//
// The breaker opens after five consecutive failures and probes again after
// 30 seconds, so a dead device fails fast instead of tying up callers.
func NewCaller(device string) *Caller {
	return &Caller{
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        device,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Do executes fn through the circuit breaker. When the breaker is open the
// call fails immediately with gobreaker.ErrOpenState.
func (c *Caller) Do(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	return c.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
}

// State returns the current breaker state.
func (c *Caller) State() gobreaker.State {
	return c.breaker.State()
}
