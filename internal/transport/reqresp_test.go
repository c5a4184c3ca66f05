package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nerrad567/devicelink/internal/connection"
)

func TestRequestResponse_ConnectSuccess(t *testing.T) {
	r := &RequestResponse{
		Probe: func(ctx context.Context) error { return nil },
	}

	sess, err := r.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sess.Close()

	// The session idles until cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() { serveDone <- sess.Serve(ctx) }()
	cancel()

	select {
	case err := <-serveDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestRequestResponse_ProbeRetriesTransient(t *testing.T) {
	var mu sync.Mutex
	n := 0

	r := &RequestResponse{
		MaxProbeRetries: 3,
		Probe: func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			n++
			if n < 2 {
				return errors.New("transient")
			}
			return nil
		},
	}

	if _, err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v, want success after retry", err)
	}
	if n != 2 {
		t.Errorf("probe ran %d times, want 2", n)
	}
}

func TestRequestResponse_AuthErrorNotRetried(t *testing.T) {
	var mu sync.Mutex
	n := 0
	authErr := connection.NewAuthError(errors.New("bad key"))

	r := &RequestResponse{
		MaxProbeRetries: 5,
		Probe: func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			n++
			return authErr
		},
	}

	_, err := r.Connect(context.Background())
	if !connection.IsAuthError(err) {
		t.Fatalf("Connect() error = %v, want auth error", err)
	}
	if n != 1 {
		t.Errorf("probe ran %d times, want 1 for auth failure", n)
	}
}

func TestRequestResponse_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &RequestResponse{
		Probe: func(ctx context.Context) error {
			return errors.New("transient")
		},
	}

	if _, err := r.Connect(ctx); err == nil {
		t.Fatal("Connect() with cancelled context should fail")
	}
}

func TestCaller_PassesThroughResults(t *testing.T) {
	c := NewCaller("dev-1")

	got, err := c.Do(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Do() = %v, want 42", got)
	}

	errCall := errors.New("call failed")
	if _, err := c.Do(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errCall
	}); !errors.Is(err, errCall) {
		t.Errorf("Do() error = %v, want %v", err, errCall)
	}
}

func TestCaller_BreakerOpens(t *testing.T) {
	c := NewCaller("dev-1")
	errDown := errors.New("down")

	for i := 0; i < 5; i++ {
		c.Do(context.Background(), func(ctx context.Context) (any, error) {
			return nil, errDown
		})
	}

	if got := c.State(); got != gobreaker.StateOpen {
		t.Fatalf("State() = %v, want open after consecutive failures", got)
	}

	_, err := c.Do(context.Background(), func(ctx context.Context) (any, error) {
		t.Error("call executed while breaker open")
		return nil, nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Do() error = %v, want ErrOpenState", err)
	}
}
