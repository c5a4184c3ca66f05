package connection

import "errors"

var (
	// ErrDeviceExists is returned when registering a device ID that is
	// already supervised.
	ErrDeviceExists = errors.New("connection: device already registered")

	// ErrDeviceNotFound is returned when the device ID is unknown.
	ErrDeviceNotFound = errors.New("connection: device not registered")

	// ErrNotFailed is returned by Reset when the connection is not in the
	// Failed state.
	ErrNotFailed = errors.New("connection: reset requires failed state")

	// ErrManagerClosed is returned when registering on a closed manager.
	ErrManagerClosed = errors.New("connection: manager closed")
)

// AuthError marks a connect failure as an authentication rejection.
// Transports wrap credential errors in AuthError so the supervisor can
// budget them separately from transient failures.
type AuthError struct {
	Err error
}

// NewAuthError wraps err as an authentication failure.
func NewAuthError(err error) *AuthError {
	return &AuthError{Err: err}
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "authentication failed"
	}
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is or wraps an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
