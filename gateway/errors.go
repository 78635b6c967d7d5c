package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionExpired is returned when a 401 could not be recovered because
	// the refresh token is missing or was rejected.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidCredentials is returned when a call is still unauthorized
	// after its single retry.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNetwork matches every [*NetworkError].
	ErrNetwork = errors.New("network error")
	// ErrNilRequest is returned by Do for a nil request.
	ErrNilRequest = errors.New("gateway: nil request")
	// ErrNoRefresher is returned when a 401 needs renewal but no Refresher is configured.
	ErrNoRefresher = errors.New("gateway: no refresher configured")
	// ErrRefreshUnavailable marks a refresh that could not be attempted, such
	// as a closed client or a failing store. Like [ErrNetwork] it leaves the
	// stored session in place.
	ErrRefreshUnavailable = errors.New("gateway: refresh unavailable")
)

// NetworkError is a transport-level failure: no response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrNetwork, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports whether target is [ErrNetwork].
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// StatusError carries a non-2xx response returned to [Gateway.DoJSON].
// Body holds the raw response payload.
type StatusError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}
