package finAuth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MrEthical07/finAuth/gateway"
)

var (
	// ErrInvalidCredentials is returned when the backend rejects a login, or
	// when a call is still unauthorized after its single retry.
	ErrInvalidCredentials = gateway.ErrInvalidCredentials
	// ErrSessionExpired is returned when a 401 could not be recovered because
	// the refresh token is missing or was rejected.
	ErrSessionExpired = gateway.ErrSessionExpired
	// ErrNetwork matches every transport failure.
	ErrNetwork = gateway.ErrNetwork
	// ErrRefreshFailed matches every failed refresh exchange.
	ErrRefreshFailed = errors.New("refresh failed")
	// ErrRegistrationInvalid matches every [*ValidationError].
	ErrRegistrationInvalid = errors.New("registration invalid")
	// ErrMalformedResponse is returned when a 2xx response lacks a required field.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrTokenStore wraps token store failures surfaced by the client.
	ErrTokenStore = errors.New("token store failure")
	// ErrClientClosed is returned by operations on a closed Client.
	ErrClientClosed = errors.New("client closed")
	// ErrRefreshUnavailable is returned by a gateway call whose 401 could not
	// be renewed because the client is closed or the store failed. The stored
	// session is kept.
	ErrRefreshUnavailable = gateway.ErrRefreshUnavailable
)

// NetworkError is a transport-level failure: no response was received.
type NetworkError = gateway.NetworkError

// StatusError carries an unexpected non-2xx response and its raw body.
type StatusError = gateway.StatusError

// CredentialError is returned when the token endpoint refuses the
// credentials. Detail is the backend's message, when it sent one.
type CredentialError struct {
	Status int
	Detail string
}

func (e *CredentialError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s (status %d)", ErrInvalidCredentials, e.Status)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidCredentials, e.Detail)
}

// Is reports whether target is [ErrInvalidCredentials].
func (e *CredentialError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// ValidationError is returned when registration input fails backend
// validation. Fields maps a field name to its messages; messages not bound
// to a field are under "non_field_errors".
type ValidationError struct {
	Fields  map[string][]string
	Message string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(ErrRegistrationInvalid.Error())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "; %s: %s", k, strings.Join(e.Fields[k], " "))
	}
	return b.String()
}

// Is reports whether target is [ErrRegistrationInvalid].
func (e *ValidationError) Is(target error) bool {
	return target == ErrRegistrationInvalid
}

// Field returns the messages for name.
func (e *ValidationError) Field(name string) []string {
	if e == nil {
		return nil
	}
	return e.Fields[name]
}

// RefreshError is returned when the refresh exchange fails for any reason
// other than the network. Status is zero when the backend was not reached.
type RefreshError struct {
	Status int
	Detail string
	Err    error
}

func (e *RefreshError) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", ErrRefreshFailed, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", ErrRefreshFailed, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s (status %d)", ErrRefreshFailed, e.Status)
	default:
		return ErrRefreshFailed.Error()
	}
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Is reports whether target is [ErrRefreshFailed].
func (e *RefreshError) Is(target error) bool {
	return target == ErrRefreshFailed
}
