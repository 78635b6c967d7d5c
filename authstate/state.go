package authstate

import (
	"fmt"
	"log/slog"

	finAuth "github.com/MrEthical07/finAuth"
)

// Kind is the phase of the authentication state machine.
type Kind uint8

const (
	// Bootstrapping means the stored session is being resolved.
	Bootstrapping Kind = iota
	// Unauthenticated means there is no usable session.
	Unauthenticated
	// Authenticating means a login is in flight.
	Authenticating
	// Authenticated means Session is valid.
	Authenticated
	// Error means bootstrap could not reach a verdict. The stored session is
	// kept and Bootstrap may be retried.
	Error
)

func (k Kind) String() string {
	switch k {
	case Bootstrapping:
		return "bootstrapping"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Transient reports whether k is Bootstrapping or Authenticating.
func (k Kind) Transient() bool {
	return k == Bootstrapping || k == Authenticating
}

// Reasons attached to Unauthenticated and Error states.
const (
	// ReasonSessionExpired is the generic notice shown when a refresh was
	// rejected. The backend's message is not surfaced.
	ReasonSessionExpired = "session_expired"
	// ReasonLoggedOut follows an explicit Logout.
	ReasonLoggedOut = "logged_out"
	// ReasonNetwork means the backend could not be reached.
	ReasonNetwork = "network"
	// ReasonUnavailable means the token store or client could not be used.
	ReasonUnavailable = "unavailable"
)

// AuthState is a snapshot of the state machine. Session is set only when
// Kind is Authenticated; Err only when Kind is Error.
type AuthState struct {
	Kind    Kind
	Session *finAuth.Session
	Reason  string
	Err     error
}

// Authenticated reports whether s holds a session.
func (s AuthState) Authenticated() bool {
	return s.Kind == Authenticated && s.Session != nil
}

func (s AuthState) clone() AuthState {
	if s.Session != nil {
		session := *s.Session
		s.Session = &session
	}
	return s
}

func (s AuthState) same(o AuthState) bool {
	return s.Kind == o.Kind && s.Session == o.Session && s.Reason == o.Reason && s.Err == o.Err
}

// LogValue logs the kind and reason, plus the user when authenticated.
func (s AuthState) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("kind", s.Kind.String())}
	if s.Reason != "" {
		attrs = append(attrs, slog.String("reason", s.Reason))
	}
	if s.Session != nil {
		attrs = append(attrs, slog.Int64("user_id", s.Session.User.ID))
	}
	return slog.GroupValue(attrs...)
}
