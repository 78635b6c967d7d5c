package finAuth

import (
	"log/slog"
	"time"
)

// User is the authenticated account as reported by the current-user endpoint.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsStaff  bool   `json:"is_staff"`
}

// Session is an authenticated session. AccessExpiresAt is zero when the
// access token carries no readable expiry.
type Session struct {
	AccessToken     string
	RefreshToken    string
	User            User
	AccessExpiresAt time.Time
}

// RefreshResult is the outcome of a successful refresh. RefreshToken is the
// token now stored: the rotated one if the backend issued it, else the one
// presented.
type RefreshResult struct {
	AccessToken     string
	RefreshToken    string
	Rotated         bool
	User            User
	AccessExpiresAt time.Time
}

// Session converts r into the session it establishes.
func (r *RefreshResult) Session() *Session {
	if r == nil {
		return nil
	}
	return &Session{
		AccessToken:     r.AccessToken,
		RefreshToken:    r.RefreshToken,
		User:            r.User,
		AccessExpiresAt: r.AccessExpiresAt,
	}
}

// LogValue keeps tokens out of structured logs.
func (s Session) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("user_id", s.User.ID),
		slog.String("username", s.User.Username),
	}
	if !s.AccessExpiresAt.IsZero() {
		attrs = append(attrs, slog.Time("access_expires_at", s.AccessExpiresAt))
	}
	return slog.GroupValue(attrs...)
}
