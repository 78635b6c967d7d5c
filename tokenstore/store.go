package tokenstore

import (
	"context"
	"errors"
)

const (
	// KeyAccessToken is the storage key of the access token.
	KeyAccessToken = "accessToken"
	// KeyRefreshToken is the storage key of the refresh token.
	KeyRefreshToken = "refreshToken"
)

var (
	// ErrEmptyAccessToken is returned by Save when no access token is given.
	ErrEmptyAccessToken = errors.New("tokenstore: empty access token")
	// ErrUnavailable wraps backend I/O failures.
	ErrUnavailable = errors.New("tokenstore: backend unavailable")
	// ErrCorrupt is returned when persisted state cannot be decoded.
	ErrCorrupt = errors.New("tokenstore: corrupt state")
)

// Tokens is the persisted token pair. Either field may be empty.
type Tokens struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Empty reports whether neither token is present.
func (t Tokens) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// HasAccess reports whether an access token is present.
func (t Tokens) HasAccess() bool {
	return t.AccessToken != ""
}

// HasRefresh reports whether a refresh token is present.
func (t Tokens) HasRefresh() bool {
	return t.RefreshToken != ""
}

// Store is durable storage for the current token pair.
//
// Save overwrites the access token. An empty refreshToken keeps the refresh
// token already stored, since a refresh exchange may not rotate it.
// Load returns whatever is persisted. Clear removes both values and must be
// safe to call on an empty store.
type Store interface {
	Save(ctx context.Context, accessToken, refreshToken string) error
	Load(ctx context.Context) (Tokens, error)
	Clear(ctx context.Context) error
}

func merge(current Tokens, accessToken, refreshToken string) Tokens {
	next := Tokens{AccessToken: accessToken, RefreshToken: current.RefreshToken}
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}
	return next
}
