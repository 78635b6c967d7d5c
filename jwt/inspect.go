package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned when a token is not a three-segment JWT.
var ErrNotJWT = errors.New("token is not a jwt")

// Claims is the subset of token claims the client looks at.
type Claims struct {
	Subject   string
	TokenType string
	ID        string
	UserID    string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// HasExpiry reports whether the token carries an exp claim.
func (c *Claims) HasExpiry() bool {
	return c != nil && !c.ExpiresAt.IsZero()
}

type wireClaims struct {
	TokenType string          `json:"token_type,omitempty"`
	UserID    json.RawMessage `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Config controls an [Inspector].
type Config struct {
	// Leeway is subtracted from exp when deciding expiry, so tokens about to
	// lapse in transit count as expired.
	Leeway time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Inspector reads token claims. It is safe for concurrent use.
type Inspector struct {
	leeway time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewInspector returns an [Inspector] for cfg.
func NewInspector(cfg Config) *Inspector {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	leeway := cfg.Leeway
	if leeway < 0 {
		leeway = 0
	}
	return &Inspector{
		leeway: leeway,
		now:    now,
		parser: jwt.NewParser(),
	}
}

// Inspect decodes token claims without verifying the signature.
func (i *Inspector) Inspect(token string) (*Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, ErrNotJWT
	}

	var wc wireClaims
	if _, _, err := i.parser.ParseUnverified(token, &wc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	claims := &Claims{
		Subject:   wc.Subject,
		TokenType: wc.TokenType,
		ID:        wc.ID,
		UserID:    rawUserID(wc.UserID),
	}
	if wc.ExpiresAt != nil {
		claims.ExpiresAt = wc.ExpiresAt.Time
	}
	if wc.IssuedAt != nil {
		claims.IssuedAt = wc.IssuedAt.Time
	}
	return claims, nil
}

// ExpiresWithin reports whether token expires within d from now. Tokens
// without exp never expire. Opaque tokens return [ErrNotJWT].
func (i *Inspector) ExpiresWithin(token string, d time.Duration) (bool, error) {
	claims, err := i.Inspect(token)
	if err != nil {
		return false, err
	}
	if !claims.HasExpiry() {
		return false, nil
	}
	deadline := i.now().Add(d + i.leeway)
	return !claims.ExpiresAt.After(deadline), nil
}

// Expired reports whether token is a JWT whose exp has passed. Opaque
// tokens and tokens without exp are never reported expired; only the
// backend can reject those.
func (i *Inspector) Expired(token string) bool {
	expired, err := i.ExpiresWithin(token, 0)
	return err == nil && expired
}

// ExpiresAt returns the token's exp, or the zero time when unknown.
func (i *Inspector) ExpiresAt(token string) time.Time {
	claims, err := i.Inspect(token)
	if err != nil {
		return time.Time{}
	}
	return claims.ExpiresAt
}

func rawUserID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			return strconv.FormatInt(v, 10)
		}
		return n.String()
	}
	return ""
}
