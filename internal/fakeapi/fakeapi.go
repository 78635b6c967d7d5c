package fakeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Paths served by [Backend].
const (
	PathToken        = "/api/token/"
	PathTokenRefresh = "/api/token/refresh/"
	PathRegister     = "/api/v1/register/"
	PathCurrentUser  = "/api/v1/users/me/"
	PathTransactions = "/api/v1/finance/transactions/"
	PathSummary      = "/api/v1/finance/summary/"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// User is the public user resource.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsStaff  bool   `json:"is_staff"`
}

// Options configures a Backend. Zero values pick the defaults noted per field.
type Options struct {
	// AccessTTL defaults to 5m.
	AccessTTL time.Duration
	// RefreshTTL defaults to 24h.
	RefreshTTL time.Duration
	// RotateRefresh issues a new refresh token on every refresh and revokes
	// the one presented.
	RotateRefresh bool
	// Secret signs every token. Defaults to a fixed test key.
	Secret []byte
	// Now defaults to time.Now.
	Now func() time.Time
}

type account struct {
	user     User
	password string
}

type claims struct {
	TokenType string `json:"token_type"`
	UserID    int64  `json:"user_id"`
	jwt.RegisteredClaims
}

// Backend implements http.Handler. It is safe for concurrent use.
type Backend struct {
	opts Options
	mux  *http.ServeMux

	mu           sync.Mutex
	accounts     map[string]*account
	byID         map[int64]*account
	nextID       int64
	revoked      map[string]struct{}
	calls        map[string]int
	forced       map[string]int
	refreshDelay time.Duration
	transactions []map[string]any
}

// New returns an empty Backend.
func New(opts Options) *Backend {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 5 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 24 * time.Hour
	}
	if len(opts.Secret) == 0 {
		opts.Secret = []byte("fakeapi-test-signing-key-0123456789")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	b := &Backend{
		opts:     opts,
		mux:      http.NewServeMux(),
		accounts: make(map[string]*account),
		byID:     make(map[int64]*account),
		nextID:   1,
		revoked:  make(map[string]struct{}),
		calls:    make(map[string]int),
		forced:   make(map[string]int),
	}
	b.mux.HandleFunc("POST "+PathToken+"{$}", b.handleToken)
	b.mux.HandleFunc("POST "+PathTokenRefresh+"{$}", b.handleRefresh)
	b.mux.HandleFunc("POST "+PathRegister+"{$}", b.handleRegister)
	b.mux.HandleFunc("GET "+PathCurrentUser+"{$}", b.authenticated(b.handleCurrentUser))
	b.mux.HandleFunc("GET "+PathTransactions+"{$}", b.authenticated(b.handleListTransactions))
	b.mux.HandleFunc("POST "+PathTransactions+"{$}", b.authenticated(b.handleCreateTransaction))
	b.mux.HandleFunc("GET "+PathSummary+"{$}", b.authenticated(b.handleSummary))
	return b
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.URL.Path]++
	status := b.forced[r.URL.Path]
	b.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
		return
	}
	b.mux.ServeHTTP(w, r)
}

// AddUser registers an account directly, bypassing validation.
func (b *Backend) AddUser(username, email, password string, staff bool) User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(username, email, password, staff)
}

func (b *Backend) addUserLocked(username, email, password string, staff bool) User {
	acct := &account{
		user: User{
			ID:       b.nextID,
			Username: username,
			Email:    email,
			IsStaff:  staff,
		},
		password: password,
	}
	b.nextID++
	b.accounts[username] = acct
	b.byID[acct.user.ID] = acct
	return acct.user
}

// Issue mints a token pair for username as if it had logged in.
func (b *Backend) Issue(username string) (access, refresh string, err error) {
	return b.IssueWithTTL(username, b.opts.AccessTTL, b.opts.RefreshTTL)
}

// IssueWithTTL mints a token pair with explicit lifetimes. Negative values
// produce already-expired tokens.
func (b *Backend) IssueWithTTL(username string, accessTTL, refreshTTL time.Duration) (access, refresh string, err error) {
	b.mu.Lock()
	acct, ok := b.accounts[username]
	b.mu.Unlock()
	if !ok {
		return "", "", fmt.Errorf("fakeapi: unknown user %q", username)
	}
	if access, err = b.sign(tokenTypeAccess, acct.user.ID, accessTTL); err != nil {
		return "", "", err
	}
	if refresh, err = b.sign(tokenTypeRefresh, acct.user.ID, refreshTTL); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Revoke blacklists a token. Later use is answered with 401.
func (b *Backend) Revoke(token string) {
	c, err := b.parse(token, "")
	if err != nil {
		return
	}
	b.mu.Lock()
	b.revoked[c.ID] = struct{}{}
	b.mu.Unlock()
}

// Calls reports how many requests reached path.
func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

// ResetCalls zeroes every call counter.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	b.calls = make(map[string]int)
	b.mu.Unlock()
}

// ForceStatus answers every request to path with status. Zero restores
// normal handling.
func (b *Backend) ForceStatus(path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.forced, path)
		return
	}
	b.forced[path] = status
}

// SetRefreshDelay slows the refresh endpoint down so concurrent callers
// overlap reliably.
func (b *Backend) SetRefreshDelay(d time.Duration) {
	b.mu.Lock()
	b.refreshDelay = d
	b.mu.Unlock()
}

func (b *Backend) sign(tokenType string, userID int64, ttl time.Duration) (string, error) {
	now := b.opts.Now()
	c := claims{
		TokenType: tokenType,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(b.opts.Secret)
}

var errTokenNotValid = errors.New("token not valid")

func (b *Backend) parse(token, wantType string) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return b.opts.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(b.opts.Now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errTokenNotValid
	}
	if wantType != "" && c.TokenType != wantType {
		return nil, errTokenNotValid
	}
	b.mu.Lock()
	_, revoked := b.revoked[c.ID]
	b.mu.Unlock()
	if revoked {
		return nil, errTokenNotValid
	}
	return &c, nil
}

func tokenNotValid(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"detail": "Given token not valid for any token type",
		"code":   "token_not_valid",
	})
}

func (b *Backend) authenticated(next func(http.ResponseWriter, *http.Request, *account)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Authentication credentials were not provided.",
			})
			return
		}
		c, err := b.parse(token, tokenTypeAccess)
		if err != nil {
			tokenNotValid(w)
			return
		}
		b.mu.Lock()
		acct, found := b.byID[c.UserID]
		b.mu.Unlock()
		if !found {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "User not found", "code": "user_not_found"})
			return
		}
		next(w, r, acct)
	}
}

func (b *Backend) handleToken(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}
	fields := map[string][]string{}
	if in.Username == "" {
		fields["username"] = []string{"This field is required."}
	}
	if in.Password == "" {
		fields["password"] = []string{"This field is required."}
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, fields)
		return
	}

	b.mu.Lock()
	acct, ok := b.accounts[in.Username]
	b.mu.Unlock()
	if !ok || acct.password != in.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "No active account found with the given credentials",
		})
		return
	}

	access, refresh, err := b.Issue(in.Username)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access, "refresh": refresh})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	if !decode(w, r, &in) {
		return
	}
	if in.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"refresh": {"This field is required."}})
		return
	}

	b.mu.Lock()
	delay := b.refreshDelay
	b.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	c, err := b.parse(in.Refresh, tokenTypeRefresh)
	if err != nil {
		tokenNotValid(w)
		return
	}

	access, err := b.sign(tokenTypeAccess, c.UserID, b.opts.AccessTTL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	out := map[string]string{"access": access}
	if b.opts.RotateRefresh {
		refresh, err := b.sign(tokenTypeRefresh, c.UserID, b.opts.RefreshTTL)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
			return
		}
		b.mu.Lock()
		b.revoked[c.ID] = struct{}{}
		b.mu.Unlock()
		out["refresh"] = refresh
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		Password2 string `json:"password2"`
	}
	if !decode(w, r, &in) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	details := map[string][]string{}
	switch {
	case in.Username == "":
		details["username"] = []string{"This field is required."}
	case b.accounts[in.Username] != nil:
		details["username"] = []string{"A user with that username already exists."}
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		details["email"] = []string{"Enter a valid email address."}
	}
	if len(in.Password) < 8 {
		details["password"] = []string{"This password is too short. It must contain at least 8 characters."}
	}
	if in.Password != in.Password2 {
		details["password"] = append(details["password"], "Password fields didn't match.")
	}
	if len(details) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Registration failed",
			"details": details,
		})
		return
	}

	user := b.addUserLocked(in.Username, in.Email, in.Password, false)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    user,
	})
}

func (b *Backend) handleCurrentUser(w http.ResponseWriter, _ *http.Request, acct *account) {
	writeJSON(w, http.StatusOK, acct.user)
}

func (b *Backend) handleListTransactions(w http.ResponseWriter, _ *http.Request, acct *account) {
	b.mu.Lock()
	results := make([]map[string]any, 0, len(b.transactions))
	for _, tx := range b.transactions {
		if tx["user"] == acct.user.ID {
			results = append(results, tx)
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "results": results})
}

func (b *Backend) handleCreateTransaction(w http.ResponseWriter, r *http.Request, acct *account) {
	var in map[string]any
	if !decode(w, r, &in) {
		return
	}
	b.mu.Lock()
	in["id"] = len(b.transactions) + 1
	in["user"] = acct.user.ID
	b.transactions = append(b.transactions, in)
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, in)
}

func (b *Backend) handleSummary(w http.ResponseWriter, _ *http.Request, acct *account) {
	writeJSON(w, http.StatusOK, map[string]any{
		"user":     acct.user.Username,
		"income":   "0.00",
		"expenses": "0.00",
		"balance":  "0.00",
	})
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error - " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
