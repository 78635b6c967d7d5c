package flows

import (
	"context"
	"errors"
	"net/http"
)

// ErrNoRefreshToken is reported with FailureNoToken.
var ErrNoRefreshToken = errors.New("no refresh token")

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	API        API
	Endpoints  Endpoints
	SaveTokens func(ctx context.Context, access, refresh string) error
}

// RefreshResult carries either the renewed pair or failure metadata.
type RefreshResult struct {
	Outcome
	AccessToken  string
	RefreshToken string
	Rotated      bool
	User         UserRecord
}

// RunRefresh exchanges refreshToken for a new access token. The refresh
// token is kept unless the backend rotated it.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if refreshToken == "" {
		return RefreshResult{Outcome: Outcome{Failure: FailureNoToken, Err: ErrNoRefreshToken}}
	}

	var pair tokenPair
	body := map[string]string{"refresh": refreshToken}
	if err := deps.API.DoJSON(ctx, http.MethodPost, deps.Endpoints.TokenRefresh, body, &pair, authCall()...); err != nil {
		return RefreshResult{Outcome: outcomeFromError(err, http.StatusBadRequest, http.StatusUnauthorized)}
	}
	if pair.Access == "" {
		return RefreshResult{Outcome: malformed("refresh response has no access token")}
	}

	next, rotated := refreshToken, false
	if pair.Refresh != "" && pair.Refresh != refreshToken {
		next, rotated = pair.Refresh, true
	}

	user, o := fetchUser(ctx, deps.API, deps.Endpoints.CurrentUser, pair.Access)
	if !o.OK() {
		return RefreshResult{Outcome: o}
	}

	if err := deps.SaveTokens(ctx, pair.Access, next); err != nil {
		return RefreshResult{Outcome: Outcome{Failure: FailureStore, Err: err}}
	}
	return RefreshResult{
		AccessToken:  pair.Access,
		RefreshToken: next,
		Rotated:      rotated,
		User:         user,
	}
}
