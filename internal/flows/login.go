package flows

import (
	"context"
	"net/http"
)

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	API        API
	Endpoints  Endpoints
	SaveTokens func(ctx context.Context, access, refresh string) error
}

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Outcome
	AccessToken  string
	RefreshToken string
	User         UserRecord
}

// RunLogin exchanges credentials for a token pair, loads the current user
// with the new access token and only then persists the pair.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) LoginResult {
	var pair tokenPair
	body := map[string]string{
		"username": username,
		"password": password,
	}
	if err := deps.API.DoJSON(ctx, http.MethodPost, deps.Endpoints.Token, body, &pair, authCall()...); err != nil {
		return LoginResult{Outcome: outcomeFromError(err, http.StatusBadRequest, http.StatusUnauthorized)}
	}
	if pair.Access == "" {
		return LoginResult{Outcome: malformed("token response has no access token")}
	}
	if pair.Refresh == "" {
		return LoginResult{Outcome: malformed("token response has no refresh token")}
	}

	user, o := fetchUser(ctx, deps.API, deps.Endpoints.CurrentUser, pair.Access)
	if !o.OK() {
		return LoginResult{Outcome: o}
	}

	if err := deps.SaveTokens(ctx, pair.Access, pair.Refresh); err != nil {
		return LoginResult{Outcome: Outcome{Failure: FailureStore, Err: err}}
	}
	return LoginResult{
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		User:         user,
	}
}
