package flows

import (
	"context"
	"net/http"

	"github.com/MrEthical07/finAuth/gateway"
)

// UserRecord is the flow-local user resource.
type UserRecord struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsStaff  bool   `json:"is_staff"`
}

func (u UserRecord) empty() bool {
	return u.ID == 0 && u.Username == ""
}

// fetchUser loads the current user with a token that may not be stored yet.
func fetchUser(ctx context.Context, api API, path, access string) (UserRecord, Outcome) {
	var user UserRecord
	err := api.DoJSON(ctx, http.MethodGet, path, nil, &user, gateway.WithBearer(access), gateway.WithoutRefresh())
	if err != nil {
		o := outcomeFromError(err)
		if o.Failure != FailureNetwork {
			o.Failure = FailureUserFetch
		}
		return UserRecord{}, o
	}
	if user.empty() {
		return UserRecord{}, malformed("current user response has no id or username")
	}
	return user, Outcome{}
}
