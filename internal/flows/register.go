package flows

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/finAuth/gateway"
)

// RegisterDeps captures registration dependencies. Registration never
// touches the token store.
type RegisterDeps struct {
	API       API
	Endpoints Endpoints
}

// RegisterResult carries the created user or the validation failure.
type RegisterResult struct {
	Outcome
	Message string
	User    UserRecord
}

type registerEnvelope struct {
	Message string      `json:"message"`
	User    *UserRecord `json:"user"`
}

// RunRegister creates an account. It does not log in.
func RunRegister(ctx context.Context, username, email, password string, deps RegisterDeps) RegisterResult {
	body := map[string]string{
		"username":  username,
		"email":     email,
		"password":  password,
		"password2": password,
	}
	var raw json.RawMessage
	if err := deps.API.DoJSON(ctx, http.MethodPost, deps.Endpoints.Register, body, &raw, authCall()...); err != nil {
		var se *gateway.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusBadRequest {
			fields, message := validationFields(se.Body)
			return RegisterResult{Outcome: Outcome{
				Failure: FailureInvalid,
				Err:     err,
				Status:  se.StatusCode,
				Detail:  message,
				Fields:  fields,
			}}
		}
		return RegisterResult{Outcome: outcomeFromError(err)}
	}

	var envelope registerEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return RegisterResult{Outcome: malformed("decode register response: %v", err)}
	}
	if envelope.User != nil && !envelope.User.empty() {
		return RegisterResult{Message: envelope.Message, User: *envelope.User}
	}

	var bare UserRecord
	if err := json.Unmarshal(raw, &bare); err != nil || bare.empty() {
		return RegisterResult{Outcome: malformed("register response has no user")}
	}
	return RegisterResult{Message: envelope.Message, User: bare}
}
