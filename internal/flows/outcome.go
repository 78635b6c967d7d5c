package flows

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MrEthical07/finAuth/gateway"
)

// FailureKind classifies flow failures for root-level mapping.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureRejected means the backend refused the credentials or token.
	FailureRejected
	// FailureInvalid means registration input failed backend validation.
	FailureInvalid
	// FailureMalformed means a 2xx response lacked required fields.
	FailureMalformed
	// FailureNetwork means no response was received.
	FailureNetwork
	// FailureUserFetch means tokens were issued but the current user could
	// not be loaded with them.
	FailureUserFetch
	// FailureStore means the token store rejected the write.
	FailureStore
	// FailureBackend is any other non-2xx answer.
	FailureBackend
	// FailureNoToken means a refresh was requested without a refresh token.
	FailureNoToken
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureRejected:
		return "rejected"
	case FailureInvalid:
		return "invalid"
	case FailureMalformed:
		return "malformed"
	case FailureNetwork:
		return "network"
	case FailureUserFetch:
		return "user_fetch"
	case FailureStore:
		return "store"
	case FailureBackend:
		return "backend"
	case FailureNoToken:
		return "no_token"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// Outcome describes how a flow ended. Status and Detail are set when the
// backend answered; Fields only for FailureInvalid.
type Outcome struct {
	Failure FailureKind
	Err     error
	Status  int
	Detail  string
	Fields  map[string][]string
}

// OK reports whether the flow succeeded.
func (o Outcome) OK() bool {
	return o.Failure == FailureNone
}

func malformed(format string, args ...any) Outcome {
	return Outcome{Failure: FailureMalformed, Err: fmt.Errorf(format, args...)}
}

// outcomeFromError classifies a gateway error. Statuses listed in rejects
// count as a rejection, every other non-2xx as a backend failure.
func outcomeFromError(err error, rejects ...int) Outcome {
	if gateway.IsNetwork(err) {
		return Outcome{Failure: FailureNetwork, Err: err}
	}
	var se *gateway.StatusError
	if errors.As(err, &se) {
		o := Outcome{
			Failure: FailureBackend,
			Err:     err,
			Status:  se.StatusCode,
			Detail:  errorDetail(se.Body),
		}
		if slices.Contains(rejects, se.StatusCode) {
			o.Failure = FailureRejected
		}
		return o
	}
	return Outcome{Failure: FailureMalformed, Err: err}
}

// errorDetail extracts the human-readable message from an error payload.
// It understands {"detail": ...}, {"error": ...} and {"message": ...}.
func errorDetail(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		var s string
		if json.Unmarshal(body, &s) == nil {
			return s
		}
		return strings.TrimSpace(string(body))
	}
	for _, key := range []string{"detail", "error", "message"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		if msgs := messages(raw); len(msgs) > 0 {
			return strings.Join(msgs, " ")
		}
	}
	return ""
}

// NonFieldErrors is the key messages not bound to a field are grouped under.
const NonFieldErrors = "non_field_errors"

// validationFields turns a 400 registration payload into per-field
// messages. The backend sends {"error": msg, "details": X} where X is a
// field map, a list of messages or a single string. A bare field map (no
// envelope) is accepted too.
func validationFields(body []byte) (map[string][]string, string) {
	fields := map[string][]string{}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		if detail := errorDetail(body); detail != "" {
			fields[NonFieldErrors] = []string{detail}
		}
		return fields, ""
	}

	var message string
	if raw, ok := payload["error"]; ok {
		message = strings.Join(messages(raw), " ")
	}

	details, enveloped := payload["details"]
	if !enveloped {
		for key, raw := range payload {
			switch key {
			case "error", "message":
				continue
			case "detail":
				fields[NonFieldErrors] = append(fields[NonFieldErrors], messages(raw)...)
			default:
				fields[key] = messages(raw)
			}
		}
		return fields, message
	}

	var perField map[string]json.RawMessage
	if json.Unmarshal(details, &perField) == nil {
		for key, raw := range perField {
			fields[key] = messages(raw)
		}
		return fields, message
	}
	if msgs := messages(details); len(msgs) > 0 {
		fields[NonFieldErrors] = msgs
	}
	return fields, message
}

// messages flattens a JSON value into display strings.
func messages(raw json.RawMessage) []string {
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return list
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	var mixed []json.RawMessage
	if json.Unmarshal(raw, &mixed) == nil {
		out := make([]string, 0, len(mixed))
		for _, item := range mixed {
			out = append(out, messages(item)...)
		}
		return out
	}
	var nested map[string]json.RawMessage
	if json.Unmarshal(raw, &nested) == nil {
		out := make([]string, 0, len(nested))
		for key, value := range nested {
			for _, msg := range messages(value) {
				out = append(out, key+": "+msg)
			}
		}
		slices.Sort(out)
		return out
	}
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return nil
	}
	return []string{text}
}
