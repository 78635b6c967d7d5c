package guard

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/MrEthical07/finAuth/authstate"
)

// NextParam is the query parameter carrying the originally requested path.
const NextParam = "next"

// Action is what the guard does with a request.
type Action uint8

const (
	// ActionLoading shows the neutral loading placeholder.
	ActionLoading Action = iota
	// ActionRedirect sends the user to the login surface.
	ActionRedirect
	// ActionRender serves the protected content.
	ActionRender
)

func (a Action) String() string {
	switch a {
	case ActionLoading:
		return "loading"
	case ActionRedirect:
		return "redirect"
	case ActionRender:
		return "render"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// Decision is the outcome of [Decide]. RedirectTo and From are set only for
// ActionRedirect.
type Decision struct {
	Action     Action
	RedirectTo string
	From       string
}

// Decide chooses the action for requestedPath (path plus optional query)
// under state. A request for loginPath itself always renders, so the login
// surface can be wrapped without a redirect loop.
func Decide(state authstate.AuthState, requestedPath, loginPath string) Decision {
	switch state.Kind {
	case authstate.Bootstrapping, authstate.Authenticating:
		return Decision{Action: ActionLoading}
	case authstate.Authenticated:
		if state.Session != nil {
			return Decision{Action: ActionRender}
		}
	}

	if samePath(requestedPath, loginPath) {
		return Decision{Action: ActionRender}
	}
	return Decision{
		Action:     ActionRedirect,
		RedirectTo: loginURL(loginPath, requestedPath),
		From:       requestedPath,
	}
}

func loginURL(loginPath, from string) string {
	if from == "" || !localPath(from) {
		return loginPath
	}
	sep := "?"
	if strings.Contains(loginPath, "?") {
		sep = "&"
	}
	return loginPath + sep + NextParam + "=" + url.QueryEscape(from)
}

func samePath(requested, loginPath string) bool {
	path, _, _ := strings.Cut(requested, "?")
	login, _, _ := strings.Cut(loginPath, "?")
	return path == login
}

// localPath accepts "/x" and rejects "//host", "/\host" and anything with
// a scheme or host.
func localPath(p string) bool {
	if p == "" || p[0] != '/' {
		return false
	}
	if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
		return false
	}
	u, err := url.Parse(p)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}
