package flows

import (
	"context"

	"github.com/MrEthical07/finAuth/gateway"
)

// API is the slice of the gateway the flows use.
type API interface {
	DoJSON(ctx context.Context, method, path string, in, out any, opts ...gateway.CallOption) error
}

// Endpoints are the backend paths, relative to the gateway base URL.
type Endpoints struct {
	Token        string
	TokenRefresh string
	Register     string
	CurrentUser  string
}

// Deps groups flow dependency sets. The Client builds this once and delegates
// each exchange method to the matching flow.
type Deps struct {
	Login    LoginDeps
	Register RegisterDeps
	Refresh  RefreshDeps
	Logout   LogoutDeps
}

// authCall is the option set every auth endpoint call is sent with.
func authCall() []gateway.CallOption {
	return []gateway.CallOption{gateway.Anonymous(), gateway.WithoutRefresh()}
}
