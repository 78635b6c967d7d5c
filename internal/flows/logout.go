package flows

import "context"

// LogoutDeps captures logout dependencies. Logout is local only; the
// backend is not told.
type LogoutDeps struct {
	ClearTokens func(context.Context) error
}

// RunLogout discards the stored session. Calling it with nothing stored
// succeeds.
func RunLogout(ctx context.Context, deps LogoutDeps) error {
	return deps.ClearTokens(ctx)
}
