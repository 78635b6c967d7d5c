package gateway

import "context"

type authMode uint8

const (
	authStored authMode = iota
	authNone
	authBearer
)

type callOptions struct {
	auth      authMode
	bearer    string
	noRefresh bool
}

// CallOption adjusts how a single call is authenticated.
type CallOption func(*callOptions)

// Anonymous dispatches the call without any Authorization header. 401s are
// returned to the caller as-is.
func Anonymous() CallOption {
	return func(o *callOptions) {
		o.auth = authNone
		o.bearer = ""
	}
}

// WithBearer dispatches the call with token instead of the stored access
// token. 401s are returned to the caller as-is.
func WithBearer(token string) CallOption {
	return func(o *callOptions) {
		o.auth = authBearer
		o.bearer = token
	}
}

// WithoutRefresh disables the refresh-and-retry path for the call.
func WithoutRefresh() CallOption {
	return func(o *callOptions) {
		o.noRefresh = true
	}
}

type callOptionsContextKey struct{}

// WithCallOptions attaches options to ctx. Requests sent through
// [Gateway.Transport] carry options this way, since http.Client offers no
// other per-request channel.
func WithCallOptions(ctx context.Context, opts ...CallOption) context.Context {
	if len(opts) == 0 {
		return ctx
	}
	merged := append(callOptionsFromContext(ctx), opts...)
	return context.WithValue(ctx, callOptionsContextKey{}, merged)
}

func callOptionsFromContext(ctx context.Context) []CallOption {
	if ctx == nil {
		return nil
	}
	opts, _ := ctx.Value(callOptionsContextKey{}).([]CallOption)
	out := make([]CallOption, len(opts))
	copy(out, opts)
	return out
}

func resolveOptions(ctx context.Context, opts []CallOption) callOptions {
	var out callOptions
	for _, opt := range callOptionsFromContext(ctx) {
		opt(&out)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&out)
		}
	}
	return out
}

// refreshable reports whether a 401 on this call may be recovered by the
// shared refresh. Only calls carrying the stored credential qualify.
func (o callOptions) refreshable() bool {
	return o.auth == authStored && !o.noRefresh
}
