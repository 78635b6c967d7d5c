package gateway

import "time"

// Hooks observe gateway activity. Every field is optional. Hooks run on the
// calling goroutine and must not block.
type Hooks struct {
	OnDispatch       func(method, path string, status int, elapsed time.Duration)
	OnUnauthorized   func(method, path string, retried bool)
	OnRefresh        func(elapsed time.Duration, err error)
	OnRefreshJoined  func()
	OnRetry          func(method, path string)
	OnRetryRejected  func(method, path string)
	OnSessionExpired func(cause error)
	OnNetworkError   func(method, path string, err error)
}

func (h Hooks) dispatch(method, path string, status int, elapsed time.Duration) {
	if h.OnDispatch != nil {
		h.OnDispatch(method, path, status, elapsed)
	}
}

func (h Hooks) unauthorized(method, path string, retried bool) {
	if h.OnUnauthorized != nil {
		h.OnUnauthorized(method, path, retried)
	}
}

func (h Hooks) refresh(elapsed time.Duration, err error) {
	if h.OnRefresh != nil {
		h.OnRefresh(elapsed, err)
	}
}

func (h Hooks) refreshJoined() {
	if h.OnRefreshJoined != nil {
		h.OnRefreshJoined()
	}
}

func (h Hooks) retry(method, path string) {
	if h.OnRetry != nil {
		h.OnRetry(method, path)
	}
}

func (h Hooks) retryRejected(method, path string) {
	if h.OnRetryRejected != nil {
		h.OnRetryRejected(method, path)
	}
}

func (h Hooks) sessionExpired(cause error) {
	if h.OnSessionExpired != nil {
		h.OnSessionExpired(cause)
	}
}

func (h Hooks) networkError(method, path string, err error) {
	if h.OnNetworkError != nil {
		h.OnNetworkError(method, path, err)
	}
}
