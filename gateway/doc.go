// Package gateway is the single path through which the client reaches the
// backend.
//
// A [Gateway] attaches the stored access token as a bearer credential,
// detects 401 responses, and performs at most one silent refresh-and-retry per
// originating call. Concurrent 401s share one in-flight refresh, so only one
// refresh request reaches the backend no matter how many calls fail at once.
//
// # Retry contract
//
//  1. A call is dispatched with "Authorization: Bearer <access>" iff the
//     token store holds an access token at dispatch time.
//  2. A 401 on a call that was not yet retried triggers the shared refresh.
//     On success the call is cloned with the new token and sent once more;
//     the caller sees only that outcome. On failure the store is cleared,
//     session-expired listeners run, and the call fails with
//     [ErrSessionExpired].
//  3. A 401 on the retried call fails with [ErrInvalidCredentials]; it never
//     triggers another refresh.
//  4. Every other status is returned unmodified.
//
// Transport failures surface as [*NetworkError] and never end the session.
// Neither does a Refresher error matching [ErrRefreshUnavailable].
//
// Session-expired and renewal listeners run after the shared refresh has
// settled, so a listener may itself call the gateway.
//
// # Architecture boundaries
//
// The gateway does not know the refresh wire protocol. It calls a
// [Refresher] supplied by the credential exchange, which also writes the new
// pair to the store.
//
// # What this package must NOT do
//
//   - Import finAuth or authstate.
//   - Interpret status codes other than 401.
//   - Mutate the caller's *http.Request.
package gateway
