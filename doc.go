// Package finAuth is the client-side session and token-lifecycle library for
// the finance API. It logs users in, keeps the access/refresh token pair in a
// pluggable store, and sends every backend call through a gateway that
// silently renews an expired access token once per call.
//
// The package is designed for concurrent use: Client methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// finAuth is the public surface. It exposes [Client], [Builder], [Config], and
// value types (Session, User, MetricsSnapshot). Wire-protocol orchestration
// lives in internal/flows; the retry-on-401 machinery in gateway; persistence
// in tokenstore. The session state machine (authstate) and the route guard
// (guard) build on top of this package.
//
// # What this package must NOT do
//
//   - Log or audit tokens or passwords.
//   - Write the token store unless a login or refresh fully succeeded.
//   - Import authstate or guard (no import cycles).
//
// # Retry contract
//
// A call through [Client.Gateway] that answers 401 triggers at most one
// refresh, shared by every concurrent caller, and is retried once with the
// new token. A failed refresh clears the store, notifies
// [Client.OnSessionExpired] listeners and fails the call with
// [ErrSessionExpired].
package finAuth
