// Package flows contains the orchestrators behind every credential exchange
// operation of the Client.
//
// Each flow function (RunLogin, RunRegister, RunRefresh, RunLogout) accepts a
// typed dependency struct and returns an [Outcome]-carrying result. The root
// package maps outcomes to its public error types, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions speak the backend wire protocol through an [API] (the
// gateway). They do NOT own the token store, metrics or audit dispatcher;
// ownership stays with the Client, which passes in closures.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import finAuth (to avoid import cycles).
//   - Send auth endpoint calls with the stored bearer or let them trigger a
//     refresh.
package flows
