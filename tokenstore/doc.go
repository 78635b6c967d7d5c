// Package tokenstore persists the client's access/refresh token pair.
//
// # Backends
//
//   - [Memory]: process-local, lost on exit.
//   - [File]: JSON document on disk, survives restarts.
//   - [Redis]: two keys under a configurable prefix, shared by processes.
//
// All backends store the pair under the well-known names [KeyAccessToken] and
// [KeyRefreshToken]. Absence of either value is an empty state, never an error.
//
// # Architecture boundaries
//
// This package is pure storage. It does NOT decide when tokens are saved or
// cleared; the credential exchange and the request gateway own that policy.
//
// # What this package must NOT do
//
//   - Perform HTTP calls or interpret token contents.
//   - Import finAuth, gateway, or authstate.
//   - Log token values.
package tokenstore
