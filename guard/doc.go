// Package guard gates protected views on the session state.
//
// [Decide] maps an [authstate.AuthState] and the requested path to one of
// three actions:
//
//   - Bootstrapping or Authenticating: show the loading placeholder, never
//     redirect.
//   - Unauthenticated or Error: redirect to the login path, carrying the
//     original path and query in the "next" parameter.
//   - Authenticated: render the protected content unchanged.
//
// [Middleware] applies the decision to net/http handlers and places the
// session in the request context. [ReturnTo] reads the "next" parameter back
// on the login surface, accepting only local paths.
//
// # Architecture boundaries
//
// This package translates state into HTTP semantics. It does NOT write
// state; all transitions belong to authstate.
//
// # What this package must NOT do
//
//   - Call the backend or touch the token store.
//   - Redirect while the state is transient.
//   - Follow a "next" value that leaves the site.
package guard
