// Package jwt inspects bearer tokens issued by the backend without verifying
// their signature.
//
// The client never holds the signing key. It reads only the registered
// time claims and the SimpleJWT-style "token_type" / "user_id" claims, to
// decide whether a token is worth sending or renewing. Trust decisions stay
// with the backend.
//
// # What this package must NOT do
//
//   - Treat a successfully inspected token as authenticated.
//   - Perform I/O.
//   - Import finAuth, gateway, or tokenstore.
package jwt
