// Package authstate owns the client's authentication state and is its only
// writer.
//
// A [Controller] starts in Bootstrapping. [Controller.Bootstrap] resolves the
// stored session into Authenticated, Unauthenticated or Error. Login and
// Logout move between the settled states. A session-expired signal from the
// request gateway ends an Authenticated session.
//
// Bootstrapping and Authenticating are transient: Login and Logout return
// [ErrBusy] while one is in progress, and session-expired signals are
// ignored.
//
// Consumers read value copies through [Controller.State] or receive them
// through [Controller.Subscribe]. Subscribers run on the goroutine that
// caused the transition, one transition at a time, in the order the
// transitions happened. A subscriber may call back into the Controller;
// the resulting notifications are delivered after it returns.
package authstate
