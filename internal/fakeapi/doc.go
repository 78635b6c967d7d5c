// Package fakeapi is an in-process stand-in for the finance backend's auth
// surface. It issues HS256 access and refresh tokens shaped like the ones
// the real backend hands out and records every call it receives.
//
// It backs unit tests, the integration suite, the load test and the
// http-minimal example. It is not a reference implementation of the backend.
package fakeapi
