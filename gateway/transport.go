package gateway

import "net/http"

type roundTripper struct {
	g *Gateway
}

// Transport adapts the gateway to http.RoundTripper so existing http.Client
// based code gets the same credential handling. Per-call options travel in
// the request context via [WithCallOptions].
//
// The gateway's own HTTPClient must not use this transport.
func (g *Gateway) Transport() http.RoundTripper {
	return roundTripper{g: g}
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.g.Do(req.Context(), req)
}
