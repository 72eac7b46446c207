package transport

import "net/http"

// BasicAuthTransport is an http.RoundTripper that authenticates every
// outbound request with HTTP Basic auth. The tracking API takes the write
// key as the username and an empty password.
type BasicAuthTransport struct {
	Username string
	Password string
	Base     http.RoundTripper
}

// RoundTrip clones the request and sets the Authorization header.
func (t *BasicAuthTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r2 := r.Clone(r.Context())
	r2.SetBasicAuth(t.Username, t.Password)
	return t.base().RoundTrip(r2)
}

func (t *BasicAuthTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
