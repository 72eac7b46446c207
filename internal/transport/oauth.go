package transport

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthConfig holds OAuth2 client-credentials settings.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// OAuthTransport is an http.RoundTripper that injects an OAuth2 bearer token
// on every outbound request. Tokens are cached and refreshed on expiry.
type OAuthTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

// NewOAuthTransport returns a transport that obtains tokens with the
// client-credentials grant. Token requests use ctx's HTTP client, if any.
func NewOAuthTransport(ctx context.Context, base http.RoundTripper, cfg OAuthConfig) (*OAuthTransport, error) {
	if cfg.TokenURL == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("transport: oauth requires token_url and client_id")
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return &OAuthTransport{
		base:   base,
		source: oauth2.ReuseTokenSource(nil, cc.TokenSource(ctx)),
	}, nil
}

// newOAuthTransportFromSource creates an OAuthTransport with an explicit
// token source (used for testing).
func newOAuthTransportFromSource(base http.RoundTripper, ts oauth2.TokenSource) *OAuthTransport {
	return &OAuthTransport{
		base:   base,
		source: oauth2.ReuseTokenSource(nil, ts),
	}
}

// RoundTrip obtains a token and injects it as a Bearer header.
func (t *OAuthTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	tok, err := t.source.Token()
	if err != nil {
		return nil, fmt.Errorf("transport: obtain oauth token: %w", err)
	}
	r2 := r.Clone(r.Context())
	tok.SetAuthHeader(r2)
	return t.getBase().RoundTrip(r2)
}

func (t *OAuthTransport) getBase() http.RoundTripper {
	if t.base != nil {
		return t.base
	}
	return http.DefaultTransport
}
