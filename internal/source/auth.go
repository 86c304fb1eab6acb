package source

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/eugener/aside/internal/config"
)

// bearerTransport sets a static Authorization header on every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r2 := r.Clone(r.Context())
	r2.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(r2)
}

// tokenTransport injects a token from an oauth2.TokenSource. Tokens are cached
// and refreshed by the source.
type tokenTransport struct {
	src  oauth2.TokenSource
	base http.RoundTripper
}

func (t *tokenTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	tok, err := t.src.Token()
	if err != nil {
		return nil, fmt.Errorf("obtain oauth2 token: %w", err)
	}
	r2 := r.Clone(r.Context())
	tok.SetAuthHeader(r2)
	return t.base.RoundTrip(r2)
}

// withAuth wraps base with the credentials described by auth. A nil auth
// returns base unchanged. Token endpoint calls reuse base.
func withAuth(ctx context.Context, base http.RoundTripper, auth *config.AuthEntry) (http.RoundTripper, error) {
	if auth == nil {
		return base, nil
	}
	switch auth.Type {
	case "bearer":
		if auth.Token == "" {
			return nil, fmt.Errorf("bearer auth: token is required")
		}
		return &bearerTransport{token: auth.Token, base: base}, nil
	case "oauth2":
		if auth.TokenURL == "" || auth.ClientID == "" {
			return nil, fmt.Errorf("oauth2 auth: token_url and client_id are required")
		}
		cc := &clientcredentials.Config{
			ClientID:     auth.ClientID,
			ClientSecret: auth.ClientSecret,
			TokenURL:     auth.TokenURL,
			Scopes:       auth.Scopes,
		}
		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})
		return &tokenTransport{src: oauth2.ReuseTokenSource(nil, cc.TokenSource(tokenCtx)), base: base}, nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", auth.Type)
	}
}
