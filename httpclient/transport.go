package httpclient

import (
	"fmt"
	"net/http"

	"github.com/AmmannChristian/kessel-client-go/clienterr"
	"github.com/AmmannChristian/kessel-client-go/oauth2client"
)

const opRoundTrip = "httpclient.RoundTrip"

// OAuth2Transport is an http.RoundTripper that automatically adds OAuth2
// Bearer tokens to outgoing HTTP requests.
//
// It wraps an existing transport (typically http.DefaultTransport) and
// injects the Authorization header before each request. A 401 response drops
// the cached token so the next request fetches a new one.
type OAuth2Transport struct {
	// Base is the underlying HTTP transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// TokenManager provides OAuth2 access tokens.
	TokenManager *oauth2client.TokenManager
}

// RoundTrip implements http.RoundTripper interface.
// It fetches a valid OAuth2 token and adds it as "Authorization: Bearer <token>"
// to the request headers before delegating to the base transport.
// The token fetch respects the request context's cancellation and deadline.
func (t *OAuth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.TokenManager == nil {
		closeBody(req)
		return nil, clienterr.Configuration(opRoundTrip, "TokenManager is nil")
	}

	token, err := t.TokenManager.GetTokenWithContext(req.Context())
	if err != nil {
		closeBody(req)
		return nil, fmt.Errorf("httpclient: failed to get token: %w", err)
	}

	// Clone the request to avoid modifying the original
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+token)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(reqClone)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		t.TokenManager.Invalidate()
	}
	return resp, err
}

// closeBody releases the request body on paths that never reach the base transport.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

// NewOAuth2Transport creates a new OAuth2Transport with the given token manager.
// The base transport defaults to http.DefaultTransport if not specified.
func NewOAuth2Transport(tm *oauth2client.TokenManager, base http.RoundTripper) *OAuth2Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &OAuth2Transport{
		Base:         base,
		TokenManager: tm,
	}
}
