package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AmmannChristian/kessel-client-go/clienterr"
)

const (
	// WellKnownPath is the discovery path defined by OpenID Connect Discovery 1.0.
	WellKnownPath = "/.well-known/openid-configuration"

	// DefaultTimeout bounds the discovery request when no HTTP client is supplied.
	DefaultTimeout = 10 * time.Second

	maxDocumentBytes = 1 << 20

	opFetch = "oidc.FetchDiscovery"
)

// DiscoveryDocument holds the discovery metadata this module uses. Other fields are ignored.
type DiscoveryDocument struct {
	Issuer        string `json:"issuer"`
	TokenEndpoint string `json:"token_endpoint"`
}

// Logger is an interface for optional logging of discovery requests.
type Logger interface {
	Printf(format string, args ...any)
}

type options struct {
	httpClient    *http.Client
	wellKnownPath string
	logger        Logger
}

// Option configures FetchDiscovery.
type Option func(*options)

// WithHTTPClient sets the HTTP client used for the discovery request.
// The default client has a 10 second timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithWellKnownPath overrides the discovery path appended to the issuer URL.
func WithWellKnownPath(path string) Option {
	return func(o *options) {
		o.wellKnownPath = path
	}
}

// WithLogger sets a logger for discovery requests.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// DiscoveryURL returns the discovery document URL for issuerURL and the given well-known path.
func DiscoveryURL(issuerURL, wellKnownPath string) string {
	if wellKnownPath == "" {
		wellKnownPath = WellKnownPath
	}
	if !strings.HasPrefix(wellKnownPath, "/") {
		wellKnownPath = "/" + wellKnownPath
	}
	return strings.TrimRight(issuerURL, "/") + wellKnownPath
}

// FetchDiscovery fetches and parses the discovery document of issuerURL.
//
// Errors wrap clienterr.ErrConfiguration for an empty issuer, and clienterr.ErrDiscovery when
// the request fails, the status is not 2xx, the body is not valid JSON, or token_endpoint is missing.
func FetchDiscovery(ctx context.Context, issuerURL string, opts ...Option) (*DiscoveryDocument, error) {
	if strings.TrimSpace(issuerURL) == "" {
		return nil, clienterr.Configuration(opFetch, "issuer URL is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	o := options{
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		wellKnownPath: WellKnownPath,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = http.DefaultClient
	}

	discoveryURL := DiscoveryURL(issuerURL, o.wellKnownPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, clienterr.Discovery(opFetch, err, "build request for %s", discoveryURL)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, clienterr.Discovery(opFetch, err, "request %s", discoveryURL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, clienterr.Discovery(opFetch, err, "read response from %s", discoveryURL)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, clienterr.Discovery(opFetch, &StatusError{StatusCode: resp.StatusCode, Body: truncate(body)},
			"unexpected response from %s", discoveryURL)
	}

	var doc DiscoveryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, clienterr.Discovery(opFetch, err, "decode document from %s", discoveryURL)
	}

	if doc.TokenEndpoint == "" {
		return nil, clienterr.Discovery(opFetch, nil, "document from %s has no token_endpoint", discoveryURL)
	}

	if o.logger != nil {
		o.logger.Printf("oidc: discovered token endpoint %s for issuer %s", doc.TokenEndpoint, issuerURL)
	}

	return &doc, nil
}

// StatusError reports a non-2xx discovery response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

func truncate(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
