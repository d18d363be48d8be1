package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"
	"time"

	"github.com/AmmannChristian/kessel-client-go/clienterr"
	"github.com/AmmannChristian/kessel-client-go/oauth2client"
)

const (
	// DefaultTimeout is the request timeout of clients built without WithTimeout.
	DefaultTimeout = 30 * time.Second

	opBuild = "httpclient.Build"
)

// Builder provides a fluent interface for constructing HTTP clients
// with optional OAuth2 authentication and TLS/mTLS support.
//
// It is used for the HTTP side of a Kessel deployment: OIDC discovery against an
// issuer behind a private CA, and REST calls sharing a TokenManager with gRPC clients.
type Builder struct {
	// OAuth2 configuration
	tokenManager *oauth2client.TokenManager

	// TLS configuration
	caFile     string
	rootPEM    []byte
	certFile   string
	keyFile    string
	skipVerify bool

	// HTTP client configuration
	timeout         time.Duration
	baseTransport   http.RoundTripper
	followRedirects bool

	err error
}

// NewBuilder creates a new HTTP client builder.
func NewBuilder() *Builder {
	return &Builder{
		timeout:         DefaultTimeout,
		followRedirects: true,
	}
}

// WithTokenManager sets the OAuth2 token manager for automatic authentication.
// The same TokenManager may back gRPC clients at the same time.
func (b *Builder) WithTokenManager(tm *oauth2client.TokenManager) *Builder {
	b.tokenManager = tm
	return b
}

// WithOAuth2 enables OAuth2 client credentials authentication by creating a new TokenManager.
// An invalid cfg is reported by Build.
func (b *Builder) WithOAuth2(cfg oauth2client.OAuth2Config, opts ...oauth2client.Option) *Builder {
	tm, err := oauth2client.NewOAuth2ClientCredentials(cfg, opts...)
	if err != nil {
		b.setErr(err)
		return b
	}
	b.tokenManager = tm
	return b
}

// WithCACertFile trusts the PEM certificates in path instead of the system roots.
func (b *Builder) WithCACertFile(path string) *Builder {
	b.caFile = path
	return b
}

// WithRootCertificates trusts the given PEM certificates instead of the system roots.
func (b *Builder) WithRootCertificates(pem []byte) *Builder {
	b.rootPEM = append([]byte(nil), pem...)
	return b
}

// WithClientCertificate enables mTLS with the given certificate and key files.
func (b *Builder) WithClientCertificate(certFile, keyFile string) *Builder {
	b.certFile = certFile
	b.keyFile = keyFile
	return b
}

// WithInsecureSkipVerify disables TLS certificate verification (NOT RECOMMENDED for production).
// This should only be used for testing or development purposes.
func (b *Builder) WithInsecureSkipVerify() *Builder {
	b.skipVerify = true
	return b
}

// WithTimeout sets the request timeout for the HTTP client.
// Default is 30 seconds if not specified.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithBaseTransport sets a custom base transport.
// TLS options are ignored when a base transport is given.
func (b *Builder) WithBaseTransport(transport http.RoundTripper) *Builder {
	b.baseTransport = transport
	return b
}

// WithoutRedirects disables automatic redirect following.
// By default, the client follows up to 10 redirects.
func (b *Builder) WithoutRedirects() *Builder {
	b.followRedirects = false
	return b
}

// Build constructs the HTTP client with the configured options.
//
// Errors wrap clienterr.ErrConfiguration for invalid settings, clienterr.ErrIO when a
// certificate file cannot be read and clienterr.ErrCredential when it cannot be parsed.
func (b *Builder) Build() (*http.Client, error) {
	if b.err != nil {
		return nil, b.err
	}

	transport := b.baseTransport
	if transport == nil {
		tlsConfig, err := b.buildTLSConfig()
		if err != nil {
			return nil, err
		}

		if httpTransport, ok := http.DefaultTransport.(*http.Transport); ok {
			httpTransport = httpTransport.Clone()
			httpTransport.TLSClientConfig = tlsConfig
			transport = httpTransport
		} else {
			// Fallback to whatever default transport is configured (e.g., a test stub)
			transport = http.DefaultTransport
		}
	}

	// Wrap with OAuth2 transport if token manager is set
	if b.tokenManager != nil {
		transport = NewOAuth2Transport(b.tokenManager, transport)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   b.timeout,
	}

	if !b.followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, nil
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// buildTLSConfig constructs the TLS configuration for the HTTP client.
func (b *Builder) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: b.skipVerify, // #nosec G402
	}

	roots := b.rootPEM
	if b.caFile != "" {
		if roots != nil {
			return nil, clienterr.Configuration(opBuild, "WithCACertFile and WithRootCertificates are mutually exclusive")
		}
		pem, err := os.ReadFile(b.caFile)
		if err != nil {
			return nil, clienterr.IO(opBuild, err, "read CA file %s", b.caFile)
		}
		roots = pem
	}

	if roots != nil {
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(roots) {
			return nil, clienterr.Credential(opBuild, nil, "failed to parse CA certificate")
		}
		tlsConfig.RootCAs = certPool
	}

	// Load client certificate for mTLS (if both cert and key are provided)
	switch {
	case b.certFile != "" && b.keyFile != "":
		cert, err := tls.LoadX509KeyPair(b.certFile, b.keyFile)
		if err != nil {
			return nil, clienterr.Credential(opBuild, err, "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	case b.certFile != "" || b.keyFile != "":
		return nil, clienterr.Configuration(opBuild, "both TLS cert and key files must be provided for mTLS")
	}

	return tlsConfig, nil
}

// NewHTTPClient is a convenience function that creates a simple HTTP client with OAuth2 authentication.
// For more configuration options, use Builder instead.
//
// Example:
//
//	client := httpclient.NewHTTPClient(tm)
//	resp, err := client.Get("https://inventory.example.com/api/inventory/v1beta2/resources")
func NewHTTPClient(tm *oauth2client.TokenManager) *http.Client {
	transport := NewOAuth2Transport(tm, nil)
	return &http.Client{
		Transport: transport,
		Timeout:   DefaultTimeout,
	}
}
