package config

import (
	"context"
	"net/http"

	"google.golang.org/grpc"

	"github.com/AmmannChristian/kessel-client-go/clienterr"
	"github.com/AmmannChristian/kessel-client-go/grpcclient"
	"github.com/AmmannChristian/kessel-client-go/httpclient"
	"github.com/AmmannChristian/kessel-client-go/oauth2client"
	"github.com/AmmannChristian/kessel-client-go/oidc"
)

const opNewClient = "config.NewClient"

// Logger is satisfied by *log.Logger and *zerolog.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type clientOptions struct {
	logger     Logger
	dialOpts   []grpc.DialOption
	httpClient *http.Client
	tokenOpts  []oauth2client.Option
}

// ClientOption configures NewClient.
type ClientOption func(*clientOptions)

// WithLogger passes logger to discovery, the token manager and the client builder.
func WithLogger(logger Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithDialOptions appends gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) ClientOption {
	return func(o *clientOptions) {
		o.dialOpts = append(o.dialOpts, opts...)
	}
}

// WithDiscoveryHTTPClient overrides the HTTP client used for OIDC discovery.
// By default one is built that trusts Config.CACertPath.
func WithDiscoveryHTTPClient(client *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// WithTokenOptions passes extra options to the token manager.
func WithTokenOptions(opts ...oauth2client.Option) ClientOption {
	return func(o *clientOptions) {
		o.tokenOpts = append(o.tokenOpts, opts...)
	}
}

// NewClient builds a stub for cfg.Endpoint.
//
// With client credentials the token endpoint is cfg.TokenEndpoint, or is discovered from
// cfg.IssuerURL, and calls run over TLS trusting cfg.CACertPath (system roots when empty).
// Without credentials the connection is plaintext if cfg.Insecure is set and TLS otherwise.
func NewClient[T any](ctx context.Context, cfg *Config, newStub func(grpc.ClientConnInterface) T, opts ...ClientOption) (T, *grpc.ClientConn, error) {
	var zero T

	if cfg == nil {
		return zero, nil, clienterr.Configuration(opNewClient, "config is required")
	}
	if err := cfg.Validate(); err != nil {
		return zero, nil, err
	}

	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	builder := grpcclient.NewClientBuilder(cfg.Endpoint, newStub).WithDialOptions(o.dialOpts...)
	if o.logger != nil {
		builder.WithLogger(o.logger)
	}

	if cfg.Insecure {
		return builder.Insecure().Build()
	}

	transport := grpcclient.TLS(nil)
	if cfg.CACertPath != "" {
		var err error
		transport, err = grpcclient.ConfigureTLS(cfg.CACertPath)
		if err != nil {
			return zero, nil, err
		}
	}

	if !cfg.Authenticated() {
		return builder.WithTransportCredentials(transport).Build()
	}

	tm, err := newTokenManager(ctx, cfg, &o)
	if err != nil {
		return zero, nil, err
	}

	return builder.OAuth2ClientAuthenticated(tm, transport).Build()
}

// NewTokenManager resolves the token endpoint of cfg and returns a token manager for it.
func NewTokenManager(ctx context.Context, cfg *Config, opts ...ClientOption) (*oauth2client.TokenManager, error) {
	if cfg == nil {
		return nil, clienterr.Configuration(opNewClient, "config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Authenticated() {
		return nil, clienterr.Configuration(opNewClient, "%s and %s are required", EnvClientID, EnvClientSecret)
	}

	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	return newTokenManager(ctx, cfg, &o)
}

func newTokenManager(ctx context.Context, cfg *Config, o *clientOptions) (*oauth2client.TokenManager, error) {
	tokenEndpoint := cfg.TokenEndpoint
	if tokenEndpoint == "" {
		httpClient, err := discoveryClient(cfg, o)
		if err != nil {
			return nil, err
		}

		discoveryOpts := []oidc.Option{oidc.WithHTTPClient(httpClient)}
		if o.logger != nil {
			discoveryOpts = append(discoveryOpts, oidc.WithLogger(o.logger))
		}

		doc, err := oidc.FetchDiscovery(ctx, cfg.IssuerURL, discoveryOpts...)
		if err != nil {
			return nil, err
		}
		tokenEndpoint = doc.TokenEndpoint
	}

	tokenOpts := o.tokenOpts
	if o.logger != nil {
		tokenOpts = append([]oauth2client.Option{oauth2client.WithLogger(o.logger)}, tokenOpts...)
	}

	return oauth2client.NewOAuth2ClientCredentials(oauth2client.OAuth2Config{
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		TokenEndpoint: tokenEndpoint,
		Scopes:        cfg.ScopeList(),
	}, tokenOpts...)
}

func discoveryClient(cfg *Config, o *clientOptions) (*http.Client, error) {
	if o.httpClient != nil {
		return o.httpClient, nil
	}

	builder := httpclient.NewBuilder().WithTimeout(oidc.DefaultTimeout)
	if cfg.CACertPath != "" {
		builder.WithCACertFile(cfg.CACertPath)
	}
	return builder.Build()
}
