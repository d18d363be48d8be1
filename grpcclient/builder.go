package grpcclient

import (
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/AmmannChristian/kessel-client-go/clienterr"
	"github.com/AmmannChristian/kessel-client-go/oauth2client"
)

const opBuild = "grpcclient.Build"

// Logger is an interface for optional logging in ClientBuilder.
type Logger interface {
	Printf(format string, args ...any)
}

// ClientBuilder provides a fluent interface for constructing a typed gRPC client over a
// connection with explicit transport security and optional OAuth2 call credentials.
//
// A builder is single-use: after Build every further Build fails.
type ClientBuilder[T any] struct {
	endpoint string
	newStub  func(grpc.ClientConnInterface) T

	transport TransportCredentials

	// Call credentials, at most one of them is set
	tokenManager *oauth2client.TokenManager
	callCreds    credentials.PerRPCCredentials

	dialOpts []grpc.DialOption
	logger   Logger

	// err is the first configuration conflict, reported by Build
	err   error
	built bool
}

// NewClientBuilder starts configuring a client for endpoint (e.g. "inventory.example.com:9000")
// whose stub is created by newStub, typically a generated NewXxxClient function.
func NewClientBuilder[T any](endpoint string, newStub func(grpc.ClientConnInterface) T) *ClientBuilder[T] {
	return &ClientBuilder[T]{
		endpoint: strings.TrimSpace(endpoint),
		newStub:  newStub,
	}
}

// Insecure selects plaintext transport without call credentials.
// It cannot be combined with authenticated configurations.
func (b *ClientBuilder[T]) Insecure() *ClientBuilder[T] {
	if b.hasCallCredentials() {
		b.fail("Insecure cannot be combined with call credentials")
		return b
	}
	if b.transport.IsTLS() {
		b.fail("Insecure and TLS transport credentials are mutually exclusive")
		return b
	}
	b.transport = Insecure()
	return b
}

// WithTransportCredentials selects the transport, typically TLS from ConfigureTLS,
// without adding call credentials.
func (b *ClientBuilder[T]) WithTransportCredentials(transport TransportCredentials) *ClientBuilder[T] {
	if transport.IsInsecure() && b.hasCallCredentials() {
		b.fail("call credentials require TLS transport credentials")
		return b
	}
	if b.transport.IsSet() && transport.IsSet() && b.transport.IsInsecure() != transport.IsInsecure() {
		b.fail("Insecure and TLS transport credentials are mutually exclusive")
		return b
	}
	b.transport = transport
	return b
}

// OAuth2ClientAuthenticated attaches a bearer token from tm to every call and uses transport
// for the channel. transport must be TLS: tokens are never sent over plaintext.
func (b *ClientBuilder[T]) OAuth2ClientAuthenticated(tm *oauth2client.TokenManager, transport TransportCredentials) *ClientBuilder[T] {
	if tm == nil {
		b.fail("OAuth2 credentials are required")
		return b
	}
	if !b.acceptAuthenticatedTransport(transport) {
		return b
	}
	b.tokenManager = tm
	b.callCreds = nil
	b.transport = transport
	return b
}

// Authenticated attaches arbitrary per-RPC call credentials and uses transport for the channel.
// transport must be TLS.
func (b *ClientBuilder[T]) Authenticated(callCreds credentials.PerRPCCredentials, transport TransportCredentials) *ClientBuilder[T] {
	if callCreds == nil {
		b.fail("call credentials are required")
		return b
	}
	if !b.acceptAuthenticatedTransport(transport) {
		return b
	}
	b.callCreds = callCreds
	b.tokenManager = nil
	b.transport = transport
	return b
}

// WithDialOptions adds custom gRPC dial options such as a context dialer or extra interceptors.
// They cannot replace the builder's transport credentials, and interceptors given with
// grpc.WithUnaryInterceptor or grpc.WithStreamInterceptor run before the bearer token is attached.
func (b *ClientBuilder[T]) WithDialOptions(opts ...grpc.DialOption) *ClientBuilder[T] {
	b.dialOpts = append(b.dialOpts, opts...)
	return b
}

// WithLogger sets a logger for build events.
func (b *ClientBuilder[T]) WithLogger(logger Logger) *ClientBuilder[T] {
	b.logger = logger
	return b
}

// Build creates the connection and the stub bound to it. The caller owns the connection and
// must Close it on every path.
//
// Configuration problems wrap clienterr.ErrConfiguration; unparseable CA material wraps
// clienterr.ErrCredential.
func (b *ClientBuilder[T]) Build() (T, *grpc.ClientConn, error) {
	var zero T

	if b.built {
		return zero, nil, clienterr.Configuration(opBuild, "builder has already been used")
	}
	b.built = true

	if b.endpoint == "" {
		return zero, nil, clienterr.Configuration(opBuild, "endpoint is required")
	}
	if b.newStub == nil {
		return zero, nil, clienterr.Configuration(opBuild, "stub factory is required")
	}
	if b.err != nil {
		return zero, nil, b.err
	}
	if !b.transport.IsSet() {
		return zero, nil, clienterr.Configuration(opBuild, "transport security is not configured: call Insecure or supply transport credentials")
	}

	transportCreds, err := b.transport.GRPC()
	if err != nil {
		return zero, nil, err
	}

	// Transport credentials resolve last-one-wins, so the configured transport goes after
	// caller options. Token interceptors are chained so caller interceptors cannot displace them.
	opts := append([]grpc.DialOption{}, b.dialOpts...)
	opts = append(opts, grpc.WithTransportCredentials(transportCreds))

	switch {
	case b.tokenManager != nil:
		opts = append(opts,
			grpc.WithChainUnaryInterceptor(b.tokenManager.UnaryClientInterceptor()),
			grpc.WithChainStreamInterceptor(b.tokenManager.StreamClientInterceptor()),
		)
	case b.callCreds != nil:
		opts = append(opts, grpc.WithPerRPCCredentials(b.callCreds))
	}

	conn, err := grpc.NewClient(b.endpoint, opts...)
	if err != nil {
		return zero, nil, &clienterr.Error{
			Kind:    clienterr.ErrConfiguration,
			Op:      opBuild,
			Message: "create connection to " + b.endpoint,
			Err:     err,
		}
	}

	if b.logger != nil {
		if b.transport.IsInsecure() {
			b.logger.Printf("grpcclient: plaintext connection to %s, do not use in production", b.endpoint)
		} else {
			b.logger.Printf("grpcclient: TLS connection to %s (call credentials: %t)", b.endpoint, b.hasCallCredentials())
		}
	}

	return b.newStub(conn), conn, nil
}

func (b *ClientBuilder[T]) hasCallCredentials() bool {
	return b.tokenManager != nil || b.callCreds != nil
}

func (b *ClientBuilder[T]) acceptAuthenticatedTransport(transport TransportCredentials) bool {
	switch {
	case !transport.IsSet():
		b.fail("transport credentials must be supplied with call credentials")
		return false
	case transport.IsInsecure(), b.transport.IsInsecure():
		b.fail("call credentials require TLS transport credentials")
		return false
	}
	return true
}

func (b *ClientBuilder[T]) fail(message string) {
	if b.err == nil {
		b.err = clienterr.Configuration(opBuild, "%s", message)
	}
}
