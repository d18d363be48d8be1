package testutil

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const (
	testBufConnSize = 1024 * 1024

	// BufconnTarget is the dial target for servers started with StartHealthServer.
	// Its authority "bufnet" must be covered by the server certificate when TLS is used.
	BufconnTarget = "passthrough:///bufnet"
	// BufconnHost is the TLS host name of BufconnTarget.
	BufconnHost = "bufnet"
)

// HealthServer is an in-memory gRPC server exposing grpc.health.v1 that records the
// authorization metadata of every call.
type HealthServer struct {
	listener *bufconn.Listener
	server   *grpc.Server
	health   *health.Server

	mu             sync.Mutex
	authorizations []string
}

type healthServerConfig struct {
	tlsConfig *tls.Config
	verifier  *JWKSVerifier
}

// HealthServerOption configures StartHealthServer.
type HealthServerOption func(*healthServerConfig)

// WithServerTLS serves TLS with the given configuration.
func WithServerTLS(cfg *tls.Config) HealthServerOption {
	return func(c *healthServerConfig) {
		c.tlsConfig = cfg
	}
}

// WithTokenVerifier rejects calls whose bearer token fails verification.
func WithTokenVerifier(v *JWKSVerifier) HealthServerOption {
	return func(c *healthServerConfig) {
		c.verifier = v
	}
}

// StartHealthServer starts a bufconn gRPC server; it is stopped via tb.Cleanup.
func StartHealthServer(tb testing.TB, opts ...HealthServerOption) *HealthServer {
	tb.Helper()

	var cfg healthServerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	hs := &HealthServer{
		listener: bufconn.Listen(testBufConnSize),
		health:   health.NewServer(),
	}

	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(hs.recordUnary, cfg.verifier.unaryInterceptor()),
		grpc.ChainStreamInterceptor(hs.recordStream, cfg.verifier.streamInterceptor()),
	}
	if cfg.tlsConfig != nil {
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(cfg.tlsConfig)))
	}

	hs.server = grpc.NewServer(serverOpts...)
	hs.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(hs.server, hs.health)

	go func() {
		_ = hs.server.Serve(hs.listener)
	}()

	tb.Cleanup(func() {
		hs.server.Stop()
		_ = hs.listener.Close()
	})

	return hs
}

// Dialer returns the dial option connecting to the in-memory listener.
func (hs *HealthServer) Dialer() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return hs.listener.DialContext(ctx)
	})
}

// Authorizations returns the authorization header of every call seen so far ("" when absent).
func (hs *HealthServer) Authorizations() []string {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	out := make([]string, len(hs.authorizations))
	copy(out, hs.authorizations)
	return out
}

// LastAuthorization returns the authorization header of the most recent call.
func (hs *HealthServer) LastAuthorization() string {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if len(hs.authorizations) == 0 {
		return ""
	}
	return hs.authorizations[len(hs.authorizations)-1]
}

func (hs *HealthServer) record(ctx context.Context) {
	value := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("authorization"); len(vals) > 0 {
			value = vals[0]
		}
	}

	hs.mu.Lock()
	hs.authorizations = append(hs.authorizations, value)
	hs.mu.Unlock()
}

func (hs *HealthServer) recordUnary(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	hs.record(ctx)
	return handler(ctx, req)
}

func (hs *HealthServer) recordStream(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	hs.record(ss.Context())
	return handler(srv, ss)
}

// JWKSVerifier validates bearer JWTs against a JWKS endpoint.
type JWKSVerifier struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience string
}

// NewJWKSVerifier loads the JWKS of idp and verifies tokens issued by it.
func NewJWKSVerifier(tb testing.TB, idp *MockIdP) *JWKSVerifier {
	tb.Helper()

	jwks, err := keyfunc.Get(idp.JWKSURL(), keyfunc.Options{
		RefreshTimeout:    5 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		tb.Fatalf("failed to initialize JWKS: %v", err)
	}
	tb.Cleanup(jwks.EndBackground)

	return &JWKSVerifier{
		jwks:     jwks,
		issuer:   idp.Issuer,
		audience: TestAudience,
	}
}

// Verify validates a raw bearer token.
func (v *JWKSVerifier) Verify(token string) error {
	_, err := jwt.Parse(token, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	return err
}

func (v *JWKSVerifier) authorize(ctx context.Context) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	vals := md.Get("authorization")
	if len(vals) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}

	token, found := strings.CutPrefix(vals[0], "Bearer ")
	if !found || token == "" {
		return status.Error(codes.Unauthenticated, "invalid authorization header")
	}

	if err := v.Verify(token); err != nil {
		return status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
	}
	return nil
}

func (v *JWKSVerifier) unaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if v != nil {
			if err := v.authorize(ctx); err != nil {
				return nil, err
			}
		}
		return handler(ctx, req)
	}
}

func (v *JWKSVerifier) streamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if v != nil {
			if err := v.authorize(ss.Context()); err != nil {
				return err
			}
		}
		return handler(srv, ss)
	}
}
