package config_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/AmmannChristian/kessel-client-go/clienterr"
	"github.com/AmmannChristian/kessel-client-go/config"
	"github.com/AmmannChristian/kessel-client-go/internal/testutil"
)

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) joined() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.messages, "\n")
}

func check(t *testing.T, client healthpb.HealthClient) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %v", resp.GetStatus())
	}
}

func TestNewClient_Insecure(t *testing.T) {
	server := testutil.StartHealthServer(t)

	cfg := &config.Config{Endpoint: testutil.BufconnTarget, Insecure: true}

	client, conn, err := config.NewClient(context.Background(), cfg, healthpb.NewHealthClient,
		config.WithDialOptions(server.Dialer()))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer conn.Close()

	check(t, client)

	if got := server.LastAuthorization(); got != "" {
		t.Errorf("expected no authorization header, got %q", got)
	}
}

func TestNewClient_TLSWithoutCredentials(t *testing.T) {
	ca := testutil.NewTestCA(t)
	server := testutil.StartHealthServer(t, testutil.WithServerTLS(ca.ServerTLSConfig(t, testutil.BufconnHost)))

	cfg := &config.Config{
		Endpoint:   testutil.BufconnTarget,
		CACertPath: ca.WriteCertPEM(t, t.TempDir()),
	}

	client, conn, err := config.NewClient(context.Background(), cfg, healthpb.NewHealthClient,
		config.WithDialOptions(server.Dialer()))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer conn.Close()

	check(t, client)
}

func TestNewClient_DiscoveryAndClientCredentials(t *testing.T) {
	idp := testutil.NewMockIdP(t, "inventory-client", "s3cret")
	ca := testutil.NewTestCA(t)
	server := testutil.StartHealthServer(t,
		testutil.WithServerTLS(ca.ServerTLSConfig(t, testutil.BufconnHost)),
		testutil.WithTokenVerifier(testutil.NewJWKSVerifier(t, idp)),
	)

	cfg := &config.Config{
		Endpoint:     testutil.BufconnTarget,
		IssuerURL:    idp.Issuer,
		ClientID:     idp.ClientID,
		ClientSecret: idp.ClientSecret,
		CACertPath:   ca.WriteCertPEM(t, t.TempDir()),
	}

	logger := &recordingLogger{}
	client, conn, err := config.NewClient(context.Background(), cfg, healthpb.NewHealthClient,
		config.WithDialOptions(server.Dialer()),
		config.WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer conn.Close()

	check(t, client)
	check(t, client)

	if got := server.LastAuthorization(); !strings.HasPrefix(got, "Bearer ") {
		t.Errorf("expected bearer authorization, got %q", got)
	}
	if got := idp.TokenRequests(); got != 1 {
		t.Errorf("expected 1 token request, got %d", got)
	}
	if !strings.Contains(logger.joined(), "obtained new access token") {
		t.Errorf("expected token refresh to be logged, got %q", logger.joined())
	}
}

func TestNewClient_DialOptionsKeepTLSAndToken(t *testing.T) {
	idp := testutil.NewMockIdP(t, "inventory-client", "s3cret")
	ca := testutil.NewTestCA(t)
	server := testutil.StartHealthServer(t,
		testutil.WithServerTLS(ca.ServerTLSConfig(t, testutil.BufconnHost)),
		testutil.WithTokenVerifier(testutil.NewJWKSVerifier(t, idp)),
	)

	cfg := &config.Config{
		Endpoint:      testutil.BufconnTarget,
		TokenEndpoint: idp.TokenEndpoint(),
		ClientID:      idp.ClientID,
		ClientSecret:  idp.ClientSecret,
		CACertPath:    ca.WriteCertPEM(t, t.TempDir()),
	}

	passthrough := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	client, conn, err := config.NewClient(context.Background(), cfg, healthpb.NewHealthClient,
		config.WithDialOptions(
			server.Dialer(),
			grpc.WithUnaryInterceptor(passthrough),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer conn.Close()

	check(t, client)

	if got := server.LastAuthorization(); !strings.HasPrefix(got, "Bearer ") {
		t.Errorf("expected bearer authorization, got %q", got)
	}
}

func TestNewClient_TokenEndpointSkipsDiscovery(t *testing.T) {
	idp := testutil.NewMockIdP(t, "inventory-client", "s3cret")
	ca := testutil.NewTestCA(t)
	server := testutil.StartHealthServer(t, testutil.WithServerTLS(ca.ServerTLSConfig(t, testutil.BufconnHost)))

	cfg := &config.Config{
		Endpoint: testutil.BufconnTarget,
		// Discovery would fail against this issuer.
		IssuerURL:     idp.Issuer + "/missing",
		TokenEndpoint: idp.TokenEndpoint(),
		ClientID:      idp.ClientID,
		ClientSecret:  idp.ClientSecret,
		CACertPath:    ca.WriteCertPEM(t, t.TempDir()),
	}

	client, conn, err := config.NewClient(context.Background(), cfg, healthpb.NewHealthClient,
		config.WithDialOptions(server.Dialer()))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer conn.Close()

	check(t, client)
}

func TestNewClient_Errors(t *testing.T) {
	idp := testutil.NewMockIdP(t, "inventory-client", "s3cret")

	tests := []struct {
		name     string
		cfg      *config.Config
		wantKind error
	}{
		{
			name:     "nil config",
			cfg:      nil,
			wantKind: clienterr.ErrConfiguration,
		},
		{
			name:     "invalid config",
			cfg:      &config.Config{},
			wantKind: clienterr.ErrConfiguration,
		},
		{
			name: "missing CA file",
			cfg: &config.Config{
				Endpoint:   "localhost:9000",
				CACertPath: filepath.Join(t.TempDir(), "missing.crt"),
			},
			wantKind: clienterr.ErrIO,
		},
		{
			name: "discovery failure",
			cfg: &config.Config{
				Endpoint:     "localhost:9000",
				IssuerURL:    idp.Issuer + "/missing",
				ClientID:     idp.ClientID,
				ClientSecret: idp.ClientSecret,
			},
			wantKind: clienterr.ErrDiscovery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, conn, err := config.NewClient(context.Background(), tt.cfg, healthpb.NewHealthClient,
				config.WithDiscoveryHTTPClient(http.DefaultClient))
			if err == nil {
				_ = conn.Close()
				t.Fatal("expected error")
			}
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("expected %v, got %v", tt.wantKind, err)
			}
			if conn != nil {
				t.Error("expected nil connection on error")
			}
		})
	}
}

func TestNewTokenManager(t *testing.T) {
	idp := testutil.NewMockIdP(t, "inventory-client", "s3cret")

	tm, err := config.NewTokenManager(context.Background(), &config.Config{
		Endpoint:     "localhost:9000",
		IssuerURL:    idp.Issuer,
		ClientID:     idp.ClientID,
		ClientSecret: idp.ClientSecret,
	}, config.WithDiscoveryHTTPClient(http.DefaultClient))
	if err != nil {
		t.Fatalf("NewTokenManager failed: %v", err)
	}

	token, err := tm.GetTokenWithContext(context.Background())
	if err != nil {
		t.Fatalf("GetTokenWithContext failed: %v", err)
	}
	if token == "" {
		t.Error("expected a token")
	}
}

func TestNewTokenManager_RequiresCredentials(t *testing.T) {
	_, err := config.NewTokenManager(context.Background(), &config.Config{Endpoint: "localhost:9000"})
	if !errors.Is(err, clienterr.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
