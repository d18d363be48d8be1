package grpcclient

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/AmmannChristian/kessel-client-go/clienterr"
	"github.com/AmmannChristian/kessel-client-go/internal/testutil"
	"github.com/AmmannChristian/kessel-client-go/oauth2client"
)

type stubLogger struct {
	messages []string
}

func (l *stubLogger) Printf(format string, args ...any) {
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

func newTokenManager(t *testing.T) *oauth2client.TokenManager {
	t.Helper()

	server := testutil.NewMockOAuth2Server(t, nil)
	tm, err := oauth2client.NewOAuth2ClientCredentials(oauth2client.OAuth2Config{
		ClientID:      "client-id",
		ClientSecret:  "secret",
		TokenEndpoint: server.URL + "/token",
	}, oauth2client.WithHTTPClient(server.Client))
	if err != nil {
		t.Fatalf("NewOAuth2ClientCredentials failed: %v", err)
	}
	return tm
}

func testTLS(t *testing.T) TransportCredentials {
	t.Helper()

	caPath := filepath.Join(t.TempDir(), "ca.crt")
	testutil.WriteTestCACert(t, caPath)

	creds, err := ConfigureTLS(caPath)
	if err != nil {
		t.Fatalf("ConfigureTLS failed: %v", err)
	}
	return creds
}

func TestNewClientBuilder(t *testing.T) {
	builder := NewClientBuilder(" localhost:9000 ", healthpb.NewHealthClient)

	if builder == nil {
		t.Fatal("builder should not be nil")
	}
	if builder.endpoint != "localhost:9000" {
		t.Errorf("expected endpoint 'localhost:9000', got '%s'", builder.endpoint)
	}
}

func TestClientBuilder_Insecure(t *testing.T) {
	client, conn, err := NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
		Insecure().
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer conn.Close()

	if client == nil {
		t.Fatal("client should not be nil")
	}
	if conn.Target() != "localhost:9000" {
		t.Errorf("unexpected target: %s", conn.Target())
	}
}

func TestClientBuilder_OAuth2ClientAuthenticated(t *testing.T) {
	tm := newTokenManager(t)
	transport := testTLS(t)

	builder := NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
		OAuth2ClientAuthenticated(tm, transport)

	if builder.tokenManager != tm {
		t.Error("token manager should be set")
	}
	if !builder.transport.IsTLS() {
		t.Error("transport should be TLS")
	}

	_, conn, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer conn.Close()
}

func TestClientBuilder_WithTransportCredentials(t *testing.T) {
	_, conn, err := NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
		WithTransportCredentials(TLS(nil)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer conn.Close()
}

func TestClientBuilder_Authenticated(t *testing.T) {
	tm := newTokenManager(t)

	builder := NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
		Authenticated(tm.PerRPCCredentials(), TLS(nil))

	if builder.callCreds == nil {
		t.Fatal("call credentials should be set")
	}

	_, conn, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer conn.Close()
}

func TestClientBuilder_WithDialOptions(t *testing.T) {
	builder := NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
		WithDialOptions(grpc.WithDisableRetry(), grpc.WithDisableHealthCheck())

	if len(builder.dialOpts) != 2 {
		t.Errorf("expected 2 dial options, got %d", len(builder.dialOpts))
	}
}

func TestClientBuilder_Logger(t *testing.T) {
	logger := &stubLogger{}

	_, conn, err := NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
		Insecure().
		WithLogger(logger).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer conn.Close()

	if len(logger.messages) != 1 || !strings.Contains(logger.messages[0], "plaintext") {
		t.Errorf("expected plaintext warning, got %v", logger.messages)
	}
}

func TestClientBuilder_ConfigurationErrors(t *testing.T) {
	tm := newTokenManager(t)

	tests := []struct {
		name    string
		builder func() *ClientBuilder[healthpb.HealthClient]
		wantMsg string
	}{
		{
			name: "no transport",
			builder: func() *ClientBuilder[healthpb.HealthClient] {
				return NewClientBuilder("localhost:9000", healthpb.NewHealthClient)
			},
			wantMsg: "transport security is not configured",
		},
		{
			name: "empty endpoint",
			builder: func() *ClientBuilder[healthpb.HealthClient] {
				return NewClientBuilder("  ", healthpb.NewHealthClient).Insecure()
			},
			wantMsg: "endpoint is required",
		},
		{
			name: "nil stub factory",
			builder: func() *ClientBuilder[healthpb.HealthClient] {
				return NewClientBuilder[healthpb.HealthClient]("localhost:9000", nil).Insecure()
			},
			wantMsg: "stub factory is required",
		},
		{
			name: "nil token manager",
			builder: func() *ClientBuilder[healthpb.HealthClient] {
				return NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
					OAuth2ClientAuthenticated(nil, TLS(nil))
			},
			wantMsg: "OAuth2 credentials are required",
		},
		{
			name: "oauth2 without transport",
			builder: func() *ClientBuilder[healthpb.HealthClient] {
				return NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
					OAuth2ClientAuthenticated(tm, TransportCredentials{})
			},
			wantMsg: "transport credentials must be supplied",
		},
		{
			name: "oauth2 over insecure transport",
			builder: func() *ClientBuilder[healthpb.HealthClient] {
				return NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
					OAuth2ClientAuthenticated(tm, Insecure())
			},
			wantMsg: "require TLS",
		},
		{
			name: "insecure then oauth2",
			builder: func() *ClientBuilder[healthpb.HealthClient] {
				return NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
					Insecure().
					OAuth2ClientAuthenticated(tm, TLS(nil))
			},
			wantMsg: "require TLS",
		},
		{
			name: "oauth2 then insecure",
			builder: func() *ClientBuilder[healthpb.HealthClient] {
				return NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
					OAuth2ClientAuthenticated(tm, TLS(nil)).
					Insecure()
			},
			wantMsg: "cannot be combined",
		},
		{
			name: "oauth2 then insecure transport",
			builder: func() *ClientBuilder[healthpb.HealthClient] {
				return NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
					OAuth2ClientAuthenticated(tm, TLS(nil)).
					WithTransportCredentials(Insecure())
			},
			wantMsg: "require TLS",
		},
		{
			name: "insecure then TLS",
			builder: func() *ClientBuilder[healthpb.HealthClient] {
				return NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
					Insecure().
					WithTransportCredentials(TLS(nil))
			},
			wantMsg: "mutually exclusive",
		},
		{
			name: "TLS then insecure",
			builder: func() *ClientBuilder[healthpb.HealthClient] {
				return NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
					WithTransportCredentials(TLS(nil)).
					Insecure()
			},
			wantMsg: "mutually exclusive",
		},
		{
			name: "TLS then insecure transport",
			builder: func() *ClientBuilder[healthpb.HealthClient] {
				return NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
					WithTransportCredentials(TLS(nil)).
					WithTransportCredentials(Insecure())
			},
			wantMsg: "mutually exclusive",
		},
		{
			name: "nil call credentials",
			builder: func() *ClientBuilder[healthpb.HealthClient] {
				return NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
					Authenticated(nil, TLS(nil))
			},
			wantMsg: "call credentials are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, conn, err := tt.builder().Build()
			if err == nil {
				_ = conn.Close()
				t.Fatal("expected error")
			}
			if !errors.Is(err, clienterr.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error to contain %q, got %q", tt.wantMsg, err.Error())
			}
			if conn != nil || client != nil {
				t.Error("expected nil client and connection on error")
			}
		})
	}
}

func TestClientBuilder_InvalidCAFailsWithCredentialError(t *testing.T) {
	_, _, err := NewClientBuilder("localhost:9000", healthpb.NewHealthClient).
		WithTransportCredentials(TLS([]byte("garbage"))).
		Build()

	if !errors.Is(err, clienterr.ErrCredential) {
		t.Fatalf("expected ErrCredential, got %v", err)
	}
}

func TestClientBuilder_SingleUse(t *testing.T) {
	builder := NewClientBuilder("localhost:9000", healthpb.NewHealthClient).Insecure()

	_, conn, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer conn.Close()

	_, _, err = builder.Build()
	if !errors.Is(err, clienterr.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration on reuse, got %v", err)
	}
}
