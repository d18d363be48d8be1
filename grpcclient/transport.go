package grpcclient

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"os"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AmmannChristian/kessel-client-go/clienterr"
)

const (
	opConfigureTLS = "grpcclient.ConfigureTLS"
	opTransport    = "grpcclient.TransportCredentials"
)

type transportKind int

const (
	transportUnset transportKind = iota
	transportInsecure
	transportTLS
)

// TransportCredentials selects channel-level security: Insecure or TLS with optional root
// certificates. The zero value is unset and rejected by the builder.
type TransportCredentials struct {
	kind             transportKind
	rootCertificates []byte
	serverName       string
}

// Insecure returns plaintext transport credentials.
// Plaintext is unsuitable for production and cannot carry OAuth2 call credentials.
func Insecure() TransportCredentials {
	return TransportCredentials{kind: transportInsecure}
}

// TLS returns TLS transport credentials trusting the PEM-encoded rootCertificates.
// With no root certificates the system pool is used.
func TLS(rootCertificates []byte) TransportCredentials {
	return TransportCredentials{
		kind:             transportTLS,
		rootCertificates: bytes.Clone(rootCertificates),
	}
}

// ConfigureTLS reads the PEM CA bundle at caCertPath and returns TLS credentials holding
// exactly those bytes. A read failure wraps clienterr.ErrIO. The bundle is parsed when the
// credentials are turned into gRPC credentials, failing with clienterr.ErrCredential.
func ConfigureTLS(caCertPath string) (TransportCredentials, error) {
	if caCertPath == "" {
		return TransportCredentials{}, clienterr.Configuration(opConfigureTLS, "CA certificate path is required")
	}

	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return TransportCredentials{}, clienterr.IO(opConfigureTLS, err, "read CA file")
	}

	return TLS(caCert), nil
}

// WithServerName returns a copy that verifies the server certificate against name instead
// of the dial authority. It has no effect on insecure credentials.
func (t TransportCredentials) WithServerName(name string) TransportCredentials {
	t.serverName = name
	return t
}

// IsInsecure reports whether t selects plaintext transport.
func (t TransportCredentials) IsInsecure() bool { return t.kind == transportInsecure }

// IsTLS reports whether t selects TLS.
func (t TransportCredentials) IsTLS() bool { return t.kind == transportTLS }

// IsSet reports whether t was created by Insecure, TLS or ConfigureTLS.
func (t TransportCredentials) IsSet() bool { return t.kind != transportUnset }

// RootCertificates returns a copy of the PEM root certificates (nil for insecure or system roots).
func (t TransportCredentials) RootCertificates() []byte {
	return bytes.Clone(t.rootCertificates)
}

// ServerName returns the server name override, if any.
func (t TransportCredentials) ServerName() string { return t.serverName }

// GRPC converts t into gRPC transport credentials.
func (t TransportCredentials) GRPC() (credentials.TransportCredentials, error) {
	switch t.kind {
	case transportInsecure:
		return insecure.NewCredentials(), nil
	case transportTLS:
		tlsConfig, err := t.tlsConfig()
		if err != nil {
			return nil, err
		}
		return credentials.NewTLS(tlsConfig), nil
	default:
		return nil, clienterr.Configuration(opTransport, "transport credentials are not set")
	}
}

// tlsConfig constructs the TLS configuration for the gRPC connection.
func (t TransportCredentials) tlsConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if len(t.rootCertificates) > 0 {
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(t.rootCertificates) {
			return nil, clienterr.Credential(opTransport, nil, "failed to parse CA certificate")
		}
		tlsConfig.RootCAs = certPool
	}

	if t.serverName != "" {
		tlsConfig.ServerName = t.serverName
	}

	return tlsConfig, nil
}
