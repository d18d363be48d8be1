package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TestKeyID is the kid of the signing key served by MockIdP.
	TestKeyID = "test-key-1"
	// TestAudience is the aud claim of tokens issued by MockIdP.
	TestAudience = "kessel-inventory"
)

// MockIdP is an OpenID provider serving discovery, a client-credentials token endpoint and JWKS.
// Issued access tokens are RS256 JWTs whose subject is the client ID.
type MockIdP struct {
	Server       *httptest.Server
	Issuer       string
	ClientID     string
	ClientSecret string

	key         *rsa.PrivateKey
	tokenCalls  atomic.Int32
	issued      atomic.Int32
	mu          sync.Mutex
	expiresIn   int
	failStatus  int
	beforeToken func()
}

// NewMockIdP starts a MockIdP on IPv4 loopback that accepts clientID and clientSecret.
func NewMockIdP(tb testing.TB, clientID, clientSecret string) *MockIdP {
	tb.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate RSA key pair: %v", err)
	}

	idp := &MockIdP{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		key:          key,
		expiresIn:    3600,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", idp.handleDiscovery)
	mux.HandleFunc("/token", idp.handleToken)
	mux.HandleFunc("/keys", idp.handleJWKS)

	idp.Server = NewLocalHTTPServer(tb, mux)
	idp.Issuer = idp.Server.URL
	tb.Cleanup(idp.Server.Close)

	return idp
}

// TokenEndpoint returns the token endpoint URL.
func (m *MockIdP) TokenEndpoint() string { return m.Issuer + "/token" }

// JWKSURL returns the JWKS URL.
func (m *MockIdP) JWKSURL() string { return m.Issuer + "/keys" }

// TokenRequests returns how many token requests reached the endpoint.
func (m *MockIdP) TokenRequests() int { return int(m.tokenCalls.Load()) }

// SetExpiresIn sets expires_in for subsequently issued tokens.
func (m *MockIdP) SetExpiresIn(seconds int) {
	m.mu.Lock()
	m.expiresIn = seconds
	m.mu.Unlock()
}

// FailWith makes the token endpoint answer with status; zero restores normal behaviour.
func (m *MockIdP) FailWith(status int) {
	m.mu.Lock()
	m.failStatus = status
	m.mu.Unlock()
}

// BeforeToken registers a hook run at the start of every token request.
func (m *MockIdP) BeforeToken(hook func()) {
	m.mu.Lock()
	m.beforeToken = hook
	m.mu.Unlock()
}

// SignToken issues an RS256 JWT with the given subject and lifetime.
func (m *MockIdP) SignToken(tb testing.TB, subject string, lifetime time.Duration) string {
	tb.Helper()

	token, err := m.sign(subject, lifetime)
	if err != nil {
		tb.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func (m *MockIdP) sign(subject string, lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": m.Issuer,
		"sub": subject,
		"aud": []string{TestAudience},
		"iat": now.Unix(),
		"exp": now.Add(lifetime).Unix(),
		// jti keeps consecutive tokens distinct within the same second.
		"jti": fmt.Sprintf("token-%d", m.issued.Add(1)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = TestKeyID
	return token.SignedString(m.key)
}

func (m *MockIdP) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                   m.Issuer,
		"token_endpoint":           m.TokenEndpoint(),
		"jwks_uri":                 m.JWKSURL(),
		"grant_types_supported":    []string{"client_credentials"},
		"response_types_supported": []string{"token"},
	})
}

func (m *MockIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	m.tokenCalls.Add(1)

	m.mu.Lock()
	hook, failStatus, expiresIn := m.beforeToken, m.failStatus, m.expiresIn
	m.mu.Unlock()

	if hook != nil {
		hook()
	}

	if failStatus != 0 {
		writeJSON(w, failStatus, map[string]string{"error": "server_error"})
		return
	}

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "invalid_request"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	if r.PostForm.Get("client_id") != m.ClientID || r.PostForm.Get("client_secret") != m.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	lifetime := time.Duration(expiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	token, err := m.sign(m.ClientID, lifetime)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	resp := map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
	}
	if expiresIn > 0 {
		resp["expires_in"] = expiresIn
	}
	writeJSON(w, http.StatusOK, resp)
}

func (m *MockIdP) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	pub := m.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": TestKeyID,
				"use": "sig",
				"alg": "RS256",
				"n":   encodeBase64URL(pub.N.Bytes()),
				"e":   encodeBase64URL(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// encodeBase64URL encodes bytes to base64url (without padding) as required by JWK spec.
func encodeBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}
