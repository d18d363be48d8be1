// Package testutil provides test helpers for the client packages.
//
// It includes utilities to spin up IPv4-only local HTTP servers (avoiding IPv6 in sandboxes),
// mock OAuth2 endpoints without real sockets, a mock OpenID provider, throwaway certificate
// authorities, and an in-memory gRPC health server that records call metadata.
//
// # Utilities
//
//   - NewLocalHTTPServer / NewLocalTLSServer: start httptest servers bound to 127.0.0.1
//   - MockOAuth2Server and StaticJSONResponse: stub OAuth2 token endpoints and capture requests
//   - MockIdP: discovery, client-credentials token endpoint and JWKS issuing RS256 JWTs
//   - NewTestCA / WriteTestCACert: generate CA and server certificates for TLS tests
//   - StartHealthServer and JWKSVerifier: bufconn gRPC server with optional TLS and bearer verification
package testutil
