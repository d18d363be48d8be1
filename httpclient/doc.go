// Package httpclient builds HTTP clients that authenticate with the same OAuth2 credential source as the gRPC clients.
//
// A Builder creates an http.Client that injects Bearer tokens from an oauth2client.TokenManager,
// so REST calls and gRPC clients can share one credential source. The same builder produces the
// plain TLS client used for OIDC discovery against an issuer behind a private CA.
//
// # Features
//
//   - Fluent builder for http.Client with optional OAuth2 token injection
//   - TLS 1.2+ by default, with custom CA (file or PEM bytes), mTLS and optional InsecureSkipVerify
//   - Custom timeouts, base transport override, and redirect disabling
//   - Reusable OAuth2Transport; a 401 response drops the cached token
//
// # Quick Start
//
//	client, err := httpclient.NewBuilder().
//	    WithOAuth2(oauth2client.OAuth2Config{
//	        ClientID:      "client-id",
//	        ClientSecret:  "client-secret",
//	        TokenEndpoint: doc.TokenEndpoint,
//	    }).
//	    WithCACertFile("/ca-certs/service-ca.crt").
//	    WithTimeout(60 * time.Second).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Manual Transport Wrapping
//
//	transport := httpclient.NewOAuth2Transport(tm, nil)
//	client := &http.Client{Transport: transport}
//
// Clients and transports are safe for concurrent use; the TokenManager serializes refreshes.
package httpclient
