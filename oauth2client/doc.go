// Package oauth2client provides an OAuth2 client-credentials token manager for gRPC and HTTP clients.
//
// It caches bearer tokens, refreshes them shortly before expiry, and attaches them to outgoing
// calls as "authorization: Bearer <token>". Concurrent callers that find the cache stale share a
// single token request, and a failed fetch aborts the call instead of sending it unauthenticated.
//
// # Features
//
//   - Client-credentials flow with client_id and client_secret sent in the form body
//   - Token caching with a refresh margin (DefaultExpiryLeeway), capped at half the token lifetime
//   - Expiry taken from expires_in, falling back to the JWT exp claim
//   - De-duplicated refreshes; a waiting caller honors its own context
//   - gRPC unary and stream client interceptors, plus a credentials.PerRPCCredentials adapter
//   - Cached token dropped when a server answers Unauthenticated
//   - Optional logging (WithLogger, WithLoggingEnabled)
//
// # Quick Start
//
//	doc, err := oidc.FetchDiscovery(ctx, os.Getenv("ISSUER_URL"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tm, err := oauth2client.NewOAuth2ClientCredentials(oauth2client.OAuth2Config{
//	    ClientID:      os.Getenv("CLIENT_ID"),
//	    ClientSecret:  os.Getenv("CLIENT_SECRET"),
//	    TokenEndpoint: doc.TokenEndpoint,
//	}, oauth2client.WithLoggingEnabled())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	conn, err := grpc.NewClient(
//	    "inventory.example.com:9000",
//	    grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})),
//	    grpc.WithUnaryInterceptor(tm.UnaryClientInterceptor()),
//	    grpc.WithStreamInterceptor(tm.StreamClientInterceptor()),
//	)
//
// Most callers use grpcclient.NewClientBuilder(...).OAuth2ClientAuthenticated(tm, transport)
// instead of wiring the interceptors by hand.
//
// # Errors
//
// Token failures wrap clienterr.ErrTokenFetch; the underlying cause (for example
// *oauth2.RetrieveError for a rejected client) stays reachable through errors.As.
package oauth2client
