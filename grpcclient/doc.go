// Package grpcclient builds typed gRPC clients with explicit transport security and optional
// OAuth2 client-credentials call credentials.
//
// Transport security is never implied: Build fails unless Insecure or transport credentials
// were chosen, and call credentials are only accepted together with TLS. Each authenticated
// RPC carries "authorization: Bearer <token>" from an oauth2client.TokenManager; when no token
// can be obtained the RPC fails with an error wrapping clienterr.ErrTokenFetch and is not sent.
//
// # Features
//
//   - Fluent builder generic over the generated stub type
//   - ConfigureTLS for PEM CA bundles; system roots when none are given
//   - OAuth2 client-credentials integration via oauth2client
//   - Arbitrary credentials.PerRPCCredentials via Authenticated
//   - Additional dial options via WithDialOptions
//
// # Quick Start
//
//	doc, err := oidc.FetchDiscovery(ctx, os.Getenv("ISSUER_URL"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	creds, err := oauth2client.NewOAuth2ClientCredentials(oauth2client.OAuth2Config{
//	    ClientID:      os.Getenv("CLIENT_ID"),
//	    ClientSecret:  os.Getenv("CLIENT_SECRET"),
//	    TokenEndpoint: doc.TokenEndpoint,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	transport, err := grpcclient.ConfigureTLS("/ca-certs/service-ca.crt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, conn, err := grpcclient.NewClientBuilder(os.Getenv("KESSEL_ENDPOINT"), v1beta2.NewKesselInventoryServiceClient).
//	    OAuth2ClientAuthenticated(creds, transport).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
// # Local development
//
//	client, conn, err := grpcclient.NewClientBuilder("localhost:9000", v1beta2.NewKesselInventoryServiceClient).
//	    Insecure().
//	    Build()
package grpcclient
