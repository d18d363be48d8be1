// Package oidc resolves the token endpoint of an OpenID Connect issuer from its discovery document.
//
// Only the subset of the discovery metadata needed for the client-credentials grant is parsed.
// Each call performs exactly one HTTP request; there is no caching or retry. Resolve the endpoint
// once at startup and reuse it.
//
// # Quick Start
//
//	doc, err := oidc.FetchDiscovery(ctx, "https://sso.example.com/auth/realms/kessel")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	creds, err := oauth2client.NewOAuth2ClientCredentials(oauth2client.OAuth2Config{
//	    ClientID:      os.Getenv("CLIENT_ID"),
//	    ClientSecret:  os.Getenv("CLIENT_SECRET"),
//	    TokenEndpoint: doc.TokenEndpoint,
//	})
package oidc
