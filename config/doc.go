// Package config loads inventory client settings from the environment and turns them into a client.
//
// Load reads KESSEL_ENDPOINT, KESSEL_INSECURE, ISSUER_URL, TOKEN_ENDPOINT, CLIENT_ID,
// CLIENT_SECRET, SCOPES and CA_CERT_PATH, optionally seeded from .env files, and validates the
// combination. NewClient resolves the token endpoint through OIDC discovery when only an issuer
// is given and builds the stub with grpcclient.
//
//	cfg, err := config.Load(config.WithEnvFile(".env"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, conn, err := config.NewClient(ctx, cfg, v1beta2.NewKesselInventoryServiceClient)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
package config
