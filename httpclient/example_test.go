package httpclient_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/AmmannChristian/kessel-client-go/httpclient"
	"github.com/AmmannChristian/kessel-client-go/oauth2client"
	"github.com/AmmannChristian/kessel-client-go/oidc"
)

// Example demonstrates basic HTTP client usage with OAuth2.
func Example() {
	tm, err := oauth2client.NewOAuth2ClientCredentials(oauth2client.OAuth2Config{
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		TokenEndpoint: "https://auth.example.com/oauth/v2/token",
	})
	if err != nil {
		log.Fatal(err)
	}

	client := httpclient.NewHTTPClient(tm)

	fmt.Printf("HTTP client created with timeout: %v\n", client.Timeout)
	// Output: HTTP client created with timeout: 30s
}

// ExampleNewBuilder demonstrates using the builder pattern for HTTP clients.
func ExampleNewBuilder() {
	client, err := httpclient.NewBuilder().
		WithOAuth2(oauth2client.OAuth2Config{
			ClientID:      "client-id",
			ClientSecret:  "secret",
			TokenEndpoint: "https://auth.example.com/oauth/v2/token",
		}).
		WithTimeout(60 * time.Second).
		Build()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Client timeout: %v\n", client.Timeout)
	// Output: Client timeout: 1m0s
}

// ExampleBuilder_WithCACertFile demonstrates running OIDC discovery against an issuer
// whose certificate is signed by a private CA.
func ExampleBuilder_WithCACertFile() {
	client, err := httpclient.NewBuilder().
		WithCACertFile("/ca-certs/service-ca.crt").
		Build()
	if err != nil {
		// In this example, the file doesn't exist, so we expect an error
		fmt.Println("CA file could not be read")
		return
	}

	_, _ = oidc.FetchDiscovery(context.Background(), "https://sso.example.com/realms/redhat-external",
		oidc.WithHTTPClient(client))
	// Output: CA file could not be read
}
