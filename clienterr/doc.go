// Package clienterr defines the error kinds surfaced while building authenticated gRPC clients.
//
// Every error returned by the oidc, oauth2client and grpcclient packages that belongs to one of
// the kinds below wraps a *Error, so callers can branch with errors.Is on the kind sentinels and
// still reach the underlying cause with errors.As or errors.Unwrap.
//
// # Kinds
//
//   - ErrConfiguration: invalid or missing builder inputs, fatal at build time
//   - ErrIO: certificate material could not be read from disk
//   - ErrDiscovery: the OIDC discovery document could not be fetched or parsed
//   - ErrTokenFetch: the token endpoint failed or returned an unusable response
//   - ErrCredential: certificate or token material is malformed
//
// # Classifying RPC failures
//
//	_, err := client.Check(ctx, req)
//	switch clienterr.FromRPC(err) {
//	case clienterr.FailureCredential:
//	    // the IdP is unreachable or rejected our client credentials
//	case clienterr.FailureTransport:
//	    // the service could not be reached
//	case clienterr.FailureApplication:
//	    // the service answered with an error status
//	}
package clienterr
