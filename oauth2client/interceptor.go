package oauth2client

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	// AuthorizationKey is the outgoing metadata key carrying the bearer token.
	AuthorizationKey = "authorization"
	bearerPrefix     = "Bearer "
)

// UnaryClientInterceptor returns a gRPC unary client interceptor that automatically
// adds OAuth2 Bearer tokens to request metadata.
//
// The interceptor adds the token as "authorization: Bearer <token>" to the outgoing
// request context metadata. If token fetch fails, the RPC call is aborted with an error
// wrapping clienterr.ErrTokenFetch; it is never sent without the header.
// An Unauthenticated response drops the cached token so the next call fetches a new one.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithUnaryInterceptor(tokenManager.UnaryClientInterceptor()),
//	)
func (tm *TokenManager) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, err := tm.outgoingContext(ctx)
		if err != nil {
			return err
		}

		err = invoker(ctx, method, req, reply, cc, opts...)
		tm.observe(method, err)
		return err
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that automatically
// adds OAuth2 Bearer tokens to request metadata.
//
// If token fetch fails, stream creation is aborted with an error. An Unauthenticated status,
// whether returned when the stream opens or later from RecvMsg, drops the cached token.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithStreamInterceptor(tokenManager.StreamClientInterceptor()),
//	)
func (tm *TokenManager) StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx, err := tm.outgoingContext(ctx)
		if err != nil {
			return nil, err
		}

		stream, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			tm.observe(method, err)
			return nil, err
		}
		return &observedStream{ClientStream: stream, tm: tm, method: method}, nil
	}
}

// observedStream reports the final status of a stream, which servers may send after
// accepting it.
type observedStream struct {
	grpc.ClientStream
	tm     *TokenManager
	method string
}

func (s *observedStream) RecvMsg(m any) error {
	err := s.ClientStream.RecvMsg(m)
	if err != nil && err != io.EOF {
		s.tm.observe(s.method, err)
	}
	return err
}

// outgoingContext fetches a token using the RPC context, so the RPC deadline bounds the wait.
func (tm *TokenManager) outgoingContext(ctx context.Context) (context.Context, error) {
	token, err := tm.GetTokenWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth2: failed to get token: %w", err)
	}

	return metadata.AppendToOutgoingContext(ctx, AuthorizationKey, bearerPrefix+token), nil
}

func (tm *TokenManager) observe(method string, err error) {
	if status.Code(err) != codes.Unauthenticated {
		return
	}

	tm.Invalidate()
	if tm.logger != nil {
		tm.logger.Printf("oauth2: %s rejected the access token, cached token dropped", method)
	}
}

// PerRPCCredentials adapts the token manager to credentials.PerRPCCredentials, for use with
// grpc.WithPerRPCCredentials. The credentials require transport security, so gRPC refuses to
// send them over a plaintext connection.
func (tm *TokenManager) PerRPCCredentials() credentials.PerRPCCredentials {
	return &perRPCCredentials{tm: tm}
}

type perRPCCredentials struct {
	tm *TokenManager
}

// GetRequestMetadata returns the authorization header for one RPC.
func (c *perRPCCredentials) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	token, err := c.tm.GetTokenWithContext(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]string{AuthorizationKey: bearerPrefix + token}, nil
}

// RequireTransportSecurity reports that bearer tokens must not travel in plaintext.
func (c *perRPCCredentials) RequireTransportSecurity() bool {
	return true
}
