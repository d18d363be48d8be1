package oauth2client

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/AmmannChristian/kessel-client-go/clienterr"
)

const (
	// DefaultExpiryLeeway is how long before the literal expiry a cached token is refreshed.
	DefaultExpiryLeeway = 30 * time.Second

	// DefaultRequestTimeout bounds a single token request.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultTokenLifetime is assumed for tokens whose response reports no expiry
	// and that carry no exp claim.
	DefaultTokenLifetime = time.Hour

	opGetToken = "oauth2client.GetToken"
	opNew      = "oauth2client.NewOAuth2ClientCredentials"

	refreshKey = "token"
)

// Logger is an interface for optional logging in TokenManager.
// Implementations can log token refresh events if desired.
type Logger interface {
	Printf(format string, args ...any)
}

// OAuth2Config holds the client-credentials settings. ClientID, ClientSecret and
// TokenEndpoint are required.
type OAuth2Config struct {
	ClientID      string
	ClientSecret  string
	TokenEndpoint string
	// Scopes is optional.
	Scopes []string
}

// Validate reports a clienterr.ErrConfiguration error when a required field is empty.
func (c OAuth2Config) Validate() error {
	switch {
	case strings.TrimSpace(c.ClientID) == "":
		return clienterr.Configuration(opNew, "OAuth2 client ID is required")
	case strings.TrimSpace(c.ClientSecret) == "":
		return clienterr.Configuration(opNew, "OAuth2 client secret is required")
	case strings.TrimSpace(c.TokenEndpoint) == "":
		return clienterr.Configuration(opNew, "OAuth2 token endpoint is required")
	}
	return nil
}

// cachedToken is only read or replaced while holding TokenManager.mu.
type cachedToken struct {
	accessToken string
	obtainedAt  time.Time
	expiresAt   time.Time
}

// TokenManager manages OAuth2 tokens with automatic refresh.
// It uses the client credentials flow and is safe for concurrent access.
type TokenManager struct {
	config         *clientcredentials.Config
	token          *cachedToken
	mu             sync.RWMutex
	group          singleflight.Group
	ctx            context.Context // base context for token requests, never cancelled
	expiryLeeway   time.Duration
	requestTimeout time.Duration
	fallbackTTL    time.Duration
	now            func() time.Time
	logger         Logger // optional logger
}

// Option is a functional option for configuring TokenManager.
type Option func(*TokenManager)

// WithLogger sets a custom logger for token refresh events.
// If not set, no logging will occur.
func WithLogger(logger Logger) Option {
	return func(tm *TokenManager) {
		tm.logger = logger
	}
}

// WithLoggingEnabled enables logging using the default Go log package.
// This is a convenience option that sets the logger to log.Default().
func WithLoggingEnabled() Option {
	return func(tm *TokenManager) {
		tm.logger = log.Default()
	}
}

// WithExpiryLeeway sets how long before expiry a cached token is considered stale.
// Negative values are treated as zero.
func WithExpiryLeeway(leeway time.Duration) Option {
	return func(tm *TokenManager) {
		if leeway < 0 {
			leeway = 0
		}
		tm.expiryLeeway = leeway
	}
}

// WithRequestTimeout bounds each token request. Zero disables the bound.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(tm *TokenManager) {
		tm.requestTimeout = timeout
	}
}

// WithDefaultTokenLifetime sets the lifetime assumed when neither expires_in nor a JWT exp
// claim is available. Non-positive values are ignored.
func WithDefaultTokenLifetime(lifetime time.Duration) Option {
	return func(tm *TokenManager) {
		if lifetime > 0 {
			tm.fallbackTTL = lifetime
		}
	}
}

// WithHTTPClient sets the HTTP client used for token requests.
func WithHTTPClient(client *http.Client) Option {
	return func(tm *TokenManager) {
		if client != nil {
			tm.ctx = context.WithValue(tm.ctx, oauth2.HTTPClient, client)
		}
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(tm *TokenManager) {
		if now != nil {
			tm.now = now
		}
	}
}

// NewOAuth2ClientCredentials validates cfg and returns a TokenManager for it.
// Tokens are requested with client_id and client_secret in the form body.
func NewOAuth2ClientCredentials(cfg OAuth2Config, opts ...Option) (*TokenManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tm := newTokenManager(context.Background(), &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenEndpoint,
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}, opts)

	return tm, nil
}

// NewTokenManager creates a new OAuth2 token manager using client credentials flow.
//
// Parameters:
//   - ctx: Base context for token requests; its values (e.g. oauth2.HTTPClient) are kept, its cancellation is not
//   - tokenURL: OAuth2 token endpoint (e.g., "https://auth.example.com/oauth/v2/token")
//   - clientID: OAuth2 client identifier
//   - clientSecret: OAuth2 client secret
//   - scopes: Space-separated list of OAuth2 scopes (e.g., "openid profile email")
//   - opts: Optional configuration options
//
// Unlike NewOAuth2ClientCredentials the arguments are not validated here; an incomplete
// configuration surfaces as a token fetch error on first use.
func NewTokenManager(ctx context.Context, tokenURL, clientID, clientSecret, scopes string, opts ...Option) *TokenManager {
	return newTokenManager(ctx, &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		// Split scopes by whitespace to avoid sending a single concatenated scope.
		Scopes:    strings.Fields(scopes),
		AuthStyle: oauth2.AuthStyleInParams,
	}, opts)
}

func newTokenManager(ctx context.Context, config *clientcredentials.Config, opts []Option) *TokenManager {
	// Keep token requests independent from caller cancellations while preserving values.
	if ctx == nil {
		ctx = context.Background()
	} else {
		ctx = context.WithoutCancel(ctx)
	}

	tm := &TokenManager{
		config:         config,
		ctx:            ctx,
		expiryLeeway:   DefaultExpiryLeeway,
		requestTimeout: DefaultRequestTimeout,
		fallbackTTL:    DefaultTokenLifetime,
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(tm)
	}

	return tm
}

// GetTokenWithContext returns a valid access token, fetching or refreshing if necessary.
//
// Concurrent callers that find the cache stale share a single token request. A caller whose
// ctx ends while waiting gets an error wrapping ctx.Err(); the shared request keeps running
// and populates the cache for later calls.
//
// Errors wrap clienterr.ErrTokenFetch with the underlying cause (for example *oauth2.RetrieveError).
func (tm *TokenManager) GetTokenWithContext(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Fast path: check if we have a valid token without write lock
	if token, ok := tm.cached(); ok {
		return token, nil
	}

	if err := ctx.Err(); err != nil {
		return "", clienterr.TokenFetch(opGetToken, err, "context done before token refresh")
	}

	ch := tm.group.DoChan(refreshKey, func() (any, error) {
		return tm.refresh()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		token, _ := res.Val.(string)
		return token, nil
	case <-ctx.Done():
		return "", clienterr.TokenFetch(opGetToken, ctx.Err(), "context done while waiting for token refresh")
	}
}

// GetToken returns a valid access token, fetching or refreshing if necessary.
// It waits for the refresh without a caller deadline; prefer GetTokenWithContext.
func (tm *TokenManager) GetToken() (string, error) {
	return tm.GetTokenWithContext(tm.ctx)
}

// Invalidate drops the cached token so the next call fetches a new one.
func (tm *TokenManager) Invalidate() {
	tm.mu.Lock()
	tm.token = nil
	tm.mu.Unlock()
}

// ExpiresAt returns the expiry of the cached token and whether one is cached.
func (tm *TokenManager) ExpiresAt() (time.Time, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if tm.token == nil {
		return time.Time{}, false
	}
	return tm.token.expiresAt, true
}

func (tm *TokenManager) cached() (string, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if !tm.tokenValid() {
		return "", false
	}
	return tm.token.accessToken, true
}

// refresh runs inside the singleflight group, so at most one token request is outstanding.
func (tm *TokenManager) refresh() (string, error) {
	// Double-check: a refresh that finished just before this one started already filled the cache.
	if token, ok := tm.cached(); ok {
		return token, nil
	}

	ctx := tm.ctx
	if tm.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tm.requestTimeout)
		defer cancel()
	}

	token, err := tm.config.Token(ctx)
	if err != nil {
		return "", clienterr.TokenFetch(opGetToken, err, "request to %s failed", tm.config.TokenURL)
	}
	if token.AccessToken == "" {
		return "", clienterr.TokenFetch(opGetToken, nil, "response from %s has no access_token", tm.config.TokenURL)
	}

	// x/oauth2 derives Expiry from expires_in against the wall clock; rebase it on tm.now.
	cached := &cachedToken{
		accessToken: token.AccessToken,
		obtainedAt:  tm.now(),
	}
	if !token.Expiry.IsZero() {
		cached.expiresAt = cached.obtainedAt.Add(time.Until(token.Expiry))
	} else if exp := jwtExpiry(token.AccessToken); !exp.IsZero() {
		cached.expiresAt = exp
	} else {
		cached.expiresAt = cached.obtainedAt.Add(tm.fallbackTTL)
	}

	tm.mu.Lock()
	tm.token = cached
	tm.mu.Unlock()

	// Log only if logger is configured
	if tm.logger != nil {
		tm.logger.Printf("oauth2: obtained new access token (expires: %s)", cached.expiresAt.Format(time.RFC3339))
	}

	return cached.accessToken, nil
}

// tokenValid reports whether the cached token is still usable with a small safety window.
// Callers must hold tm.mu.
func (tm *TokenManager) tokenValid() bool {
	if tm.token == nil || tm.token.accessToken == "" {
		return false
	}
	if tm.token.expiresAt.IsZero() {
		return true
	}

	// Short-lived tokens would otherwise never be considered fresh.
	leeway := tm.expiryLeeway
	if lifetime := tm.token.expiresAt.Sub(tm.token.obtainedAt); lifetime > 0 && leeway > lifetime/2 {
		leeway = lifetime / 2
	}

	return tm.now().Before(tm.token.expiresAt.Add(-leeway))
}

// jwtExpiry returns the exp claim of a JWT access token, or the zero time when the token
// is opaque or carries no exp. The signature is not verified; the value only schedules refreshes.
func jwtExpiry(accessToken string) time.Time {
	if strings.Count(accessToken, ".") != 2 {
		return time.Time{}
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
