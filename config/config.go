package config

import (
	"errors"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/AmmannChristian/kessel-client-go/clienterr"
)

const (
	// DefaultCACertPath is where the inventory service CA is mounted in cluster deployments.
	DefaultCACertPath = "/ca-certs/service-ca.crt"

	opLoad = "config.Load"
)

// Environment variables read by Load.
const (
	EnvEndpoint      = "KESSEL_ENDPOINT"
	EnvInsecure      = "KESSEL_INSECURE"
	EnvIssuerURL     = "ISSUER_URL"
	EnvTokenEndpoint = "TOKEN_ENDPOINT"
	EnvClientID      = "CLIENT_ID"
	EnvClientSecret  = "CLIENT_SECRET"
	EnvScopes        = "SCOPES"
	EnvCACertPath    = "CA_CERT_PATH"
)

// Config describes how to reach the inventory service and authenticate to it.
type Config struct {
	Endpoint string `mapstructure:"kessel_endpoint" validate:"required"`
	// Insecure selects a plaintext connection. It cannot be combined with client credentials.
	Insecure bool `mapstructure:"kessel_insecure"`

	IssuerURL     string `mapstructure:"issuer_url" validate:"omitempty,url"`
	TokenEndpoint string `mapstructure:"token_endpoint" validate:"omitempty,url"`
	ClientID      string `mapstructure:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret  string `mapstructure:"client_secret" validate:"required_with=ClientID"`
	// Scopes is a space-separated list.
	Scopes string `mapstructure:"scopes"`

	// CACertPath is a PEM bundle trusted for the inventory service and the issuer.
	// Empty means system roots.
	CACertPath string `mapstructure:"ca_cert_path"`
}

// Authenticated reports whether client credentials are configured.
func (c *Config) Authenticated() bool {
	return c.ClientID != ""
}

// ScopeList splits Scopes on whitespace.
func (c *Config) ScopeList() []string {
	return strings.Fields(c.Scopes)
}

// Validate checks field formats and the combinations Load accepts.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return clienterr.Configuration(opLoad, "validation failed: %v", err)
		}

		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			messages = append(messages, e.Field()+": "+formatValidationError(e))
		}
		return clienterr.Configuration(opLoad, "%s", strings.Join(messages, "; "))
	}

	if c.Authenticated() {
		if c.Insecure {
			return clienterr.Configuration(opLoad, "%s cannot be combined with client credentials", EnvInsecure)
		}
		if c.IssuerURL == "" && c.TokenEndpoint == "" {
			return clienterr.Configuration(opLoad, "%s or %s is required with client credentials", EnvIssuerURL, EnvTokenEndpoint)
		}
	}

	return nil
}

type loadOptions struct {
	envFiles  []string
	envPrefix string
}

// Option configures Load.
type Option func(*loadOptions)

// WithEnvFile loads the given .env files before reading the environment.
// Variables already set in the process environment win.
func WithEnvFile(paths ...string) Option {
	return func(o *loadOptions) {
		o.envFiles = append(o.envFiles, paths...)
	}
}

// WithEnvPrefix reads PREFIX_KESSEL_ENDPOINT and so on instead of the bare names.
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) {
		o.envPrefix = prefix
	}
}

// Load reads the configuration from the environment and validates it.
//
// Errors wrap clienterr.ErrIO when an env file cannot be read and
// clienterr.ErrConfiguration for invalid or incomplete settings.
func Load(opts ...Option) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	for _, path := range o.envFiles {
		if err := godotenv.Load(path); err != nil {
			return nil, clienterr.IO(opLoad, err, "load env file %s", path)
		}
	}

	v := viper.New()
	if o.envPrefix != "" {
		v.SetEnvPrefix(o.envPrefix)
	}
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about.
	for _, key := range []string{
		EnvEndpoint, EnvInsecure, EnvIssuerURL, EnvTokenEndpoint,
		EnvClientID, EnvClientSecret, EnvScopes, EnvCACertPath,
	} {
		if err := v.BindEnv(strings.ToLower(key)); err != nil {
			return nil, clienterr.Configuration(opLoad, "bind %s: %v", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, clienterr.Configuration(opLoad, "decode environment: %v", err)
	}

	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// CACertPathIfPresent returns DefaultCACertPath when the file exists, for deployments
// that mount the service CA without setting CA_CERT_PATH.
func CACertPathIfPresent() string {
	if _, err := os.Stat(DefaultCACertPath); err == nil {
		return DefaultCACertPath
	}
	return ""
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report environment variable names in messages.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return strings.ToUpper(name)
		})
	})
	return validate
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return "is required together with " + strings.ToUpper(toSnakeCase(e.Param()))
	case "url":
		return "must be a valid URL"
	default:
		return "failed " + e.Tag() + " validation"
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
