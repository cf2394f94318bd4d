package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"chatbridge/internal/errs"
	"chatbridge/internal/models"
)

const (
	DefaultPort        = 8080
	DefaultHTTPTimeout = 60 * time.Second
)

var validate = validator.New()

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	HTTP      HTTPConfig                `yaml:"http"`
	Token     TokenConfig               `yaml:"token"`
	Providers map[string]ProviderConfig `yaml:"providers" validate:"dive"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=1,lte=65535"`
}

// HTTPConfig tunes the outbound client. A zero timeout is replaced by
// DefaultHTTPTimeout; a negative one disables the client deadline.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// TokenConfig tunes the service-account token exchange.
type TokenConfig struct {
	Endpoint     string        `yaml:"endpoint" validate:"omitempty,url"`
	SafetyMargin time.Duration `yaml:"safety_margin" validate:"gte=0"`
}

// ProviderConfig captures authentication and routing info for a provider.
type ProviderConfig struct {
	APIKey             string  `yaml:"api_key"`
	BaseURL            string  `yaml:"base_url" validate:"omitempty,url"`
	Deployment         string  `yaml:"deployment"`
	APIVersion         string  `yaml:"api_version"`
	Region             string  `yaml:"region"`
	ServiceAccountFile string  `yaml:"service_account_file"`
	RelayURL           string  `yaml:"relay_url" validate:"omitempty,url"`
	Headers            Headers `yaml:"headers"`

	// ServiceAccount is loaded from ServiceAccountFile by Load.
	ServiceAccount *models.ServiceAccount `yaml:"-"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// Load reads YAML configuration from disk, expands ${VAR} references and
// validates the result. A .env file next to the config, and one in the
// working directory, are loaded first when present.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	for _, envFile := range []string{filepath.Join(filepath.Dir(absPath), ".env"), ".env"} {
		if err := loadDotEnv(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %q: %w", envFile, err)
		}
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // path is operator-provided configuration
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	cfg, err := Parse([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	for id, p := range cfg.Providers {
		if p.ServiceAccountFile == "" {
			continue
		}
		saPath := p.ServiceAccountFile
		if !filepath.IsAbs(saPath) {
			saPath = filepath.Join(filepath.Dir(absPath), saPath)
		}
		sa, err := LoadServiceAccount(saPath)
		if err != nil {
			return Config{}, fmt.Errorf("provider %s: %w", id, err)
		}
		p.ServiceAccount = sa
		cfg.Providers[id] = p
	}

	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}

	normalized := make(map[string]ProviderConfig, len(c.Providers))
	for id, p := range c.Providers {
		normalized[strings.ToLower(strings.TrimSpace(id))] = p
	}
	c.Providers = normalized
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	for name, provider := range c.Providers {
		if err := validateProvider(name, provider); err != nil {
			return err
		}
	}
	return nil
}

func validateProvider(name string, provider ProviderConfig) error {
	if name == "" {
		return errors.New("provider name must not be empty")
	}
	if provider.APIKey != "" && provider.ServiceAccountFile != "" {
		return fmt.Errorf("provider %s: api_key and service_account_file are mutually exclusive", name)
	}

	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}
	return nil
}

// Provider returns the section for id, or the zero value when absent.
func (c Config) Provider(id string) ProviderConfig {
	return c.Providers[strings.ToLower(strings.TrimSpace(id))]
}

// Apply fills req with the configured credential, relay and routing options.
// Configured routing values win over the request's. When the credential comes
// from configuration the request may not choose the upstream host, so a
// request-supplied base_url or deployment is rejected.
func (p ProviderConfig) Apply(req *models.UnifiedChatRequest) error {
	opts := &req.Options

	if p.APIKey != "" || p.ServiceAccount != nil {
		if strings.TrimSpace(opts.BaseURL) != "" {
			return errs.Configuration(req.Provider, "base_url", "cannot be set per request when the provider credential is configured")
		}
		if strings.TrimSpace(opts.Deployment) != "" {
			return errs.Configuration(req.Provider, "deployment", "cannot be set per request when the provider credential is configured")
		}
	}

	if req.Credential.APIKey == "" {
		req.Credential.APIKey = p.APIKey
	}
	if req.Credential.ServiceAccount == nil {
		req.Credential.ServiceAccount = p.ServiceAccount
	}

	opts.BaseURL = firstNonEmpty(p.BaseURL, opts.BaseURL)
	opts.Deployment = firstNonEmpty(p.Deployment, opts.Deployment)
	opts.APIVersion = firstNonEmpty(p.APIVersion, opts.APIVersion)
	opts.Region = firstNonEmpty(p.Region, opts.Region)
	opts.RelayURL = p.RelayURL

	if len(p.Headers) > 0 {
		headers := make(map[string]string, len(p.Headers)+len(opts.Headers))
		for k, v := range p.Headers {
			headers[k] = v
		}
		for k, v := range opts.Headers {
			headers[k] = v
		}
		opts.Headers = headers
	}
	return nil
}

// LoadServiceAccount reads a Google service-account key file.
func LoadServiceAccount(path string) (*models.ServiceAccount, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-provided configuration
	if err != nil {
		return nil, fmt.Errorf("read service account file %q: %w", path, err)
	}

	var sa models.ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("decode service account file %q: %w", path, err)
	}
	if field := sa.MissingField(); field != "" {
		return nil, fmt.Errorf("service account file %q: %s must be provided", path, field)
	}
	return &sa, nil
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
