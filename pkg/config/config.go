package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for ekaya-ask.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys, signing keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Auth       AuthConfig       `yaml:"auth"`
	LLM        LLMConfig        `yaml:"llm"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Registry   RegistryConfig   `yaml:"registry"`
	Datasource DatasourceConfig `yaml:"datasource"`
	Audit      AuditConfig      `yaml:"audit"`
	MCP        MCPConfig        `yaml:"mcp"`

	// SessionKey signs the session cookie that groups a browser's requests.
	// A random key is generated at startup when unset, so sessions do not
	// survive restarts.
	SessionKey string `yaml:"-" env:"SESSION_KEY"` // Secret - not in YAML
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// Disabled turns off bearer token verification; every request then runs
	// as Registry.DefaultRole. Booleans default to false so YAML can set them.
	Disabled bool `yaml:"disabled" env:"AUTH_DISABLED" env-default:"false"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	// JWTSecret enables HS256 tokens signed with a shared secret.
	JWTSecret string `yaml:"-" env:"AUTH_JWT_SECRET"` // Secret - not in YAML
}

// LLMConfig selects and tunes the text-completion provider.
type LLMConfig struct {
	Provider       string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint       string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`
	Model          string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey         string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature    float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens      int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"60"`
	// BreakerThreshold consecutive provider failures open the circuit for
	// BreakerResetSeconds.
	BreakerThreshold    int `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetSeconds int `yaml:"breaker_reset_seconds" env:"LLM_BREAKER_RESET_SECONDS" env-default:"30"`
}

// Timeout bounds one provider call, including a streamed answer.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PipelineConfig bounds each stage of a request.
type PipelineConfig struct {
	MaxAttempts             int `yaml:"max_attempts" env:"PIPELINE_MAX_ATTEMPTS" env-default:"3"`
	ExecutionTimeoutSeconds int `yaml:"execution_timeout_seconds" env:"PIPELINE_EXECUTION_TIMEOUT_SECONDS" env-default:"30"`
	MaxRows                 int `yaml:"max_rows" env:"PIPELINE_MAX_ROWS" env-default:"1000"`
	SchemaCacheTTLMinutes   int `yaml:"schema_cache_ttl_minutes" env:"PIPELINE_SCHEMA_CACHE_TTL_MINUTES" env-default:"5"`
	AnswerMaxRows           int `yaml:"answer_max_rows" env:"PIPELINE_ANSWER_MAX_ROWS" env-default:"50"`
	AnswerMaxBytes          int `yaml:"answer_max_bytes" env:"PIPELINE_ANSWER_MAX_BYTES" env-default:"8192"`
}

func (c PipelineConfig) ExecutionTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeoutSeconds) * time.Second
}

func (c PipelineConfig) SchemaCacheTTL() time.Duration {
	return time.Duration(c.SchemaCacheTTLMinutes) * time.Minute
}

// RegistryConfig points at the role and target registries.
type RegistryConfig struct {
	RolesFile   string `yaml:"roles_file" env:"ROLES_FILE" env-default:"roles.yaml"`
	TargetsFile string `yaml:"targets_file" env:"TARGETS_FILE" env-default:"targets.yaml"`
	// DefaultRole is used only when auth verification is disabled.
	DefaultRole string `yaml:"default_role" env:"DEFAULT_ROLE" env-default:""`
	// DefaultTarget is used when a request names no target database.
	DefaultTarget string `yaml:"default_target" env:"DEFAULT_TARGET" env-default:""`
}

// DatasourceConfig holds datasource connection management settings.
type DatasourceConfig struct {
	// ConnectionTTLMinutes is how long idle datasource pools are kept alive.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"DATASOURCE_CONNECTION_TTL_MINUTES" env-default:"5"`
	// MaxPools limits how many target pools may be open at once.
	MaxPools int `yaml:"max_pools" env:"DATASOURCE_MAX_POOLS" env-default:"20"`
	// PoolMaxConns is the maximum number of connections per datasource pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	// PoolMinConns is the minimum number of connections per datasource pool.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"1"`
}

// AuditConfig controls the persisted audit trail. Security events are
// always logged; the store adds a queryable copy.
type AuditConfig struct {
	Disabled  bool   `yaml:"disabled" env:"AUDIT_DISABLED" env-default:"false"`
	StorePath string `yaml:"store_path" env:"AUDIT_STORE_PATH" env-default:"ekaya-ask-audit.db"`
}

// MCPConfig controls the MCP endpoint.
type MCPConfig struct {
	Disabled bool `yaml:"disabled" env:"MCP_DISABLED" env-default:"false"`
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error: everything then comes from the
// environment and defaults. The version is set on the returned Config.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ValidateServe checks the settings only the HTTP server needs. The CLI
// names its role on the command line and never verifies tokens.
func (c *Config) ValidateServe() error {
	if !c.Auth.Disabled && c.Auth.JWTSecret == "" && len(c.Auth.JWKSEndpoints) == 0 {
		return errors.New("auth verification needs AUTH_JWT_SECRET or jwks_endpoints")
	}
	if c.Auth.Disabled && c.Registry.DefaultRole == "" {
		return errors.New("default_role is required when auth is disabled")
	}
	return nil
}

// validate checks settings that cleanenv cannot express.
func (c *Config) validate() error {
	// Zero values fall back to env-default, so only negatives reach here.
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.ExecutionTimeoutSeconds < 1 {
		return fmt.Errorf("execution_timeout_seconds must be at least 1, got %d", c.Pipeline.ExecutionTimeoutSeconds)
	}
	if c.Pipeline.MaxRows < 1 {
		return fmt.Errorf("max_rows must be at least 1, got %d", c.Pipeline.MaxRows)
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// ListenAddr is the address the HTTP server binds.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		issuer, jwksURL = strings.TrimSpace(issuer), strings.TrimSpace(jwksURL)
		if issuer != "" && jwksURL != "" {
			endpoints[issuer] = jwksURL
		}
	}
	return endpoints
}
