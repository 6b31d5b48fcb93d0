package gateway

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's YAML configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	CORS        CORSConfig        `yaml:"cors"`
	Session     SessionConfig     `yaml:"session"`
	Facilitator FacilitatorConfig `yaml:"facilitator"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds listen-address and environment settings.
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	Environment string `yaml:"environment"` // "development" or "production"
}

// CORSConfig holds the origin allow-list.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SessionConfig holds session-cookie verification settings.
type SessionConfig struct {
	CookieName string `yaml:"cookie_name"`
	Secret     string `yaml:"secret"`
}

// FacilitatorConfig optionally overrides the registry facilitator URLs.
type FacilitatorConfig struct {
	MainnetURL string `yaml:"mainnet_url"`
	TestnetURL string `yaml:"testnet_url"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadConfig reads and validates a YAML config file. ${VAR} references are
// expanded from the environment so secrets stay out of the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "production"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = DefaultSessionCookie
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("server.environment must be development or production, got %q", c.Server.Environment)
	}
	return nil
}

// DevMode reports whether the gateway runs with development CORS rules.
func (c *Config) DevMode() bool {
	return c.Server.Environment == "development"
}
