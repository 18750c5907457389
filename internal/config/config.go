// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	humanize "github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	toml "github.com/pelletier/go-toml/v2"
)

func init() {
	// Report validation failures with the TOML key names.
	validation.ErrorTag = "toml"
}

// DefaultBackendURL is used when neither the config file nor BACKEND_URL set one.
const DefaultBackendURL = "http://localhost:5000"

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/api-bridge/config.toml",
	"configs/config.toml",
}

// reservedPaths are served by the bridge itself and cannot be shadowed.
var reservedPaths = []string{"/healthz", "/proxy/status"}

var standardMethods = []any{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

var prefixPattern = regexp.MustCompile(`^/[^?#*:]*[^/?#*:]$`)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host       string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port       int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	BackendURL string `kong:"name='backend-url',help='Backend origin, e.g. http://backend:5000 (overrides config).',env='BACKEND_URL'"`
	LogLevel   string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Backend BackendConfig `toml:"backend"`
	Routes  []RouteConfig `toml:"routes"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	// BodyMax is a humanized size such as "10MB" or "512KiB".
	BodyMax       string          `toml:"body_max"`
	H2C           bool            `toml:"h2c"`
	ProxyProtocol bool            `toml:"proxy_protocol"`
	RateLimit     RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// BackendConfig describes the origin requests are forwarded to.
type BackendConfig struct {
	URL             string `toml:"url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
	FollowRedirects bool   `toml:"follow_redirects"`
}

// RouteConfig mounts one wildcard route family, {Prefix}/*.
type RouteConfig struct {
	Prefix  string   `toml:"prefix"`
	Methods []string `toml:"methods"`
	// Error is the message returned in the JSON body when forwarding fails.
	Error string `toml:"error"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// DefaultRoutes are mounted when the config file declares none. The auth
// family is listed first and does not accept PATCH.
func DefaultRoutes() []RouteConfig {
	return []RouteConfig{
		{
			Prefix:  "/api/auth",
			Methods: []string{"GET", "POST", "PUT", "DELETE"},
			Error:   "Failed to proxy auth request",
		},
		{
			Prefix:  "/api",
			Methods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			Error:   "Failed to proxy request",
		},
	}
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/api-bridge/config.toml then configs/config.toml. Finding none is not
// an error: defaults plus CLI/env values are used.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.BackendURL != "" {
		c.Backend.URL = cli.BackendURL
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMax == "" {
		c.Server.BodyMax = "10MB"
	}
	if c.Backend.URL == "" {
		c.Backend.URL = DefaultBackendURL
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 120
	}
	if c.Backend.IdleConnections == 0 {
		c.Backend.IdleConnections = 100
	}
	if len(c.Routes) == 0 {
		c.Routes = DefaultRoutes()
	}
	for i := range c.Routes {
		r := &c.Routes[i]
		for j, m := range r.Methods {
			r.Methods[j] = strings.ToUpper(m)
		}
		if r.Error == "" {
			r.Error = "Failed to proxy request"
		}
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration after defaults have been applied.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Server),
		validation.Field(&c.Backend),
		validation.Field(&c.Routes, validation.Required, validation.By(uniquePrefixes)),
		validation.Field(&c.Log),
		validation.Field(&c.Metrics, validation.By(c.metricsPathFree)),
	)
}

// Validate implements validation.Validatable.
func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&s.BodyMax, validation.Required, validation.By(validateSize)),
		validation.Field(&s.RateLimit),
	)
}

// BodyMaxBytes returns the parsed inbound body limit. It is only meaningful
// on a validated config.
func (s ServerConfig) BodyMaxBytes() uint64 {
	n, _ := humanize.ParseBytes(s.BodyMax)
	return n
}

// Validate implements validation.Validatable.
func (r RateLimitConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RequestsPerSecond,
			validation.When(r.Enabled, validation.Required, validation.Min(0.0).Exclusive()),
		),
	)
}

// Validate implements validation.Validatable.
func (b BackendConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.URL, validation.Required, validation.By(validateBackendURL)),
		validation.Field(&b.TimeoutSeconds, validation.Min(0)),
		validation.Field(&b.IdleConnections, validation.Min(0)),
	)
}

// Validate implements validation.Validatable.
func (r RouteConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Prefix,
			validation.Required,
			validation.Match(prefixPattern).Error("must start with '/' and not end with '/'"),
			validation.By(notReserved),
		),
		validation.Field(&r.Methods, validation.Required, validation.Each(validation.In(standardMethods...))),
		validation.Field(&r.Error, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In("json", "text")),
	)
}

// Validate implements validation.Validatable.
func (m MetricsConfig) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Path,
			validation.When(m.Enabled,
				validation.Match(regexp.MustCompile(`^/`)).Error("must start with '/'"),
			),
		),
	)
}

// metricsPathFree rejects a metrics path that would shadow a route or a
// built-in endpoint. Disabled metrics are not checked.
func (c Config) metricsPathFree(value any) error {
	m, ok := value.(MetricsConfig)
	if !ok || !m.Enabled {
		return nil
	}
	reserved := append([]string(nil), reservedPaths...)
	for _, r := range c.Routes {
		reserved = append(reserved, r.Prefix)
	}
	for _, p := range reserved {
		if m.Path == p || strings.HasPrefix(m.Path, p+"/") {
			return validation.NewError("validation_path_conflict",
				fmt.Sprintf("path %q conflicts with reserved route %q", m.Path, p))
		}
	}
	return nil
}

func uniquePrefixes(value any) error {
	routes, _ := value.([]RouteConfig)
	seen := make(map[string]bool, len(routes))
	for _, r := range routes {
		if seen[r.Prefix] {
			return validation.NewError("validation_duplicate_prefix",
				fmt.Sprintf("prefix %q is declared more than once", r.Prefix))
		}
		seen[r.Prefix] = true
	}
	return nil
}

func notReserved(value any) error {
	prefix, _ := value.(string)
	for _, p := range reservedPaths {
		if prefix == p || strings.HasPrefix(p, prefix+"/") {
			return validation.NewError("validation_reserved_prefix",
				fmt.Sprintf("prefix conflicts with built-in endpoint %q", p))
		}
	}
	return nil
}

func validateSize(value any) error {
	s, _ := value.(string)
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return validation.NewError("validation_invalid_size", "must be a size such as 10MB or 512KiB")
	}
	if n == 0 {
		return validation.NewError("validation_invalid_size", "must be greater than zero")
	}
	return nil
}

func validateBackendURL(value any) error {
	raw, _ := value.(string)
	u, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}
	if u.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return validation.NewError("validation_invalid_url", "URL must not carry a query or fragment")
	}
	return nil
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FilePath returns the config file that was loaded, or "" when running on
// defaults.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
