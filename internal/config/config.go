// Package config handles TOML/YAML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"storefront-gateway/internal/route"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/storefront-gateway/config.toml",
	"configs/config.toml",
}

// placeholderSecret is the development secret the original deployment shipped with.
const placeholderSecret = "your-very-secret"

// Gateway-owned paths that no route or the metrics endpoint may shadow.
const (
	HealthPath = "/health"
	StatusPath = "/gateway/status"
)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config       string `kong:"short='c',help='Path to TOML or YAML config file.',env='CONFIG_PATH'"`
	Host         string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port         int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	JWTSecret    string `kong:"name='jwt-secret',help='Shared HMAC secret for bearer tokens (overrides config).',env='JWT_SECRET'"`
	UsersURL     string `kong:"name='users-url',help='Upstream for /users (overrides config).',env='USER_SERVICE_URL'"`
	OrdersURL    string `kong:"name='orders-url',help='Upstream for /orders (overrides config).',env='ORDER_SERVICE_URL'"`
	InventoryURL string `kong:"name='inventory-url',help='Upstream for /inventory (overrides config).',env='INVENTORY_SERVICE_URL'"`
	LogLevel     string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Auth     AuthConfig     `toml:"auth" yaml:"auth"`
	CORS     CORSConfig     `toml:"cors" yaml:"cors"`
	Upstream UpstreamConfig `toml:"upstream" yaml:"upstream"`
	Routes   []RouteConfig  `toml:"routes" yaml:"routes"`
	Log      LogConfig      `toml:"log" yaml:"log"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host" yaml:"host"`
	Port         int    `toml:"port" yaml:"port"` // 0 means "use default" (3000)
	BodyMaxBytes int64  `toml:"body_max_bytes" yaml:"body_max_bytes"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret      string `toml:"jwt_secret" yaml:"jwt_secret"`
	Scheme         string `toml:"scheme" yaml:"scheme"`
	IdentityHeader string `toml:"identity_header" yaml:"identity_header"`
}

// CORSConfig holds the headers granted to cross-origin callers.
type CORSConfig struct {
	AllowOrigins []string `toml:"allow_origins" yaml:"allow_origins"`
	AllowMethods []string `toml:"allow_methods" yaml:"allow_methods"`
	AllowHeaders []string `toml:"allow_headers" yaml:"allow_headers"`
	MaxAge       int      `toml:"max_age" yaml:"max_age"`
}

// UpstreamConfig holds settings shared by all upstream connections.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds" yaml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections" yaml:"idle_connections"`
}

// RouteConfig is one entry of the static route table.
type RouteConfig struct {
	Prefix          string `toml:"prefix" yaml:"prefix"`
	Upstream        string `toml:"upstream" yaml:"upstream"`
	RequireAuth     bool   `toml:"require_auth" yaml:"require_auth"`
	StripPrefix     bool   `toml:"strip_prefix" yaml:"strip_prefix"`
	ForwardIdentity bool   `toml:"forward_identity" yaml:"forward_identity"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// defaultRoutes mirrors the storefront deployment. None require auth: the
// storefront runs its backends in demo mode.
func defaultRoutes() []RouteConfig {
	return []RouteConfig{
		{Prefix: "/users", Upstream: "http://user-service:3004"},
		{Prefix: "/orders", Upstream: "http://order-service:3003"},
		{Prefix: "/inventory", Upstream: "http://inventory-service:3001"},
	}
}

// Load reads the config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/storefront-gateway/config.toml then configs/config.toml, and falls
// back to built-in defaults when neither exists.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
		cfg.filePath = path
	}

	if len(cfg.Routes) == 0 {
		cfg.Routes = defaultRoutes()
	}
	cfg.applyCLI(cli)
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// decodeFile picks the decoder from the file extension; anything that is not
// .yaml or .yml is treated as TOML.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.JWTSecret != "" {
		c.Auth.JWTSecret = cli.JWTSecret
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	c.overrideUpstream("/users", cli.UsersURL)
	c.overrideUpstream("/orders", cli.OrdersURL)
	c.overrideUpstream("/inventory", cli.InventoryURL)
}

// overrideUpstream replaces the upstream of the route with prefix, adding an
// unauthenticated route when the config file does not define one.
func (c *Config) overrideUpstream(prefix, upstream string) {
	if upstream == "" {
		return
	}
	for i := range c.Routes {
		if c.Routes[i].Prefix == prefix {
			c.Routes[i].Upstream = upstream
			return
		}
	}
	c.Routes = append(c.Routes, RouteConfig{Prefix: prefix, Upstream: upstream})
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == placeholderSecret {
		return fmt.Errorf("auth.jwt_secret contains placeholder value; set a real secret")
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.CORS.MaxAge < 0 {
		return fmt.Errorf("cors.max_age must be non-negative; got %d", c.CORS.MaxAge)
	}

	if err := c.validateRoutes(); err != nil {
		return err
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p == "" || p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range c.reservedPrefixes() {
			if route.Match(reserved, p) || route.Match(p, reserved) {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}
	return nil
}

func (c *Config) validateRoutes() error {
	needSecret := false
	for i, r := range c.Routes {
		u, err := url.Parse(r.Upstream)
		if err != nil {
			return fmt.Errorf("routes[%d].upstream is not a valid URL: %w", i, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("routes[%d].upstream must use http or https; got %q", i, r.Upstream)
		}
		if r.ForwardIdentity && !r.RequireAuth {
			return fmt.Errorf("routes[%d] (%s): forward_identity requires require_auth", i, r.Prefix)
		}
		for _, reserved := range []string{HealthPath, StatusPath} {
			if route.Match(r.Prefix, reserved) {
				return fmt.Errorf("routes[%d].prefix %q conflicts with reserved route %q", i, r.Prefix, reserved)
			}
		}
		needSecret = needSecret || r.RequireAuth
	}
	if needSecret && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when a route sets require_auth")
	}

	if _, err := c.RouteTable(); err != nil {
		return err
	}
	return nil
}

func (c *Config) reservedPrefixes() []string {
	out := []string{HealthPath, StatusPath}
	for _, r := range c.Routes {
		out = append(out, r.Prefix)
	}
	return out
}

// RouteTable builds the immutable route table from the configured routes.
func (c *Config) RouteTable() (*route.Table, error) {
	routes := make([]route.Route, 0, len(c.Routes))
	for _, r := range c.Routes {
		u, err := url.Parse(r.Upstream)
		if err != nil {
			return nil, fmt.Errorf("route %s: parse upstream: %w", r.Prefix, err)
		}
		routes = append(routes, route.Route{
			Prefix:          r.Prefix,
			Upstream:        u,
			RequireAuth:     r.RequireAuth,
			StripPrefix:     r.StripPrefix,
			ForwardIdentity: r.ForwardIdentity,
		})
	}
	return route.New(routes)
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Auth.Scheme == "" {
		c.Auth.Scheme = "Bearer"
	}
	if c.Auth.IdentityHeader == "" {
		c.Auth.IdentityHeader = "X-User-ID"
	}
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"*"}
	}
	if len(c.CORS.AllowMethods) == 0 {
		c.CORS.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(c.CORS.AllowHeaders) == 0 {
		c.CORS.AllowHeaders = []string{"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization"}
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
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
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or
// others. The file may hold the JWT secret.
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
