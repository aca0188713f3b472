package slidesync

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Role is the part a participant plays in a presentation.
type Role string

const (
	RolePresenter Role = "presenter"
	RoleViewer    Role = "viewer"
)

// SessionCookieName is the cookie the server reads to recognize presenters.
const SessionCookieName = "slide_auth"

// Default values for optional configuration fields.
const (
	DefaultReconnectDelay    = 3 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
)

// Config holds the configuration for a sync client.
type Config struct {
	// ServerURL is the page origin (http/https) or the WebSocket origin
	// (ws/wss) of the sync server. The endpoint is always <origin>/ws.
	// Fallback: SLIDESYNC_SERVER_URL environment variable.
	ServerURL string `yaml:"server_url"`

	// Role is sent as ?role=<role> when RoleQuery is set.
	// Fallback: SLIDESYNC_ROLE environment variable.
	Role Role `yaml:"role"`

	// RoleQuery enables the legacy client-declared role query parameter.
	// Servers that recognize presenters by session ignore it.
	RoleQuery bool `yaml:"role_query"`

	// SessionToken is sent as the slide_auth cookie.
	// Fallback: SLIDESYNC_SESSION environment variable.
	SessionToken string `yaml:"session_token"`

	// VisitorID identifies this participant in polls. Generated if empty.
	VisitorID string `yaml:"visitor_id"`

	// DiscriminatorField names the field that marks typed messages.
	// Defaults to "type".
	DiscriminatorField string `yaml:"discriminator_field"`

	// ReconnectDelay is the wait before reconnecting after an unexpected close.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// MaxReconnectDelay enables exponential backoff up to this delay.
	// Zero keeps the delay fixed at ReconnectDelay.
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`

	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// Logger receives debug output about the connection lifecycle.
	Logger *slog.Logger `yaml:"-"`
}

// LoadConfig reads a YAML config file. ${VAR} references are expanded from
// the environment before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config yaml: %w", err)
	}
	return cfg, nil
}

// resolveConfig fills empty fields from environment variables and defaults,
// then validates.
func resolveConfig(cfg Config) (Config, error) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = os.Getenv("SLIDESYNC_SERVER_URL")
	}
	if cfg.Role == "" {
		cfg.Role = Role(os.Getenv("SLIDESYNC_ROLE"))
	}
	if cfg.SessionToken == "" {
		cfg.SessionToken = os.Getenv("SLIDESYNC_SESSION")
	}

	if cfg.DiscriminatorField == "" {
		cfg.DiscriminatorField = DefaultDiscriminator
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.ServerURL == "" {
		return cfg, fmt.Errorf("ServerURL is required (set in Config or SLIDESYNC_SERVER_URL env)")
	}
	switch cfg.Role {
	case "", RolePresenter, RoleViewer:
	default:
		return cfg, fmt.Errorf("unknown role %q (want %q or %q)", cfg.Role, RolePresenter, RoleViewer)
	}
	if _, err := endpointURL(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// endpointURL derives the WebSocket endpoint from ServerURL: the scheme is
// upgraded to its streaming equivalent and the path replaced with /ws.
func endpointURL(cfg Config) (string, error) {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("parse ServerURL: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("ServerURL scheme %q is not http(s) or ws(s)", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("ServerURL %q has no host", cfg.ServerURL)
	}

	u.Path = "/ws"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	if cfg.RoleQuery && cfg.Role != "" {
		q := url.Values{}
		q.Set("role", string(cfg.Role))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// handshakeHeader carries the session cookie, if any.
func handshakeHeader(cfg Config) http.Header {
	h := http.Header{}
	if cfg.SessionToken != "" {
		h.Set("Cookie", (&http.Cookie{Name: SessionCookieName, Value: cfg.SessionToken}).String())
	}
	return h
}

// RoleFromURL guesses the role of the page at pageURL: presenter when the
// path contains /presenter or the query mentions presenter, viewer otherwise.
func RoleFromURL(pageURL string) Role {
	u, err := url.Parse(pageURL)
	if err != nil {
		return RoleViewer
	}
	if strings.Contains(u.Path, "/presenter") || strings.Contains(u.RawQuery, "presenter") {
		return RolePresenter
	}
	return RoleViewer
}
