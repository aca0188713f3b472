package slidesync

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolveConfig_ExplicitValues(t *testing.T) {
	cfg := Config{
		ServerURL:    "https://slides.example.com",
		Role:         RolePresenter,
		SessionToken: "tok",
	}
	resolved, err := resolveConfig(cfg)
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.ServerURL != "https://slides.example.com" {
		t.Errorf("ServerURL = %q, want explicit value", resolved.ServerURL)
	}
	if resolved.Role != RolePresenter {
		t.Errorf("Role = %q, want %q", resolved.Role, RolePresenter)
	}
	if resolved.SessionToken != "tok" {
		t.Errorf("SessionToken = %q, want %q", resolved.SessionToken, "tok")
	}
}

func TestResolveConfig_EnvFallback(t *testing.T) {
	t.Setenv("SLIDESYNC_SERVER_URL", "http://env-host:3030")
	t.Setenv("SLIDESYNC_ROLE", "viewer")
	t.Setenv("SLIDESYNC_SESSION", "env-token")

	resolved, err := resolveConfig(Config{})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.ServerURL != "http://env-host:3030" {
		t.Errorf("ServerURL = %q, want env value", resolved.ServerURL)
	}
	if resolved.Role != RoleViewer {
		t.Errorf("Role = %q, want env value", resolved.Role)
	}
	if resolved.SessionToken != "env-token" {
		t.Errorf("SessionToken = %q, want env value", resolved.SessionToken)
	}
}

func TestResolveConfig_ExplicitOverridesEnv(t *testing.T) {
	t.Setenv("SLIDESYNC_SERVER_URL", "http://env-host:3030")

	resolved, err := resolveConfig(Config{ServerURL: "http://explicit:3030"})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.ServerURL != "http://explicit:3030" {
		t.Errorf("ServerURL = %q, want explicit value", resolved.ServerURL)
	}
}

func TestResolveConfig_Defaults(t *testing.T) {
	resolved, err := resolveConfig(Config{ServerURL: "http://localhost:3030"})
	if err != nil {
		t.Fatalf("resolveConfig() error: %v", err)
	}
	if resolved.DiscriminatorField != DefaultDiscriminator {
		t.Errorf("DiscriminatorField = %q, want %q", resolved.DiscriminatorField, DefaultDiscriminator)
	}
	if resolved.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("ReconnectDelay = %v, want %v", resolved.ReconnectDelay, DefaultReconnectDelay)
	}
	if resolved.MaxReconnectDelay != DefaultReconnectDelay {
		t.Errorf("MaxReconnectDelay = %v, want fixed delay %v", resolved.MaxReconnectDelay, DefaultReconnectDelay)
	}
	if resolved.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("HandshakeTimeout = %v, want %v", resolved.HandshakeTimeout, DefaultHandshakeTimeout)
	}
	if resolved.Logger == nil {
		t.Error("Logger should default to slog.Default()")
	}
}

func TestResolveConfig_MissingServerURL(t *testing.T) {
	t.Setenv("SLIDESYNC_SERVER_URL", "")
	if _, err := resolveConfig(Config{}); err == nil {
		t.Fatal("resolveConfig() should error when ServerURL is missing")
	}
}

func TestResolveConfig_UnknownRole(t *testing.T) {
	_, err := resolveConfig(Config{ServerURL: "http://localhost:3030", Role: "audience"})
	if err == nil {
		t.Fatal("resolveConfig() should reject unknown roles")
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"http origin", Config{ServerURL: "http://localhost:3030"}, "ws://localhost:3030/ws"},
		{"https origin", Config{ServerURL: "https://slides.example.com"}, "wss://slides.example.com/ws"},
		{"page url", Config{ServerURL: "https://slides.example.com/presenter/3?x=1#top"}, "wss://slides.example.com/ws"},
		{"ws endpoint", Config{ServerURL: "ws://localhost:3030/ws"}, "ws://localhost:3030/ws"},
		{"role query off", Config{ServerURL: "http://h", Role: RolePresenter}, "ws://h/ws"},
		{"role query on", Config{ServerURL: "http://h", Role: RoleViewer, RoleQuery: true}, "ws://h/ws?role=viewer"},
		{"role query without role", Config{ServerURL: "http://h", RoleQuery: true}, "ws://h/ws"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := endpointURL(tt.cfg)
			if err != nil {
				t.Fatalf("endpointURL() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("endpointURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEndpointURL_Invalid(t *testing.T) {
	for _, raw := range []string{"ftp://h", "localhost:3030", "http://", "://bad"} {
		if _, err := endpointURL(Config{ServerURL: raw}); err == nil {
			t.Errorf("endpointURL(%q) should error", raw)
		}
	}
}

func TestHandshakeHeader(t *testing.T) {
	if h := handshakeHeader(Config{}); h.Get("Cookie") != "" {
		t.Errorf("Cookie = %q, want none without a session", h.Get("Cookie"))
	}
	h := handshakeHeader(Config{SessionToken: "abc"})
	if got := h.Get("Cookie"); got != "slide_auth=abc" {
		t.Errorf("Cookie = %q, want %q", got, "slide_auth=abc")
	}
}

func TestRoleFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want Role
	}{
		{"https://slides.example.com/presenter/1", RolePresenter},
		{"https://slides.example.com/1?presenter", RolePresenter},
		{"https://slides.example.com/1?mode=presenter", RolePresenter},
		{"https://slides.example.com/1", RoleViewer},
		{"https://slides.example.com/overview", RoleViewer},
		{"%%", RoleViewer},
	}
	for _, tt := range tests {
		if got := RoleFromURL(tt.url); got != tt.want {
			t.Errorf("RoleFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_SLIDES_SESSION", "secret123")

	yaml := `
server_url: https://slides.example.com
role: presenter
role_query: true
session_token: ${TEST_SLIDES_SESSION}
reconnect_delay: 2s
max_reconnect_delay: 30s
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.ServerURL != "https://slides.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.Role != RolePresenter || !cfg.RoleQuery {
		t.Errorf("Role = %q, RoleQuery = %v", cfg.Role, cfg.RoleQuery)
	}
	if cfg.SessionToken != "secret123" {
		t.Errorf("SessionToken = %q, want %q", cfg.SessionToken, "secret123")
	}
	if cfg.ReconnectDelay != 2*time.Second || cfg.MaxReconnectDelay != 30*time.Second {
		t.Errorf("delays = %v/%v, want 2s/30s", cfg.ReconnectDelay, cfg.MaxReconnectDelay)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadConfig should fail for a missing file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeTempFile(t, "server_url: [unterminated")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig should fail for invalid YAML")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slidesync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
