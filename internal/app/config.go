package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the OAuth relay.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// RelayConfig tunes the orchestration behaviour.
type RelayConfig struct {
	// ServerURL is the canonical public base URL of the relay. When empty,
	// callback URLs are derived from x-forwarded-proto/x-forwarded-host.
	ServerURL string `mapstructure:"server_url"`
	// MachineUserAgent is the fixed User-Agent value that marks a
	// server-to-server caller.
	MachineUserAgent string        `mapstructure:"machine_user_agent"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout"`
	PersistTimeout   time.Duration `mapstructure:"persist_timeout"`
	RequestTokenTTL  time.Duration `mapstructure:"request_token_ttl"`
}

// Credentials is a client id/secret pair.
type Credentials struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// OIDCSettings configures the generic OIDC adapter. Either Issuer or the three
// explicit endpoints must be present.
type OIDCSettings struct {
	Credentials `mapstructure:",squash"`
	Issuer      string `mapstructure:"issuer"`
	Scopes      string `mapstructure:"scopes"`
	AuthURL     string `mapstructure:"auth_url"`
	TokenURL    string `mapstructure:"token_url"`
	UserinfoURL string `mapstructure:"userinfo_url"`
}

// SteamSettings configures the Steam adapter, which needs only a Web API key.
type SteamSettings struct {
	APIKey string `mapstructure:"api_key"`
}

// ProvidersConfig groups per-provider credentials. Twitter credentials are
// shared by the legacy OAuth 1.0a adapter and the current X adapter.
type ProvidersConfig struct {
	GitHub   Credentials   `mapstructure:"github"`
	Google   Credentials   `mapstructure:"google"`
	Facebook Credentials   `mapstructure:"facebook"`
	QQ       Credentials   `mapstructure:"qq"`
	Weibo    Credentials   `mapstructure:"weibo"`
	Twitter  Credentials   `mapstructure:"twitter"`
	Huawei   Credentials   `mapstructure:"huawei"`
	OIDC     OIDCSettings  `mapstructure:"oidc"`
	Steam    SteamSettings `mapstructure:"steam"`
}

// DatabaseConfig describes the optional persistence sink connection.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// Enabled reports whether a persistence sink should be opened at all.
func (c DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(c.Driver) != "" || strings.TrimSpace(c.DSN) != ""
}

// LoadConfig initialises application configuration using Viper. Configuration
// comes from an optional YAML file plus the flat environment variables the
// deployment contract fixes (GITHUB_ID, OIDC_ISSUER, SERVER_URL, ...).
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)
	bindEnvironment(v)

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("relay.machine_user_agent", "@waline")
	v.SetDefault("relay.http_timeout", "10s")
	v.SetDefault("relay.persist_timeout", "1500ms")
	v.SetDefault("relay.request_token_ttl", "10m")

	v.SetDefault("providers.oidc.scopes", "openid profile email")
}

// bindEnvironment wires the flat provider environment variables used by
// existing deployments onto the structured configuration keys.
func bindEnvironment(v *viper.Viper) {
	bindings := map[string][]string{
		"server.port":      {"PORT"},
		"relay.server_url": {"SERVER_URL"},

		"providers.github.client_id":       {"GITHUB_ID"},
		"providers.github.client_secret":   {"GITHUB_SECRET"},
		"providers.google.client_id":       {"GOOGLE_ID"},
		"providers.google.client_secret":   {"GOOGLE_SECRET"},
		"providers.facebook.client_id":     {"FACEBOOK_ID"},
		"providers.facebook.client_secret": {"FACEBOOK_SECRET"},
		"providers.qq.client_id":           {"QQ_ID"},
		"providers.qq.client_secret":       {"QQ_SECRET"},
		"providers.weibo.client_id":        {"WEIBO_ID"},
		"providers.weibo.client_secret":    {"WEIBO_SECRET"},
		"providers.twitter.client_id":      {"TWITTER_ID"},
		"providers.twitter.client_secret":  {"TWITTER_SECRET"},
		"providers.huawei.client_id":       {"HUAWEI_ID"},
		"providers.huawei.client_secret":   {"HUAWEI_SECRET"},

		"providers.oidc.client_id":     {"OIDC_ID"},
		"providers.oidc.client_secret": {"OIDC_SECRET"},
		"providers.oidc.issuer":        {"OIDC_ISSUER"},
		"providers.oidc.scopes":        {"OIDC_SCOPES"},
		"providers.oidc.auth_url":      {"OIDC_AUTH_URL"},
		"providers.oidc.token_url":     {"OIDC_TOKEN_URL"},
		"providers.oidc.userinfo_url":  {"OIDC_USERINFO_URL"},

		"providers.steam.api_key": {"STEAM_KEY"},

		"database.dsn":    {"DATABASE_URL", "POSTGRES_URL"},
		"database.driver": {"DATABASE_DRIVER"},
	}

	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		_ = v.BindEnv(args...)
	}
}
