package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultConfigFileName = "woffyd.toml"

	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"

	ModelPolicyFixed     = "fixed"
	ModelPolicyAllowlist = "allowlist"

	PrependAlways   = "always"
	PrependNonEmpty = "non_empty"

	DefaultMaxTokens = 1024
	MaxMaxTokens     = 4096
)

type UpstreamConfig struct {
	Provider       string `toml:"provider"`
	BaseURL        string `toml:"base_url,omitempty"`
	APIKey         string `toml:"api_key,omitempty"`
	APIKeyEnv      string `toml:"api_key_env,omitempty"`
	Model          string `toml:"model"`
	ModelPolicy    string `toml:"model_policy"`
	MaxTokens      int    `toml:"max_tokens"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
	HTTPReferer    string `toml:"http_referer,omitempty"`
	XTitle         string `toml:"x_title,omitempty"`
}

type PromptConfig struct {
	PrependPolicy string `toml:"prepend_policy"`
}

type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

type TLSConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
	Domain     string `toml:"domain"`
	Email      string `toml:"email"`
	CacheDir   string `toml:"cache_dir"`
}

type ServerConfig struct {
	ListenAddr string         `toml:"listen_addr"`
	DataDir    string         `toml:"data_dir"`
	LogLevel   string         `toml:"log_level,omitempty"`
	LogFormat  string         `toml:"log_format,omitempty"`
	Upstream   UpstreamConfig `toml:"upstream"`
	Prompt     PromptConfig   `toml:"prompt"`
	CORS       CORSConfig     `toml:"cors"`
	TLS        TLSConfig      `toml:"tls"`
}

type providerDefaults struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
}

var knownProviders = map[string]providerDefaults{
	ProviderOpenRouter: {
		BaseURL:   "https://openrouter.ai/api/v1",
		APIKeyEnv: "OPENROUTER_API_KEY",
		Model:     "openai/gpt-4o-search-preview",
	},
	ProviderOpenAI: {
		BaseURL:   "https://api.openai.com/v1",
		APIKeyEnv: "OPENAI_API_KEY",
		Model:     "gpt-4o-search-preview",
	},
}

func DefaultServerConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(home, ".config", "woffyd", defaultConfigFileName)
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", "woffyd")
}

func DefaultTLSCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tls-autocert"
	}
	return filepath.Join(home, ".cache", "woffyd", "tls-autocert")
}

func DefaultAllowedOrigins() []string {
	return []string{
		"http://localhost:5173",
		"http://localhost:8000",
		"http://127.0.0.1:5173",
		"https://woffy-ai-chat.onrender.com",
		"https://chat.woffy.ai",
	}
}

func NewDefaultServerConfig() *ServerConfig {
	d := knownProviders[ProviderOpenRouter]
	return &ServerConfig{
		ListenAddr: "127.0.0.1:8000",
		DataDir:    DefaultDataDir(),
		LogLevel:   "info",
		LogFormat:  "text",
		Upstream: UpstreamConfig{
			Provider:       ProviderOpenRouter,
			BaseURL:        d.BaseURL,
			APIKeyEnv:      d.APIKeyEnv,
			Model:          d.Model,
			ModelPolicy:    ModelPolicyFixed,
			MaxTokens:      DefaultMaxTokens,
			TimeoutSeconds: 120,
		},
		Prompt: PromptConfig{
			PrependPolicy: PrependNonEmpty,
		},
		CORS: CORSConfig{
			AllowedOrigins: DefaultAllowedOrigins(),
		},
		TLS: TLSConfig{
			Enabled:    false,
			ListenAddr: ":443",
			CacheDir:   DefaultTLSCacheDir(),
		},
	}
}

func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := NewDefaultServerConfig()
	// Provider-specific fields follow the provider the file picks; Normalize
	// fills whatever the file leaves unset.
	cfg.Upstream.BaseURL = ""
	cfg.Upstream.APIKeyEnv = ""
	cfg.Upstream.Model = ""
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrCreateServerConfig writes the defaults to path when no file exists yet.
func LoadOrCreateServerConfig(path string) (*ServerConfig, error) {
	cfg, err := LoadServerConfig(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = NewDefaultServerConfig()
	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set keep their values. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment values on top of the file configuration.
// A non-empty API key variable wins over api_key from the file.
func (c *ServerConfig) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) string {
		v, ok := lookup(key)
		if !ok {
			return ""
		}
		return strings.TrimSpace(v)
	}
	if v := get("WOFFYD_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := get("WOFFYD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if env := strings.TrimSpace(c.Upstream.APIKeyEnv); env != "" {
		if v := get(env); v != "" {
			c.Upstream.APIKey = v
		}
	}
	if v := get("HTTP_REFERER"); v != "" {
		c.Upstream.HTTPReferer = v
	}
	if v := get("X_TITLE"); v != "" {
		c.Upstream.XTitle = v
	}
}

func Save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return writeAtomic(path, v)
}

func writeAtomic(path string, v any) error {
	b, err := marshalTOML(v)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func marshalTOML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetArraysMultiline(true)
	enc.SetIndentSymbol("  ")
	enc.SetIndentTables(true)
	enc.SetTablesInline(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

func (c *ServerConfig) Normalize() {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = ":8000"
	}
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}

	u := &c.Upstream
	u.Provider = strings.ToLower(strings.TrimSpace(u.Provider))
	if u.Provider == "" {
		u.Provider = ProviderOpenRouter
	}
	d, known := knownProviders[u.Provider]
	u.BaseURL = strings.TrimRight(strings.TrimSpace(u.BaseURL), "/")
	if u.BaseURL == "" && known {
		u.BaseURL = d.BaseURL
	}
	u.APIKey = strings.TrimSpace(u.APIKey)
	u.APIKeyEnv = strings.TrimSpace(u.APIKeyEnv)
	if u.APIKeyEnv == "" && known {
		u.APIKeyEnv = d.APIKeyEnv
	}
	u.Model = strings.TrimSpace(u.Model)
	if u.Model == "" && known {
		u.Model = d.Model
	}
	u.ModelPolicy = strings.ToLower(strings.TrimSpace(u.ModelPolicy))
	if u.ModelPolicy == "" {
		u.ModelPolicy = ModelPolicyFixed
	}
	if u.MaxTokens == 0 {
		u.MaxTokens = DefaultMaxTokens
	}
	if u.TimeoutSeconds < 0 {
		u.TimeoutSeconds = 0
	}
	u.HTTPReferer = strings.TrimSpace(u.HTTPReferer)
	u.XTitle = strings.TrimSpace(u.XTitle)

	c.Prompt.PrependPolicy = strings.ToLower(strings.TrimSpace(c.Prompt.PrependPolicy))
	if c.Prompt.PrependPolicy == "" {
		c.Prompt.PrependPolicy = PrependNonEmpty
	}

	origins := make([]string, 0, len(c.CORS.AllowedOrigins))
	seen := map[string]struct{}{}
	for _, o := range c.CORS.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		origins = append(origins, o)
	}
	c.CORS.AllowedOrigins = origins

	c.TLS.ListenAddr = strings.TrimSpace(c.TLS.ListenAddr)
	if c.TLS.ListenAddr == "" {
		c.TLS.ListenAddr = ":443"
	}
	c.TLS.Domain = strings.TrimSpace(c.TLS.Domain)
	c.TLS.Email = strings.TrimSpace(c.TLS.Email)
	c.TLS.CacheDir = strings.TrimSpace(c.TLS.CacheDir)
	if c.TLS.CacheDir == "" {
		c.TLS.CacheDir = DefaultTLSCacheDir()
	}
}

func (c *ServerConfig) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir cannot be empty")
	}
	switch c.LogFormat {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("log_format must be one of text, json, logfmt")
	}
	u := c.Upstream
	if _, ok := knownProviders[u.Provider]; !ok {
		return fmt.Errorf("upstream.provider must be one of %s, %s", ProviderOpenRouter, ProviderOpenAI)
	}
	if u.BaseURL == "" {
		return errors.New("upstream.base_url cannot be empty")
	}
	if !strings.HasPrefix(u.BaseURL, "http://") && !strings.HasPrefix(u.BaseURL, "https://") {
		return fmt.Errorf("upstream.base_url %q must be an http(s) URL", u.BaseURL)
	}
	if u.Model == "" {
		return errors.New("upstream.model cannot be empty")
	}
	if u.ModelPolicy != ModelPolicyFixed && u.ModelPolicy != ModelPolicyAllowlist {
		return fmt.Errorf("upstream.model_policy must be one of %s, %s", ModelPolicyFixed, ModelPolicyAllowlist)
	}
	if u.MaxTokens < 1 {
		return errors.New("upstream.max_tokens must be >= 1")
	}
	if u.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("upstream.max_tokens must be <= %d", MaxMaxTokens)
	}
	if c.Prompt.PrependPolicy != PrependAlways && c.Prompt.PrependPolicy != PrependNonEmpty {
		return fmt.Errorf("prompt.prepend_policy must be one of %s, %s", PrependAlways, PrependNonEmpty)
	}
	if c.TLS.Enabled && c.TLS.Domain == "" {
		return errors.New("tls.domain is required when tls.enabled=true")
	}
	return nil
}

// HasAPIKey reports whether upstream credentials are configured after env overlay.
func (c *ServerConfig) HasAPIKey() bool {
	return strings.TrimSpace(c.Upstream.APIKey) != ""
}
