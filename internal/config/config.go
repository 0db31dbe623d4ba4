// Package config loads the searchbot JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for searchbot.
type Config struct {
	General GeneralConfig `json:"general"`
	Server  ServerConfig  `json:"server"`
	History HistoryConfig `json:"history"`
	Stream  StreamConfig  `json:"stream"`
	LLM     LLMConfig     `json:"llm"`
	Search  SearchConfig  `json:"search"`
	Modes   ModesConfig   `json:"modes"`
	Image   ImageConfig   `json:"image"`
	Uploads UploadsConfig `json:"uploads"`
	Events  EventsConfig  `json:"events"`
	Metrics MetricsConfig `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel"`            // debug | info | warn | error
	LogFormat string `json:"logFormat,omitempty"` // text | json
	LogFile   string `json:"logFile,omitempty"`
}

type ServerConfig struct {
	Host                string   `json:"host"`
	Port                int      `json:"port"`
	PublicBaseURL       string   `json:"publicBaseURL,omitempty"`
	AllowedOrigins      []string `json:"allowedOrigins,omitempty"`
	WriteTimeoutSeconds int      `json:"writeTimeoutSeconds"`
	MaxMessageBytes     int64    `json:"maxMessageBytes"`
}

type HistoryConfig struct {
	DBPath           string `json:"dbPath"`
	KeepStreamedText bool   `json:"keepStreamedText"`
	MaxPromptTokens  int    `json:"maxPromptTokens"` // history budget handed to the model
}

type StreamConfig struct {
	ErrorPolicy string `json:"errorPolicy"` // terminal | wait_for_end
}

type LLMConfig struct {
	Provider           string  `json:"provider"` // ollama | openai
	APIBase            string  `json:"apiBase,omitempty"`
	APIKey             string  `json:"apiKey,omitempty"`
	ChatModel          string  `json:"chatModel"`
	GeneratorModel     string  `json:"generatorModel,omitempty"`
	TimeoutSeconds     int     `json:"timeoutSeconds"`
	MaxRetries         int     `json:"maxRetries"` // 0 disables, negative uses the default
	MaxTokens          int     `json:"maxTokens,omitempty"`
	Temperature        float64 `json:"temperature,omitempty"`
	RateLimitPerMinute float64 `json:"rateLimitPerMinute,omitempty"` // 0 disables
	RateLimitBurst     int     `json:"rateLimitBurst,omitempty"`
}

type SearchConfig struct {
	SearxngURL      string `json:"searxngURL"`
	TimeoutSeconds  int    `json:"timeoutSeconds"`
	MaxResults      int    `json:"maxResults"`
	MaxRetries      int    `json:"maxRetries"`      // 0 disables, negative uses the default
	CacheTTLSeconds int    `json:"cacheTTLSeconds"` // negative disables the cache
}

type ModesConfig struct {
	Dir string `json:"dir,omitempty"` // directory of YAML override files
}

type ImageConfig struct {
	Enabled        bool   `json:"enabled"`
	Renderer       string `json:"renderer"` // http | browser
	RenderURL      string `json:"renderURL,omitempty"`
	Theme          string `json:"theme"`
	Width          int    `json:"width"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	MaxRetries     int    `json:"maxRetries"` // http renderer only
	OutputDir      string `json:"outputDir"`
	PublicBaseURL  string `json:"publicBaseURL,omitempty"`
	ClassifyQuery  bool   `json:"classifyQuery"`
}

type UploadsConfig struct {
	Dir          string `json:"dir"`
	MaxSizeBytes int64  `json:"maxSizeBytes"`
}

type EventsConfig struct {
	AMQPURL    string `json:"amqpURL,omitempty"` // empty disables publishing
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routingKey"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DefaultConfigDir returns the default config directory (~/.searchbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".searchbot"
	}
	return filepath.Join(home, ".searchbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads path, expands environment references and validates the result.
// A missing file is an error; callers that want defaults use Defaults().
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	cfg.expandPaths()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) expandPaths() {
	c.General.LogFile = ExpandPath(c.General.LogFile)
	c.History.DBPath = ExpandPath(c.History.DBPath)
	c.Modes.Dir = ExpandPath(c.Modes.Dir)
	c.Image.OutputDir = ExpandPath(c.Image.OutputDir)
	c.Uploads.Dir = ExpandPath(c.Uploads.Dir)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has usable values and reports every
// problem at once.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.PublicBaseURL != "" && !isAbsURL(cfg.Server.PublicBaseURL) {
		errs = append(errs, "server.publicBaseURL must be an absolute http(s) URL")
	}
	if cfg.History.DBPath == "" {
		errs = append(errs, "history.dbPath is required")
	}

	switch cfg.Stream.ErrorPolicy {
	case "terminal", "wait_for_end":
	default:
		errs = append(errs, "stream.errorPolicy must be one of: terminal, wait_for_end")
	}

	switch cfg.LLM.Provider {
	case "ollama":
	case "openai":
		if cfg.LLM.APIBase == "" {
			errs = append(errs, "llm.apiBase is required for the openai provider")
		}
	default:
		errs = append(errs, "llm.provider must be one of: ollama, openai")
	}
	if cfg.LLM.ChatModel == "" {
		errs = append(errs, "llm.chatModel is required")
	}
	if cfg.LLM.TimeoutSeconds < 1 {
		errs = append(errs, "llm.timeoutSeconds must be >= 1")
	}

	if cfg.Search.SearxngURL == "" {
		errs = append(errs, "search.searxngURL is required")
	}
	if cfg.Search.MaxResults < 1 || cfg.Search.MaxResults > 50 {
		errs = append(errs, "search.maxResults must be between 1 and 50")
	}

	if cfg.Image.Enabled {
		switch cfg.Image.Renderer {
		case "http":
			if cfg.Image.RenderURL == "" {
				errs = append(errs, "image.renderURL is required for the http renderer")
			}
		case "browser":
			if cfg.Image.OutputDir == "" {
				errs = append(errs, "image.outputDir is required for the browser renderer")
			}
		default:
			errs = append(errs, "image.renderer must be one of: http, browser")
		}
		switch cfg.Image.Theme {
		case "light", "dark":
		default:
			errs = append(errs, "image.theme must be one of: light, dark")
		}
		if cfg.Image.Width < 200 || cfg.Image.Width > 4000 {
			errs = append(errs, "image.width must be between 200 and 4000")
		}
	}

	if cfg.Uploads.MaxSizeBytes < 1 {
		errs = append(errs, "uploads.maxSizeBytes must be >= 1")
	}
	if cfg.Events.AMQPURL != "" && cfg.Events.Exchange == "" {
		errs = append(errs, "events.exchange is required when events.amqpURL is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isAbsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
