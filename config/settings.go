// Package config provides application settings.
//
// Settings are created via Load() which applies, in order:
// - Built-in defaults
// - An optional YAML file
// - Environment variables with validation
// - Provider-specific model and key lookup

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/richinex/tablecopilot/llm"
)

// ErrUnknownProvider is returned for provider names that are not supported.
var ErrUnknownProvider = llm.ErrUnknownProvider

// ConfigPathEnv names the YAML file to load when no path is given.
const ConfigPathEnv = "TABLECOPILOT_CONFIG"

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Settings holds all application configuration.
type Settings struct {
	LLM      LLMConfig      `yaml:"llm"`
	Agent    AgentConfig    `yaml:"agent"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Notifier NotifierConfig `yaml:"notifier"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LLMConfig holds LLM provider configuration. API keys are never stored
// here; see APIKeyFor.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   uint32  `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Streaming   bool    `yaml:"streaming"`
}

// AgentConfig holds agent execution configuration.
type AgentConfig struct {
	Name                string   `yaml:"name"`
	MaxToolIterations   int      `yaml:"max_tool_iterations"`
	ReflectOnToolUse    bool     `yaml:"reflect_on_tool_use"`
	PromptTemplate      string   `yaml:"prompt_template"`
	DisplayExcludeTools []string `yaml:"display_exclude_tools"`
	ToolTimeoutSecs     uint64   `yaml:"tool_timeout_secs"`
	ToolMaxRetries      uint32   `yaml:"tool_max_retries"`
}

// ServerConfig holds the WebSocket listener configuration.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

// StorageConfig selects where schedules are kept.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DBPath string `yaml:"db_path"`
}

// NotifierConfig controls the reminder notifier.
type NotifierConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv   string
	apiKeyEnv  string
	baseURLEnv string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openrouter": {"OPENROUTER_MODEL", "OPENROUTER_API_KEY", "OPENROUTER_BASE_URL"},
	"openai":     {"OPENAI_MODEL", "OPENAI_API_KEY", "OPENAI_BASE_URL"},
	"anthropic":  {"ANTHROPIC_MODEL", "ANTHROPIC_API_KEY", ""},
	"deepseek":   {"DEEPSEEK_MODEL", "DEEPSEEK_API_KEY", "DEEPSEEK_BASE_URL"},
	"gemini":     {"GEMINI_MODEL", "GEMINI_API_KEY", ""},
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		LLM: LLMConfig{
			Provider:    "openrouter",
			MaxTokens:   4096,
			Temperature: 0.7,
			Streaming:   true,
		},
		Agent: AgentConfig{
			Name:              "assistant",
			MaxToolIterations: 10,
			ReflectOnToolUse:  true,
			ToolTimeoutSecs:   30,
			ToolMaxRetries:    0,
		},
		Server: ServerConfig{
			Host:        "localhost",
			Port:        8765,
			MetricsPath: "/metrics",
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			DBPath: "data/schedules.db",
		},
		Notifier: NotifierConfig{
			Enabled:  true,
			Schedule: "@every 30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds settings from defaults, the YAML file at path (or the file
// named by TABLECOPILOT_CONFIG when path is empty) and the environment.
func Load(path string) (Settings, error) {
	s := Defaults()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		if err := loadFile(path, &s); err != nil {
			return Settings{}, err
		}
	}

	if err := applyEnv(&s); err != nil {
		return Settings{}, err
	}
	if err := s.resolve(); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// MustLoad is Load that panics on error.
// Use this only when configuration errors should be fatal.
func MustLoad(path string) Settings {
	settings, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

func loadFile(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(s *Settings) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	setString(&s.LLM.Provider, "LLM_PROVIDER")
	collect(setUint32(&s.LLM.MaxTokens, "LLM_MAX_TOKENS"))
	collect(setFloat64(&s.LLM.Temperature, "LLM_TEMPERATURE"))
	collect(setBool(&s.LLM.Streaming, "LLM_STREAMING"))

	setString(&s.Agent.Name, "AGENT_NAME")
	collect(setInt(&s.Agent.MaxToolIterations, "AGENT_MAX_TOOL_ITERATIONS"))
	collect(setBool(&s.Agent.ReflectOnToolUse, "AGENT_REFLECT_ON_TOOL_USE"))
	setString(&s.Agent.PromptTemplate, "AGENT_PROMPT_TEMPLATE")
	setList(&s.Agent.DisplayExcludeTools, "AGENT_DISPLAY_EXCLUDE_TOOLS")
	collect(setUint64(&s.Agent.ToolTimeoutSecs, "AGENT_TOOL_TIMEOUT_SECS"))
	collect(setUint32(&s.Agent.ToolMaxRetries, "AGENT_TOOL_MAX_RETRIES"))

	setString(&s.Server.Host, "SERVER_HOST")
	collect(setInt(&s.Server.Port, "SERVER_PORT"))
	setString(&s.Server.MetricsPath, "SERVER_METRICS_PATH")

	setString(&s.Storage.Driver, "STORAGE_DRIVER")
	setString(&s.Storage.DBPath, "STORAGE_DB_PATH")

	collect(setBool(&s.Notifier.Enabled, "NOTIFIER_ENABLED"))
	setString(&s.Notifier.Schedule, "NOTIFIER_SCHEDULE")

	setString(&s.Logging.Level, "LOG_LEVEL")
	setString(&s.Logging.Format, "LOG_FORMAT")

	return errors.Join(errs...)
}

// resolve canonicalizes the provider and fills provider-specific model and
// base URL values.
func (s *Settings) resolve() error {
	pt, err := llm.ParseProviderType(s.LLM.Provider)
	if err != nil {
		return err
	}
	s.LLM.Provider = pt.String()
	info := providers[s.LLM.Provider]

	switch {
	case os.Getenv("MODEL_NAME") != "":
		s.LLM.Model = os.Getenv("MODEL_NAME")
	case os.Getenv(info.modelEnv) != "":
		s.LLM.Model = os.Getenv(info.modelEnv)
	case s.LLM.Model == "":
		s.LLM.Model = pt.DefaultModel()
	}

	if info.baseURLEnv != "" {
		setString(&s.LLM.BaseURL, info.baseURLEnv)
	}
	return nil
}

// WithProvider returns a copy of s using another provider, with that
// provider's model and base URL looked up again.
func (s Settings) WithProvider(name string) (Settings, error) {
	s.LLM.Provider = name
	s.LLM.Model = ""
	s.LLM.BaseURL = ""
	if err := s.resolve(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	var errs []error
	if s.Agent.MaxToolIterations < 1 {
		errs = append(errs, fmt.Errorf("agent max tool iterations must be at least 1, got %d", s.Agent.MaxToolIterations))
	}
	if s.Server.Port < 0 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port out of range: %d", s.Server.Port))
	}
	if !strings.HasPrefix(s.Server.MetricsPath, "/") || s.Server.MetricsPath == "/" {
		errs = append(errs, fmt.Errorf("server metrics path must start with / and not be the root: %q", s.Server.MetricsPath))
	}
	switch s.Storage.Driver {
	case DriverSQLite:
		if s.Storage.DBPath == "" {
			errs = append(errs, errors.New("storage db path is required for the sqlite driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver: %q", s.Storage.Driver))
	}
	if s.Notifier.Enabled && s.Notifier.Schedule == "" {
		errs = append(errs, errors.New("notifier schedule is required when the notifier is enabled"))
	}
	return errors.Join(errs...)
}

// ProviderType returns the parsed LLM provider.
func (s Settings) ProviderType() llm.ProviderType {
	pt, _ := llm.ParseProviderType(s.LLM.Provider)
	return pt
}

// APIKeyFor returns the API key for a provider from environment variables.
// OpenRouter also accepts an OpenAI-style variable holding an sk-or- key.
func APIKeyFor(provider string) (string, error) {
	pt, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}
	info := providers[pt.String()]

	if key := os.Getenv(info.apiKeyEnv); key != "" {
		return key, nil
	}
	if pt == llm.ProviderOpenRouter {
		for _, env := range []string{"OPENAI_API_KEY", "OPENAI_KEY"} {
			if key := os.Getenv(env); strings.HasPrefix(key, "sk-or-") {
				return key, nil
			}
		}
	}
	if pt == llm.ProviderGemini {
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
}

// SupportedProviders returns the supported provider names, sorted.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Environment variable helpers. Each leaves the target untouched when the
// variable is unset or empty.

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setList(dst *[]string, key string) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	*dst = i
	return nil
}

func setUint32(dst *uint32, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	*dst = uint32(i)
	return nil
}

func setUint64(dst *uint64, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	i, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	*dst = i
	return nil
}

func setFloat64(dst *float64, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	*dst = b
	return nil
}
