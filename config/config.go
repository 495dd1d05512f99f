package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override (EXECBOX_SANDBOX_TIMEOUT_SEC, ...)
const EnvPrefix = "EXECBOX"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server" yaml:"server"`
	Sandbox   SandboxConfig       `mapstructure:"sandbox" yaml:"sandbox"`
	Languages map[string]Language `mapstructure:"languages" yaml:"languages"`
	Logging   LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	Ollama    OllamaConfig        `mapstructure:"ollama" yaml:"ollama"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport          string `mapstructure:"transport" yaml:"transport"`
	Host               string `mapstructure:"host" yaml:"host"`
	HTTPPort           int    `mapstructure:"http_port" yaml:"http_port"`
	MCPEnabled         bool   `mapstructure:"mcp_enabled" yaml:"mcp_enabled"`
	MCPPath            string `mapstructure:"mcp_path" yaml:"mcp_path"`
	MaxRequestKB       int    `mapstructure:"max_request_kb" yaml:"max_request_kb"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend            string `mapstructure:"backend" yaml:"backend"`
	TimeoutSec         int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	MemoryMB           int    `mapstructure:"memory_mb" yaml:"memory_mb"`
	MaxConcurrent      int    `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	QueueTimeoutSec    int    `mapstructure:"queue_timeout_sec" yaml:"queue_timeout_sec"`
	TempDir            string `mapstructure:"temp_dir" yaml:"temp_dir"`
	WaitDelayMS        int    `mapstructure:"wait_delay_ms" yaml:"wait_delay_ms"`
	MaxFileSizeMB      int    `mapstructure:"max_file_size_mb" yaml:"max_file_size_mb"`
	MaxOutputKB        int    `mapstructure:"max_output_kb" yaml:"max_output_kb"`
	NetworkEnabled     bool   `mapstructure:"network_enabled" yaml:"network_enabled"`
	EnableLocalBackend bool   `mapstructure:"enable_local_backend" yaml:"enable_local_backend"`
}

// Language describes one canonical runtime. The map key in Config.Languages is
// its canonical name; Aliases are the other names a request may use for it.
type Language struct {
	Command    string   `mapstructure:"command" yaml:"command"`
	Args       []string `mapstructure:"args" yaml:"args,omitempty"`
	Extension  string   `mapstructure:"extension" yaml:"extension"`
	Executable bool     `mapstructure:"executable" yaml:"executable"`
	Aliases    []string `mapstructure:"aliases" yaml:"aliases,omitempty"`
	Image      string   `mapstructure:"image" yaml:"image,omitempty"`
	// Env entries are KEY=VALUE. A list keeps viper from lowercasing the keys.
	Env []string `mapstructure:"env" yaml:"env,omitempty"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode"`
	Level string `mapstructure:"level" yaml:"level"`
}

// OllamaConfig points the chat proxy at the model-serving daemon
type OllamaConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// DefaultLanguages returns the built-in runtimes: bash, python and node.
func DefaultLanguages() map[string]Language {
	return map[string]Language{
		"bash": {
			Command:    "bash",
			Extension:  ".sh",
			Executable: true,
			Aliases:    []string{"sh"},
			Image:      "bash:5.2",
		},
		"python": {
			Command:   "python3",
			Extension: ".py",
			Image:     "python:3.12-slim",
			Env:       []string{"PYTHONUNBUFFERED=1"},
		},
		"node": {
			Command:   "node",
			Extension: ".mjs",
			Aliases:   []string{"javascript", "js", "ts", "typescript"},
			Image:     "node:22-alpine",
			Env:       []string{"NODE_NO_WARNINGS=1"},
		},
	}
}

// New loads and validates the application configuration. A .env file in the
// working directory is applied to the process environment first.
func New() (*Config, error) {
	return NewFromPath("")
}

// NewFromPath is New with an explicit config file. An empty path falls back
// to EXECBOX_CONFIG, then to the default search locations.
func NewFromPath(path string) (*Config, error) {
	_ = godotenv.Load()
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	return Load(path)
}

// Load reads configuration from path, or from config.yaml in . and ./config
// when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// OLLAMA_HOST is what the ollama CLI itself reads
	_ = v.BindEnv("ollama.base_url", EnvPrefix+"_OLLAMA_BASE_URL", "OLLAMA_HOST")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}
	setLanguageDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "http")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.mcp_enabled", true)
	v.SetDefault("server.mcp_path", "/mcp")
	v.SetDefault("server.max_request_kb", 512)
	v.SetDefault("server.shutdown_timeout_sec", 20)

	v.SetDefault("sandbox.backend", "local")
	v.SetDefault("sandbox.timeout_sec", 15)
	v.SetDefault("sandbox.memory_mb", 512)
	v.SetDefault("sandbox.max_concurrent", 4)
	v.SetDefault("sandbox.queue_timeout_sec", 5)
	v.SetDefault("sandbox.temp_dir", "")
	v.SetDefault("sandbox.wait_delay_ms", 1000)
	v.SetDefault("sandbox.max_file_size_mb", 64)
	v.SetDefault("sandbox.max_output_kb", 256)
	v.SetDefault("sandbox.network_enabled", false)
	v.SetDefault("sandbox.enable_local_backend", true)


	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetDefault("ollama.enabled", true)
	v.SetDefault("ollama.base_url", "http://127.0.0.1:11434")
	v.SetDefault("ollama.timeout_sec", 30)
}

// setLanguageDefaults enables the built-in runtimes when the config file has
// no languages section. A file that has one enables exactly the languages it
// lists; listed built-ins still take per-key defaults for fields left out.
func setLanguageDefaults(v *viper.Viper) {
	listed := v.InConfig("languages")
	for name, lang := range DefaultLanguages() {
		if listed && !v.InConfig("languages."+name) {
			continue
		}
		prefix := "languages." + name + "."
		v.SetDefault(prefix+"command", lang.Command)
		v.SetDefault(prefix+"args", lang.Args)
		v.SetDefault(prefix+"extension", lang.Extension)
		v.SetDefault(prefix+"executable", lang.Executable)
		v.SetDefault(prefix+"aliases", lang.Aliases)
		v.SetDefault(prefix+"image", lang.Image)
		v.SetDefault(prefix+"env", lang.Env)
	}
}

// validate ensures the configuration is valid
//
//nolint:gocyclo // flat list of independent checks
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.Transport == "http" && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}

	if c.Server.MCPEnabled && !strings.HasPrefix(c.Server.MCPPath, "/") {
		return fmt.Errorf("server.mcp_path must start with '/', got: %q", c.Server.MCPPath)
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.MaxConcurrent <= 0 {
		return fmt.Errorf("sandbox.max_concurrent must be positive, got: %d", c.Sandbox.MaxConcurrent)
	}

	if c.Sandbox.QueueTimeoutSec < 0 {
		return fmt.Errorf("sandbox.queue_timeout_sec must not be negative, got: %d", c.Sandbox.QueueTimeoutSec)
	}

	if c.Sandbox.WaitDelayMS < 0 {
		return fmt.Errorf("sandbox.wait_delay_ms must not be negative, got: %d", c.Sandbox.WaitDelayMS)
	}

	if c.Sandbox.MaxOutputKB <= 0 {
		return fmt.Errorf("sandbox.max_output_kb must be positive, got: %d", c.Sandbox.MaxOutputKB)
	}

	supportedBackends := map[string]bool{
		"docker": true,
		"podman": true,
		"local":  c.Sandbox.EnableLocalBackend, // local only enabled if specifically allowed
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if err := c.validateLanguages(); err != nil {
		return err
	}

	if c.Logging.Mode != "development" && c.Logging.Mode != "production" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.Ollama.Enabled && c.Ollama.TimeoutSec <= 0 {
		return fmt.Errorf("ollama.timeout_sec must be positive, got: %d", c.Ollama.TimeoutSec)
	}

	return nil
}

func (c *Config) validateLanguages() error {
	if len(c.Languages) == 0 {
		return errors.New("at least one language must be configured")
	}

	container := c.Sandbox.Backend != "local"
	owner := make(map[string]string)

	// Sorted so the reported collision is deterministic.
	names := make([]string, 0, len(c.Languages))
	for name := range c.Languages {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		lang := c.Languages[name]
		if lang.Command == "" {
			return fmt.Errorf("languages.%s.command is required", name)
		}
		if !strings.HasPrefix(lang.Extension, ".") {
			return fmt.Errorf("languages.%s.extension must start with '.', got: %q", name, lang.Extension)
		}
		if container && lang.Image == "" {
			return fmt.Errorf("languages.%s.image is required for backend %s", name, c.Sandbox.Backend)
		}
		for _, kv := range lang.Env {
			if !strings.Contains(kv, "=") {
				return fmt.Errorf("languages.%s.env entry %q must be KEY=VALUE", name, kv)
			}
		}

		for _, alias := range append([]string{name}, lang.Aliases...) {
			key := strings.ToLower(strings.TrimSpace(alias))
			if prev, taken := owner[key]; taken && prev != name {
				return fmt.Errorf("language alias %q is claimed by both %s and %s", key, prev, name)
			}
			owner[key] = name
		}
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// QueueTimeout is how long a request may wait for a free execution slot
func (c *Config) QueueTimeout() time.Duration {
	return time.Duration(c.Sandbox.QueueTimeoutSec) * time.Second
}

// WaitDelay bounds how long the runner waits for output pipes after the
// process has exited or been killed.
func (c *Config) WaitDelay() time.Duration {
	return time.Duration(c.Sandbox.WaitDelayMS) * time.Millisecond
}

// ShutdownTimeout returns the time allowed for graceful HTTP shutdown
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.HTTPPort))
}

// YAML renders the effective configuration
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
