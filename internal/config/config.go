// Package config loads the agentgraph runtime configuration from YAML, a
// .env file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Engine       EngineConfig       `yaml:"engine"`
	Checkpointer CheckpointerConfig `yaml:"checkpointer"`
	Model        ModelConfig        `yaml:"model"`
	Tools        ToolsConfig        `yaml:"tools"`
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
}

// EngineConfig tunes the executor.
type EngineConfig struct {
	MaxSteps        int           `yaml:"max_steps" validate:"gte=1,lte=10000"`
	ToolConcurrency int           `yaml:"tool_concurrency" validate:"gte=0,lte=64"`
	ToolTimeout     time.Duration `yaml:"tool_timeout" validate:"gte=0"`
	// Tracing enables the OpenTelemetry node middleware.
	Tracing bool `yaml:"tracing"`
}

// CheckpointerConfig selects the persistence driver.
type CheckpointerConfig struct {
	Driver string      `yaml:"driver" validate:"oneof=memory file redis sqlite badger"`
	Path   string      `yaml:"path" validate:"required_if=Driver file,required_if=Driver sqlite,required_if=Driver badger"`
	Redis  RedisConfig `yaml:"redis"`
	// EncryptionKeyEnv names a variable holding a base64 AES-256 key; when set,
	// checkpoint state is encrypted at rest.
	EncryptionKeyEnv string `yaml:"encryption_key_env"`
	// Redact lists regular expressions; matching state keys are masked before persisting.
	Redact []string `yaml:"redact"`
}

// RedisConfig configures the redis checkpointer and distributed lock.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix"`
	// Lock enables the distributed per-thread lock.
	Lock    bool          `yaml:"lock"`
	LockTTL time.Duration `yaml:"lock_ttl" validate:"gte=0"`
}

// ModelConfig selects the language-model provider.
type ModelConfig struct {
	Provider  string        `yaml:"provider" validate:"oneof=openai echo"`
	Name      string        `yaml:"name"`
	BaseURL   string        `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
	// Temperature is optional; nil keeps the provider default.
	Temperature *float32 `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
}

// APIKey reads the key from the configured environment variable.
func (m ModelConfig) APIKey() string {
	return os.Getenv(m.APIKeyEnv)
}

// ToolsConfig configures the demo tool capabilities.
type ToolsConfig struct {
	// Workdir bounds the document tools.
	Workdir string `yaml:"workdir" validate:"required"`
	// ProcessFile lists allow-listed external commands exposed as tools.
	ProcessFile string `yaml:"process_file"`
	Web         bool   `yaml:"web"`
}

// ServerConfig configures the HTTP and MCP boundaries.
type ServerConfig struct {
	Addr    string `yaml:"addr" validate:"required"`
	MCPAddr string `yaml:"mcp_addr"`
	Metrics bool   `yaml:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns a configuration that runs fully in memory with the echo model.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			MaxSteps:        25,
			ToolConcurrency: 4,
			ToolTimeout:     30 * time.Second,
		},
		Checkpointer: CheckpointerConfig{
			Driver: "memory",
			Redis:  RedisConfig{Addr: "localhost:6379", Prefix: "agentgraph:", LockTTL: 30 * time.Second},
		},
		Model: ModelConfig{
			Provider:  "echo",
			Name:      "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   60 * time.Second,
		},
		Tools:  ToolsConfig{Workdir: "./workspace"},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// EnvPrefix prefixes environment overrides, e.g. AGENTGRAPH_MODEL_PROVIDER.
const EnvPrefix = "AGENTGRAPH_"

// Load builds the configuration: defaults, then the YAML file at path (optional
// when empty), then environment overrides. envFiles are loaded into the process
// environment first; missing env files are ignored.
func Load(path string, envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	set("CHECKPOINTER_DRIVER", &cfg.Checkpointer.Driver)
	set("CHECKPOINTER_PATH", &cfg.Checkpointer.Path)
	set("REDIS_ADDR", &cfg.Checkpointer.Redis.Addr)
	set("REDIS_PASSWORD", &cfg.Checkpointer.Redis.Password)
	set("MODEL_PROVIDER", &cfg.Model.Provider)
	set("MODEL_NAME", &cfg.Model.Name)
	set("MODEL_BASE_URL", &cfg.Model.BaseURL)
	set("TOOLS_WORKDIR", &cfg.Tools.Workdir)
	set("SERVER_ADDR", &cfg.Server.Addr)
	set("LOG_LEVEL", &cfg.Log.Level)
	set("LOG_FORMAT", &cfg.Log.Format)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		if c.Model.Provider == "openai" && c.Model.APIKey() == "" && c.Model.BaseURL == "" {
			return fmt.Errorf("invalid config: model provider openai needs %s set or a base_url", c.Model.APIKeyEnv)
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
