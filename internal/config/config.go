package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Model      ModelConfig                 `yaml:"model"`
	Embeddings EmbeddingsConfig            `yaml:"embeddings"`
	Pipeline   PipelineConfig              `yaml:"pipeline"`
	Skills     SkillsConfig                `yaml:"skills"`
	Search     SearchConfig                `yaml:"search"`
	NATS       NATSConfig                  `yaml:"nats"`
	Store      StoreConfig                 `yaml:"store"`
	Web        WebConfig                   `yaml:"web"`
	Scheduler  SchedulerConfig             `yaml:"scheduler"`
	Presets    map[string]PresetDefinition `yaml:"presets"`
	Router     RouterConfig                `yaml:"router"`
	Telegram   TelegramConfig              `yaml:"telegram"`
	Vault      VaultConfig                 `yaml:"vault"`
}

type ModelConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
}

type EmbeddingsConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Dims    int    `yaml:"dims"`
}

type PipelineConfig struct {
	MinCodeLength  int           `yaml:"min_code_length"`
	StepTimeout    time.Duration `yaml:"step_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

type SkillsConfig struct {
	DataDir             string  `yaml:"data_dir"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxMatches          int     `yaml:"max_matches"`
}

type SearchConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	MaxResults int    `yaml:"max_results"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// PresetDefinition declares a reusable swarm in the config file. Presets
// are synced into the swarms table at startup.
type PresetDefinition struct {
	Name    string        `yaml:"name"`
	Mission string        `yaml:"mission"`
	Agents  []PresetAgent `yaml:"agents"`
}

type PresetAgent struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Role         string   `yaml:"role"`
	SystemPrompt string   `yaml:"system_prompt"`
	Capabilities []string `yaml:"capabilities"`
	Temperature  float64  `yaml:"temperature"`
}

type RouterConfig struct {
	DefaultPreset string `yaml:"default_preset"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

func defaults() Config {
	return Config{
		Model: ModelConfig{
			BaseURL:     "http://localhost:11434",
			Model:       "appforge-builder",
			Timeout:     2 * time.Minute,
			MaxRetries:  3,
			BaseBackoff: time.Second,
		},
		Embeddings: EmbeddingsConfig{
			BaseURL: "http://localhost:11434",
			Model:   "appforge-embed",
			Dims:    1536,
		},
		Pipeline: PipelineConfig{
			MinCodeLength:  10,
			StepTimeout:    5 * time.Minute,
			CommandTimeout: 2 * time.Minute,
		},
		Skills: SkillsConfig{
			DataDir:             "data/skills",
			SimilarityThreshold: 0.78,
			MaxMatches:          5,
		},
		Search: SearchConfig{
			BaseURL:    "https://api.tavily.com",
			MaxResults: 5,
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Store: StoreConfig{
			Path: "data/appforge.db",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("APPFORGE_CONFIG")
	if path == "" {
		path = "config/appforge.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("APPFORGE_MODEL_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("APPFORGE_MODEL_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("APPFORGE_EMBEDDINGS_API_KEY"); v != "" {
		cfg.Embeddings.APIKey = v
	}
	if v := os.Getenv("APPFORGE_SEARCH_API_KEY"); v != "" {
		cfg.Search.APIKey = v
	}
	if v := os.Getenv("APPFORGE_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("APPFORGE_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
	if v := os.Getenv("APPFORGE_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("APPFORGE_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("APPFORGE_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("APPFORGE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("APPFORGE_SKILLS_DIR"); v != "" {
		cfg.Skills.DataDir = v
	}
}
