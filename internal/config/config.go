package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"faq-rag/internal/apperror"
)

const (
	BackendChromem  = "chromem"
	BackendPGVector = "pgvector"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"

	defaultOllamaURL = "http://localhost:11434"
)

type Config struct {
	LogLevel   string          `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	SourcePath string          `yaml:"source_path"`
	Index      IndexConfig     `yaml:"index"`
	Embedding  EmbeddingConfig `yaml:"embedding"`
	LLM        LLMConfig       `yaml:"llm"`
	Quiz       QuizConfig      `yaml:"quiz"`
	Retry      RetryConfig     `yaml:"retry"`
	Server     ServerConfig    `yaml:"server"`
	Auth       AuthConfig      `yaml:"auth"`
	Watch      WatchConfig     `yaml:"watch"`
}

type IndexConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=chromem pgvector"`
	Path       string `yaml:"path" validate:"required"`
	Collection string `yaml:"collection" validate:"required"`
	Compress   bool   `yaml:"compress"`
	// EncryptionKey is optional; chromem-go needs exactly 32 bytes when set.
	EncryptionKey  string         `yaml:"encryption_key" validate:"omitempty,len=32"`
	TopK           int            `yaml:"top_k" validate:"gte=1"`
	ScoreThreshold float32        `yaml:"score_threshold" validate:"gte=0,lte=1"`
	PGVector       PGVectorConfig `yaml:"pgvector"`
}

type PGVectorConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table" validate:"required"`
	Debug bool   `yaml:"debug"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider" validate:"oneof=ollama openai hash"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model" validate:"required_unless=Provider hash"`
	APIKey    string `yaml:"api_key" validate:"required_if=Provider openai"`
	Dimension int    `yaml:"dimension" validate:"gte=0"`
	BatchSize int    `yaml:"batch_size" validate:"gte=1"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider" validate:"oneof=ollama openai"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model" validate:"required"`
	APIKey      string  `yaml:"api_key" validate:"required_unless=Provider ollama"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
}

type QuizConfig struct {
	GreatThreshold   float64 `yaml:"great_threshold" validate:"gt=0,lte=1"`
	PartialThreshold float64 `yaml:"partial_threshold" validate:"gte=0,lte=1"`
}

type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" validate:"gte=1"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

type ServerConfig struct {
	Address      string        `yaml:"address" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CookieSecure bool          `yaml:"cookie_secure"`
}

type AuthConfig struct {
	Users []UserConfig `yaml:"users" validate:"dive"`
}

// UserConfig holds one account. PasswordHash is a bcrypt hash; Password is accepted
// for local setups and hashed at startup.
type UserConfig struct {
	Username     string `yaml:"username" validate:"required"`
	Password     string `yaml:"password" validate:"required_without=PasswordHash"`
	PasswordHash string `yaml:"password_hash"`
	Admin        bool   `yaml:"admin"`
}

type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// IndexFile is the well-known location of the persisted file index.
func (c IndexConfig) IndexFile() string {
	return strings.TrimRight(c.Path, "/") + "/" + c.Collection + ".chromem"
}

func Default() *Config {
	return &Config{
		LogLevel:   "info",
		SourcePath: "./data/faqs.csv",
		Index: IndexConfig{
			Backend:        BackendChromem,
			Path:           "./faiss_index",
			Collection:     "faq_collection",
			TopK:           4,
			ScoreThreshold: 0.7,
			PGVector: PGVectorConfig{
				Table: "faq_documents",
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderOllama,
			BaseURL:   defaultOllamaURL,
			Model:     "nomic-embed-text",
			Dimension: 256,
			BatchSize: 32,
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:       "gemini-1.5-flash",
			Temperature: 0.1,
		},
		Quiz: QuizConfig{
			GreatThreshold:   0.7,
			PartialThreshold: 0.4,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults, applies
// environment overrides and validates the result. An empty path falls back to
// CONFIG_PATH; with neither set only defaults and environment are used.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperror.Wrap(apperror.CodeConfiguration, "read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperror.Wrap(apperror.CodeConfiguration, "parse config file", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, apperror.Wrap(apperror.CodeConfiguration, "invalid config", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SOURCE_PATH"); v != "" {
		cfg.SourcePath = v
	}
	// GEMINI_API_KEY first so the generic LLM_API_KEY wins when both are set.
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" && v != cfg.Embedding.Provider {
		cfg.Embedding.Provider = v
		// The Ollama address means nothing to another provider.
		if v != ProviderOllama && cfg.Embedding.BaseURL == defaultOllamaURL {
			cfg.Embedding.BaseURL = ""
		}
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("INDEX_BACKEND"); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv("PGVECTOR_DSN"); v != "" {
		cfg.Index.PGVector.DSN = v
	}
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
}

// Validate checks struct constraints and the cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			var sb strings.Builder
			for i, e := range verrs {
				if i > 0 {
					sb.WriteString("; ")
				}
				sb.WriteString(fmt.Sprintf("%s: failed '%s'", e.Namespace(), e.Tag()))
			}
			return errors.New(sb.String())
		}
		return err
	}
	if c.Quiz.PartialThreshold >= c.Quiz.GreatThreshold {
		return errors.New("quiz.partial_threshold must be below quiz.great_threshold")
	}
	if c.Index.Backend == BackendPGVector && c.Index.PGVector.DSN == "" {
		return errors.New("index.pgvector.dsn is required for the pgvector backend")
	}
	if c.Retry.MaxInterval > 0 && c.Retry.InitialInterval > c.Retry.MaxInterval {
		return errors.New("retry.initial_interval must not exceed retry.max_interval")
	}
	return nil
}
