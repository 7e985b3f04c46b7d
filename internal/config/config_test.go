package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"faq-rag/internal/apperror"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_PATH", "LOG_LEVEL", "SOURCE_PATH", "GEMINI_API_KEY", "LLM_API_KEY", "LLM_MODEL",
		"LLM_BASE_URL", "EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_BASE_URL", "EMBEDDING_API_KEY",
		"INDEX_PATH", "INDEX_BACKEND", "PGVECTOR_DSN", "SERVER_ADDRESS",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
log_level: debug
source_path: ./faqs.xlsx
index:
  path: /tmp/idx
  top_k: 6
  score_threshold: 0.5
llm:
  api_key: secret
  model: gemini-1.5-flash
retry:
  max_attempts: 5
  initial_interval: 100ms
  max_interval: 2s
auth:
  users:
    - username: admin
      password: password123
      admin: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "./faqs.xlsx", cfg.SourcePath)
	require.Equal(t, 6, cfg.Index.TopK)
	require.InDelta(t, 0.5, cfg.Index.ScoreThreshold, 1e-6)
	require.Equal(t, "faq_collection", cfg.Index.Collection)
	require.Equal(t, "/tmp/idx/faq_collection.chromem", cfg.Index.IndexFile())
	require.Equal(t, 100*time.Millisecond, cfg.Retry.InitialInterval)
	require.Equal(t, 2*time.Second, cfg.Retry.MaxInterval)
	require.Len(t, cfg.Auth.Users, 1)
	require.True(t, cfg.Auth.Users[0].Admin)
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_API_KEY", "k")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Index.TopK)
	require.InDelta(t, 0.7, cfg.Index.ScoreThreshold, 1e-6)
	require.Equal(t, 0.7, cfg.Quiz.GreatThreshold)
	require.Equal(t, 0.4, cfg.Quiz.PartialThreshold)
	require.Equal(t, "gemini-1.5-flash", cfg.LLM.Model)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "llm:\n  api_key: from-file\n")
	t.Setenv("GEMINI_API_KEY", "from-gemini")
	t.Setenv("INDEX_PATH", "/data/index")
	t.Setenv("EMBEDDING_PROVIDER", "hash")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "from-gemini", cfg.LLM.APIKey)
	require.Equal(t, "/data/index", cfg.Index.Path)
	require.Equal(t, ProviderHash, cfg.Embedding.Provider)

	t.Setenv("LLM_API_KEY", "from-generic")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "from-generic", cfg.LLM.APIKey)
}

func TestEmbeddingProviderSwitchByEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("EMBEDDING_PROVIDER", ProviderOpenAI)
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-small")

	_, err := LoadConfig("")
	require.Error(t, err)
	require.True(t, apperror.IsCode(err, apperror.CodeConfiguration))
	require.Contains(t, err.Error(), "Embedding.APIKey")

	t.Setenv("EMBEDDING_API_KEY", "sk-embed")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "sk-embed", cfg.Embedding.APIKey)
	require.Empty(t, cfg.Embedding.BaseURL, "the ollama address is dropped")

	t.Setenv("EMBEDDING_BASE_URL", "https://embeddings.example.com/v1")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "https://embeddings.example.com/v1", cfg.Embedding.BaseURL)
}

func TestEmbeddingProviderSwitchKeepsCustomBaseURL(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "llm:\n  api_key: k\nembedding:\n  base_url: http://gpu-box:8080/v1\n")
	t.Setenv("EMBEDDING_PROVIDER", ProviderOpenAI)
	t.Setenv("EMBEDDING_API_KEY", "sk-embed")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "http://gpu-box:8080/v1", cfg.Embedding.BaseURL)
}

func TestLoadConfigMissingAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig("")
	require.Error(t, err)
	require.True(t, apperror.IsCode(err, apperror.CodeConfiguration))
	require.Contains(t, err.Error(), "APIKey")
}

func TestLoadConfigOllamaNeedsNoKey(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "llm:\n  provider: ollama\n  model: llama3\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ProviderOllama, cfg.LLM.Provider)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"backend":        "llm:\n  api_key: k\nindex:\n  backend: faiss\n",
		"bands":          "llm:\n  api_key: k\nquiz:\n  great_threshold: 0.4\n  partial_threshold: 0.6\n",
		"pgvector dsn":   "llm:\n  api_key: k\nindex:\n  backend: pgvector\n",
		"encryption key": "llm:\n  api_key: k\nindex:\n  encryption_key: short\n",
		"user password":  "llm:\n  api_key: k\nauth:\n  users:\n    - username: bob\n",
		"missing file":   "",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			path := filepath.Join(t.TempDir(), "absent.yaml")
			if body != "" {
				path = writeConfig(t, body)
			}
			_, err := LoadConfig(path)
			require.Error(t, err)
			require.True(t, apperror.IsCode(err, apperror.CodeConfiguration))
		})
	}
}

func TestShippedConfigLoads(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, BackendChromem, cfg.Index.Backend)
	require.Equal(t, "./faiss_index/faq_collection.chromem", cfg.Index.IndexFile())
	require.Equal(t, 500*time.Millisecond, cfg.Retry.InitialInterval)
	require.Len(t, cfg.Auth.Users, 1)
	require.True(t, cfg.Auth.Users[0].Admin)
	require.True(t, cfg.Watch.Enabled)
}
