package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9090"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, float64(60), cfg.Matcher.MinScore)
	assert.Equal(t, 10, cfg.Matcher.TopN)
	assert.InDelta(t, 0.4, cfg.Matcher.SimilarityWeight, 1e-9)
	assert.InDelta(t, 0.6, cfg.Matcher.LLMWeight, 1e-9)
	assert.Equal(t, "jobmatcher.events", cfg.RabbitMQ.EventsExchange)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
matcher:
  min_score: 75
  top_n: 5
  similarity_weight: 0.5
  llm_weight: 0.5
adzuna:
  country: de
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, float64(75), cfg.Matcher.MinScore)
	assert.Equal(t, 5, cfg.Matcher.TopN)
	assert.Equal(t, "de", cfg.Adzuna.Country)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "matcher: [not a mapping")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	path := writeConfig(t, `
llm:
  api_key: from-file
adzuna:
  app_id: file-app
  api_key: file-key
`)
	t.Setenv("LLM_API_KEY", "from-env")
	t.Setenv("ADZUNA_APP_ID", "env-app")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, "env-app", cfg.Adzuna.AppID)
	assert.Equal(t, "file-key", cfg.Adzuna.APIKey, "unset env vars leave file values alone")
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := defaultConfig()
	cfg.Matcher.SimilarityWeight = 0.7
	cfg.Matcher.LLMWeight = 0.7
	assert.ErrorContains(t, cfg.Validate(), "weights must sum to 1")
}

func TestValidateRejectsBadMinScore(t *testing.T) {
	cfg := defaultConfig()
	cfg.Matcher.MinScore = 150
	assert.ErrorContains(t, cfg.Validate(), "min_score")

	cfg.Matcher.MinScore = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadTopN(t *testing.T) {
	cfg := defaultConfig()
	cfg.Matcher.TopN = 0
	assert.ErrorContains(t, cfg.Validate(), "top_n")
}

func TestValidateRejectsBadBatchSize(t *testing.T) {
	cfg := defaultConfig()
	cfg.Embedding.MaxBatchSize = 0
	assert.ErrorContains(t, cfg.Validate(), "max_batch_size")
}

func TestSessionDurationFallbacks(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL())
	assert.Equal(t, 5*time.Minute, cfg.SessionCleanupInterval())

	cfg.Session.TTL = "90s"
	cfg.Session.CleanupInterval = "garbage"
	assert.Equal(t, 90*time.Second, cfg.SessionTTL())
	assert.Equal(t, 5*time.Minute, cfg.SessionCleanupInterval(), "unparseable interval falls back")
}

func TestMySQLDSN(t *testing.T) {
	m := MySQLConfig{
		Host:     "db.internal",
		Port:     3306,
		Username: "matcher",
		Password: "secret",
		Database: "jobmatcher",
	}
	assert.Equal(t,
		"matcher:secret@tcp(db.internal:3306)/jobmatcher?charset=utf8mb4&parseTime=True&loc=Local",
		m.DSN())
}
