package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/classify"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "keyword.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "csv", cfg.Export.Format)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, classify.DefaultTemplate, cfg.Classify.Template)
	assert.Equal(t, 50, cfg.Classify.SmallBatchThreshold)
	assert.Equal(t, "us", cfg.Cleaning.TargetCountry)
	assert.True(t, cfg.Cleaning.RemoveBrand)
	assert.True(t, cfg.Cleaning.RemoveJunk)
	assert.InDelta(t, 0.5, cfg.Scoring.Weights.Value, 0.001)
	assert.InDelta(t, 0.3, cfg.Scoring.Weights.Difficulty, 0.001)
	assert.InDelta(t, 0.2, cfg.Scoring.Weights.Gap, 0.001)
	assert.Equal(t, 200, cfg.Subsets.TopN)
	assert.Equal(t, 4, cfg.Subsets.LowHangingMin)
	assert.Equal(t, 15, cfg.Subsets.LowHangingMax)
	assert.Contains(t, cfg.Pricing.Anthropic, "claude-haiku-4-5-20251001")

	assert.NoError(t, cfg.Validate(ModePipeline))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/keywords
log:
  level: debug
  format: console
cleaning:
  brand_name: Acme
  competitor_names: [globex, initech]
  remove_phone: false
scoring:
  weights:
    value: 0.6
    difficulty: 0.2
    gap: 0.2
subsets:
  top_n: 50
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "Acme", cfg.Cleaning.BrandName)
	assert.Equal(t, []string{"globex", "initech"}, cfg.Cleaning.CompetitorNames)
	assert.False(t, cfg.Cleaning.RemovePhone)
	assert.InDelta(t, 0.6, cfg.Scoring.Weights.Value, 0.001)
	assert.Equal(t, 50, cfg.Subsets.TopN)
	// Defaults still apply for unset values
	assert.Equal(t, 15, cfg.Subsets.LowHangingMax)
	assert.NoError(t, cfg.Validate(ModePipeline))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("KEYWORD_STORE_DRIVER", "postgres")
	t.Setenv("KEYWORD_LOG_LEVEL", "warn")
	t.Setenv("KEYWORD_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("KEYWORD_SERVER_PORT", "3000")
	t.Setenv("KEYWORD_CLASSIFY_NO_BATCH", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.True(t, cfg.Classify.NoBatch)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes pipeline validation.
func validDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		mutate func(*Config)
		want   string
	}{
		{"pipeline ok", ModePipeline, func(*Config) {}, ""},
		{"classify needs key", ModeClassify, func(*Config) {}, "anthropic.key is required"},
		{"classify ok", ModeClassify, func(c *Config) { c.Anthropic.Key = "sk-ant" }, ""},
		{"serve bad port", ModeServe, func(c *Config) { c.Server.Port = 0 }, "server.port must be > 0"},
		{"unknown mode", "bogus", func(*Config) {}, "unknown mode"},
		{"bad driver", ModePipeline, func(c *Config) { c.Store.Driver = "mysql" }, "store.driver must be sqlite or postgres"},
		{"postgres without url", ModePipeline, func(c *Config) { c.Store.Driver = "postgres" }, "store.database_url is required"},
		{"weights", ModePipeline, func(c *Config) { c.Scoring.Weights.Gap = 0.9 }, "weights should sum to 1"},
		{"low hanging range", ModePipeline, func(c *Config) { c.Subsets.LowHangingMin = 20 }, "low_hanging_min"},
		{"export format", ModePipeline, func(c *Config) { c.Export.Format = "pdf" }, "export.format"},
		{"log level", ModePipeline, func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults(t)
			tt.mutate(cfg)
			err := cfg.Validate(tt.mode)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSettingsAndClassifier(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Cleaning.BrandName = "Acme"
	cfg.Classify.Industry = "insurance"
	cfg.Classify.Template = "Insurance"

	s := cfg.Settings()
	assert.Equal(t, "Acme", s.BrandName)
	assert.Equal(t, classify.Templates["Insurance"], s.JourneyPhases)

	cc := cfg.Classifier(s)
	assert.Equal(t, "insurance", cc.Industry)
	assert.Equal(t, s.JourneyPhases, cc.Phases)
	assert.Equal(t, 30*time.Second, cc.PollInterval)
	assert.Equal(t, 3, cc.Retry.MaxAttempts)
}

func TestPricingRates(t *testing.T) {
	p := PricingConfig{Anthropic: map[string]ModelPricing{
		"claude-haiku-4-5-20251001": {Input: 1, Output: 5, BatchDiscount: 0.5},
	}}
	rates := p.Rates()
	assert.InDelta(t, 5.0, rates.Anthropic["claude-haiku-4-5-20251001"].Output, 0.001)
}
