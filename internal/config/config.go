package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/keyword-cli/internal/classify"
	"github.com/sells-group/keyword-cli/internal/cost"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/resilience"
	"github.com/sells-group/keyword-cli/internal/scoring"
	"github.com/sells-group/keyword-cli/internal/subset"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Cleaning  CleaningConfig  `yaml:"cleaning" mapstructure:"cleaning"`
	Scoring   scoring.Config  `yaml:"scoring" mapstructure:"scoring"`
	Subsets   subset.Options  `yaml:"subsets" mapstructure:"subsets"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the session database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// PricingConfig holds per-model pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	BatchDiscount float64 `yaml:"batch_discount" mapstructure:"batch_discount"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ClassifyConfig configures journey phase and intent classification.
type ClassifyConfig struct {
	Industry            string   `yaml:"industry" mapstructure:"industry"`
	Template            string   `yaml:"template" mapstructure:"template"`
	Phases              []string `yaml:"phases" mapstructure:"phases"`
	Intents             []string `yaml:"intents" mapstructure:"intents"`
	MaxTokens           int64    `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature         float64  `yaml:"temperature" mapstructure:"temperature"`
	SmallBatchThreshold int      `yaml:"small_batch_threshold" mapstructure:"small_batch_threshold"`
	NoBatch             bool     `yaml:"no_batch" mapstructure:"no_batch"`
	Concurrency         int      `yaml:"concurrency" mapstructure:"concurrency"`
	RequestsPerSecond   float64  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	PollIntervalSecs    int      `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollCapSecs         int      `yaml:"poll_cap_secs" mapstructure:"poll_cap_secs"`
	RetryAttempts       int      `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs      int      `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxBackoffMs   int      `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
}

// CleaningConfig configures the cleaning rules and which categories to remove.
type CleaningConfig struct {
	RulesFile       string   `yaml:"rules_file" mapstructure:"rules_file"`
	BrandName       string   `yaml:"brand_name" mapstructure:"brand_name"`
	TargetCountry   string   `yaml:"target_country" mapstructure:"target_country"`
	CompetitorNames []string `yaml:"competitor_names" mapstructure:"competitor_names"`
	RemoveBrand     bool     `yaml:"remove_brand" mapstructure:"remove_brand"`
	RemoveIntl      bool     `yaml:"remove_international" mapstructure:"remove_international"`
	RemoveUnrelated bool     `yaml:"remove_unrelated" mapstructure:"remove_unrelated"`
	RemovePhone     bool     `yaml:"remove_phone" mapstructure:"remove_phone"`
	RemoveJunk      bool     `yaml:"remove_junk" mapstructure:"remove_junk"`
}

// ExportConfig configures where and how views are written.
type ExportConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the export download server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CacheTTLSecs   int      `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatZip  = "zip"
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("KEYWORD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "keyword.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.schema", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cache_ttl_secs", 300)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("export.dir", "output")
	v.SetDefault("export.format", FormatCSV)

	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_retries", 2)

	cd := classify.DefaultConfig()
	v.SetDefault("classify.industry", "")
	v.SetDefault("classify.template", classify.DefaultTemplate)
	v.SetDefault("classify.max_tokens", cd.MaxTokens)
	v.SetDefault("classify.temperature", cd.Temperature)
	v.SetDefault("classify.small_batch_threshold", cd.SmallBatchThreshold)
	v.SetDefault("classify.no_batch", false)
	v.SetDefault("classify.concurrency", cd.Concurrency)
	v.SetDefault("classify.requests_per_second", cd.RequestsPerSecond)
	v.SetDefault("classify.poll_interval_secs", int(cd.PollInterval/time.Second))
	v.SetDefault("classify.poll_cap_secs", int(cd.PollCap/time.Second))
	v.SetDefault("classify.retry_attempts", cd.Retry.MaxAttempts)
	v.SetDefault("classify.retry_backoff_ms", int(cd.Retry.InitialBackoff/time.Millisecond))
	v.SetDefault("classify.retry_max_backoff_ms", int(cd.Retry.MaxBackoff/time.Millisecond))

	v.SetDefault("cleaning.rules_file", "")
	v.SetDefault("cleaning.brand_name", "")
	v.SetDefault("cleaning.target_country", "us")
	v.SetDefault("cleaning.remove_brand", true)
	v.SetDefault("cleaning.remove_international", true)
	v.SetDefault("cleaning.remove_unrelated", true)
	v.SetDefault("cleaning.remove_phone", true)
	v.SetDefault("cleaning.remove_junk", true)

	sd := scoring.DefaultConfig()
	v.SetDefault("scoring.weights.value", sd.Weights.Value)
	v.SetDefault("scoring.weights.difficulty", sd.Weights.Difficulty)
	v.SetDefault("scoring.weights.gap", sd.Weights.Gap)
	v.SetDefault("scoring.neutral_difficulty", sd.NeutralDifficulty)

	od := subset.DefaultOptions()
	v.SetDefault("subsets.top_n", od.TopN)
	v.SetDefault("subsets.high_value_quantile", od.HighValueQuantile)
	v.SetDefault("subsets.low_hanging_min", od.LowHangingMin)
	v.SetDefault("subsets.low_hanging_max", od.LowHangingMax)
	v.SetDefault("subsets.max_difficulty", od.MaxDifficulty)
	v.SetDefault("subsets.min_volume", od.MinVolume)
	v.SetDefault("subsets.newly_days", od.NewlyDays)
	v.SetDefault("subsets.insight_top", od.InsightTop)
	v.SetDefault("subsets.insight_phases", od.InsightPhases)

	for name, r := range cost.DefaultRates().Anthropic {
		key := "pricing.anthropic." + name
		v.SetDefault(key+".input", r.Input)
		v.SetDefault(key+".output", r.Output)
		v.SetDefault(key+".batch_discount", r.BatchDiscount)
		v.SetDefault(key+".cache_write_mul", r.CacheWriteMul)
		v.SetDefault(key+".cache_read_mul", r.CacheReadMul)
	}
}

// Validation modes name what a command is about to do.
const (
	ModePipeline = "pipeline"
	ModeClassify = "classify"
	ModeServe    = "serve"
)

// Validate reports every invalid setting for the given mode at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case ModePipeline:
	case ModeClassify:
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case ModeServe:
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	if err := c.Scoring.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Subsets.LowHangingMin > c.Subsets.LowHangingMax {
		errs = append(errs, "subsets.low_hanging_min must not exceed subsets.low_hanging_max")
	}
	if c.Subsets.HighValueQuantile < 0 || c.Subsets.HighValueQuantile > 1 {
		errs = append(errs, "subsets.high_value_quantile must be between 0 and 1")
	}
	if c.Classify.Concurrency < 0 || c.Classify.RequestsPerSecond < 0 {
		errs = append(errs, "classify.concurrency and classify.requests_per_second must be >= 0")
	}
	if !slices.Contains([]string{FormatCSV, FormatXLSX, FormatZip}, c.Export.Format) {
		errs = append(errs, fmt.Sprintf("export.format must be csv, xlsx or zip, got %q", c.Export.Format))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid", c.Log.Level))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Settings returns the session settings the pipeline runs with.
func (c *Config) Settings() model.Settings {
	return model.Settings{
		BrandName:       c.Cleaning.BrandName,
		TargetCountry:   c.Cleaning.TargetCountry,
		Industry:        c.Classify.Industry,
		CompetitorNames: c.Cleaning.CompetitorNames,
		RemoveBrand:     c.Cleaning.RemoveBrand,
		RemoveIntl:      c.Cleaning.RemoveIntl,
		RemoveUnrelated: c.Cleaning.RemoveUnrelated,
		RemovePhone:     c.Cleaning.RemovePhone,
		RemoveJunk:      c.Cleaning.RemoveJunk,
		JourneyTemplate: c.Classify.Template,
		JourneyPhases:   classify.Phases(c.Classify.Template, c.Classify.Phases),
		SearchIntents:   c.Classify.Intents,
	}
}

// Classifier builds the classifier configuration for the given settings.
func (c *Config) Classifier(s model.Settings) classify.Config {
	cc := c.Classify
	return classify.Config{
		Model:               c.Anthropic.Model,
		MaxTokens:           cc.MaxTokens,
		Temperature:         cc.Temperature,
		Industry:            s.Industry,
		Phases:              s.JourneyPhases,
		Intents:             s.SearchIntents,
		SmallBatchThreshold: cc.SmallBatchThreshold,
		NoBatch:             cc.NoBatch,
		Concurrency:         cc.Concurrency,
		RequestsPerSecond:   cc.RequestsPerSecond,
		PollInterval:        time.Duration(cc.PollIntervalSecs) * time.Second,
		PollCap:             time.Duration(cc.PollCapSecs) * time.Second,
		Retry:               resilience.FromRetryConfig(cc.RetryAttempts, cc.RetryBackoffMs, cc.RetryMaxBackoffMs),
	}
}

// Rates converts configured pricing to cost rates.
func (p PricingConfig) Rates() cost.Rates {
	rates := cost.Rates{Anthropic: make(map[string]cost.ModelRate, len(p.Anthropic))}
	for name, m := range p.Anthropic {
		rates.Anthropic[name] = cost.ModelRate{
			Input:         m.Input,
			Output:        m.Output,
			BatchDiscount: m.BatchDiscount,
			CacheWriteMul: m.CacheWriteMul,
			CacheReadMul:  m.CacheReadMul,
		}
	}
	return rates
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
