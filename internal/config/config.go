package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Summary   SummaryConfig   `yaml:"summary" mapstructure:"summary"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	S3        S3Config        `yaml:"s3" mapstructure:"s3"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Prompts   PromptsConfig   `yaml:"prompts" mapstructure:"prompts"`
	Links     LinksConfig     `yaml:"links" mapstructure:"links"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// LLMConfig selects the structured-extraction provider.
type LLMConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	CircuitThreshold  int     `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetSecs  int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// SummaryConfig points at the judgment summary service.
type SummaryConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// FetchConfig configures document downloads and page limits.
type FetchConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TextMaxPages      int     `yaml:"text_max_pages" mapstructure:"text_max_pages"`
	ImageMaxPages     int     `yaml:"image_max_pages" mapstructure:"image_max_pages"`
	ImageDPI          int     `yaml:"image_dpi" mapstructure:"image_dpi"`
	TempDir           string  `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// OCRConfig configures page extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	PdfToPPMPath  string `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	PdfInfoPath   string `yaml:"pdfinfo_path" mapstructure:"pdfinfo_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// RetrySetting is the retry policy of one call class. Kind is "fixed" or
// "exponential".
type RetrySetting struct {
	Kind        string `yaml:"kind" mapstructure:"kind"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	MinMs       int    `yaml:"min_ms" mapstructure:"min_ms"`
	MaxMs       int    `yaml:"max_ms" mapstructure:"max_ms"`
}

// RetryConfig holds a retry policy per call class.
type RetryConfig struct {
	Fetch          RetrySetting `yaml:"fetch" mapstructure:"fetch"`
	Judges         RetrySetting `yaml:"judges" mapstructure:"judges"`
	Parties        RetrySetting `yaml:"parties" mapstructure:"parties"`
	Classification RetrySetting `yaml:"classification" mapstructure:"classification"`
	Summary        RetrySetting `yaml:"summary" mapstructure:"summary"`
	Rephrase       RetrySetting `yaml:"rephrase" mapstructure:"rephrase"`
	Novelty        RetrySetting `yaml:"novelty" mapstructure:"novelty"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// StoreConfig configures the run store. Driver is "none", "sqlite" or
// "postgres".
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// S3Config configures s3:// record locations.
type S3Config struct {
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
}

// NotionConfig holds Notion export settings.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	DatabaseID string `yaml:"database_id" mapstructure:"database_id"`
}

// PromptsConfig overrides the embedded prompt set.
type PromptsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LinksConfig configures document link repair.
type LinksConfig struct {
	HostFixes []string `yaml:"host_fixes" mapstructure:"host_fixes"`
	BaseURL   string   `yaml:"base_url" mapstructure:"base_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ConfigurationError reports a setting that must be present before any
// batch work starts.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("JUDGMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.requests_per_second", 2.0)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.circuit_threshold", 5)
	v.SetDefault("llm.circuit_reset_secs", 30)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("summary.timeout_secs", 50)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.user_agent", "judgment-cli/1.0")
	v.SetDefault("fetch.requests_per_second", 2.0)
	v.SetDefault("fetch.text_max_pages", 10)
	v.SetDefault("fetch.image_max_pages", 13)
	v.SetDefault("fetch.image_dpi", 100)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.pdftoppm_path", "pdftoppm")
	v.SetDefault("ocr.pdfinfo_path", "pdfinfo")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("retry.fetch.kind", "exponential")
	v.SetDefault("retry.fetch.max_attempts", 3)
	v.SetDefault("retry.fetch.min_ms", 1000)
	v.SetDefault("retry.fetch.max_ms", 8000)
	v.SetDefault("retry.judges.kind", "fixed")
	v.SetDefault("retry.judges.max_attempts", 2)
	v.SetDefault("retry.judges.min_ms", 2000)
	v.SetDefault("retry.parties.kind", "fixed")
	v.SetDefault("retry.parties.max_attempts", 2)
	v.SetDefault("retry.parties.min_ms", 2000)
	v.SetDefault("retry.classification.kind", "exponential")
	v.SetDefault("retry.classification.max_attempts", 3)
	v.SetDefault("retry.classification.min_ms", 2000)
	v.SetDefault("retry.classification.max_ms", 6000)
	v.SetDefault("retry.summary.kind", "exponential")
	v.SetDefault("retry.summary.max_attempts", 3)
	v.SetDefault("retry.summary.min_ms", 4000)
	v.SetDefault("retry.summary.max_ms", 10000)
	v.SetDefault("retry.rephrase.kind", "exponential")
	v.SetDefault("retry.rephrase.max_attempts", 3)
	v.SetDefault("retry.rephrase.min_ms", 2000)
	v.SetDefault("retry.rephrase.max_ms", 6000)
	v.SetDefault("retry.novelty.kind", "exponential")
	v.SetDefault("retry.novelty.max_attempts", 3)
	v.SetDefault("retry.novelty.min_ms", 2000)
	v.SetDefault("retry.novelty.max_ms", 6000)
	v.SetDefault("batch.concurrency", 2)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "judgments.db")
	v.SetDefault("s3.region", "ap-south-1")
	v.SetDefault("links.host_fixes", []string{"www.cercind.gov.in"})
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Keys without a useful default are registered so env vars can set them.
	for _, key := range []string{
		"anthropic.key", "gemini.key", "summary.url", "ocr.mistral_api_key",
		"fetch.temp_dir", "s3.endpoint", "s3.access_key_id", "s3.secret_access_key", "notion.token", "notion.database_id",
		"prompts.path", "links.base_url",
	} {
		v.SetDefault(key, "")
	}

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

// Validate checks that every credential the given stages need is present.
// It returns a *ConfigurationError for the first missing one.
func (c *Config) Validate(stages []model.Stage) error {
	needsLLM, needsSummary, needsText := false, false, false
	for _, s := range stages {
		switch s {
		case model.StageSummary:
			needsSummary = true
		case model.StageJudges, model.StageParties:
			needsLLM, needsText = true, true
		default:
			needsLLM = true
		}
	}

	if needsLLM {
		switch c.LLM.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				return &ConfigurationError{Key: "anthropic.key", Reason: "required when llm.provider is anthropic"}
			}
		case "gemini":
			if c.Gemini.Key == "" {
				return &ConfigurationError{Key: "gemini.key", Reason: "required when llm.provider is gemini"}
			}
		default:
			return &ConfigurationError{Key: "llm.provider", Reason: fmt.Sprintf("unknown provider %q", c.LLM.Provider)}
		}
	}

	if needsSummary && c.Summary.URL == "" {
		return &ConfigurationError{Key: "summary.url", Reason: "required by the summary stage"}
	}

	if c.OCR.Provider == "mistral" && c.OCR.MistralKey == "" && needsText {
		return &ConfigurationError{Key: "ocr.mistral_api_key", Reason: "required when ocr.provider is mistral"}
	}

	if c.Batch.Concurrency <= 0 {
		return &ConfigurationError{Key: "batch.concurrency", Reason: "must be positive"}
	}
	return nil
}

// Policy converts the setting to a retry policy. Unset values keep the
// defaults of resilience.DefaultPolicy.
func (s RetrySetting) Policy() resilience.Policy {
	return resilience.FromSettings(resilience.DefaultPolicy(), s.Kind, s.MaxAttempts, s.MinMs, s.MaxMs)
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
