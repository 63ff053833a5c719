// Package config loads application configuration from file and environment
// and initialises the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	HubSpot     HubSpotConfig     `yaml:"hubspot" mapstructure:"hubspot"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	SMTP        SMTPConfig        `yaml:"smtp" mapstructure:"smtp"`
	Ingest      IngestConfig      `yaml:"ingest" mapstructure:"ingest"`
	Attribution AttributionConfig `yaml:"attribution" mapstructure:"attribution"`
	Funnel      FunnelConfig      `yaml:"funnel" mapstructure:"funnel"`
	Revenue     RevenueConfig     `yaml:"revenue" mapstructure:"revenue"`
	Report      ReportConfig      `yaml:"report" mapstructure:"report"`
	Stages      StagesConfig      `yaml:"stages" mapstructure:"stages"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// HubSpotConfig holds HubSpot private app credentials and API tuning.
type HubSpotConfig struct {
	Token     string  `yaml:"token" mapstructure:"token"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnthropicConfig holds Anthropic API settings for the narrative renderer.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SMTPConfig configures report mail delivery. Leaving Host empty disables send.
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
	To       string `yaml:"to" mapstructure:"to"`
}

// IngestConfig configures the ingestion engine.
type IngestConfig struct {
	WindowDays           int    `yaml:"window_days" mapstructure:"window_days"`
	PageSize             int    `yaml:"page_size" mapstructure:"page_size"`
	FormExcludePattern   string `yaml:"form_exclude_pattern" mapstructure:"form_exclude_pattern"`
	FormFetchConcurrency int    `yaml:"form_fetch_concurrency" mapstructure:"form_fetch_concurrency"`
}

// AttributionConfig tunes the submission time-window join.
//
// The window bounds and the at-or-before preference are business rules;
// changing them is a product decision, not tuning.
type AttributionConfig struct {
	LookbackDays  int `yaml:"lookback_days" mapstructure:"lookback_days"`
	LookaheadDays int `yaml:"lookahead_days" mapstructure:"lookahead_days"`
}

// FunnelConfig configures funnel aggregation.
type FunnelConfig struct {
	WindowDays  int      `yaml:"window_days" mapstructure:"window_days"`
	MinLeads    int      `yaml:"min_leads" mapstructure:"min_leads"`
	TopN        int      `yaml:"top_n" mapstructure:"top_n"`
	BottomN     int      `yaml:"bottom_n" mapstructure:"bottom_n"`
	Consultants []string `yaml:"consultants" mapstructure:"consultants"`
}

// RevenueConfig configures the deal/revenue rollup.
type RevenueConfig struct {
	WindowDays        int      `yaml:"window_days" mapstructure:"window_days"`
	WonStageIDs       []string `yaml:"won_stage_ids" mapstructure:"won_stage_ids"`
	ExcludedDealTypes []string `yaml:"excluded_deal_types" mapstructure:"excluded_deal_types"`
	NewProspectDays   int      `yaml:"new_prospect_days" mapstructure:"new_prospect_days"`
}

// ReportConfig configures weekly report generation.
type ReportConfig struct {
	TopCampaigns int `yaml:"top_campaigns" mapstructure:"top_campaigns"`
}

// StagesConfig optionally pins lead pipeline stage IDs instead of resolving
// them from CRM pipeline metadata at startup.
type StagesConfig struct {
	PipelineID        string `yaml:"pipeline_id" mapstructure:"pipeline_id"`
	New               string `yaml:"new" mapstructure:"new"`
	Attempting        string `yaml:"attempting" mapstructure:"attempting"`
	Connected         string `yaml:"connected" mapstructure:"connected"`
	MarketingProspect string `yaml:"marketing_prospect" mapstructure:"marketing_prospect"`
	SalesQualified    string `yaml:"sales_qualified" mapstructure:"sales_qualified"`
	ZoomBooked        string `yaml:"zoom_booked" mapstructure:"zoom_booked"`
	Disqualified      string `yaml:"disqualified" mapstructure:"disqualified"`
	NotApplicable     string `yaml:"not_applicable" mapstructure:"not_applicable"`
}

// ServerConfig configures the report viewer server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MARKETING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("hubspot.base_url", "https://api.hubapi.com")
	v.SetDefault("hubspot.rate_limit", 8.0)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("ingest.window_days", 90)
	v.SetDefault("ingest.page_size", 100)
	v.SetDefault("ingest.form_exclude_pattern", "practitioner")
	v.SetDefault("ingest.form_fetch_concurrency", 4)
	v.SetDefault("attribution.lookback_days", 14)
	v.SetDefault("attribution.lookahead_days", 3)
	v.SetDefault("funnel.window_days", 90)
	v.SetDefault("funnel.min_leads", 30)
	v.SetDefault("funnel.top_n", 5)
	v.SetDefault("funnel.bottom_n", 5)
	v.SetDefault("funnel.consultants", []string{
		"Jordan Sharpe",
		"Laura McCarthy",
		"Akash Bajaj",
		"Gareth Robertson",
		"David Gittings",
		"Spencer Dunn",
	})
	v.SetDefault("revenue.window_days", 90)
	v.SetDefault("revenue.won_stage_ids", []string{"1054943521"})
	v.SetDefault("revenue.excluded_deal_types", []string{"SSAS", "FIC"})
	v.SetDefault("revenue.new_prospect_days", 30)
	v.SetDefault("report.top_campaigns", 8)

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

// Validate checks the configuration required for a given subsystem.
// Configuration errors are fatal and must surface before any I/O.
func (c *Config) Validate(subsystem string) error {
	switch subsystem {
	case "store":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required (set store.database_url or MARKETING_STORE_DATABASE_URL)")
		}
	case "hubspot":
		if c.HubSpot.Token == "" {
			return eris.New("config: hubspot.token is required (set hubspot.token or MARKETING_HUBSPOT_TOKEN)")
		}
	default:
		return eris.Errorf("config: unknown subsystem %q", subsystem)
	}
	return nil
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
