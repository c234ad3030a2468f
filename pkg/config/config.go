package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full service configuration. Required settings are validated
// at startup; a missing value fails the process, never a request.
type Config struct {
	Workspace    WorkspaceConfig    `yaml:"workspace" mapstructure:"workspace"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Analytics    AnalyticsConfig    `yaml:"analytics" mapstructure:"analytics"`
	Lookup       LookupConfig       `yaml:"lookup" mapstructure:"lookup"`
	Documents    DocumentsConfig    `yaml:"documents" mapstructure:"documents"`
	Router       RouterConfig       `yaml:"router" mapstructure:"router"`
	Normalizer   NormalizerConfig   `yaml:"normalizer" mapstructure:"normalizer"`
	Conversation ConversationConfig `yaml:"conversation" mapstructure:"conversation"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	Debug        bool               `yaml:"debug" mapstructure:"debug"`
}

// WorkspaceConfig identifies the cloud workspace hosting the backends.
type WorkspaceConfig struct {
	Host  string `yaml:"host" mapstructure:"host"`
	Token string `yaml:"token" mapstructure:"token"`
}

type LLMConfig struct {
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`
	Model       string  `yaml:"model" mapstructure:"model"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay  int     `yaml:"retry_delay" mapstructure:"retry_delay"`
}

type AnalyticsConfig struct {
	SpaceID       string `yaml:"space_id" mapstructure:"space_id"`
	PollInterval  int    `yaml:"poll_interval" mapstructure:"poll_interval"` // seconds
	PollAttempts  int    `yaml:"poll_attempts" mapstructure:"poll_attempts"`
	MaxReportRows int    `yaml:"max_report_rows" mapstructure:"max_report_rows"`
	UseGateway    bool   `yaml:"use_gateway" mapstructure:"use_gateway"`
}

func (c AnalyticsConfig) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

type LookupConfig struct {
	Catalog    string `yaml:"catalog" mapstructure:"catalog"`
	Schema     string `yaml:"schema" mapstructure:"schema"`
	Driver     string `yaml:"driver" mapstructure:"driver"` // postgres, mysql, sqlite3
	DSN        string `yaml:"dsn" mapstructure:"dsn"`
	UseGateway bool   `yaml:"use_gateway" mapstructure:"use_gateway"`
}

type DocumentsConfig struct {
	EndpointID    string `yaml:"endpoint_id" mapstructure:"endpoint_id"`
	TokenLifetime int    `yaml:"token_lifetime" mapstructure:"token_lifetime"` // seconds
}

type RouterConfig struct {
	Strategy          string   `yaml:"strategy" mapstructure:"strategy"` // agentic, keyword
	MaxIterations     int      `yaml:"max_iterations" mapstructure:"max_iterations"`
	AnalyticsKeywords []string `yaml:"analytics_keywords" mapstructure:"analytics_keywords"`
	LookupKeywords    []string `yaml:"lookup_keywords" mapstructure:"lookup_keywords"`
}

type NormalizerConfig struct {
	ScrubRulesFile string `yaml:"scrub_rules_file" mapstructure:"scrub_rules_file"`
}

type ConversationConfig struct {
	WindowSize int `yaml:"window_size" mapstructure:"window_size"` // retained turn pairs
}

type ServerConfig struct {
	Host           string `yaml:"host" mapstructure:"host"`
	Port           int    `yaml:"port" mapstructure:"port"`
	MetricsEnabled bool   `yaml:"metrics_enabled" mapstructure:"metrics_enabled"`
	TracingEnabled bool   `yaml:"tracing_enabled" mapstructure:"tracing_enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

// SetDefaults fills unset fields. Environment variables override file values
// for the settings the deployment environment owns.
func (c *Config) SetDefaults() {
	if v := os.Getenv("WORKSPACE_HOSTNAME"); v != "" {
		c.Workspace.Host = v
	}
	if v := os.Getenv("WORKSPACE_TOKEN"); v != "" {
		c.Workspace.Token = v
	}
	if v := os.Getenv("PAYOR_CATALOG"); v != "" {
		c.Lookup.Catalog = v
	}
	if v := os.Getenv("PAYOR_SCHEMA"); v != "" {
		c.Lookup.Schema = v
	}
	if v := os.Getenv("GENIE_SPACE_ID"); v != "" {
		c.Analytics.SpaceID = v
	}
	if v := os.Getenv("KNOWLEDGE_ENDPOINT_ID"); v != "" {
		c.Documents.EndpointID = v
	}
	if v := os.Getenv("PAYOR_LLM_ENDPOINT"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("PAYOR_LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.LLM.Temperature = f
		}
	}
	if v := os.Getenv("PAYOR_DEBUG"); v == "true" || v == "1" {
		c.Debug = true
	}

	if c.Lookup.Catalog == "" {
		c.Lookup.Catalog = "my_catalog"
	}
	if c.Lookup.Schema == "" {
		c.Lookup.Schema = "payer_silver"
	}
	if c.Lookup.Driver == "" {
		c.Lookup.Driver = "sqlite3"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "databricks-meta-llama-3-1-8b-instruct"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2048
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.RetryDelay == 0 {
		c.LLM.RetryDelay = 2
	}
	if c.Analytics.PollInterval == 0 {
		c.Analytics.PollInterval = 10
	}
	if c.Analytics.PollAttempts == 0 {
		c.Analytics.PollAttempts = 12
	}
	if c.Analytics.MaxReportRows == 0 {
		c.Analytics.MaxReportRows = 10
	}
	if c.Documents.TokenLifetime == 0 {
		c.Documents.TokenLifetime = 3600
	}
	if c.Router.Strategy == "" {
		c.Router.Strategy = "agentic"
	}
	if c.Router.MaxIterations == 0 {
		c.Router.MaxIterations = 5
	}
	if len(c.Router.AnalyticsKeywords) == 0 {
		c.Router.AnalyticsKeywords = DefaultAnalyticsKeywords()
	}
	if len(c.Router.LookupKeywords) == 0 {
		c.Router.LookupKeywords = DefaultLookupKeywords()
	}
	if c.Conversation.WindowSize == 0 {
		c.Conversation.WindowSize = 15
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
}

// DefaultAnalyticsKeywords returns the stock analytics keyword set for the
// keyword routing strategy.
func DefaultAnalyticsKeywords() []string {
	return []string{
		"analyze", "show", "what", "how many", "distribution", "average",
		"total", "count", "data", "claims", "members", "providers",
		"status", "amount",
	}
}

// DefaultLookupKeywords returns the stock lookup keyword set.
func DefaultLookupKeywords() []string {
	return []string{"lookup", "find", "get", "member", "claim", "provider", "eligibility"}
}

// Validate checks that every required setting is present. Called once at
// startup after SetDefaults.
func (c *Config) Validate() error {
	var missing []string

	if c.Workspace.Host == "" {
		missing = append(missing, "workspace.host")
	}
	if c.Lookup.Catalog == "" {
		missing = append(missing, "lookup.catalog")
	}
	if c.Lookup.Schema == "" {
		missing = append(missing, "lookup.schema")
	}
	if c.Analytics.SpaceID == "" {
		missing = append(missing, "analytics.space_id")
	}
	if c.Documents.EndpointID == "" {
		missing = append(missing, "documents.endpoint_id")
	}
	if c.LLM.Model == "" {
		missing = append(missing, "llm.model")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}

	switch c.Router.Strategy {
	case "agentic", "keyword":
	default:
		return fmt.Errorf("unknown router strategy %q (want agentic or keyword)", c.Router.Strategy)
	}

	switch c.Lookup.Driver {
	case "postgres", "mysql", "sqlite3":
	default:
		return fmt.Errorf("unknown lookup driver %q (want postgres, mysql or sqlite3)", c.Lookup.Driver)
	}

	return nil
}
