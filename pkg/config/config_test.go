package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Workspace.Host = "adb-test.azuredatabricks.net"
	cfg.Analytics.SpaceID = "space-123"
	cfg.Documents.EndpointID = "ka-test-endpoint"
	cfg.SetDefaults()
	return cfg
}

func TestSetDefaults(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, "my_catalog", cfg.Lookup.Catalog)
	assert.Equal(t, "payer_silver", cfg.Lookup.Schema)
	assert.Equal(t, 0.1, cfg.LLM.Temperature)
	assert.Equal(t, 10, cfg.Analytics.PollInterval)
	assert.Equal(t, 12, cfg.Analytics.PollAttempts)
	assert.Equal(t, 5, cfg.Router.MaxIterations)
	assert.Equal(t, "agentic", cfg.Router.Strategy)
	assert.Equal(t, 15, cfg.Conversation.WindowSize)
	assert.Equal(t, 10, cfg.Analytics.MaxReportRows)
	assert.Contains(t, cfg.Router.AnalyticsKeywords, "distribution")
	assert.Contains(t, cfg.Router.LookupKeywords, "eligibility")
}

func TestValidateRequiresWorkspaceHost(t *testing.T) {
	cfg := validConfig()
	cfg.Workspace.Host = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace.host")
}

func TestValidateRequiresSpaceID(t *testing.T) {
	cfg := validConfig()
	cfg.Analytics.SpaceID = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analytics.space_id")
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := validConfig()
	cfg.Router.Strategy = "coinflip"

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Lookup.Driver = "oracle"

	assert.Error(t, cfg.Validate())
}

func TestExpandEnvVarsInData(t *testing.T) {
	t.Setenv("TEST_SPACE", "space-from-env")

	data := map[string]interface{}{
		"analytics": map[string]interface{}{
			"space_id":      "${TEST_SPACE}",
			"poll_interval": "${MISSING_POLL:-10}",
		},
	}

	expanded := ExpandEnvVarsInData(data).(map[string]interface{})
	analytics := expanded["analytics"].(map[string]interface{})

	assert.Equal(t, "space-from-env", analytics["space_id"])
	assert.Equal(t, 10, analytics["poll_interval"])
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("TEST_WS_HOST", "adb-file.azuredatabricks.net")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
workspace:
  host: ${TEST_WS_HOST}
analytics:
  space_id: space-file
documents:
  endpoint_id: ka-file
router:
  strategy: keyword
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "adb-file.azuredatabricks.net", cfg.Workspace.Host)
	assert.Equal(t, "space-file", cfg.Analytics.SpaceID)
	assert.Equal(t, "keyword", cfg.Router.Strategy)
	// defaults still applied
	assert.Equal(t, 12, cfg.Analytics.PollAttempts)
}

func TestLoadMissingRequiredFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("debug: true\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestScrubRuleStoreDefaults(t *testing.T) {
	store, err := NewScrubRuleStore("")
	require.NoError(t, err)

	rules := store.Current()
	assert.Contains(t, rules.MarkerTokens, "function=")
	assert.Contains(t, rules.Boilerplate, "I hope this alternative result helps")
}

func TestLoadScrubRulesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scrub.yaml")
	content := `
marker_tokens: ["function="]
boilerplate: ["custom sentence"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	rules, err := LoadScrubRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom sentence"}, rules.Boilerplate)
}
