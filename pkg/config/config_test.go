package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajitpratap0/relay/internal/pipeline"
	"github.com/ajitpratap0/relay/pkg/errors"
	"github.com/ajitpratap0/relay/pkg/models"
	"github.com/ajitpratap0/relay/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelinesYAML = `
pipelines:
  - name: orders
    schedule: "*/15 * * * *"
    source:
      adapter: http
      endpoint: orders
      credential: shop
      config:
        base_url: ${RELAY_TEST_BASE_URL}
        pagination: offset
      pagination:
        items_per_page: 100
      filter:
        field: status
        op: eq
        value: paid
      timeout: 30s
    target:
      adapter: memory
      config:
        dataset: ${RELAY_TEST_DATASET:-orders_out}
    error_handling:
      max_retries: 5
      retry_interval: 2s
  - name: inline
    data:
      - {id: 1}
      - {id: 2}
`

func TestParsePipelines(t *testing.T) {
	t.Setenv("RELAY_TEST_BASE_URL", "https://shop.example.com")

	specs, err := ParsePipelines([]byte(pipelinesYAML))
	require.NoError(t, err)
	require.Len(t, specs, 2)

	orders := specs[0]
	assert.Equal(t, "*/15 * * * *", orders.Schedule)
	assert.Equal(t, "https://shop.example.com", orders.Source.ConfigString("base_url"))
	assert.Equal(t, 100, orders.Source.RequestedItemsPerPage())
	assert.Equal(t, 30*time.Second, orders.Source.Timeout)
	assert.Equal(t, models.Predicate{Field: "status", Operator: models.OpEqual, Value: "paid"}, orders.Source.Filter.Filter)
	assert.Equal(t, "orders_out", orders.Target.ConfigString("dataset"))

	p := orders.Pipeline(PipelineDefaults{RateLimiting: pipeline.RateLimiting{RequestsPerSecond: 2}})
	assert.Equal(t, retry.Policy{MaxRetries: 5, RetryInterval: 2 * time.Second}, p.ErrorHandling)
	assert.Equal(t, 2.0, p.RateLimiting.RequestsPerSecond)

	inline := specs[1].Pipeline(PipelineDefaults{ErrorHandling: retry.Policy{MaxRetries: 1}})
	assert.Len(t, inline.Data, 2)
	assert.Equal(t, 1, inline.ErrorHandling.MaxRetries)
}

func TestParseSinglePipeline(t *testing.T) {
	specs, err := ParsePipelines([]byte("name: one\ndata: []\n"))
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "one", specs[0].Name)
}

func TestParsePipelinesRejects(t *testing.T) {
	tests := map[string]string{
		"missing name":     "data: []\n",
		"no source":        "name: x\n",
		"both inputs":      "name: x\ndata: []\nsource: {adapter: memory}\n",
		"missing adapter":  "name: x\nsource: {endpoint: e}\n",
		"bad schedule":     "name: x\ndata: []\nschedule: every day\n",
		"unknown field":    "name: x\ndata: []\nsorce: {}\n",
		"duplicate names":  "pipelines:\n  - {name: a, data: []}\n  - {name: a, data: []}\n",
		"negative retries": "name: x\ndata: []\nerror_handling: {max_retries: -1}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePipelines([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), err.Error())
		})
	}
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
vault_path: /var/lib/relay/vault.yaml
defaults:
  error_handling:
    retry_interval: 500ms
`), 0o600))
	t.Setenv("RELAY_METRICS_ADDR", ":9100")
	t.Setenv("RELAY_DEFAULTS_ERROR_HANDLING_MAX_RETRIES", "7")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "json", s.Log.Encoding)
	assert.Equal(t, "/var/lib/relay/vault.yaml", s.VaultPath)
	assert.Equal(t, ":9100", s.MetricsAddr)
	assert.Equal(t, 7, s.Defaults.ErrorHandling.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, s.Defaults.ErrorHandling.RetryInterval)
	assert.Equal(t, 60*time.Second, s.HTTP.RequestTimeout)
}

func TestLoadSettingsMissingExplicitFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSettingsValidate(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())
	s.Log.Encoding = "xml"
	assert.Error(t, s.Validate())
}
