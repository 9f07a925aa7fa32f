package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/relay/pkg/connector/adapters/memory"
	"github.com/ajitpratap0/relay/pkg/testutil"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommandMovesRecordsBetweenMemoryDatasets(t *testing.T) {
	dir := t.TempDir()
	settings := writeFile(t, dir, "relay.yaml", "log:\n  level: error\nconcurrency: 2\n")
	memory.DefaultStore.Put("cli-users", testutil.Records(5))

	pipelines := writeFile(t, dir, "pipelines.yaml", `
pipelines:
  - name: copy-users
    source:
      adapter: memory
      endpoint: cli-users
      pagination:
        items_per_page: 2
    target:
      adapter: memory
      endpoint: cli-users-copy
  - name: inline
    data:
      - {id: 1}
    target:
      adapter: memory
      endpoint: cli-inline
`)

	out, err := execute(t, "--config", settings, "run", "-f", pipelines)

	require.NoError(t, err)
	assert.Len(t, memory.DefaultStore.Get("cli-users-copy"), 5)
	assert.Len(t, memory.DefaultStore.Get("cli-inline"), 1)
	assert.Contains(t, out, "copy-users")
	assert.Contains(t, out, "extracted=5 delivered=5")
}

func TestRunCommandReportsInvalidPipeline(t *testing.T) {
	dir := t.TempDir()
	settings := writeFile(t, dir, "relay.yaml", "log:\n  level: error\n")
	pipelines := writeFile(t, dir, "pipelines.yaml", "pipelines:\n  - name: nothing\n")

	_, err := execute(t, "--config", settings, "run", "-f", pipelines)

	require.Error(t, err)
}

func TestAdaptersCommandListsRegistry(t *testing.T) {
	out, err := execute(t, "adapters")

	require.NoError(t, err)
	for _, id := range []string{"memory", "http", "sql", "mongodb", "kafka", "s3", "gcs", "bigquery"} {
		assert.True(t, strings.Contains(out, id), "missing adapter %s", id)
	}
}

func TestScheduleRegistersOnlyScheduledPipelines(t *testing.T) {
	dir := t.TempDir()
	settings := writeFile(t, dir, "relay.yaml", "log:\n  level: error\n")
	a, err := newApp(settings, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { closeApp(a) })

	pipelines := writeFile(t, dir, "pipelines.yaml", `
pipelines:
  - name: hourly
    schedule: "@hourly"
    data: [{id: 1}]
  - name: manual
    data: [{id: 2}]
`)
	specs, ps, err := a.pipelines(pipelines)
	require.NoError(t, err)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	c, n, err := schedule(ctx, a, specs, ps)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, c.Entries(), 1)

	specs[0].Schedule = "every now and then"
	_, _, err = schedule(ctx, a, specs, ps)
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "Relay v"+version)
}
