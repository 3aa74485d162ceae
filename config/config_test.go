package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tp "github.com/Andrej220/go-utils/taskpool"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskpool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, tp.DefaultPollInterval, c.Options().PollInterval)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
name: ingest
workers: 8
batch_size: 4
poll_interval: 250ms
retry:
  max_retries: 3
  backoff_base: 100ms
  backoff_max: 2s
  jitter: true
metrics:
  enabled: true
  namespace: ingest
http:
  addr: "127.0.0.1:9090"
cron:
  - spec: "@every 1m"
    name: heartbeat
    priority: 1
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ingest", c.Name)
	assert.Equal(t, 8, c.Workers)
	assert.Equal(t, 250*time.Millisecond, c.PollInterval)
	assert.Equal(t, tp.DefaultThrottleInterval, c.ThrottleInterval, "unset keys keep defaults")
	assert.True(t, c.Metrics.Enabled)
	require.Len(t, c.Cron, 1)
	assert.Equal(t, "heartbeat", c.Cron[0].Name)

	opts := c.Options()
	assert.Equal(t, 4, opts.BatchSize)
	assert.Equal(t, "ingest", opts.Name)

	rp := c.RetryPolicy()
	assert.Equal(t, tp.RetryPolicy{
		MaxRetries:  3,
		BackoffBase: 100 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		Jitter:      true,
	}, rp)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "workers: 2\n")
	t.Setenv("TASKPOOL_WORKERS", "16")
	t.Setenv("TASKPOOL_BACKOFF_BASE", "1s")
	t.Setenv("TASKPOOL_METRICS_ENABLED", "true")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, c.Workers)
	assert.Equal(t, time.Second, c.Retry.BackoffBase)
	assert.True(t, c.Metrics.Enabled)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "negative workers", body: "workers: -1\n"},
		{name: "bad yaml", body: "workers: [\n"},
		{name: "cron without spec", body: "cron:\n  - name: x\n"},
		{name: "max below base", body: "retry:\n  backoff_base: 2s\n  backoff_max: 1s\n"},
		{name: "bad addr", body: "http:\n  addr: nope\n"},
		{name: "bad env int", body: "", env: map[string]string{"TASKPOOL_WORKERS": "many"}},
		{name: "bad env duration", body: "", env: map[string]string{"TASKPOOL_POLL_INTERVAL": "soon"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
