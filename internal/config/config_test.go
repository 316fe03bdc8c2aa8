package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerDefaults(t *testing.T) {
	v, err := New("")
	require.NoError(t, err)

	cfg, err := LoadServerConfig(v)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, "ride-searches", cfg.KafkaTopic)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 450*time.Millisecond, cfg.Debounce)
	assert.False(t, cfg.RunMigrations)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("RIDESEARCH_HTTP_ADDR", ":9090")
	t.Setenv("RIDESEARCH_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RIDESEARCH_SEARCH_PAGE_SIZE", "25")
	t.Setenv("RIDESEARCH_POSTGRES_MIGRATE", "true")

	v, err := New("")
	require.NoError(t, err)
	cfg, err := LoadServerConfig(v)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 25, cfg.PageSize)
	assert.True(t, cfg.RunMigrations)
}

func TestInvalidValuesAreJoined(t *testing.T) {
	t.Setenv("RIDESEARCH_HTTP_READ_TIMEOUT", "soon")
	t.Setenv("RIDESEARCH_SEARCH_PAGE_SIZE", "0")

	v, err := New("")
	require.NoError(t, err)
	_, err = LoadServerConfig(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid http.read_timeout")
	assert.Contains(t, err.Error(), "search.page_size must be > 0")
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ridesearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://rides.example.com
  token: abc
search:
  debounce: 200ms
  fallback: false
kafka:
  brokers: [b1:9092, b2:9092]
`), 0o600))

	v, err := New(path)
	require.NoError(t, err)

	client, err := LoadClientConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "https://rides.example.com", client.BaseURL)
	assert.Equal(t, "abc", client.Token)
	assert.Equal(t, 200*time.Millisecond, client.Debounce)
	assert.False(t, client.Fallback)

	consumer, err := LoadConsumerConfig(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, consumer.KafkaBrokers)
	assert.Equal(t, "ride-search-analytics", consumer.KafkaGroup)
	assert.Equal(t, "localhost:6379", consumer.RedisAddr)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
