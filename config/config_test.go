package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  notifications_topic_name: "race.notifications"
redis:
  host: "localhost"
  port: 6379
backup:
  endpoint: "http://localhost:9000"
  region: "us-east-1"
  bucket: "chronogate-sensor-data"
  use_path_style: true
chronogate:
  http_addr: ":8080"
  kafka_consumer_group: "chrono-api"
  status_cache_ttl_seconds: 5
  recent_window_seconds: 600
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "race.notifications", cfg.Kafka.NotificationsTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, "chronogate-sensor-data", cfg.Backup.Bucket)
	require.True(t, cfg.Backup.UsePathStyle)
	require.Equal(t, ":8080", cfg.ChronoGate.HTTPAddr)
	require.Equal(t, 600, cfg.ChronoGate.RecentWindowSeconds)
}

func TestLoadConfig_missingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
