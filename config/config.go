package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	ChronoGate ChronoGateConfig `yaml:"chronogate"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	NotificationsTopicName string `yaml:"notifications_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BackupConfig apunta al bucket S3-compatible con los datos crudos de los
// sensores. En dev el endpoint suele ser MinIO.
type BackupConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// UsePathStyle must be true for MinIO.
	UsePathStyle bool `yaml:"use_path_style"`
}

type ChronoGateConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// Read-side cache TTL for race status/report responses. The ingest
	// pipeline never reads this cache.
	StatusCacheTTLSeconds int `yaml:"status_cache_ttl_seconds"`

	// Horizon of the recent-sightings window used by the advisory
	// duplicate detector.
	RecentWindowSeconds int `yaml:"recent_window_seconds"`

	LogFile string `yaml:"log_file"`

	// Simulator knobs.
	SimulatorAPIBaseURL     string `yaml:"simulator_api_base_url"`
	SimulatorRunnerCount    int    `yaml:"simulator_runner_count"`
	SimulatorSectionPaceMs  int    `yaml:"simulator_section_pace_ms"`
	SimulatorRunnerJitterMs int    `yaml:"simulator_runner_jitter_ms"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
