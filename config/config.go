package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// KafkaConfig: пустой host отключает консьюмер телеметрии и продюсер алертов.
type KafkaConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	TelemetryTopic string `yaml:"telemetry_topic"`
	AlertsTopic    string `yaml:"alerts_topic"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DispatchConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	Timezone           string `yaml:"timezone"`
	LogLevel           string `yaml:"log_level"`
	SwaggerPath        string `yaml:"swagger_path"`

	SettlementLockTTLSeconds int  `yaml:"settlement_lock_ttl_seconds"`
	PointsRateLimitPerMinute int  `yaml:"points_rate_limit_per_minute"`
	RiderCacheTTLSeconds     int  `yaml:"rider_cache_ttl_seconds"`
	SkipSampleSeed           bool `yaml:"skip_sample_seed"`

	// Генератор демо-заказов. nil в GeneratorEnabled значит "включён".
	GeneratorEnabled         *bool `yaml:"generator_enabled"`
	GeneratorRate            int   `yaml:"generator_rate"`
	GeneratorHours           int   `yaml:"generator_hours"`
	GeneratorIntervalMinutes int   `yaml:"generator_interval_minutes"`
	GeneratorTimeProfile     *bool `yaml:"generator_time_profile"`
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
