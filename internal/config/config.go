package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Retention RetentionConfig `mapstructure:"retention"`
	Clinical  ClinicalConfig  `mapstructure:"clinical"`
	Device    DeviceConfig    `mapstructure:"device"`
}

type DeviceConfig struct {
	// UserID identifies the health worker logged in on this device.
	UserID string `mapstructure:"user_id"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type SyncConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	AuthToken        string        `mapstructure:"auth_token"`
	BatchSize        int           `mapstructure:"batch_size"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FrequentInterval time.Duration `mapstructure:"frequent_interval"`
	DailyInterval    time.Duration `mapstructure:"daily_interval"`
}

type RetentionConfig struct {
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

type ClinicalConfig struct {
	// MeasurementEditableFor is how long after creation a measurement may
	// still be corrected on the device.
	MeasurementEditableFor time.Duration `mapstructure:"measurement_editable_for"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.path", "clinic.db")
	viper.SetDefault("sync.batch_size", 500)
	viper.SetDefault("sync.timeout", 30*time.Second)
	viper.SetDefault("sync.frequent_interval", 15*time.Minute)
	viper.SetDefault("sync.daily_interval", 24*time.Hour)
	viper.SetDefault("retention.purge_interval", 24*time.Hour)
	viper.SetDefault("clinical.measurement_editable_for", time.Hour)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
