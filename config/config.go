// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/intelliconvo/pkg/configs"
)

type WebSocketConfig struct {
	Path       string `mapstructure:"path" validate:"required,startswith=/"`
	ReadLimit  int64  `mapstructure:"read_limit" validate:"gt=0"`
	SendBuffer int    `mapstructure:"send_buffer" validate:"gt=0"`
}

type AnalysisConfig struct {
	Provider string        `mapstructure:"provider" validate:"required,oneof=keyword openai"`
	Model    string        `mapstructure:"model"`
	ApiKey   string        `mapstructure:"api_key" validate:"required_if=Provider openai"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// ClientConfig drives the capture engine and session channel of the CLI.
type ClientConfig struct {
	ServerURL            string        `mapstructure:"server_url" validate:"required,url"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" validate:"gte=0"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay" validate:"gt=0"`
	ChunkInterval        time.Duration `mapstructure:"chunk_interval" validate:"gt=0"`
	FrameInterval        time.Duration `mapstructure:"frame_interval" validate:"gt=0"`
	Encoding             string        `mapstructure:"encoding" validate:"oneof=linear16 mulaw"`
	SampleRate           int           `mapstructure:"sample_rate" validate:"gt=0"`
}

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Env      string `mapstructure:"env"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogPath  string `mapstructure:"log_path"`

	WebSocket WebSocketConfig        `mapstructure:"websocket"`
	Database  configs.DatabaseConfig `mapstructure:"database"`
	Redis     configs.RedisConfig    `mapstructure:"redis"`
	Analysis  AnalysisConfig         `mapstructure:"analysis"`
	Client    ClientConfig           `mapstructure:"client"`
}

func (c *AppConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Printf("Reading from env variables.")
	}
	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// keeping watch on https://github.com/spf13/viper/issues/188
	v.SetDefault("SERVICE_NAME", "intelliconvo")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("ENV", "development")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9090)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", "")

	v.SetDefault("WEBSOCKET__PATH", "/ws")
	v.SetDefault("WEBSOCKET__READ_LIMIT", 1<<20)
	v.SetDefault("WEBSOCKET__SEND_BUFFER", 64)

	v.SetDefault("DATABASE__DRIVER", "sqlite")
	v.SetDefault("DATABASE__PATH", "intelliconvo.db")
	v.SetDefault("DATABASE__HOST", "localhost")
	v.SetDefault("DATABASE__PORT", 5432)
	v.SetDefault("DATABASE__DB_NAME", "intelliconvo")
	v.SetDefault("DATABASE__AUTH__USER", "<>")
	v.SetDefault("DATABASE__AUTH__PASSWORD", "<>")
	v.SetDefault("DATABASE__MAX_OPEN_CONNECTION", 10)
	v.SetDefault("DATABASE__MAX_IDEAL_CONNECTION", 10)
	v.SetDefault("DATABASE__SSL_MODE", "disable")
	v.SetDefault("DATABASE__ENABLE_CACHE", false)

	v.SetDefault("REDIS__ENABLED", false)
	v.SetDefault("REDIS__HOST", "localhost")
	v.SetDefault("REDIS__PORT", 6379)
	v.SetDefault("REDIS__PASSWORD", "")
	v.SetDefault("REDIS__DB", 0)
	v.SetDefault("REDIS__CHANNEL_PREFIX", "intelliconvo:session:")

	v.SetDefault("ANALYSIS__PROVIDER", "keyword")
	v.SetDefault("ANALYSIS__MODEL", "gpt-4o-mini")
	v.SetDefault("ANALYSIS__API_KEY", "")
	v.SetDefault("ANALYSIS__TIMEOUT", "20s")

	v.SetDefault("CLIENT__SERVER_URL", "http://localhost:9090")
	v.SetDefault("CLIENT__MAX_RECONNECT_ATTEMPTS", 5)
	v.SetDefault("CLIENT__RECONNECT_DELAY", "2s")
	v.SetDefault("CLIENT__CHUNK_INTERVAL", "100ms")
	v.SetDefault("CLIENT__FRAME_INTERVAL", "16ms")
	v.SetDefault("CLIENT__ENCODING", "linear16")
	v.SetDefault("CLIENT__SAMPLE_RATE", 16000)
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// valdating the app config
	validate := validator.New()
	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &config, nil
}
