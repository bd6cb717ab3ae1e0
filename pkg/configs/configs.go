// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package configs

import "fmt"

type DatabaseAuth struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// DatabaseConfig selects the gorm dialect. sqlite uses Path; postgres uses
// the host/port/auth fields.
type DatabaseConfig struct {
	Driver             string       `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`
	Path               string       `mapstructure:"path"`
	Host               string       `mapstructure:"host"`
	Port               int          `mapstructure:"port"`
	DBName             string       `mapstructure:"db_name"`
	Auth               DatabaseAuth `mapstructure:"auth"`
	MaxOpenConnection  int          `mapstructure:"max_open_connection" validate:"gte=1"`
	MaxIdealConnection int          `mapstructure:"max_ideal_connection" validate:"gte=0"`
	SslMode            string       `mapstructure:"ssl_mode"`
	EnableCache        bool         `mapstructure:"enable_cache"`
}

func (c DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.Host, c.Auth.User, c.Auth.Password, c.DBName, c.Port, c.SslMode)
}

type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
