// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package connectors

import (
	"context"
	"fmt"

	"github.com/go-gorm/caches/v4"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/configs"
)

type DatabaseConnector interface {
	Connector
	DB(ctx context.Context) *gorm.DB
}

type databaseConnector struct {
	cfg       configs.DatabaseConfig
	dialector gorm.Dialector
	db        *gorm.DB
	logger    commons.Logger
}

// NewDatabaseConnector picks the dialect from cfg.Driver. Connect must be
// called before DB.
func NewDatabaseConnector(cfg configs.DatabaseConfig, logger commons.Logger) (DatabaseConnector, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	return NewDatabaseConnectorWithDialector(cfg, dialector, logger), nil
}

func NewDatabaseConnectorWithDialector(cfg configs.DatabaseConfig, dialector gorm.Dialector, logger commons.Logger) DatabaseConnector {
	return &databaseConnector{cfg: cfg, dialector: dialector, logger: logger}
}

func (c *databaseConnector) Name() string {
	return fmt.Sprintf("%s://%s", c.cfg.Driver, c.cfg.DBName)
}

func (c *databaseConnector) Connect(ctx context.Context) error {
	db, err := gorm.Open(c.dialector, &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.Name(), err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql handle for %s: %w", c.Name(), err)
	}
	if c.cfg.MaxOpenConnection > 0 {
		sqlDB.SetMaxOpenConns(c.cfg.MaxOpenConnection)
	}
	if c.cfg.MaxIdealConnection > 0 {
		sqlDB.SetMaxIdleConns(c.cfg.MaxIdealConnection)
	}

	if c.cfg.EnableCache {
		// read-through query dedup for concurrent identical reads
		if err := db.Use(&caches.Caches{Conf: &caches.Config{Easer: true}}); err != nil {
			return fmt.Errorf("failed to register cache plugin: %w", err)
		}
	}
	c.db = db
	c.logger.Infof("connected to database %s", c.Name())
	return nil
}

func (c *databaseConnector) IsConnected(ctx context.Context) bool {
	if c.db == nil {
		return false
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return false
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		c.logger.Errorf("database ping failed for %s: %v", c.Name(), err)
		return false
	}
	return true
}

func (c *databaseConnector) Disconnect(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.db = nil
	return sqlDB.Close()
}

func (c *databaseConnector) DB(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx)
}
