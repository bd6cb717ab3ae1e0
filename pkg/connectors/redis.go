// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package connectors

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/configs"
)

type RedisConnector interface {
	Connector
	GetConnection() *redis.Client
}

type redisConnector struct {
	cfg    configs.RedisConfig
	client *redis.Client
	logger commons.Logger
}

func NewRedisConnector(cfg configs.RedisConfig, logger commons.Logger) RedisConnector {
	return &redisConnector{cfg: cfg, logger: logger}
}

// NewRedisConnectorWithClient wraps an existing client; Connect only pings.
func NewRedisConnectorWithClient(client *redis.Client, logger commons.Logger) RedisConnector {
	return &redisConnector{client: client, logger: logger}
}

func (c *redisConnector) Name() string {
	return fmt.Sprintf("redis://%s/%d", c.cfg.Addr(), c.cfg.DB)
}

func (c *redisConnector) Connect(ctx context.Context) error {
	if c.client == nil {
		c.client = redis.NewClient(&redis.Options{
			Addr:     c.cfg.Addr(),
			Password: c.cfg.Password,
			DB:       c.cfg.DB,
		})
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect %s: %w", c.Name(), err)
	}
	c.logger.Infof("connected to %s", c.Name())
	return nil
}

func (c *redisConnector) IsConnected(ctx context.Context) bool {
	if c.client == nil {
		return false
	}
	return c.client.Ping(ctx).Err() == nil
}

func (c *redisConnector) Disconnect(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

func (c *redisConnector) GetConnection() *redis.Client {
	return c.client
}
