// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package conversation_api assembles the conversation server: storage, the
// hub, the optional redis relay, analysis and the gin engine.
package conversation_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	internal_analysis "github.com/intelliconvo/api/conversation-api/internal/analysis"
	internal_hub "github.com/intelliconvo/api/conversation-api/internal/hub"
	internal_relay "github.com/intelliconvo/api/conversation-api/internal/relay"
	internal_service "github.com/intelliconvo/api/conversation-api/internal/service"
	internal_storage "github.com/intelliconvo/api/conversation-api/internal/storage"
	conversation_routers "github.com/intelliconvo/api/conversation-api/router"
	"github.com/intelliconvo/config"
	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/connectors"
	"github.com/intelliconvo/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

type AppRunner struct {
	Cfg      *config.AppConfig
	Logger   commons.Logger
	Database connectors.DatabaseConnector
	Redis    connectors.RedisConnector

	E        *gin.Engine
	Hub      *internal_hub.Hub
	Store    internal_storage.Store
	Service  internal_service.ConversationService
	Analyzer internal_analysis.Analyzer
	relay    *internal_relay.Relay
}

// NewAppRunner builds the connectors without connecting them.
func NewAppRunner(cfg *config.AppConfig, logger commons.Logger) (*AppRunner, error) {
	db, err := connectors.NewDatabaseConnector(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	app := &AppRunner{Cfg: cfg, Logger: logger, Database: db}
	if cfg.Redis.Enabled {
		app.Redis = connectors.NewRedisConnector(cfg.Redis, logger)
	}
	return app, nil
}

// Init connects every connector, migrates storage and registers routes.
func (app *AppRunner) Init(ctx context.Context) error {
	if err := app.Database.Connect(ctx); err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	app.Store = internal_storage.NewStore(app.Database, app.Logger)
	if err := app.Store.Migrate(ctx); err != nil {
		return err
	}

	app.Hub = internal_hub.NewHub(app.Store, app.Logger)
	if app.Redis != nil {
		if err := app.Redis.Connect(ctx); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		app.relay = internal_relay.NewRelay(app.Redis.GetConnection(), app.Cfg.Redis.ChannelPrefix, app.Logger)
		app.Hub.WithPublisher(app.relay)
	}
	app.Service = internal_service.NewConversationService(app.Store, app.Hub, app.Logger)

	analyzer, err := internal_analysis.NewAnalyzer(app.Cfg.Analysis, app.Logger)
	if err != nil {
		return err
	}
	app.Analyzer = analyzer

	app.AllRouters()
	return nil
}

func (app *AppRunner) AllRouters() {
	if utils.FromEnvironmentStr(app.Cfg.Env) == utils.PRODUCTION {
		gin.SetMode(gin.ReleaseMode)
	}
	app.E = gin.New()
	app.E.Use(gin.Recovery())
	app.E.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	app.E.Use(app.requestLogger())

	conversation_routers.HealthCheckRoutes(app.Cfg, app.E, app.Logger, app.connectors()...)
	conversation_routers.SessionRoutes(app.Cfg, app.E, app.Logger, app.Service)
	conversation_routers.AnalysisRoutes(app.Cfg, app.E, app.Logger, app.Analyzer)
	conversation_routers.TalkRoutes(app.Cfg, app.E, app.Logger, app.Hub, app.Service)
}

func (app *AppRunner) connectors() []connectors.Connector {
	conns := []connectors.Connector{app.Database}
	if app.Redis != nil {
		conns = append(conns, app.Redis)
	}
	return conns
}

func (app *AppRunner) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		app.Logger.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Run serves http and, when redis is enabled, the relay subscription until
// ctx is done or one of them fails.
func (app *AppRunner) Run(ctx context.Context) error {
	srv := &http.Server{Addr: app.Cfg.Address(), Handler: app.E}
	// Shutdown does not track hijacked websocket connections.
	srv.RegisterOnShutdown(app.closeChannels)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Infof("%s listening on %s", app.Cfg.Name, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if app.relay != nil {
		g.Go(func() error {
			return app.relay.Run(gctx, app.Hub)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (app *AppRunner) closeChannels() {
	if app.Hub != nil {
		app.Hub.CloseAll()
	}
}

// Close drops every open channel and disconnects every connector.
func (app *AppRunner) Close(ctx context.Context) {
	app.closeChannels()
	for _, conn := range app.connectors() {
		if err := conn.Disconnect(ctx); err != nil {
			app.Logger.Warnf("disconnect %s: %v", conn.Name(), err)
		}
	}
	app.Logger.Sync()
}
