// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package health_check_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/intelliconvo/config"
	"github.com/intelliconvo/pkg/commons"
	"github.com/intelliconvo/pkg/connectors"
)

type HealthCheckApi struct {
	cfg        *config.AppConfig
	logger     commons.Logger
	connectors []connectors.Connector
}

// New checks every given connector on readiness. Nil connectors are skipped
// so an optional redis connector can be passed unconditionally.
func New(cfg *config.AppConfig, logger commons.Logger, conns ...connectors.Connector) *HealthCheckApi {
	var live []connectors.Connector
	for _, c := range conns {
		if c != nil {
			live = append(live, c)
		}
	}
	return &HealthCheckApi{cfg: cfg, logger: logger, connectors: live}
}

func (hcApi *HealthCheckApi) Readiness(c *gin.Context) {
	status := gin.H{}
	ready := true
	for _, conn := range hcApi.connectors {
		ok := conn.IsConnected(c.Request.Context())
		status[conn.Name()] = ok
		if !ok {
			hcApi.logger.Warnf("readiness: %s is not connected", conn.Name())
			ready = false
		}
	}
	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "connectors": status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true, "connectors": status})
}

func (hcApi *HealthCheckApi) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"healthy": true, "service": hcApi.cfg.Name, "version": hcApi.cfg.Version})
}
