// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/intelliconvo/pkg/commons"
	convo_errors "github.com/intelliconvo/pkg/errors"
	"github.com/intelliconvo/pkg/protocol"
)

// Error writes err with the status its code maps to. Server side failures
// are logged; client mistakes are not.
func Error(c *gin.Context, logger commons.Logger, err error) {
	status := convo_errors.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	resp := protocol.ErrorResponse{Message: err.Error()}
	var cErr *convo_errors.ConvoError
	if convo_errors.As(err, &cErr) {
		resp.Message = cErr.Message
		resp.Code = string(cErr.Code)
	}
	c.AbortWithStatusJSON(status, resp)
}

// Bind decodes the JSON body into v, answering 400 on failure.
func Bind(c *gin.Context, logger commons.Logger, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		Error(c, logger, convo_errors.NewInvalidRequest(err.Error()))
		return false
	}
	return true
}
