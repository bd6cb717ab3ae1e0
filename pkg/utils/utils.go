// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package utils

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/intelliconvo/pkg/commons"
)

func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}

func Ptr[T any](v T) *T {
	return &v
}

// ParseID parses a positive integer entity id.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be positive", s)
	}
	return id, nil
}

// Go runs fn on a new goroutine, logging instead of crashing on panic.
func Go(ctx context.Context, logger commons.Logger, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("recovered from panic: %v\n%s", r, debug.Stack())
			}
		}()
		fn(ctx)
	}()
}
