// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"

	"github.com/mindloom/mindloom/pkg/api/middleware"
)

func getRequestID(ctx context.Context) string {
	if id := middleware.GetRequestID(ctx); id != "" {
		return id
	}
	return "unknown"
}
