package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/logging"
)

// TelemetryClient defines the interface for telemetry operations.
type TelemetryClient interface {
	RecordSlowRequest(ctx context.Context, path string, durationMs int64, traceID, requestID string)
	RecordError(ctx context.Context, path, errorMsg string, statusCode int, traceID, requestID string)
}

// SlowRequestMiddleware records slow requests and 5xx responses with the
// telemetry backend. Large blob uploads and downloads legitimately take a
// while, so the threshold should be set with streaming in mind.
func SlowRequestMiddleware(slowThresholdMs int64, telemetryClient TelemetryClient, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latencyMs := time.Since(start).Milliseconds()
		statusCode := c.Writer.Status()

		traceID := GetTraceIDFromGin(c)
		requestID := GetRequestIDFromGin(c)

		if latencyMs > slowThresholdMs {
			logger.Warn("Slow request detected",
				logging.NewField("path", path),
				logging.NewField("duration_ms", latencyMs),
				logging.NewField("threshold_ms", slowThresholdMs),
			)
			if telemetryClient != nil {
				telemetryClient.RecordSlowRequest(c.Request.Context(), path, latencyMs, traceID, requestID)
			}
		}

		if statusCode >= 500 && telemetryClient != nil {
			errorMsg := "Internal server error"
			if len(c.Errors) > 0 {
				errorMsg = c.Errors.String()
			}
			telemetryClient.RecordError(c.Request.Context(), path, errorMsg, statusCode, traceID, requestID)
		}
	}
}
