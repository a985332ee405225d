// Package middleware provides the relay's HTTP middleware: request
// correlation and structured request logging.
package middleware

import (
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ripplesocial/relay/internal/logger"
	"go.uber.org/zap"
)

// RequestID tags each request with a correlation id. An X-Request-ID
// header from an upstream proxy wins; otherwise a fresh UUID is issued.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// RequestLogger logs every HTTP request with structured fields. The
// websocket endpoint only passes through here for the upgrade
// handshake; per-event logging happens in the relay itself.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := redactCredential(c.Request.URL.Query())

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if requestID := c.GetString("request_id"); requestID != "" {
			fields = append(fields, zap.String("request_id", requestID))
		}

		switch {
		case status >= 500:
			logger.Log.Error("http request", fields...)
		case status >= 400:
			logger.Log.Warn("http request", fields...)
		default:
			logger.Log.Info("http request", fields...)
		}
	}
}

// redactCredential masks the token query parameter so credentials
// never reach the logs.
func redactCredential(values url.Values) string {
	if values.Get("token") != "" {
		values.Set("token", "REDACTED")
	}
	return values.Encode()
}
