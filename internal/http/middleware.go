package http

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/toonrelay/pipeline/internal/logger"
)

// RequestLoggerMiddleware logs every request through the shared slog
// logger instead of echo's default middleware.Logger, matching the
// module/action/resource/result field convention every other component
// in this repo uses.
func RequestLoggerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			latency := time.Since(start)
			fields := []any{
				"module", "http",
				"action", "request",
				"resource", req.URL.Path,
				"method", req.Method,
				"status_code", res.Status,
				"duration_ms", latency.Milliseconds(),
				"remote_ip", c.RealIP(),
			}

			switch {
			case res.Status >= 500:
				logger.Error("http request", append(fields, "result", "error")...)
			case res.Status >= 400:
				logger.Warn("http request", append(fields, "result", "failed")...)
			default:
				logger.Debug("http request", append(fields, "result", "ok")...)
			}

			return nil
		}
	}
}
