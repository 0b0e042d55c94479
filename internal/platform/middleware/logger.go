package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger attaches a request scoped logger to the request context, so
// services can log through zerolog.Ctx, and writes one line per request.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			reqLogger := logger.With().Str("request_id", rid).Logger()
			c.SetRequest(req.WithContext(reqLogger.WithContext(req.Context())))

			err := next(c)

			status := c.Response().Status
			evt := reqLogger.Info()
			if err != nil {
				cause := err
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
					if he.Internal != nil {
						cause = he.Internal
					}
				} else {
					status = http.StatusInternalServerError
				}
				if status >= http.StatusInternalServerError {
					evt = reqLogger.Error().Err(cause)
				} else {
					evt = reqLogger.Warn().Err(cause)
				}
			}

			evt.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
