package middleware

import (
	"time"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"gatecheck/internal/auth"
	"gatecheck/internal/dto"
)

func LoggingMiddleware() ginext.HandlerFunc {
	return func(c *ginext.Context) {
		start := time.Now()
		c.Next()
		zlog.Logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

// SessionAuth guards organizer routes. The session token travels in the
// X-Session-Token header; supplier links use capability tokens instead
// and never pass through here.
func SessionAuth(sessions auth.Store) ginext.HandlerFunc {
	return func(c *ginext.Context) {
		tok := c.GetHeader("X-Session-Token")
		if err := sessions.Validate(c.Request.Context(), tok); err != nil {
			dto.UnauthorizedError(c, "Login required")
			c.Abort()
			return
		}
		c.Next()
	}
}
