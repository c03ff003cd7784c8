package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wwwzy/BookAgent/internal/trace"
)

const (
	headerTraceID = "X-Trace-Id"
	localTraceID  = "trace_id"
)

// traceMiddleware 沿用请求头里的 trace id，没有则生成一个，并写入 UserContext
func traceMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(headerTraceID)
		if id == "" {
			id = trace.NewTraceID()
		}
		c.Locals(localTraceID, id)
		c.SetUserContext(trace.WithTraceID(c.UserContext(), id))
		c.Set(headerTraceID, id)
		return c.Next()
	}
}

func accessLog(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			// 错误由 ErrorHandler 写响应，这里只记录
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		logger.Debug("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("trace_id", traceIDOf(c)),
		)
		return err
	}
}

func traceIDOf(c *fiber.Ctx) string {
	if id, ok := c.Locals(localTraceID).(string); ok {
		return id
	}
	return ""
}
