// Package server 通过 HTTP 暴露对话编排器
package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wwwzy/BookAgent/internal/agent"
	"github.com/wwwzy/BookAgent/internal/logging"
	"github.com/wwwzy/BookAgent/internal/session"
)

type Config struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Conversations 为 HTTP 层依赖的编排器能力
type Conversations interface {
	Respond(ctx context.Context, conversationID, message string) (agent.TurnResult, error)
	Snapshot(ctx context.Context, conversationID string) (*agent.AgentState, error)
	Reset(ctx context.Context, conversationID string) error
}

type Server struct {
	app    *fiber.App
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, conv Conversations, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger)
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	app := fiber.New(fiber.Config{
		AppName:               "bookagent",
		BodyLimit:             1 * 1024 * 1024,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(traceMiddleware())
	app.Use(accessLog(logger))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	h := &conversationHandler{conv: conv}
	h.RegisterRoutes(app.Group("/api"))

	return &Server{app: app, cfg: cfg, logger: logger}
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Run 监听 cfg.Addr，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
			return err
		}
		return <-errCh
	}
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			code = fe.Code
		case errors.Is(err, agent.ErrStateNotFound):
			code = fiber.StatusNotFound
		case errors.Is(err, agent.ErrStepLimit), errors.Is(err, agent.ErrRecoveryLimit):
			code = fiber.StatusUnprocessableEntity
		case errors.Is(err, session.ErrLocked):
			code = fiber.StatusConflict
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("path", c.Path()),
				zap.String("trace_id", traceIDOf(c)),
				zap.Error(err),
			)
		}
		return c.Status(code).JSON(fiber.Map{
			"message":  err.Error(),
			"trace_id": traceIDOf(c),
		})
	}
}
