package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/wwwzy/BookAgent/internal/trace"
)

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	ConversationID string `json:"conversation_id"`
	TraceID        string `json:"trace_id"`
	Reply          string `json:"reply"`
	Flow           string `json:"flow"`
}

type conversationHandler struct {
	conv Conversations
}

func (h *conversationHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/conversations")
	g.Post("", h.Create)
	g.Get("/:id", h.Show)
	g.Delete("/:id", h.Delete)
	g.Post("/:id/messages", h.Send)
}

// Create 分配一个新的会话 ID；状态在第一条消息时才落盘
func (h *conversationHandler) Create(c *fiber.Ctx) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation_id": uuid.NewString()})
}

func (h *conversationHandler) Send(c *fiber.Ctx) error {
	id := c.Params("id")
	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message is required")
	}

	ctx := trace.WithConversationID(c.UserContext(), id)
	res, err := h.conv.Respond(ctx, id, req.Message)
	if err != nil {
		return err
	}
	return c.JSON(messageResponse{
		ConversationID: id,
		TraceID:        res.TraceID,
		Reply:          res.Reply,
		Flow:           res.Flow.String(),
	})
}

func (h *conversationHandler) Show(c *fiber.Ctx) error {
	st, err := h.conv.Snapshot(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (h *conversationHandler) Delete(c *fiber.Ctx) error {
	if err := h.conv.Reset(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
