package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/apperr"
	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/service"
)

type Handlers struct {
	convs     *service.ConversationService
	msgs      *service.MessageService
	receipts  *service.ReceiptService
	reactions *service.ReactionService
	queries   *service.QueryService
	log       *zap.SugaredLogger
}

func NewHandlers(convs *service.ConversationService, msgs *service.MessageService, receipts *service.ReceiptService, reactions *service.ReactionService, queries *service.QueryService, log *zap.SugaredLogger) *Handlers {
	return &Handlers{convs: convs, msgs: msgs, receipts: receipts, reactions: reactions, queries: queries, log: log}
}

func principal(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}

func reqCtx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context(), 5*time.Second)
}

// fail maps the error taxonomy onto HTTP statuses. Clients rely on the
// Forbidden/NotFound split to choose between "access denied" and
// "doesn't exist", so the mapping must never collapse the two.
func (h *Handlers) fail(c *fiber.Ctx, err error) error {
	switch {
	case apperr.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case apperr.IsForbidden(err):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case apperr.IsConflict(err):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		h.log.Errorw("internal error", "path", c.Path(), "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

func (h *Handlers) createConversation(c *fiber.Ctx) error {
	var req struct {
		Type         string            `json:"type"`
		Participants []string          `json:"participants"`
		Settings     *domain.Settings  `json:"settings"`
		Context      map[string]string `json:"context"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	conv, err := h.convs.Create(ctx, principal(c), service.CreateConversationInput{
		Type:         req.Type,
		Participants: req.Participants,
		Settings:     req.Settings,
		Context:      req.Context,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *Handlers) listConversations(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	convs, err := h.convs.List(ctx, principal(c), int64(c.QueryInt("limit", 50)))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": convs})
}

func (h *Handlers) getConversation(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	conv, err := h.convs.Get(ctx, c.Params("conv_id"), principal(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *Handlers) archiveConversation(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.convs.Archive(ctx, c.Params("conv_id"), principal(c)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) addParticipant(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.convs.AddParticipant(ctx, c.Params("conv_id"), principal(c), req.UserID, req.Role); err != nil {
		return h.fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) removeParticipant(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.convs.RemoveParticipant(ctx, c.Params("conv_id"), principal(c), c.Params("user_id")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) unreadCount(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.convs.GetUnreadCount(ctx, c.Params("conv_id"), principal(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "unread": n})
}

func (h *Handlers) sendMessage(c *fiber.Ctx) error {
	var req struct {
		ConversationID string          `json:"conversation_id"`
		PeerID         string          `json:"peer_id"`
		Type           string          `json:"message_type"`
		Content        string          `json:"content"`
		File           *domain.FileRef `json:"file"`
		ReplyTo        string          `json:"reply_to"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.msgs.Create(ctx, principal(c), service.CreateMessageInput{
		ConversationID: req.ConversationID,
		PeerID:         req.PeerID,
		Type:           req.Type,
		Content:        req.Content,
		File:           req.File,
		ReplyTo:        req.ReplyTo,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"status": "ok", "data": m})
}

func (h *Handlers) editMessage(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.msgs.Edit(ctx, c.Params("msg_id"), principal(c), req.Content)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": m})
}

func (h *Handlers) deleteMessage(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.msgs.Delete(ctx, c.Params("msg_id"), principal(c)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) listMessages(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	msgs, err := h.queries.ListMessages(ctx, c.Params("conv_id"), principal(c), c.QueryInt("page", 1), c.QueryInt("limit", 50))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msgs})
}

func (h *Handlers) searchMessages(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	msgs, err := h.queries.SearchMessages(ctx, c.Params("conv_id"), principal(c), c.Query("q"), c.QueryInt("limit", 50))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msgs})
}

func (h *Handlers) markRead(c *fiber.Ctx) error {
	var req struct {
		MessageIDs []string `json:"message_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.receipts.MarkRead(ctx, c.Params("conv_id"), principal(c), req.MessageIDs)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "marked": n})
}

func (h *Handlers) lastRead(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	rows, err := h.receipts.GetLastReadPerParticipant(ctx, c.Params("conv_id"), principal(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": rows})
}

func (h *Handlers) listReceipts(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	recs, err := h.receipts.GetReceipts(ctx, c.Params("msg_id"), principal(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": recs})
}

func (h *Handlers) addReaction(c *fiber.Ctx) error {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.reactions.Add(ctx, c.Params("msg_id"), principal(c), req.Emoji); err != nil {
		return h.fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) removeReaction(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.reactions.Remove(ctx, c.Params("msg_id"), principal(c), c.Query("emoji")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) reactionCounts(c *fiber.Ctx) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	counts, err := h.reactions.Counts(ctx, c.Params("msg_id"), principal(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": counts})
}
