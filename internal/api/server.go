package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/fathima-sithara/conversation-service/internal/auth"
	"github.com/fathima-sithara/conversation-service/internal/config"
	"github.com/fathima-sithara/conversation-service/internal/metrics"
	"github.com/fathima-sithara/conversation-service/internal/middleware"
)

func NewServer(cfg *config.Config, h *Handlers, jv *auth.Validator, rl *middleware.RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(logger.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/v1")

	api.Use(func(c *fiber.Ctx) error {
		hdr := c.Get("Authorization")
		if hdr == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing auth"})
		}
		const pref = "Bearer "
		if len(hdr) <= len(pref) || hdr[:len(pref)] != pref {
			return c.Status(401).JSON(fiber.Map{"error": "invalid auth"})
		}
		sub, err := jv.Validate(hdr[len(pref):])
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals("user_id", sub)
		return c.Next()
	})

	if rl != nil {
		api.Use(rl.MiddlewareByKey(func(c *fiber.Ctx) string {
			if uid, ok := c.Locals("user_id").(string); ok {
				return uid
			}
			return c.IP()
		}))
	}

	api.Post("/conversations", h.createConversation)
	api.Get("/conversations", h.listConversations)
	api.Get("/conversations/:conv_id", h.getConversation)
	api.Post("/conversations/:conv_id/archive", h.archiveConversation)
	api.Post("/conversations/:conv_id/participants", h.addParticipant)
	api.Delete("/conversations/:conv_id/participants/:user_id", h.removeParticipant)
	api.Get("/conversations/:conv_id/unread", h.unreadCount)
	api.Get("/conversations/:conv_id/messages", h.listMessages)
	api.Get("/conversations/:conv_id/search", h.searchMessages)
	api.Post("/conversations/:conv_id/read", h.markRead)
	api.Get("/conversations/:conv_id/last-read", h.lastRead)

	api.Post("/messages", h.sendMessage)
	api.Patch("/messages/:msg_id", h.editMessage)
	api.Delete("/messages/:msg_id", h.deleteMessage)
	api.Get("/messages/:msg_id/receipts", h.listReceipts)
	api.Post("/messages/:msg_id/reactions", h.addReaction)
	api.Delete("/messages/:msg_id/reactions", h.removeReaction)
	api.Get("/messages/:msg_id/reactions", h.reactionCounts)

	return app
}
