package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"

	"github.com/fathima-sithara/realtime-service/internal/handlers"
	"github.com/fathima-sithara/realtime-service/internal/presence"
)

type Server struct {
	store presence.Store
}

// NewServer wires the fiber app: the websocket upgrade route plus a
// couple of plain endpoints for liveness and presence lookups.
func NewServer(wsh *handlers.WSHandler, store presence.Store) *fiber.App {
	app := fiber.New()
	app.Use(logger.New())
	s := &Server{store: store}

	api := app.Group("/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(wsh.Handle()))

	api.Get("/presence/:user_id", s.getPresence)

	return app
}

func (s *Server) getPresence(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	status, lastSeen, err := s.store.GetPresence(c.Context(), userID)
	if err != nil {
		status = presence.StatusOffline
	}
	resp := fiber.Map{"userId": userID, "status": status}
	if !lastSeen.IsZero() {
		resp["lastSeen"] = lastSeen.UTC().Format(time.RFC3339)
	}
	return c.JSON(resp)
}
