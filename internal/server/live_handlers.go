package server

import (
	"context"
	"encoding/json"

	"meshi/internal/middleware"
	"meshi/internal/models"
	"meshi/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// LiveUpgradeRequired admits WebSocket upgrades that carry a valid single-use
// ticket from POST /api/ws/ticket.
func (s *Server) LiveUpgradeRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		userID, err := s.tokens.RedeemWSTicket(c.UserContext(), c.Query("ticket"))
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		c.Locals("userID", userID)
		c.SetUserContext(middleware.WithUserID(c.UserContext(), userID))
		return c.Next()
	}
}

// LiveHandler serves the live subscription socket. Clients send subscribe and
// unsubscribe requests; the hub answers with ordered snapshots.
func (s *Server) LiveHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		logger := observability.NewWSLogger(s.liveHub.Name())

		userID, ok := conn.Locals("userID").(uint)
		if !ok || userID == 0 {
			_ = conn.WriteMessage(websocket.TextMessage, liveError("unauthorized"))
			_ = conn.Close()
			return
		}

		client, err := s.liveHub.Register(userID, conn)
		if err != nil {
			logger.LogError(context.Background(), userID, err, "register")
			_ = conn.WriteMessage(websocket.TextMessage, liveError(err.Error()))
			_ = conn.Close()
			return
		}

		// Start write pump in a goroutine
		go client.WritePump()

		// Read pump runs in the main handler goroutine (blocking)
		client.ReadPump()
	})
}

func liveError(msg string) []byte {
	data, _ := json.Marshal(models.LiveMessage{Type: models.LiveMsgError, Error: msg})
	return data
}
