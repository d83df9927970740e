// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"statescape/internal/middleware"
	"statescape/internal/observability"
	"statescape/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// wsTicketTTL bounds how long an issued ticket stays redeemable.
const wsTicketTTL = 30 * time.Second

var wsLog = observability.NewWSLogger("engagement hub")

// IssueWSTicket handles POST /api/ws/ticket. It mints a short-lived
// single-use ticket the browser passes as a query parameter on the upgrade
// request, where Authorization headers are unavailable.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	if s.redis == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "WebSocket tickets unavailable",
		})
	}

	ticket := uuid.NewString()
	if err := s.redis.Set(c.Context(), wsTicketKey(ticket), fmt.Sprint(userID), wsTicketTTL).Err(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Failed to issue WebSocket ticket",
		})
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(wsTicketTTL.Seconds()),
	})
}

// incomingFrame is what clients send over the socket to manage room
// subscriptions.
type incomingFrame struct {
	Type   string `json:"type"`
	PostID uint   `json:"post_id"`
}

// WebsocketHandler returns a websocket handler that registers connections with
// the engagement hub. Authentication is handled by route middleware and userID
// is read from connection locals.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			_ = conn.Close()
			return
		}
		userID, ok := userIDVal.(uint)
		if !ok {
			_ = conn.Close()
			return
		}

		ctx := context.Background()

		// Register connection with scaling guardrails; the hub joins the
		// user's own room so notifications reach every device.
		client, err := s.hub.Register(userID, conn)
		if err != nil {
			wsLog.LogError(ctx, userID, "", err, "register")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}
		wsLog.LogConnect(ctx, userID, realtime.UserTopic(userID).String())
		defer func() {
			s.hub.UnregisterClient(client)
			wsLog.LogDisconnect(ctx, userID, realtime.UserTopic(userID).String(), "read loop ended")
		}()

		client.IncomingHandler = func(c *realtime.Client, message []byte) {
			var frame incomingFrame
			if err := json.Unmarshal(message, &frame); err != nil {
				wsLog.LogError(ctx, userID, "", err, "invalid frame")
				return
			}
			observability.WebSocketEventsTotal.WithLabelValues(frame.Type).Inc()

			switch frame.Type {
			case "join-post":
				if frame.PostID == 0 {
					return
				}
				s.hub.Join(c, realtime.PostTopic(frame.PostID))
				wsLog.LogMessage(ctx, userID, realtime.PostTopic(frame.PostID).String(), "join-post")
				s.sendAck(c, "joined", frame.PostID)

			case "leave-post":
				if frame.PostID == 0 {
					return
				}
				s.hub.Leave(c, realtime.PostTopic(frame.PostID))
				wsLog.LogMessage(ctx, userID, realtime.PostTopic(frame.PostID).String(), "leave-post")
				s.sendAck(c, "left", frame.PostID)

			case "ping":
				s.sendAck(c, "pong", 0)
			}
		}

		s.sendWelcome(client, userID)

		go client.WritePump()

		// Read pump runs in the handler goroutine; returning tears the
		// connection down and the deferred unregister drops all rooms.
		client.ReadPump()
	})
}

func (s *Server) sendWelcome(client *realtime.Client, userID uint) {
	welcome, err := json.Marshal(map[string]interface{}{
		"type":    "connected",
		"payload": map[string]interface{}{"user_id": userID},
	})
	if err != nil {
		return
	}
	client.TrySend(welcome)
}

func (s *Server) sendAck(client *realtime.Client, ackType string, postID uint) {
	payload := map[string]interface{}{}
	if postID != 0 {
		payload["post_id"] = postID
	}
	ack, err := json.Marshal(map[string]interface{}{
		"type":    ackType,
		"payload": payload,
	})
	if err != nil {
		return
	}
	client.TrySend(ack)
}
