package handler

import (
	"os"
	"strconv"

	"plant-diagnostics-web/internal/pkg/logger"
	internalWS "plant-diagnostics-web/internal/websocket"
	"plant-diagnostics-web/pkg/predict"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ChannelHandler upgrades browsers onto the prediction bridge. Identity
// comes from a JWT when the backend issued one, otherwise from a plain
// userId query parameter; anonymous viewers ride along as guests and only
// see broadcast feed traffic.
type ChannelHandler struct {
	hub    *internalWS.Hub
	logger logger.ILogger
}

func NewChannelHandler(hub *internalWS.Hub, log logger.ILogger) *ChannelHandler {
	return &ChannelHandler{hub: hub, logger: log}
}

func (h *ChannelHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/ws/predictions", h.ServeWs)
}

// ServeWs handles websocket requests from the peer.
func (h *ChannelHandler) ServeWs(c *fiber.Ctx) error {
	userID := h.identify(c)

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("ChannelHandler", "Starting WebSocket session", map[string]interface{}{"user_id": userID})
			internalWS.ServeWs(h.hub, conn, userID)
			h.logger.Info("ChannelHandler", "WebSocket session ended", map[string]interface{}{"user_id": userID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

func (h *ChannelHandler) identify(c *fiber.Ctx) int {
	// Priority 1: JWT (query param for browsers, header for tooling).
	tokenStr := c.Query("token")
	if tokenStr == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}
	if tokenStr != "" {
		if id, ok := h.userIDFromToken(tokenStr); ok {
			return id
		}
	}

	// Priority 2: plain userId query parameter.
	if raw := c.Query("userId"); raw != "" {
		if id, err := strconv.Atoi(raw); err == nil && id >= 0 {
			return id
		}
	}

	return predict.GuestUserID
}

func (h *ChannelHandler) userIDFromToken(tokenStr string) (int, bool) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		h.logger.Warn("ChannelHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err})
		return 0, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false
	}
	// The backend issues numeric user ids; JSON numbers decode as float64.
	switch v := claims["user_id"].(type) {
	case float64:
		if v >= 0 {
			return int(v), true
		}
	case string:
		if id, err := strconv.Atoi(v); err == nil && id >= 0 {
			return id, true
		}
	}
	return 0, false
}
