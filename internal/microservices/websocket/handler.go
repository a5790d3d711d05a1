package websocket

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gitlab-insight/internal/microservices/http-api/service"
)

// HTTP upgrade handler to WebSocket connections

// TokenValidator checks the access token presented on the upgrade request
type TokenValidator interface {
	ValidateToken(tokenString string) (*service.Claims, error)
}

// NewUpgrader allows browsers from the configured origins and any non-browser client
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
}

// WSHandler: authenticate, then upgrade the HTTP connection to a live-update WebSocket.
// The token comes from the "token" query parameter (browsers cannot set headers
// on the handshake) or from an Authorization: Bearer header.
func WSHandler(hub *Hub, validator TokenValidator, upgrader *websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerOrQueryToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := validator.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// upgrade HTTP connection to WebSocket; the upgrader already wrote the error response
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.logger.Warn("WebSocket upgrade failed", "error", err, "user_id", claims.UserID)
			return
		}

		client := NewClient(
			uuid.NewString(), // unique per connection; one user may have several tabs
			claims.UserID,
			claims.Username,
			conn,
			hub,
		)

		if !hub.register(client) {
			msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down")
			_ = conn.WriteMessage(websocket.CloseMessage, msg)
			conn.Close()
			return
		}

		// start goroutines for read and write pumps
		go client.WritePump()
		go client.ReadPump()
	}
}

func bearerOrQueryToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
