package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab-insight/internal/microservices/http-api/handler"
	"gitlab-insight/internal/microservices/http-api/middleware"
	"gitlab-insight/internal/microservices/http-api/service"
	"gitlab-insight/internal/microservices/websocket"
)

// Deps are the services the api-server routes are built from
type Deps struct {
	AuthService         service.AuthService
	NotificationService service.NotificationService
	Publisher           websocket.Publisher
	Hub                 *websocket.Hub
	AllowedOrigins      []string
	Metrics             prometheus.Gatherer // nil disables /metrics
	Logger              *slog.Logger
}

// SetupRouter wires every api-server route onto a fresh engine
func SetupRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/check-conn", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "API is alive",
			"clients": deps.Hub.ClientCount(),
		})
	})

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))
	}

	// live-update push endpoint; authenticates from the query token itself
	r.GET("/ws", websocket.WSHandler(deps.Hub, deps.AuthService, websocket.NewUpgrader(deps.AllowedOrigins)))

	api := r.Group("/api")

	handler.NewAuthHandler(deps.AuthService, deps.Logger).
		RegisterRoutes(api.Group("/auth"))

	protected := api.Group("", middleware.AuthMiddleware(deps.AuthService))

	handler.NewNotificationHandler(deps.NotificationService, deps.Logger).
		RegisterRoutes(protected.Group("/notifications"))

	handler.NewUpdateHandler(deps.Publisher, deps.Logger).
		RegisterRoutes(protected.Group("/updates", middleware.RequireAdmin()))

	return r
}
