package routes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"gitlab-insight/internal/microservices/http-api/models"
	"gitlab-insight/internal/microservices/http-api/service"
	"gitlab-insight/internal/microservices/websocket"
	"gitlab-insight/internal/shared"
)

// stubAuth accepts two fixed tokens
type stubAuth struct{}

func (stubAuth) Register(context.Context, string, string, string) (*models.User, error) {
	return nil, service.ErrNameInUse
}

func (stubAuth) Login(context.Context, string, string) (string, *models.User, error) {
	return "", nil, service.ErrInvalidCredentials
}

func (stubAuth) ValidateToken(token string) (*service.Claims, error) {
	switch token {
	case "admin":
		return &service.Claims{UserID: "a1", Username: "root", Role: models.RoleAdmin}, nil
	case "user":
		return &service.Claims{UserID: "u1", Username: "dev", Role: models.RoleUser}, nil
	}
	return nil, service.ErrInvalidToken
}

func (stubAuth) AccessTokenTTL() time.Duration { return time.Minute }

type stubNotifications struct{}

func (stubNotifications) GetUnread(context.Context, string) ([]models.Notification, error) {
	return nil, nil
}
func (stubNotifications) MarkAsRead(context.Context, string, int64) error { return nil }
func (stubNotifications) MarkAllAsRead(context.Context, string) (int64, error) {
	return 0, nil
}
func (stubNotifications) Record(context.Context, []string, shared.Notification) error { return nil }

func newTestRouter(t *testing.T, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := websocket.NewHub(nil, nil)
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})

	return SetupRouter(Deps{
		AuthService:         stubAuth{},
		NotificationService: stubNotifications{},
		Publisher:           &websocket.DirectPublisher{Hub: hub},
		Hub:                 hub,
		Metrics:             gatherer,
	})
}

func serve(router *gin.Engine, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupRouter(t *testing.T) {
	router := newTestRouter(t, nil)
	update := []byte(`{"type":"PROJECT_UPDATE","data":{"project_id":1,"name":"group/app","status":"active"}}`)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       []byte
		wantStatus int
	}{
		{"health", http.MethodGet, "/check-conn", "", nil, http.StatusOK},
		{"metrics disabled", http.MethodGet, "/metrics", "", nil, http.StatusNotFound},
		{"ws without token", http.MethodGet, "/ws", "", nil, http.StatusUnauthorized},
		{"login is public", http.MethodPost, "/api/auth/login", "", []byte(`{"username":"x","password":"y"}`), http.StatusUnauthorized},
		{"inbox needs auth", http.MethodGet, "/api/notifications/unread", "", nil, http.StatusUnauthorized},
		{"inbox with token", http.MethodGet, "/api/notifications/unread", "user", nil, http.StatusOK},
		{"publish as user", http.MethodPost, "/api/updates", "user", update, http.StatusForbidden},
		{"publish as admin", http.MethodPost, "/api/updates", "admin", update, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestSetupRouter_MetricsEnabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	websocket.NewMetrics(reg)
	router := newTestRouter(t, reg)

	w := serve(router, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "insight_ws_connected_clients")
}
