package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab-insight/internal/microservices/http-api/dto"
)

func TestHTTPClient_Login(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req dto.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "hunter22" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(dto.AuthResponse{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 900, Username: req.Username})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL + "/")
	ctx := context.Background()

	resp, err := c.Login(ctx, &dto.LoginRequest{Username: "dev", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "tok", resp.AccessToken)
	assert.Equal(t, "dev", resp.Username)

	_, err = c.Login(ctx, &dto.LoginRequest{Username: "dev", Password: "nope"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid credentials", apiErr.Message)
}

func TestHTTPClient_SendsBearerToken(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path+" "+r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/notifications/unread":
			_, _ = w.Write([]byte(`{"notifications":[{"id":"4","message":"hi","read":false}],"count":1}`))
		case "/api/notifications/4/read":
			w.WriteHeader(http.StatusNoContent)
		case "/api/notifications/read-all":
			_, _ = w.Write([]byte(`{"updated":2}`))
		case "/api/updates":
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"type":"PROJECT_UPDATE","recipients":0}`))
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	c.SetToken("tok")
	ctx := context.Background()

	unread, err := c.UnreadNotifications(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, unread.Count)
	assert.Equal(t, "hi", unread.Notifications[0].Message)

	require.NoError(t, c.MarkNotificationRead(ctx, "4"))

	n, err := c.MarkAllNotificationsRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	published, err := c.PublishUpdate(ctx, &dto.PublishUpdateRequest{Type: "PROJECT_UPDATE", Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, "PROJECT_UPDATE", published.Type)

	assert.Equal(t, []string{
		"GET /api/notifications/unread Bearer tok",
		"PUT /api/notifications/4/read Bearer tok",
		"PUT /api/notifications/read-all Bearer tok",
		"POST /api/updates Bearer tok",
	}, seen)
}

func TestAPIError_Message(t *testing.T) {
	assert.Equal(t, "api-server answered 403: insufficient permissions",
		(&APIError{StatusCode: 403, Message: "insufficient permissions"}).Error())
	assert.Equal(t, "api-server answered 502 Bad Gateway", (&APIError{StatusCode: 502}).Error())
}
