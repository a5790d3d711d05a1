package dto

import (
	"encoding/json"

	"gitlab-insight/internal/shared"
)

// PublishUpdateRequest: one live update to push to connected dashboards
type PublishUpdateRequest struct {
	Type    string          `json:"type" binding:"required,oneof=PROJECT_UPDATE PIPELINE_UPDATE MERGE_REQUEST_UPDATE NOTIFICATION"`
	Data    json.RawMessage `json:"data" binding:"required"`
	UserIDs []string        `json:"user_ids,omitempty" binding:"omitempty,dive,required"` // empty = broadcast
}

// PublishUpdateResponse: acknowledgement of an accepted update
type PublishUpdateResponse struct {
	Type       string `json:"type"`
	Recipients int    `json:"recipients"` // 0 = broadcast
}

// NotificationsResponse: unread inbox entries for the caller
type NotificationsResponse struct {
	Notifications []shared.Notification `json:"notifications"`
	Count         int                   `json:"count"`
}

// MarkAllReadResponse: number of entries flipped to read
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}
