package models

import (
	"strconv"
	"time"

	"gitlab-insight/internal/shared"
)

// Notification is one inbox entry, stored for every recipient of a targeted NOTIFICATION frame
type Notification struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Category  string    `gorm:"size:32" json:"category"` // security, performance, update, alert
	Priority  string    `gorm:"size:16;not null;default:'medium'" json:"priority"`
	Message   string    `gorm:"not null" json:"message"`
	Read      bool      `gorm:"default:false;index" json:"read"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

// ToShared converts the row to the payload shape used on the wire
func (n *Notification) ToShared() shared.Notification {
	return shared.Notification{
		ID:        strconv.FormatInt(n.ID, 10),
		Message:   n.Message,
		Category:  n.Category,
		Priority:  n.Priority,
		Read:      n.Read,
		Timestamp: n.CreatedAt,
	}
}
