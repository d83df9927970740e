package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification types. New types can be added without a schema change.
const (
	NotificationTypeLike    = "like"
	NotificationTypeComment = "comment"
	NotificationTypeMention = "mention"
)

// NotificationPayload carries the type-specific context of a notification.
// Stored as JSON so each type can attach what it needs.
type NotificationPayload struct {
	PostID    uint   `json:"post_id,omitempty"`
	Region    string `json:"region,omitempty"`
	ActorID   uint   `json:"actor_id,omitempty"`
	ActorName string `json:"actor_name,omitempty"`
	CommentID uint   `json:"comment_id,omitempty"`
}

// Notification is a durable record addressed to a single recipient. Read is
// monotonic: once true it never flips back.
type Notification struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	RecipientID uint                `gorm:"not null;index" json:"recipient_id"`
	Type        string              `gorm:"not null" json:"type"`
	Message     string              `gorm:"not null" json:"message"`
	Payload     NotificationPayload `gorm:"serializer:json" json:"payload"`
	Read        bool                `gorm:"not null;default:false;index" json:"read"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	DeletedAt   gorm.DeletedAt      `gorm:"index" json:"-"`
}
