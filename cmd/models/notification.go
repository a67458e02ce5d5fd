package models

import "gorm.io/gorm"

const (
	NotificationLike    = "like"
	NotificationComment = "commentaire"
	NotificationRetweet = "retweet"
	NotificationFollow  = "follow"
)

// Notification targets one user and is attributed to the sender whose action
// triggered it. Never created when sender == target.
type Notification struct {
	gorm.Model
	UserID   uint   `gorm:"column:user_id;not null;index" json:"user_id"`
	SenderID uint   `gorm:"column:sender_id;not null" json:"sender_id"`
	Kind     string `gorm:"column:kind;size:50;not null" json:"kind"`
	Content  string `gorm:"column:content;type:text" json:"content"`
	Read     bool   `gorm:"column:read;default:false" json:"read"`
	Sender   *User  `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

// Device is a registered push target for a user.
type Device struct {
	gorm.Model
	Token      string `gorm:"not null;uniqueIndex:idx_token_user" json:"token"`
	UserID     uint   `gorm:"not null;index;uniqueIndex:idx_token_user" json:"user_id"`
	DeviceType string `gorm:"type:varchar(50)" json:"device_type"`
	DeviceName string `gorm:"type:varchar(100)" json:"device_name,omitempty"`
}
