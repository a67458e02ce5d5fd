package models

import "gorm.io/gorm"

// StoryTTL bounds how long a story stays visible. Reads filter on the
// window; the cron sweep deletes expired rows opportunistically.
const StoryTTLHours = 24

type Story struct {
	gorm.Model
	UserID    uint   `gorm:"column:user_id;not null;index" json:"user_id"`
	Content   string `gorm:"column:content;type:text" json:"content"`
	Media     string `gorm:"column:media;size:500" json:"media,omitempty"`
	MediaType string `gorm:"column:media_type;size:20" json:"media_type,omitempty"`
	Mentions  string `gorm:"column:mentions;type:text" json:"mentions,omitempty"`
	User      *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
