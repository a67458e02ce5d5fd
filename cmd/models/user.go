package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Username       string `gorm:"column:username;size:255;not null;uniqueIndex" json:"username"`
	Email          string `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	PasswordHash   string `gorm:"column:password_hash;size:255;not null" json:"-"`
	Bio            string `gorm:"column:bio;type:text" json:"bio"`
	ProfilePicture string `gorm:"column:profile_picture;size:500;default:/uploads/default-profile.png" json:"profile_picture"`
	IsAdmin        bool   `gorm:"column:is_admin;default:false" json:"is_admin"`

	// Deleting a user takes every owned row with it.
	Posts         []Post         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Comments      []Comment      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Replies       []Reply        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Likes         []Like         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Retweets      []Retweet      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Stories       []Story        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Wallet        *Wallet        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Transactions  []Transaction  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Notifications []Notification `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
}

// UserSummary is the shape embedded in follower lists, feeds and search
// results: just enough identity to render an avatar line.
type UserSummary struct {
	ID             uint   `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		ProfilePicture: u.ProfilePicture,
	}
}

type PasswordResetToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null"`
	Token     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}

// Follow is a directed edge follower -> following. The pair is unique and
// a user cannot follow themselves (enforced in the social service).
type Follow struct {
	gorm.Model
	FollowerID  uint  `gorm:"column:follower_id;not null;uniqueIndex:idx_follower_following" json:"follower_id"`
	FollowingID uint  `gorm:"column:following_id;not null;uniqueIndex:idx_follower_following" json:"following_id"`
	Follower    *User `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE;" json:"follower,omitempty"`
	Following   *User `gorm:"foreignKey:FollowingID;constraint:OnDelete:CASCADE;" json:"following,omitempty"`
}

func (Follow) TableName() string {
	return "follows"
}
