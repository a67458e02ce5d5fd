package models

import "gorm.io/gorm"

type Post struct {
	gorm.Model
	UserID    uint      `gorm:"column:user_id;not null" json:"user_id"`
	Content   string    `gorm:"column:content;type:text" json:"content"`
	Media     string    `gorm:"column:media;size:500" json:"media,omitempty"`
	MediaType string    `gorm:"column:media_type;size:20" json:"media_type,omitempty"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Comments  []Comment `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE;" json:"comments,omitempty"`
	Likes     []Like    `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE;" json:"likes,omitempty"`
	Retweets  []Retweet `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE;" json:"retweets,omitempty"`
}

type Comment struct {
	gorm.Model
	UserID  uint    `gorm:"column:user_id;not null" json:"user_id"`
	PostID  uint    `gorm:"column:post_id;not null" json:"post_id"`
	Content string  `gorm:"column:content;type:text;not null" json:"content"`
	Media   string  `gorm:"column:media;size:500" json:"media,omitempty"`
	User    *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Replies []Reply `gorm:"foreignKey:CommentID;constraint:OnDelete:CASCADE;" json:"replies,omitempty"`
}

type Reply struct {
	gorm.Model
	UserID    uint   `gorm:"column:user_id;not null" json:"user_id"`
	CommentID uint   `gorm:"column:comment_id;not null" json:"comment_id"`
	Content   string `gorm:"column:content;type:text;not null" json:"content"`
	User      *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Like and Retweet carry a unique (user, post) pair so a duplicate action
// fails at the constraint and surfaces as a conflict, not a second row.
type Like struct {
	gorm.Model
	UserID uint  `gorm:"column:user_id;not null;uniqueIndex:idx_like_user_post" json:"user_id"`
	PostID uint  `gorm:"column:post_id;not null;uniqueIndex:idx_like_user_post" json:"post_id"`
	User   *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

type Retweet struct {
	gorm.Model
	UserID uint  `gorm:"column:user_id;not null;uniqueIndex:idx_retweet_user_post" json:"user_id"`
	PostID uint  `gorm:"column:post_id;not null;uniqueIndex:idx_retweet_user_post" json:"post_id"`
	User   *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Post   *Post `gorm:"foreignKey:PostID" json:"post,omitempty"`
}
