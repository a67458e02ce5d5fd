package models

import "gorm.io/gorm"

const (
	CommunityRoleOwner  = "owner"
	CommunityRoleMember = "member"
)

type Community struct {
	gorm.Model
	Name         string `gorm:"column:name;size:255;not null" json:"name"`
	Description  string `gorm:"column:description;type:text;not null" json:"description"`
	CreatedBy    uint   `gorm:"column:created_by;not null" json:"created_by"`
	ProfilePhoto string `gorm:"column:profile_photo;size:500" json:"profile_photo,omitempty"`

	Creator *User             `gorm:"foreignKey:CreatedBy;constraint:OnDelete:CASCADE;" json:"creator,omitempty"`
	Members []CommunityMember `gorm:"foreignKey:CommunityID;constraint:OnDelete:CASCADE;" json:"members,omitempty"`
}

// CommunityMember links a user to a community. The creator is implicitly
// the owner and does not need a membership row.
type CommunityMember struct {
	gorm.Model
	UserID      uint  `gorm:"column:user_id;not null;uniqueIndex:idx_member_user_community" json:"user_id"`
	CommunityID uint  `gorm:"column:community_id;not null;uniqueIndex:idx_member_user_community" json:"community_id"`
	User        *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"user,omitempty"`
}

type CommunityMessage struct {
	gorm.Model
	CommunityID uint   `gorm:"column:community_id;not null;index" json:"community_id"`
	UserID      uint   `gorm:"column:user_id;not null" json:"user_id"`
	Content     string `gorm:"column:content;type:text;not null" json:"content"`
	User        *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"user,omitempty"`
}
