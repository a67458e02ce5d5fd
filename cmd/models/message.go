package models

import "gorm.io/gorm"

// Conversation links an unordered pair of users. At most one row exists per
// pair; lookups check both column orders before creating (see messaging
// service).
type Conversation struct {
	gorm.Model
	SenderID   uint  `gorm:"column:sender_id;not null;index" json:"sender_id"`
	ReceiverID uint  `gorm:"column:receiver_id;not null;index" json:"receiver_id"`
	Sender     *User `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE;" json:"sender,omitempty"`
	Receiver   *User `gorm:"foreignKey:ReceiverID;constraint:OnDelete:CASCADE;" json:"receiver,omitempty"`
}

type Message struct {
	gorm.Model
	ConversationID uint   `gorm:"column:conversation_id;not null;index" json:"conversation_id"`
	UserID         uint   `gorm:"column:user_id;not null" json:"user_id"`
	Content        string `gorm:"column:content;type:text;not null" json:"content"`
	Media          string `gorm:"column:media;size:500" json:"media,omitempty"`
	Read           bool   `gorm:"column:is_read;default:false" json:"is_read"`

	Conversation *Conversation `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE;" json:"-"`
	User         *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}
