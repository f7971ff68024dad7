package models

import (
	"gorm.io/gorm"
)

const (
	MessageText = "text"
	MessageFile = "file"
)

type Message struct {
	gorm.Model
	ConsultationID uint   `gorm:"column:consultation_id;not null;index" json:"consultation_id"`
	SenderID       uint   `gorm:"column:sender_id;not null" json:"sender_id"`
	Body           string `gorm:"column:body;type:text;not null" json:"message"`
	MessageType    string `gorm:"column:message_type;size:20;default:'text'" json:"message_type"`
	FileName       string `gorm:"column:file_name;size:255" json:"file_name,omitempty"`
	FileURL        string `gorm:"column:file_url;type:text" json:"file_url,omitempty"`
	Read           bool   `gorm:"column:read;default:false" json:"read"`
	Deleted        bool   `gorm:"column:deleted;default:false" json:"deleted"`

	Sender *User `gorm:"foreignKey:SenderID" json:"-"`
}

func (Message) TableName() string {
	return "messages"
}
