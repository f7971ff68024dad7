package models

import (
	"gorm.io/gorm"
)

const (
	NotificationConsultation = "consultation"
	NotificationPayment      = "payment"
	NotificationMessage      = "message"
	NotificationSystem       = "system"
)

// Notification is an in-app notification record. There is no external
// delivery channel; clients poll the notification endpoints.
type Notification struct {
	gorm.Model
	UserID      uint   `gorm:"column:user_id;not null;index" json:"user_id"`
	Type        string `gorm:"column:type;size:30;not null" json:"type"`
	Title       string `gorm:"column:title;size:200;not null" json:"title"`
	Description string `gorm:"column:description;type:text" json:"description"`
	Icon        string `gorm:"column:icon;size:50;default:'ri-notification-3-line'" json:"icon"`
	Color       string `gorm:"column:color;size:30;default:'bg-teal-500'" json:"color"`
	Read        bool   `gorm:"column:read;default:false" json:"read"`
	Link        string `gorm:"column:link;size:200" json:"link,omitempty"`
	RefID       *uint  `gorm:"column:ref_id" json:"ref_id,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Notification) TableName() string {
	return "notifications"
}
