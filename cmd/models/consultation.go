package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ConsultationPending   = "pending"
	ConsultationAccepted  = "accepted"
	ConsultationRejected  = "rejected"
	ConsultationCompleted = "completed"
)

type Consultation struct {
	gorm.Model
	ClientID        uint      `gorm:"column:client_id;not null" json:"client_id"`
	ExpertID        *uint     `gorm:"column:expert_id" json:"expert_id"`
	ExpertName      string    `gorm:"column:expert_name;size:200" json:"expert_name"`
	ExpertSpecialty string    `gorm:"column:expert_specialty;size:200" json:"expert_specialty"`
	Date            time.Time `gorm:"column:date;not null" json:"date"`
	Duration        int       `gorm:"column:duration;default:60" json:"duration"`
	Topic           string    `gorm:"column:topic;size:255" json:"topic"`
	Status          string    `gorm:"column:status;size:50;default:'pending'" json:"status"`

	Client *User `gorm:"foreignKey:ClientID" json:"-"`
	Expert *User `gorm:"foreignKey:ExpertID" json:"-"`
}

func (Consultation) TableName() string {
	return "consultations"
}
