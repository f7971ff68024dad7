package models

import (
	"gorm.io/gorm"
)

const (
	PaymentCompleted = "completed"
	PaymentRefunded  = "refunded"
)

// Payment records a farmer paying an expert for one consultation. The unique
// index on consultation_id is what makes duplicate payments impossible under
// concurrent requests, not the application-level existence check.
type Payment struct {
	gorm.Model
	ConsultationID uint    `gorm:"column:consultation_id;not null;uniqueIndex" json:"consultation_id"`
	ClientID       uint    `gorm:"column:client_id;not null" json:"client_id"`
	ExpertID       uint    `gorm:"column:expert_id;not null" json:"expert_id"`
	Amount         float64 `gorm:"column:amount;not null" json:"amount"`
	PlatformFee    float64 `gorm:"column:platform_fee;default:0" json:"platform_fee"`
	ExpertPayout   float64 `gorm:"column:expert_payout;not null" json:"expert_payout"`
	Reference      string  `gorm:"column:reference;size:64" json:"reference"`
	Status         string  `gorm:"column:status;size:20;default:'completed'" json:"status"`

	Consultation *Consultation `gorm:"foreignKey:ConsultationID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}
