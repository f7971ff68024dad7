package models

import (
	"gorm.io/gorm"
)

// Availability is one weekly schedule entry: a single day of week for a
// single expert. The (expert, day) pair is unique; rows are upserted by the
// full-week schedule update and never deleted individually.
type Availability struct {
	gorm.Model
	ExpertID     uint   `gorm:"column:expert_id;not null;uniqueIndex:idx_expert_day" json:"expert_id"`
	DayOfWeek    string `gorm:"column:day_of_week;size:10;not null;uniqueIndex:idx_expert_day" json:"day_of_week"`
	Enabled      bool   `gorm:"column:enabled;default:true" json:"enabled"`
	StartTime    string `gorm:"column:start_time;size:5;not null;default:'09:00'" json:"start_time"`
	EndTime      string `gorm:"column:end_time;size:5;not null;default:'17:00'" json:"end_time"`
	SlotDuration int    `gorm:"column:slot_duration;default:60" json:"slot_duration"`

	Expert *User `gorm:"foreignKey:ExpertID" json:"-"`
}

func (Availability) TableName() string {
	return "availability"
}

// DayNames lists the days in schedule order, lowercase as stored.
var DayNames = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
