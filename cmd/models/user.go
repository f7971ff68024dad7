package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleClient = "Client"
	RoleExpert = "Expert"
)

type User struct {
	gorm.Model
	Username     string `gorm:"column:username;size:80;uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"column:password_hash;size:255;not null" json:"-"`
	Role         string `gorm:"column:role;size:20;not null" json:"role"`
	FullName     string `gorm:"column:full_name;size:120" json:"full_name"`
	Email        string `gorm:"column:email;size:120" json:"email"`
	Phone        string `gorm:"column:phone;size:20" json:"phone"`
	// Meta holds the specialty for experts and the farming type for farmers.
	Meta string `gorm:"column:meta;size:255" json:"meta"`

	// Farm-specific fields, only populated for farmers.
	FarmName     string `gorm:"column:farm_name;size:120" json:"farm_name"`
	FarmSize     string `gorm:"column:farm_size;size:50" json:"farm_size"`
	Location     string `gorm:"column:location;size:255" json:"location"`
	PrimaryCrops string `gorm:"column:primary_crops;size:255" json:"primary_crops"`

	ProfilePicture    string     `gorm:"column:profile_picture;type:text" json:"profile_picture"`
	NotificationPrefs string     `gorm:"column:notification_prefs;type:text" json:"notification_prefs,omitempty"`
	LastSeen          *time.Time `gorm:"column:last_seen" json:"last_seen,omitempty"`
}

func (User) TableName() string {
	return "users"
}
