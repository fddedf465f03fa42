package model

import "time"

// User is a dashboard account.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:64" json:"username"`
	PasswordHash string    `json:"-"`
	Email        string    `gorm:"size:128" json:"email,omitempty"`
	RealName     string    `gorm:"size:64" json:"realName,omitempty"`
	IsAdmin      bool      `json:"isAdmin"`
	Status       int       `gorm:"default:1" json:"status"`
	CreatedAt    time.Time `json:"createTime"`
	UpdatedAt    time.Time `json:"updateTime"`
}
