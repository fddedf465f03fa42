package model

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrInstanceNotFound is returned by registry updates for unknown ids.
var ErrInstanceNotFound = errors.New("instance not found")

// Instance status values as stored by the registry.
const (
	StatusDisabled = 0
	StatusEnabled  = 1
)

// Instance describes one monitored MySQL target.
type Instance struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:128" json:"name"`
	Host        string    `gorm:"size:255" json:"host"`
	Port        int       `json:"port"`
	Username    string    `gorm:"size:64" json:"username"`
	Password    string    `gorm:"size:255" json:"password,omitempty"`
	Database    string    `gorm:"size:64" json:"database,omitempty"`
	Environment string    `gorm:"size:32" json:"environment,omitempty"` // production/testing/development
	Status      int       `json:"status"`
	CreatedAt   time.Time `json:"createTime"`
	UpdatedAt   time.Time `json:"updateTime"`
}

// Enabled reports whether the registry has the instance switched on.
func (i Instance) Enabled() bool {
	return i.Status == StatusEnabled
}

// Redacted returns a copy safe to hand back to API callers.
func (i Instance) Redacted() Instance {
	i.Password = ""
	return i
}

// ValidateConnection checks the fields needed to reach the instance.
func (i Instance) ValidateConnection() error {
	switch {
	case strings.TrimSpace(i.Host) == "":
		return errors.New("host is required")
	case i.Port <= 0:
		return errors.New("port must be greater than 0")
	case strings.TrimSpace(i.Username) == "":
		return errors.New("username is required")
	case strings.TrimSpace(i.Password) == "":
		return errors.New("password is required")
	}
	return nil
}

// Validate checks a registration payload.
func (i Instance) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return errors.New("name is required")
	}
	return i.ValidateConnection()
}
