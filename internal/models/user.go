package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Claims are the custom claims attached to an account ("admin": true)
type Claims map[string]any

// Scan implements the sql.Scanner interface for reading from database
func (c *Claims) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported claims type %T", value)
	}
	if len(raw) == 0 {
		*c = nil
		return nil
	}
	return json.Unmarshal(raw, c)
}

// Value implements the driver.Valuer interface for writing to database
func (c Claims) Value() (driver.Value, error) {
	if len(c) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// User is an account in the identity directory
type User struct {
	ID          string     `gorm:"primaryKey;type:varchar(128)" json:"uid"`
	Email       string     `gorm:"index" json:"email"`
	DisplayName string     `json:"display_name"`
	PhotoURL    string     `gorm:"type:text" json:"photo_url"`
	Claims      Claims     `gorm:"type:text" json:"claims,omitempty"`
	LastSignIn  *time.Time `gorm:"index" json:"last_sign_in,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the admin claim is set
func (u *User) IsAdmin() bool {
	v, ok := u.Claims["admin"].(bool)
	return ok && v
}

// InactiveSince reports whether the user has not signed in after cutoff.
// Accounts that never signed in are measured from creation.
func (u *User) InactiveSince(cutoff time.Time) bool {
	last := u.CreatedAt
	if u.LastSignIn != nil {
		last = *u.LastSignIn
	}
	return last.Before(cutoff)
}
