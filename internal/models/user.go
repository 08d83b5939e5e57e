package models

import (
	"strings"
	"time"
)

// Role is the account type of a User
type Role string

const (
	RoleSenior    Role = "SENIOR"
	RoleCaregiver Role = "CAREGIVER"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleSenior || r == RoleCaregiver
}

// User is the profile document stored in the users collection, keyed by the identity provider's id.
// A caregiver's managed seniors are the SENIOR users whose CaregiverID matches the caregiver's ID.
type User struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Email       string    `gorm:"size:255;index" json:"email"`
	Role        Role      `gorm:"size:16;not null;index:idx_users_caregiver,priority:2" json:"role"`
	CaregiverID string    `gorm:"size:64;index:idx_users_caregiver,priority:1" json:"caregiverId,omitempty"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// TableName overrides the table name for User
func (User) TableName() string {
	return "users"
}

// DefaultProfile is the minimal profile synthesized for an identity with no stored profile
func DefaultProfile(id, email string) User {
	return User{
		ID:    id,
		Name:  NameFromEmail(email),
		Email: email,
		Role:  RoleSenior,
	}
}

// NameFromEmail returns the local part of an email address
func NameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at >= 0 {
		return email[:at]
	}
	return email
}

// IsCaregiver reports whether the user manages seniors
func (u User) IsCaregiver() bool {
	return u.Role == RoleCaregiver
}
