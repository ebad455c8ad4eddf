package models

import (
	id "authchain/pkg/domain"
)

// User is a stored account. Modules read and update it through a
// UserRepository; the orchestrator only sees the Subject they assert.
type User struct {
	ID                id.UserID
	Email             string
	Username          string
	PasswordHash      string
	PreferredLanguage string
}

// Subject returns the identity this user asserts.
func (u *User) Subject() *Subject {
	return &Subject{
		UserID:            u.ID.String(),
		Email:             u.Email,
		Username:          u.Username,
		PreferredLanguage: u.PreferredLanguage,
	}
}
