package users

import "time"

// User represents an operator account. PasswordHash is a bcrypt digest and
// never leaves the package boundary.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
