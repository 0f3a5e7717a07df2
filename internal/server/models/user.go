package models

import "time"

type User struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time

	// FailedLoginAttempts counts wrong passwords since the last successful
	// login or password reset. Locked is set once it reaches the limit.
	FailedLoginAttempts int
	Locked              bool
	LastLoginAt         *time.Time
}
