// Package users persists vault accounts.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type Repository interface {
	// Create inserts user and fills in ID and CreatedAt. A taken username
	// or email yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)

	// RecordFailedLogin counts a wrong password and reports the new count
	// and whether the account is now locked.
	RecordFailedLogin(ctx context.Context, id string, maxAttempts int) (attempts int, locked bool, err error)
	// RecordLogin clears the failure counter and stamps the login time.
	RecordLogin(ctx context.Context, id string, at time.Time) error

	// SetResetToken stores the hash of a password reset token, replacing
	// any earlier one.
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	// ResetPassword swaps in passwordHash for the account holding an
	// unexpired tokenHash, consuming the token and lifting any lockout.
	// An unknown or expired token yields common.ErrorNotFound.
	ResetPassword(ctx context.Context, tokenHash string, passwordHash []byte, now time.Time) (userID string, err error)
}
