package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

// ResetNotifier delivers password reset tokens to account holders.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, user *models.User, token string, expiresAt time.Time) error
}

// LogResetNotifier writes reset tokens to the server log. It stands in for
// a mail gateway; the token is never returned over the API.
type LogResetNotifier struct {
	logger logging.Logger
}

func NewLogResetNotifier(l logging.Logger) *LogResetNotifier {
	return &LogResetNotifier{logger: l.With("module", "reset_notifier")}
}

func (n *LogResetNotifier) NotifyPasswordReset(ctx context.Context, user *models.User, token string, expiresAt time.Time) error {
	n.logger.Info(ctx, "password reset requested",
		"user_id", user.ID, "email", user.Email, "reset_token", token, "expires_at", expiresAt)
	return nil
}
