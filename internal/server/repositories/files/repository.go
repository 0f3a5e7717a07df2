// Package files persists StoredFile metadata rows.
package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type Repository interface {
	// Create inserts f and fills in ID and CreatedAt. A second file with
	// the same (owner, name) yields common.ErrorAlreadyExists.
	Create(ctx context.Context, f *models.StoredFile) (*models.StoredFile, error)
	GetByID(ctx context.Context, id string) (*models.StoredFile, error)
	GetByOwnerAndName(ctx context.Context, ownerID, name string) (*models.StoredFile, error)

	// ReplaceContent points an existing row at new content and stamps
	// updated_at, but only while the row still references expectedKey.
	// A row that is gone or was replaced meanwhile yields
	// common.ErrorNotFound.
	ReplaceContent(ctx context.Context, f *models.StoredFile, expectedKey string) error
	SetVisibility(ctx context.Context, id string, v models.Visibility) error
	Delete(ctx context.Context, id string) error

	ListByOwner(ctx context.Context, ownerID string) ([]*models.StoredFile, error)
	ListPublic(ctx context.Context) ([]*models.StoredFile, error)
	// ListSharedWith returns private files granted to userID whose grant is
	// still usable at now.
	ListSharedWith(ctx context.Context, userID string, now time.Time) ([]*models.SharedFile, error)
}
