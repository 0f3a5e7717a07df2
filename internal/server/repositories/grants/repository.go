// Package grants persists share grants and owns the atomic download counter.
package grants

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type Repository interface {
	// Create inserts g and fills in ID and CreatedAt. A second grant for
	// the same (file, grantee) yields common.ErrorAlreadyExists.
	Create(ctx context.Context, g *models.ShareGrant) (*models.ShareGrant, error)
	GetByID(ctx context.Context, id string) (*models.ShareGrant, error)
	GetByFileAndGrantee(ctx context.Context, fileID, granteeID string) (*models.ShareGrant, error)
	ListByFile(ctx context.Context, fileID string) ([]*models.ShareGrant, error)
	Delete(ctx context.Context, id string) error
	DeleteByFile(ctx context.Context, fileID string) (int64, error)

	// IncrementDownloads bumps the download counter only while it is below
	// the grant's limit and the grant has not expired at now, as a single
	// statement. It returns the new count, common.ErrGrantExpired,
	// common.ErrQuotaExhausted, or common.ErrorNotFound when the grant is
	// gone.
	IncrementDownloads(ctx context.Context, id string, now time.Time) (int, error)
}
