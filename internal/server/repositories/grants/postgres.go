package grants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const grantColumns = `id, file_id, grantee_id, created_at, expires_at, max_downloads, download_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(s rowScanner) (*models.ShareGrant, error) {
	var (
		g         models.ShareGrant
		expiresAt sql.NullTime
		maxDl     sql.NullInt64
	)
	if err := s.Scan(&g.ID, &g.FileID, &g.GranteeID, &g.CreatedAt, &expiresAt, &maxDl, &g.DownloadCount); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		g.ExpiresAt = &t
	}
	if maxDl.Valid {
		n := int(maxDl.Int64)
		g.MaxDownloads = &n
	}
	return &g, nil
}

func (r *PostgresRepository) Create(ctx context.Context, g *models.ShareGrant) (*models.ShareGrant, error) {
	query := `
		INSERT INTO share_grants (file_id, grantee_id, expires_at, max_downloads)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	var (
		expiresAt sql.NullTime
		maxDl     sql.NullInt64
	)
	if g.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *g.ExpiresAt, Valid: true}
	}
	if g.MaxDownloads != nil {
		maxDl = sql.NullInt64{Int64: int64(*g.MaxDownloads), Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query, g.FileID, g.GranteeID, expiresAt, maxDl).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		if dbx.IsForeignKeyViolation(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ShareGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM share_grants WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByFileAndGrantee(ctx context.Context, fileID, granteeID string) (*models.ShareGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM share_grants WHERE file_id = $1 AND grantee_id = $2`
	return r.getOne(ctx, query, fileID, granteeID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.ShareGrant, error) {
	g, err := scanGrant(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidTextRepresentation(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) ListByFile(ctx context.Context, fileID string) ([]*models.ShareGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM share_grants WHERE file_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select grants: %w", err)
	}
	defer rows.Close()

	var result []*models.ShareGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM share_grants WHERE id = $1`, id)
	if err != nil {
		if dbx.IsInvalidTextRepresentation(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteByFile(ctx context.Context, fileID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM share_grants WHERE file_id = $1`, fileID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) IncrementDownloads(ctx context.Context, id string, now time.Time) (int, error) {
	query := `
		UPDATE share_grants
		SET download_count = download_count + 1
		WHERE id = $1
		  AND (max_downloads IS NULL OR download_count < max_downloads)
		  AND (expires_at IS NULL OR expires_at >= $2)
		RETURNING download_count
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, id, now).Scan(&count)
	if err == nil {
		return count, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("db error: %w", err)
	}

	// No row updated: the grant vanished, expired or hit its limit.
	var expired bool
	err = r.db.QueryRowContext(ctx,
		`SELECT expires_at IS NOT NULL AND expires_at < $2 FROM share_grants WHERE id = $1`, id, now,
	).Scan(&expired)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, common.ErrorNotFound
	case err != nil:
		return 0, fmt.Errorf("db error: %w", err)
	case expired:
		return 0, common.ErrGrantExpired
	}
	return 0, common.ErrQuotaExhausted
}
