package files

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

const fileColumns = `f.id, f.owner_id, f.name, f.content_type, f.detected_type, f.size_bytes,
		f.storage_key, f.visibility, f.created_at, f.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(s rowScanner, extra ...any) (*models.StoredFile, error) {
	var (
		f          models.StoredFile
		visibility string
		updatedAt  sql.NullTime
	)
	dest := []any{&f.ID, &f.OwnerID, &f.Name, &f.ContentType, &f.DetectedType, &f.SizeBytes,
		&f.StorageKey, &visibility, &f.CreatedAt, &updatedAt}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	f.Visibility = models.Visibility(visibility)
	if updatedAt.Valid {
		t := updatedAt.Time
		f.UpdatedAt = &t
	}
	return &f, nil
}

func (r *PostgresRepository) Create(ctx context.Context, f *models.StoredFile) (*models.StoredFile, error) {
	query := `
		INSERT INTO files (owner_id, name, content_type, detected_type, size_bytes, storage_key, visibility)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	if f.Visibility == "" {
		f.Visibility = models.VisibilityPrivate
	}
	err := r.db.QueryRowContext(ctx, query,
		f.OwnerID, f.Name, f.ContentType, f.DetectedType, f.SizeBytes, f.StorageKey, string(f.Visibility),
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM files f WHERE f.id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByOwnerAndName(ctx context.Context, ownerID, name string) (*models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM files f WHERE f.owner_id = $1 AND f.name = $2`
	return r.getOne(ctx, query, ownerID, name)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.StoredFile, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidTextRepresentation(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) ReplaceContent(ctx context.Context, f *models.StoredFile, expectedKey string) error {
	query := `
		UPDATE files
		SET content_type = $2, detected_type = $3, size_bytes = $4, storage_key = $5, updated_at = now()
		WHERE id = $1 AND storage_key = $6
		RETURNING updated_at
	`
	var updated time.Time
	err := r.db.QueryRowContext(ctx, query,
		f.ID, f.ContentType, f.DetectedType, f.SizeBytes, f.StorageKey, expectedKey,
	).Scan(&updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	f.UpdatedAt = &updated
	return nil
}

func (r *PostgresRepository) SetVisibility(ctx context.Context, id string, v models.Visibility) error {
	query := `UPDATE files SET visibility = $2, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, string(v))
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM files WHERE id = $1`
	return r.execOne(ctx, query, id)
}

// execOne runs a statement that must touch exactly one row.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM files f WHERE f.owner_id = $1 ORDER BY f.created_at DESC`
	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepository) ListPublic(ctx context.Context) ([]*models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM files f WHERE f.visibility = 'public' ORDER BY f.created_at DESC`
	return r.list(ctx, query)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.StoredFile, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.StoredFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListSharedWith(ctx context.Context, userID string, now time.Time) ([]*models.SharedFile, error) {
	query := `
		SELECT ` + fileColumns + `,
			g.id, g.created_at, g.expires_at, g.max_downloads, g.download_count, u.username
		FROM share_grants g
		JOIN files f ON f.id = g.file_id
		JOIN users u ON u.id = f.owner_id
		WHERE g.grantee_id = $1
		  AND f.visibility = 'private'
		  AND (g.expires_at IS NULL OR g.expires_at >= $2)
		  AND (g.max_downloads IS NULL OR g.download_count < g.max_downloads)
		ORDER BY g.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select shared files: %w", err)
	}
	defer rows.Close()

	var result []*models.SharedFile
	for rows.Next() {
		var (
			sf        models.SharedFile
			expiresAt sql.NullTime
			maxDl     sql.NullInt64
		)
		f, err := scanFile(rows,
			&sf.Grant.ID, &sf.Grant.CreatedAt, &expiresAt, &maxDl, &sf.Grant.DownloadCount, &sf.Owner)
		if err != nil {
			return nil, err
		}
		sf.File = *f
		sf.Grant.FileID = f.ID
		sf.Grant.GranteeID = userID
		if expiresAt.Valid {
			t := expiresAt.Time
			sf.Grant.ExpiresAt = &t
		}
		if maxDl.Valid {
			n := int(maxDl.Int64)
			sf.Grant.MaxDownloads = &n
		}
		result = append(result, &sf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
