package users

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

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (username, email, password_hash)
         VALUES ($1, $2, $3)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.UserName, user.Email, user.PasswordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE lower(email) = lower($1)
		 `
	return r.getOne(ctx, query, email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE id = $1
		 `
	return r.getOne(ctx, query, id)
}

const userColumns = `id, username, email, password_hash, created_at, failed_login_attempts, locked, last_login_at`

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.UserName, &user.Email, &user.PasswordHash, &user.CreatedAt,
			&user.FailedLoginAttempts, &user.Locked, &user.LastLoginAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidTextRepresentation(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// RecordFailedLogin bumps the failure counter in one statement so
// concurrent attempts cannot undercount, and locks the account once the
// counter reaches maxAttempts.
func (r *PostgresRepository) RecordFailedLogin(ctx context.Context, id string, maxAttempts int) (int, bool, error) {
	query :=
		`UPDATE users
		 SET failed_login_attempts = failed_login_attempts + 1,
		     locked = locked OR failed_login_attempts + 1 >= $2
		 WHERE id = $1
		 RETURNING failed_login_attempts, locked
		 `
	var (
		attempts int
		locked   bool
	)
	err := r.db.QueryRowContext(ctx, query, id, maxAttempts).Scan(&attempts, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, common.ErrorNotFound
		}
		return 0, false, fmt.Errorf("db error: %w", err)
	}
	return attempts, locked, nil
}

func (r *PostgresRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	query :=
		`UPDATE users
		 SET failed_login_attempts = 0, last_login_at = $2
		 WHERE id = $1
		 `
	return r.execOne(ctx, query, id, at)
}

func (r *PostgresRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	query :=
		`UPDATE users
		 SET password_reset_token = $2, password_reset_expires_at = $3
		 WHERE id = $1
		 `
	return r.execOne(ctx, query, id, tokenHash, expiresAt)
}

func (r *PostgresRepository) ResetPassword(ctx context.Context, tokenHash string, passwordHash []byte, now time.Time) (string, error) {
	query :=
		`UPDATE users
		 SET password_hash = $2,
		     password_reset_token = NULL,
		     password_reset_expires_at = NULL,
		     failed_login_attempts = 0,
		     locked = false
		 WHERE password_reset_token = $1 AND password_reset_expires_at >= $3
		 RETURNING id
		 `
	var id string
	err := r.db.QueryRowContext(ctx, query, tokenHash, passwordHash, now).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

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
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
