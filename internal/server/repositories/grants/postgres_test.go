package grants

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

var grantCols = []string{"id", "file_id", "grantee_id", "created_at", "expires_at", "max_downloads", "download_count"}

const incrementQ = `(?s)UPDATE share_grants\s+SET download_count = download_count \+ 1\s+WHERE id = \$1\s+AND \(max_downloads IS NULL OR download_count < max_downloads\)\s+AND \(expires_at IS NULL OR expires_at >= \$2\)\s+RETURNING download_count`

const expiredQ = `SELECT expires_at IS NOT NULL AND expires_at < \$2 FROM share_grants WHERE id = \$1`

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	exp := now.Add(24 * time.Hour)
	limit := 3

	mock.ExpectQuery(`(?s)INSERT INTO share_grants .*RETURNING id, created_at`).
		WithArgs("f1", "u2", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("g1", now))

	g, err := repo.Create(context.Background(), &models.ShareGrant{
		FileID: "f1", GranteeID: "u2", ExpiresAt: &exp, MaxDownloads: &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, "g1", g.ID)
	assert.True(t, g.CreatedAt.Equal(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate", &pgconn.PgError{Code: "23505"}, common.ErrorAlreadyExists},
		{"missing file", &pgconn.PgError{Code: "23503"}, common.ErrorNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			mock.ExpectQuery(`INSERT INTO share_grants`).WillReturnError(tt.err)

			_, err := repo.Create(context.Background(), &models.ShareGrant{FileID: "f1", GranteeID: "u2"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGetByFileAndGrantee(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	mock.ExpectQuery(`FROM share_grants WHERE file_id = \$1 AND grantee_id = \$2`).
		WithArgs("f1", "u2").
		WillReturnRows(sqlmock.NewRows(grantCols).AddRow("g1", "f1", "u2", now, nil, int64(2), 1))

	g, err := repo.GetByFileAndGrantee(context.Background(), "f1", "u2")
	require.NoError(t, err)
	assert.Nil(t, g.ExpiresAt)
	require.NotNil(t, g.MaxDownloads)
	assert.Equal(t, 2, *g.MaxDownloads)
	assert.Equal(t, 1, g.DownloadCount)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM share_grants WHERE id = \$1`).WithArgs("g9").
		WillReturnRows(sqlmock.NewRows(grantCols))

	_, err := repo.GetByID(context.Background(), "g9")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListByFile(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	mock.ExpectQuery(`WHERE file_id = \$1 ORDER BY created_at`).WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(grantCols).
			AddRow("g1", "f1", "u2", now, now, nil, 0).
			AddRow("g2", "f1", "u3", now, nil, nil, 0))

	got, err := repo.ListByFile(context.Background(), "f1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotNil(t, got[0].ExpiresAt)
	assert.Equal(t, "u3", got[1].GranteeID)
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`DELETE FROM share_grants WHERE id = \$1`).WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "g1"), common.ErrorNotFound)
}

func TestDeleteByFile(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`DELETE FROM share_grants WHERE file_id = \$1`).WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteByFile(context.Background(), "f1")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestIncrementDownloads_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	mock.ExpectQuery(incrementQ).WithArgs("g1", now).
		WillReturnRows(sqlmock.NewRows([]string{"download_count"}).AddRow(2))

	n, err := repo.IncrementDownloads(context.Background(), "g1", now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementDownloads_NoRowUpdated(t *testing.T) {
	tests := []struct {
		name    string
		rows    *sqlmock.Rows
		wantErr error
	}{
		{"exhausted", sqlmock.NewRows([]string{"expired"}).AddRow(false), common.ErrQuotaExhausted},
		{"expired", sqlmock.NewRows([]string{"expired"}).AddRow(true), common.ErrGrantExpired},
		{"gone", sqlmock.NewRows([]string{"expired"}), common.ErrorNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			now := time.Now()
			mock.ExpectQuery(incrementQ).WithArgs("g1", now).
				WillReturnRows(sqlmock.NewRows([]string{"download_count"}))
			mock.ExpectQuery(expiredQ).WithArgs("g1", now).WillReturnRows(tt.rows)

			_, err := repo.IncrementDownloads(context.Background(), "g1", now)
			assert.ErrorIs(t, err, tt.wantErr)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIncrementDownloads_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	mock.ExpectQuery(incrementQ).WithArgs("g1", now).WillReturnError(errors.New("conn reset"))

	_, err := repo.IncrementDownloads(context.Background(), "g1", now)
	assert.ErrorContains(t, err, "db error: conn reset")
}

func TestMalformedIDIsNotFound(t *testing.T) {
	badUUID := &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`}

	t.Run("get", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`(?s)SELECT .* FROM share_grants WHERE id = \$1`).WithArgs("abc").WillReturnError(badUUID)

		_, err := repo.GetByID(context.Background(), "abc")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`DELETE FROM share_grants WHERE id = \$1`).WithArgs("abc").WillReturnError(badUUID)

		assert.ErrorIs(t, repo.Delete(context.Background(), "abc"), common.ErrorNotFound)
	})
}
