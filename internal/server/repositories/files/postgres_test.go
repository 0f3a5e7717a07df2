package files

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

var fileCols = []string{"id", "owner_id", "name", "content_type", "detected_type", "size_bytes",
	"storage_key", "visibility", "created_at", "updated_at"}

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`(?s)^\s*INSERT INTO files .*RETURNING id, created_at`).
		WithArgs("u1", "a.pdf", "application/pdf", "pdf", int64(12), "u1/k/a.pdf", "private").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("f1", now))

	f, err := repo.Create(context.Background(), &models.StoredFile{
		OwnerID: "u1", Name: "a.pdf", ContentType: "application/pdf", DetectedType: "pdf",
		SizeBytes: 12, StorageKey: "u1/k/a.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "f1", f.ID)
	assert.Equal(t, models.VisibilityPrivate, f.Visibility)
	assert.True(t, f.CreatedAt.Equal(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`INSERT INTO files`).WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.StoredFile{OwnerID: "u1", Name: "a.pdf"})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestGetByID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	upd := now.Add(time.Minute)

	mock.ExpectQuery(`(?s)SELECT .* FROM files f WHERE f.id = \$1`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(fileCols).
			AddRow("f1", "u1", "a.png", "image/png", "png", int64(5), "u1/k/a.png", "public", now, upd))

	f, err := repo.GetByID(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "a.png", f.Name)
	assert.True(t, f.IsPublic())
	require.NotNil(t, f.UpdatedAt)
	assert.True(t, f.UpdatedAt.Equal(upd))
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM files f WHERE f.id`).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(fileCols))

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetByOwnerAndName_NullUpdatedAt(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`WHERE f.owner_id = \$1 AND f.name = \$2`).
		WithArgs("u1", "a.pdf").
		WillReturnRows(sqlmock.NewRows(fileCols).
			AddRow("f1", "u1", "a.pdf", "application/pdf", "pdf", int64(5), "k", "private", time.Now(), nil))

	f, err := repo.GetByOwnerAndName(context.Background(), "u1", "a.pdf")
	require.NoError(t, err)
	assert.Nil(t, f.UpdatedAt)
}

func TestReplaceContent(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	mock.ExpectQuery(`(?s)UPDATE files\s+SET content_type = \$2.*WHERE id = \$1 AND storage_key = \$6\s+RETURNING updated_at`).
		WithArgs("f1", "image/jpeg", "jpg", int64(9), "u1/k2/a.jpg", "u1/k1/a.jpg").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	f := &models.StoredFile{ID: "f1", ContentType: "image/jpeg", DetectedType: "jpg", SizeBytes: 9, StorageKey: "u1/k2/a.jpg"}
	require.NoError(t, repo.ReplaceContent(context.Background(), f, "u1/k1/a.jpg"))
	require.NotNil(t, f.UpdatedAt)
	assert.True(t, f.UpdatedAt.Equal(now))
}

// A row whose storage key moved on since it was read is left alone.
func TestReplaceContent_KeyChanged(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`UPDATE files`).WithArgs("f1", "", "", int64(0), "new", "stale").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	err := repo.ReplaceContent(context.Background(), &models.StoredFile{ID: "f1", StorageKey: "new"}, "stale")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMalformedIDIsNotFound(t *testing.T) {
	badUUID := &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`}

	t.Run("get", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`(?s)SELECT .* FROM files f WHERE f.id = \$1`).WithArgs("abc").WillReturnError(badUUID)

		_, err := repo.GetByID(context.Background(), "abc")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(`DELETE FROM files WHERE id = \$1`).WithArgs("abc").WillReturnError(badUUID)

		assert.ErrorIs(t, repo.Delete(context.Background(), "abc"), common.ErrorNotFound)
	})

	t.Run("other pg errors stay db errors", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`(?s)SELECT .* FROM files f WHERE f.id = \$1`).WithArgs("f1").
			WillReturnError(&pgconn.PgError{Code: "57014"})

		_, err := repo.GetByID(context.Background(), "f1")
		assert.False(t, errors.Is(err, common.ErrorNotFound))
		assert.ErrorContains(t, err, "db error")
	})
}

func TestSetVisibility(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`UPDATE files SET visibility = \$2`).
		WithArgs("f1", "public").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetVisibility(context.Background(), "f1", models.VisibilityPublic))

	mock.ExpectExec(`UPDATE files SET visibility`).
		WithArgs("f2", "private").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.SetVisibility(context.Background(), "f2", models.VisibilityPrivate), common.ErrorNotFound)
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`DELETE FROM files WHERE id = \$1`).WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "f1"))

	mock.ExpectExec(`DELETE FROM files`).WithArgs("f1").WillReturnError(errors.New("boom"))
	err := repo.Delete(context.Background(), "f1")
	assert.ErrorContains(t, err, "db error: boom")
}

func TestListByOwner(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	mock.ExpectQuery(`WHERE f.owner_id = \$1 ORDER BY`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(fileCols).
			AddRow("f1", "u1", "a.pdf", "application/pdf", "pdf", int64(1), "k1", "private", now, nil).
			AddRow("f2", "u1", "b.png", "image/png", "png", int64(2), "k2", "public", now, nil))

	got, err := repo.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b.png", got[1].Name)
}

func TestListPublic_QueryError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`WHERE f.visibility = 'public'`).WillReturnError(errors.New("down"))

	_, err := repo.ListPublic(context.Background())
	assert.ErrorContains(t, err, "failed to select files")
}

func TestListSharedWith(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	exp := now.Add(time.Hour)

	cols := append(append([]string{}, fileCols...),
		"grant_id", "grant_created_at", "expires_at", "max_downloads", "download_count", "username")
	mock.ExpectQuery(`(?s)FROM share_grants g\s+JOIN files f.*WHERE g.grantee_id = \$1`).
		WithArgs("u2", now).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("f1", "u1", "a.pdf", "application/pdf", "pdf", int64(1), "k1", "private", now, nil,
				"g1", now, exp, int64(3), 1, "alice").
			AddRow("f2", "u1", "b.pdf", "application/pdf", "pdf", int64(1), "k2", "private", now, nil,
				"g2", now, nil, nil, 0, "alice"))

	got, err := repo.ListSharedWith(context.Background(), "u2", now)
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "alice", first.Owner)
	assert.Equal(t, "g1", first.Grant.ID)
	assert.Equal(t, "f1", first.Grant.FileID)
	assert.Equal(t, "u2", first.Grant.GranteeID)
	require.NotNil(t, first.Grant.MaxDownloads)
	assert.Equal(t, 3, *first.Grant.MaxDownloads)
	assert.Equal(t, 1, first.Grant.DownloadCount)

	assert.Nil(t, got[1].Grant.ExpiresAt)
	assert.Nil(t, got[1].Grant.MaxDownloads)
	require.NoError(t, mock.ExpectationsWereMet())
}
