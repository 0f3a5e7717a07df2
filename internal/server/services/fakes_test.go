package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/files"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/grants"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/users"
	"github.com/dmitrijs2005/filevault/internal/storage"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// --- users ---

type fakeUsersRepo struct {
	users.Repository

	mu        sync.Mutex
	byEmail   map[string]*models.User
	createErr error
	getErr    error
	recordErr error
	seq       int

	resets map[string]fakeReset
}

type fakeReset struct {
	userID    string
	expiresAt time.Time
}

func newFakeUsers(us ...*models.User) *fakeUsersRepo {
	f := &fakeUsersRepo{byEmail: map[string]*models.User{}, resets: map[string]fakeReset{}}
	for _, u := range us {
		f.byEmail[u.Email] = u
	}
	return f
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	f.seq++
	u.ID = fmt.Sprintf("user-%d", f.seq)
	u.CreatedAt = time.Now()
	f.byEmail[u.Email] = u
	return u, nil
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) byID(id string) *models.User {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (f *fakeUsersRepo) RecordFailedLogin(_ context.Context, id string, maxAttempts int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return 0, false, f.recordErr
	}
	u := f.byID(id)
	if u == nil {
		return 0, false, common.ErrorNotFound
	}
	u.FailedLoginAttempts++
	u.Locked = u.Locked || u.FailedLoginAttempts >= maxAttempts
	return u.FailedLoginAttempts, u.Locked, nil
}

func (f *fakeUsersRepo) RecordLogin(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	u := f.byID(id)
	if u == nil {
		return common.ErrorNotFound
	}
	u.FailedLoginAttempts = 0
	u.LastLoginAt = &at
	return nil
}

func (f *fakeUsersRepo) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	for h, r := range f.resets {
		if r.userID == id {
			delete(f.resets, h)
		}
	}
	f.resets[tokenHash] = fakeReset{userID: id, expiresAt: expiresAt}
	return nil
}

func (f *fakeUsersRepo) ResetPassword(_ context.Context, tokenHash string, passwordHash []byte, now time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resets[tokenHash]
	if !ok || r.expiresAt.Before(now) {
		return "", common.ErrorNotFound
	}
	delete(f.resets, tokenHash)
	u := f.byID(r.userID)
	u.PasswordHash = passwordHash
	u.FailedLoginAttempts = 0
	u.Locked = false
	return u.ID, nil
}

type fakeNotifier struct {
	err    error
	sent   []string
	tokens []string
}

func (n *fakeNotifier) NotifyPasswordReset(_ context.Context, user *models.User, token string, _ time.Time) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, user.Email)
	n.tokens = append(n.tokens, token)
	return nil
}

// --- refresh tokens ---

type fakeRefreshRepo struct {
	refreshtokens.Repository

	findOut   *models.RefreshToken
	findErr   error
	delErr    error
	createErr error

	created []string
	deleted []string
	revoked []string
	purged  time.Time
}

func (f *fakeRefreshRepo) Create(_ context.Context, userID, token string, expiresAt time.Time) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, token)
	return nil
}

func (f *fakeRefreshRepo) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findOut, nil
}

func (f *fakeRefreshRepo) Delete(_ context.Context, token string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, token)
	return nil
}

func (f *fakeRefreshRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.purged = now
	return 3, nil
}

func (f *fakeRefreshRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	if f.delErr != nil {
		return 0, f.delErr
	}
	f.revoked = append(f.revoked, userID)
	return 1, nil
}

// --- files ---

type fakeFilesRepo struct {
	files.Repository

	mu      sync.Mutex
	rows    map[string]*models.StoredFile
	seq     int
	getErr  error
	failOps map[string]error
	// beforeReplace runs inside ReplaceContent before the key check, to
	// let a test slip in a competing writer.
	beforeReplace func(r *models.StoredFile)
}

func newFakeFiles() *fakeFilesRepo {
	return &fakeFilesRepo{rows: map[string]*models.StoredFile{}, failOps: map[string]error{}}
}

func (f *fakeFilesRepo) add(file *models.StoredFile) *models.StoredFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file.Visibility == "" {
		file.Visibility = models.VisibilityPrivate
	}
	f.rows[file.ID] = file
	return file
}

func (f *fakeFilesRepo) Create(_ context.Context, file *models.StoredFile) (*models.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOps["create"]; err != nil {
		return nil, err
	}
	for _, r := range f.rows {
		if r.OwnerID == file.OwnerID && r.Name == file.Name {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.seq++
	file.ID = fmt.Sprintf("file-%d", f.seq)
	file.CreatedAt = time.Now()
	cp := *file
	f.rows[file.ID] = &cp
	return file, nil
}

func (f *fakeFilesRepo) GetByID(_ context.Context, id string) (*models.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeFilesRepo) GetByOwnerAndName(_ context.Context, ownerID, name string) (*models.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.OwnerID == ownerID && r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeFilesRepo) ReplaceContent(_ context.Context, file *models.StoredFile, expectedKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOps["replace"]; err != nil {
		return err
	}
	r, ok := f.rows[file.ID]
	if !ok {
		return common.ErrorNotFound
	}
	if f.beforeReplace != nil {
		f.beforeReplace(r)
	}
	if r.StorageKey != expectedKey {
		return common.ErrorNotFound
	}
	now := time.Now()
	file.UpdatedAt = &now
	r.ContentType, r.DetectedType, r.SizeBytes, r.StorageKey, r.UpdatedAt =
		file.ContentType, file.DetectedType, file.SizeBytes, file.StorageKey, &now
	return nil
}

func (f *fakeFilesRepo) SetVisibility(_ context.Context, id string, v models.Visibility) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.Visibility = v
	return nil
}

func (f *fakeFilesRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOps["delete"]; err != nil {
		return err
	}
	if _, ok := f.rows[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeFilesRepo) sorted(keep func(*models.StoredFile) bool) []*models.StoredFile {
	var out []*models.StoredFile
	for _, r := range f.rows {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeFilesRepo) ListByOwner(_ context.Context, ownerID string) ([]*models.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(r *models.StoredFile) bool { return r.OwnerID == ownerID }), nil
}

func (f *fakeFilesRepo) ListPublic(_ context.Context) ([]*models.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(r *models.StoredFile) bool { return r.IsPublic() }), nil
}

// --- grants ---

type fakeGrantsRepo struct {
	grants.Repository

	mu   sync.Mutex
	rows map[string]*models.ShareGrant
	seq  int
}

func newFakeGrants() *fakeGrantsRepo {
	return &fakeGrantsRepo{rows: map[string]*models.ShareGrant{}}
}

func (f *fakeGrantsRepo) Create(_ context.Context, g *models.ShareGrant) (*models.ShareGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.FileID == g.FileID && r.GranteeID == g.GranteeID {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.seq++
	g.ID = fmt.Sprintf("grant-%d", f.seq)
	cp := *g
	f.rows[g.ID] = &cp
	return g, nil
}

func (f *fakeGrantsRepo) GetByID(_ context.Context, id string) (*models.ShareGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeGrantsRepo) GetByFileAndGrantee(_ context.Context, fileID, granteeID string) (*models.ShareGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.FileID == fileID && r.GranteeID == granteeID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeGrantsRepo) ListByFile(_ context.Context, fileID string) ([]*models.ShareGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ShareGrant
	for _, r := range f.rows {
		if r.FileID == fileID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeGrantsRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeGrantsRepo) DeleteByFile(_ context.Context, fileID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.rows {
		if r.FileID == fileID {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

// IncrementDownloads mirrors the conditional UPDATE: the checks and the
// increment happen under one lock.
func (f *fakeGrantsRepo) IncrementDownloads(_ context.Context, id string, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	if r.Expired(now) {
		return 0, common.ErrGrantExpired
	}
	if r.MaxDownloads != nil && r.DownloadCount >= *r.MaxDownloads {
		return 0, common.ErrQuotaExhausted
	}
	r.DownloadCount++
	return r.DownloadCount, nil
}

func (f *fakeGrantsRepo) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].DownloadCount
}

// --- manager ---

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	f *fakeFilesRepo
	g *fakeGrantsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error      { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.r }
func (m *fakeRepoManager) Files(dbx.DBTX) files.Repository                 { return m.f }
func (m *fakeRepoManager) Grants(dbx.DBTX) grants.Repository               { return m.g }

// --- object store ---

type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	seq       int
	saveErr   error
	getErr    error
	deleteErr error
	retrieved int
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Save(_ context.Context, r io.Reader, name, owner string) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	loc := path.Join(owner, fmt.Sprintf("obj-%d", m.seq), storage.SanitizeName(name))
	m.objects[loc] = b
	return loc, nil
}

func (m *memStore) Retrieve(_ context.Context, loc string) (*storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrieved++
	if m.getErr != nil {
		return nil, m.getErr
	}
	b, ok := m.objects[loc]
	if !ok {
		return nil, common.ErrorNotFound
	}
	name := path.Base(loc)
	return &storage.Object{Data: bytes.Clone(b), Name: name, ContentType: storage.ContentTypeFor(name)}, nil
}

func (m *memStore) Delete(_ context.Context, loc string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, loc)
	return nil
}

func (m *memStore) has(loc string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[loc]
	return ok
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}


func (f *fakeFilesRepo) ListSharedWith(_ context.Context, userID string, now time.Time) ([]*models.SharedFile, error) {
	return []*models.SharedFile{{File: models.StoredFile{ID: "f-shared"}, Grant: models.ShareGrant{GranteeID: userID, CreatedAt: now}}}, nil
}
