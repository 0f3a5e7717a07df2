package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/metrics"
	"github.com/dmitrijs2005/filevault/internal/safety"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filevault/internal/server/sharing"
	"github.com/dmitrijs2005/filevault/internal/signature"
	"github.com/dmitrijs2005/filevault/internal/storage"
)

const (
	ReasonFileRequired   = "file is required"
	ReasonNameRequired   = "file name is required"
	ReasonTypeNotAllowed = "only PDF, JPG, and PNG files are allowed and the content must match the type"
	ReasonUserNotFound   = "user with specified email not found"

	ReasonConcurrentUpload = "a file with this name is being uploaded concurrently, retry"
)

// ObjectStore is the encrypted blob store behind the vault.
type ObjectStore interface {
	Save(ctx context.Context, r io.Reader, logicalName, ownerID string) (string, error)
	Retrieve(ctx context.Context, locator string) (*storage.Object, error)
	Delete(ctx context.Context, locator string) error
}

// UploadRequest carries one incoming file. Name and DeclaredType come from
// the client and are not trusted; Size is the client's claim and is only
// used to refuse oversized bodies early.
type UploadRequest struct {
	OwnerID      string
	Name         string
	DeclaredType string
	Size         int64
	Content      io.Reader
}

// UploadResult reports the stored row and whether an existing file with
// the same name was replaced.
type UploadResult struct {
	File     *models.StoredFile
	Replaced bool
}

// Download is a delivered file: its metadata row plus decrypted content.
type Download struct {
	File   *models.StoredFile
	Object *storage.Object
}

// VaultService runs the ingestion pipeline on upload and the sharing
// policy on download, and implements the owner-facing file operations.
type VaultService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	store         ObjectStore
	cache         *PublicCache
	logger        logging.Logger
	maxUploadSize int64
	now           func() time.Time
}

func NewVaultService(db *sql.DB, m repomanager.RepositoryManager, store ObjectStore, cache *PublicCache,
	logger logging.Logger, maxUploadSize int64) *VaultService {
	if maxUploadSize <= 0 {
		maxUploadSize = common.MaxUploadSize
	}
	return &VaultService{
		db:            db,
		repomanager:   m,
		store:         store,
		cache:         cache,
		logger:        logger.With("module", "vault"),
		maxUploadSize: maxUploadSize,
		now:           time.Now,
	}
}

func (s *VaultService) sizeReason() string {
	return SizeLimitReason(s.maxUploadSize)
}

// SizeLimitReason is the rejection reason for an upload above limit bytes.
// The limit is shown in the largest unit that divides it exactly.
func SizeLimitReason(limit int64) string {
	var size string
	switch {
	case limit >= 1<<20 && limit%(1<<20) == 0:
		size = fmt.Sprintf("%d MB", limit>>20)
	case limit >= 1<<10 && limit%(1<<10) == 0:
		size = fmt.Sprintf("%d KB", limit>>10)
	default:
		size = fmt.Sprintf("%d bytes", limit)
	}
	return "file size exceeds the maximum allowed size of " + size
}

// Upload validates, scans and stores a file. Uploading a name the owner
// already has replaces that file's content in place.
func (s *VaultService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, common.Invalid(ReasonNameRequired)
	}
	if req.Content == nil || req.Size == 0 {
		return nil, s.reject(ctx, req, signature.Unknown, ReasonFileRequired)
	}
	if req.Size > s.maxUploadSize {
		return nil, s.reject(ctx, req, signature.Unknown, s.sizeReason())
	}

	data, err := io.ReadAll(io.LimitReader(req.Content, s.maxUploadSize+1))
	if err != nil {
		metrics.RecordUpload("error")
		return nil, fmt.Errorf("read upload: %w", err)
	}
	defer common.WipeByteArray(data)

	if len(data) == 0 {
		return nil, s.reject(ctx, req, signature.Unknown, ReasonFileRequired)
	}
	if int64(len(data)) > s.maxUploadSize {
		return nil, s.reject(ctx, req, signature.Unknown, s.sizeReason())
	}

	body := bytes.NewReader(data)
	detected, err := signature.DetectReader(body)
	if err != nil {
		metrics.RecordUpload("error")
		return nil, fmt.Errorf("detect type: %w", err)
	}
	if !signature.IsAllowed(detected) {
		return nil, s.reject(ctx, req, detected, ReasonTypeNotAllowed)
	}

	if verdict := safety.AnalyzeReader(body, detected); !verdict.Safe {
		return nil, s.reject(ctx, req, detected, verdict.Reason)
	}

	contentType := detected.MIMEType()
	if req.DeclaredType != "" && !strings.EqualFold(req.DeclaredType, contentType) {
		s.logger.Warn(ctx, "declared content type does not match detected type",
			"owner", req.OwnerID, "name", req.Name, "declared", req.DeclaredType, "detected", detected)
	}

	files := s.repomanager.Files(s.db)
	existing, err := files.GetByOwnerAndName(ctx, req.OwnerID, req.Name)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		metrics.RecordUpload("error")
		return nil, fmt.Errorf("lookup existing file: %w", err)
	}

	locator, err := s.store.Save(ctx, body, req.Name, req.OwnerID)
	if err != nil {
		metrics.RecordUpload("error")
		return nil, fmt.Errorf("store file: %w", err)
	}

	if existing == nil {
		f, err := files.Create(ctx, &models.StoredFile{
			OwnerID:      req.OwnerID,
			Name:         req.Name,
			ContentType:  contentType,
			DetectedType: string(detected),
			SizeBytes:    int64(len(data)),
			StorageKey:   locator,
			Visibility:   models.VisibilityPrivate,
		})
		if err != nil {
			s.discard(ctx, locator)
			metrics.RecordUpload("error")
			if errors.Is(err, common.ErrorAlreadyExists) {
				return nil, common.Invalid(ReasonConcurrentUpload)
			}
			return nil, fmt.Errorf("create file record: %w", err)
		}
		metrics.RecordUpload("created")
		s.logger.Info(ctx, "file uploaded", "owner", req.OwnerID, "file_id", f.ID, "type", detected, "size", f.SizeBytes)
		return &UploadResult{File: f}, nil
	}

	oldLocator := existing.StorageKey
	existing.ContentType = contentType
	existing.DetectedType = string(detected)
	existing.SizeBytes = int64(len(data))
	existing.StorageKey = locator
	if err := files.ReplaceContent(ctx, existing, oldLocator); err != nil {
		s.discard(ctx, locator)
		metrics.RecordUpload("error")
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Invalid(ReasonConcurrentUpload)
		}
		return nil, fmt.Errorf("replace file record: %w", err)
	}
	s.cache.Invalidate(existing.ID)
	s.discard(ctx, oldLocator)

	metrics.RecordUpload("replaced")
	s.logger.Info(ctx, "file replaced", "owner", req.OwnerID, "file_id", existing.ID, "type", detected, "size", existing.SizeBytes)
	return &UploadResult{File: existing, Replaced: true}, nil
}

func (s *VaultService) reject(ctx context.Context, req UploadRequest, detected signature.Type, reason string) error {
	metrics.RecordUpload("rejected")
	metrics.RecordRejection(string(detected))
	s.logger.Warn(ctx, "upload rejected",
		"owner", req.OwnerID, "name", req.Name, "detected_type", detected, "reason", reason)
	return common.Reject(reason)
}

// discard removes a blob that no row points at any more.
func (s *VaultService) discard(ctx context.Context, locator string) {
	if err := s.store.Delete(ctx, locator); err != nil {
		s.logger.Warn(ctx, "failed to remove orphaned object", "locator", locator, "error", err)
	}
}

// Download evaluates the sharing policy for requesterID and returns the
// decrypted file. A missing file is reported exactly like a file the
// requester may not see.
func (s *VaultService) Download(ctx context.Context, requesterID, fileID string) (*Download, error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			metrics.RecordDownload("denied")
			return nil, common.Deny(sharing.ReasonAccessDenied)
		}
		metrics.RecordDownload("error")
		return nil, fmt.Errorf("lookup file: %w", err)
	}

	grants := s.repomanager.Grants(s.db)

	var grant *models.ShareGrant
	if file.OwnerID != requesterID && !file.IsPublic() {
		grant, err = grants.GetByFileAndGrantee(ctx, file.ID, requesterID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			metrics.RecordDownload("error")
			return nil, fmt.Errorf("lookup grant: %w", err)
		}
	}

	decision := sharing.Evaluate(file, requesterID, grant, s.now())
	if !decision.Allowed {
		metrics.RecordDownload("denied")
		s.logger.Info(ctx, "download denied", "requester", requesterID, "file_id", file.ID, "reason", decision.Reason)
		return nil, common.Deny(decision.Reason)
	}

	if decision.Basis == sharing.BasisPublic {
		if obj, ok := s.cache.Get(file.ID, file.StorageKey); ok {
			metrics.RecordDownload("ok")
			return &Download{File: file, Object: obj}, nil
		}
	}

	obj, err := s.store.Retrieve(ctx, file.StorageKey)
	if err != nil {
		metrics.RecordDownload("error")
		return nil, fmt.Errorf("retrieve file %s: %w", file.ID, err)
	}

	if decision.ConsumesQuota() {
		if _, err := grants.IncrementDownloads(ctx, decision.Grant.ID, s.now()); err != nil {
			common.WipeByteArray(obj.Data)
			switch {
			case errors.Is(err, common.ErrGrantExpired):
				metrics.RecordDownload("denied")
				return nil, common.Deny(sharing.ReasonExpired)
			case errors.Is(err, common.ErrQuotaExhausted):
				metrics.RecordDownload("denied")
				return nil, common.Deny(sharing.QuotaReason(*decision.Grant.MaxDownloads))
			case errors.Is(err, common.ErrorNotFound):
				metrics.RecordDownload("denied")
				return nil, common.Deny(sharing.ReasonAccessDenied)
			default:
				metrics.RecordDownload("error")
				return nil, fmt.Errorf("count download: %w", err)
			}
		}
	}

	if decision.Basis == sharing.BasisPublic {
		s.cache.Put(file.ID, file.StorageKey, obj)
	}

	metrics.RecordDownload("ok")
	return &Download{File: file, Object: obj}, nil
}

// ownedFile loads fileID and checks that ownerID owns it. Other users get
// the same denial as for a missing file.
func (s *VaultService) ownedFile(ctx context.Context, ownerID, fileID string) (*models.StoredFile, error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Deny(sharing.ReasonAccessDenied)
		}
		return nil, fmt.Errorf("lookup file: %w", err)
	}
	if file.OwnerID != ownerID {
		return nil, common.Deny(sharing.ReasonAccessDenied)
	}
	return file, nil
}

// Delete removes the file, its grants and its content.
func (s *VaultService) Delete(ctx context.Context, ownerID, fileID string) error {
	file, err := s.ownedFile(ctx, ownerID, fileID)
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Grants(tx).DeleteByFile(ctx, file.ID); err != nil {
			return fmt.Errorf("delete grants: %w", err)
		}
		if err := s.repomanager.Files(tx).Delete(ctx, file.ID); err != nil {
			return fmt.Errorf("delete file record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(file.ID)
	if err := s.store.Delete(ctx, file.StorageKey); err != nil {
		s.logger.Error(ctx, "file record deleted but content removal failed",
			"file_id", file.ID, "locator", file.StorageKey, "error", err)
	}
	s.logger.Info(ctx, "file deleted", "owner", ownerID, "file_id", file.ID)
	return nil
}

// SetVisibility makes a file public or private.
func (s *VaultService) SetVisibility(ctx context.Context, ownerID, fileID string, public bool) (*models.StoredFile, error) {
	file, err := s.ownedFile(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	v := models.VisibilityPrivate
	if public {
		v = models.VisibilityPublic
	}
	if file.Visibility == v {
		return file, nil
	}

	if err := s.repomanager.Files(s.db).SetVisibility(ctx, file.ID, v); err != nil {
		return nil, fmt.Errorf("set visibility: %w", err)
	}
	s.cache.Invalidate(file.ID)
	file.Visibility = v
	return file, nil
}

// Share grants the user registered under granteeEmail download access to
// one of ownerID's private files.
func (s *VaultService) Share(ctx context.Context, ownerID, fileID, granteeEmail string, req sharing.GrantRequest) (*models.ShareGrant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Deny(sharing.ReasonAccessDenied)
		}
		return nil, fmt.Errorf("lookup file: %w", err)
	}
	// Checked before the grantee lookup so non-owners cannot discover which emails have accounts.
	if file.OwnerID != ownerID {
		return nil, common.Deny(sharing.ReasonNotOwner)
	}
	if file.IsPublic() {
		return nil, common.Invalid(sharing.ReasonPublicFile)
	}

	grantee, err := s.repomanager.Users(s.db).GetByEmail(ctx, strings.TrimSpace(granteeEmail))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Invalid(ReasonUserNotFound)
		}
		return nil, fmt.Errorf("lookup grantee: %w", err)
	}

	grants := s.repomanager.Grants(s.db)
	_, err = grants.GetByFileAndGrantee(ctx, file.ID, grantee.ID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("lookup grant: %w", err)
	}
	if err := sharing.CheckShareable(file, ownerID, grantee.ID, err == nil); err != nil {
		return nil, err
	}

	g, err := grants.Create(ctx, sharing.NewGrant(file.ID, grantee.ID, req, s.now()))
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.Invalid(sharing.ReasonAlreadyShared)
		}
		return nil, fmt.Errorf("create grant: %w", err)
	}

	s.logger.Info(ctx, "file shared", "owner", ownerID, "file_id", file.ID, "grantee", grantee.ID, "grant_id", g.ID)
	return g, nil
}

// Revoke deletes one of the owner's grants.
func (s *VaultService) Revoke(ctx context.Context, ownerID, grantID string) error {
	grants := s.repomanager.Grants(s.db)

	g, err := grants.GetByID(ctx, grantID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.Deny(sharing.ReasonAccessDenied)
		}
		return fmt.Errorf("lookup grant: %w", err)
	}
	if _, err := s.ownedFile(ctx, ownerID, g.FileID); err != nil {
		return err
	}

	if err := grants.Delete(ctx, g.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.Deny(sharing.ReasonAccessDenied)
		}
		return fmt.Errorf("delete grant: %w", err)
	}
	s.logger.Info(ctx, "grant revoked", "owner", ownerID, "grant_id", g.ID, "file_id", g.FileID)
	return nil
}

func (s *VaultService) ListGrants(ctx context.Context, ownerID, fileID string) ([]*models.ShareGrant, error) {
	file, err := s.ownedFile(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Grants(s.db).ListByFile(ctx, file.ID)
}

func (s *VaultService) ListMine(ctx context.Context, ownerID string) ([]*models.StoredFile, error) {
	return s.repomanager.Files(s.db).ListByOwner(ctx, ownerID)
}

func (s *VaultService) ListPublic(ctx context.Context) ([]*models.StoredFile, error) {
	return s.repomanager.Files(s.db).ListPublic(ctx)
}

// ListSharedWithMe lists files granted to userID whose grants are still
// usable.
func (s *VaultService) ListSharedWithMe(ctx context.Context, userID string) ([]*models.SharedFile, error) {
	return s.repomanager.Files(s.db).ListSharedWith(ctx, userID, s.now())
}
