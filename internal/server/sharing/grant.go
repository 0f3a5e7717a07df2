package sharing

import (
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

// MaxExpirationHours bounds how far in the future a grant may expire.
const MaxExpirationHours = 720

const (
	ReasonNotOwner      = "you do not have permission to share this file"
	ReasonPublicFile    = "cannot share a public file"
	ReasonSelfShare     = "you cannot share a file with yourself"
	ReasonAlreadyShared = "file is already shared with this user"
)

// GrantRequest is an owner's request to share a file.
type GrantRequest struct {
	// ExpirationHours is 0 for a grant that never expires.
	ExpirationHours int
	// MaxDownloads is nil for an unlimited grant.
	MaxDownloads *int
}

// Validate checks the request parameters on their own.
func (r GrantRequest) Validate() error {
	if r.ExpirationHours < 0 || r.ExpirationHours > MaxExpirationHours {
		return common.Invalid("expiration hours must be between 0 and 720")
	}
	if r.MaxDownloads != nil && *r.MaxDownloads < 1 {
		return common.Invalid("max downloads must be at least 1")
	}
	return nil
}

// CheckShareable verifies that ownerID may share file with granteeID.
// alreadyShared reports whether a grant for the pair already exists.
func CheckShareable(file *models.StoredFile, ownerID, granteeID string, alreadyShared bool) error {
	if file.OwnerID != ownerID {
		return common.Deny(ReasonNotOwner)
	}
	if file.IsPublic() {
		return common.Invalid(ReasonPublicFile)
	}
	if granteeID == ownerID {
		return common.Invalid(ReasonSelfShare)
	}
	if alreadyShared {
		return common.Invalid(ReasonAlreadyShared)
	}
	return nil
}

// NewGrant builds the grant row for a validated request.
func NewGrant(fileID, granteeID string, req GrantRequest, now time.Time) *models.ShareGrant {
	g := &models.ShareGrant{
		FileID:    fileID,
		GranteeID: granteeID,
		CreatedAt: now,
	}
	if req.ExpirationHours > 0 {
		exp := now.Add(time.Duration(req.ExpirationHours) * time.Hour)
		g.ExpiresAt = &exp
	}
	if req.MaxDownloads != nil {
		limit := *req.MaxDownloads
		g.MaxDownloads = &limit
	}
	return g
}
