// Package sharing decides who may download a vault file and validates new
// share grants.
//
// A download is evaluated in order: the owner is always allowed; anyone is
// allowed for a public file; otherwise the requester needs a grant that is
// neither expired nor exhausted. Only grant-based downloads consume quota.
package sharing

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

// Basis records why a download was allowed.
type Basis int

const (
	BasisNone Basis = iota
	BasisOwner
	BasisPublic
	BasisGrant
)

const (
	ReasonAccessDenied = "access denied"
	ReasonExpired      = "share link has expired"
)

// QuotaReason is the denial reason for an exhausted grant.
func QuotaReason(limit int) string {
	return fmt.Sprintf("download limit of %d has been reached", limit)
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Allowed bool
	Reason  string
	Basis   Basis
	// Grant is set when Basis is BasisGrant; its counter must be advanced
	// once the content has been delivered.
	Grant *models.ShareGrant
}

// ConsumesQuota reports whether a successful delivery must be counted
// against the grant.
func (d Decision) ConsumesQuota() bool {
	return d.Allowed && d.Basis == BasisGrant
}

func allow(b Basis, g *models.ShareGrant) Decision {
	return Decision{Allowed: true, Basis: b, Grant: g}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Evaluate decides whether requesterID may download file at now. grant is
// the requester's grant on the file, or nil when there is none; it is not
// consulted for owners or public files.
func Evaluate(file *models.StoredFile, requesterID string, grant *models.ShareGrant, now time.Time) Decision {
	if file == nil {
		return deny(ReasonAccessDenied)
	}
	if requesterID != "" && file.OwnerID == requesterID {
		return allow(BasisOwner, nil)
	}
	if file.IsPublic() {
		return allow(BasisPublic, nil)
	}
	if grant == nil || grant.FileID != file.ID || grant.GranteeID != requesterID {
		return deny(ReasonAccessDenied)
	}
	if grant.Expired(now) {
		return deny(ReasonExpired)
	}
	if grant.Exhausted() {
		return deny(QuotaReason(*grant.MaxDownloads))
	}
	return allow(BasisGrant, grant)
}
