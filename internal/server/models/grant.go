package models

import "time"

// ShareGrant authorizes one user to download one non-public file,
// optionally until ExpiresAt and at most MaxDownloads times.
type ShareGrant struct {
	ID            string
	FileID        string
	GranteeID     string
	CreatedAt     time.Time
	ExpiresAt     *time.Time
	MaxDownloads  *int
	DownloadCount int
}

// Expired reports whether the grant is past its expiry at now. The expiry
// instant itself is still valid.
func (g *ShareGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}

// Exhausted reports whether the download quota has been used up.
func (g *ShareGrant) Exhausted() bool {
	return g.MaxDownloads != nil && g.DownloadCount >= *g.MaxDownloads
}

// SharedFile is a file as seen by a grantee, joined with its grant.
type SharedFile struct {
	File  StoredFile
	Grant ShareGrant
	Owner string
}
