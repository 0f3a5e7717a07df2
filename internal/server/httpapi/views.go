package httpapi

import (
	"time"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type fileView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	Visibility  string     `json:"visibility"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func newFileView(f *models.StoredFile) fileView {
	return fileView{
		ID:          f.ID,
		Name:        f.Name,
		ContentType: f.ContentType,
		SizeBytes:   f.SizeBytes,
		Visibility:  string(f.Visibility),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

func newFileViews(fs []*models.StoredFile) []fileView {
	out := make([]fileView, 0, len(fs))
	for _, f := range fs {
		out = append(out, newFileView(f))
	}
	return out
}

type grantView struct {
	ID            string     `json:"id"`
	FileID        string     `json:"file_id"`
	GranteeID     string     `json:"grantee_id"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
	MaxDownloads  *int       `json:"max_downloads"`
	DownloadCount int        `json:"download_count"`
}

func newGrantView(g *models.ShareGrant) grantView {
	return grantView{
		ID:            g.ID,
		FileID:        g.FileID,
		GranteeID:     g.GranteeID,
		CreatedAt:     g.CreatedAt,
		ExpiresAt:     g.ExpiresAt,
		MaxDownloads:  g.MaxDownloads,
		DownloadCount: g.DownloadCount,
	}
}

type sharedView struct {
	File  fileView  `json:"file"`
	Owner string    `json:"owner"`
	Grant grantView `json:"grant"`
}

type userView struct {
	ID        string    `json:"id"`
	UserName  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenView struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type messageView struct {
	Message string `json:"message"`
}
