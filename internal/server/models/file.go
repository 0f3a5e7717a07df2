// Package models defines server-side data models persisted in the database.
package models

import "time"

// Visibility controls who besides the owner may read a file.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// StoredFile is the metadata row for one vault file. The content itself is
// held, encrypted, by the storage engine under StorageKey.
type StoredFile struct {
	ID      string
	OwnerID string
	// Name is the display name, unique per owner.
	Name string
	// ContentType is derived from the detected signature, never from the
	// client's declaration.
	ContentType  string
	DetectedType string
	// SizeBytes is the plaintext size.
	SizeBytes  int64
	StorageKey string
	Visibility Visibility
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

func (f *StoredFile) IsPublic() bool { return f.Visibility == VisibilityPublic }
