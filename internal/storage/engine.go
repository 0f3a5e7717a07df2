package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/metrics"
	"github.com/google/uuid"
)

// Object is a decrypted payload with the metadata derived from its locator.
type Object struct {
	Data        []byte
	ContentType string
	Name        string
}

// Reader returns a fresh seekable reader over the plaintext.
func (o *Object) Reader() io.ReadSeeker { return bytes.NewReader(o.Data) }

// Engine seals payloads into a Backend under per-owner locators of the form
// <owner>/<uuid>/<name>.
type Engine struct {
	backend Backend
	sealer  *cryptox.Sealer
	logger  logging.Logger
	newID   func() string
}

func NewEngine(b Backend, s *cryptox.Sealer, l logging.Logger) *Engine {
	return &Engine{
		backend: b,
		sealer:  s,
		logger:  l.With("module", "storage", "backend", b.Type()),
		newID:   uuid.NewString,
	}
}

// Save encrypts everything read from r and stores it for ownerID. The
// returned locator is unique and is never handed out again.
func (e *Engine) Save(ctx context.Context, r io.Reader, logicalName, ownerID string) (string, error) {
	if err := validateOwner(ownerID); err != nil {
		return "", err
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read payload: %w", err)
	}
	defer common.WipeByteArray(plaintext)

	blob, err := e.sealer.Seal(plaintext)
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}

	locator := path.Join(ownerID, e.newID(), SanitizeName(logicalName))
	if err := e.backend.PutObject(ctx, locator, blob); err != nil {
		return "", fmt.Errorf("%w: put %s: %v", common.ErrStorageUnavailable, locator, err)
	}

	e.logger.Debug(ctx, "object stored", "locator", locator, "size", len(plaintext))
	return locator, nil
}

// Retrieve loads and decrypts the payload at locator. A missing object and
// a payload that fails authentication both match common.ErrorNotFound; the
// latter also matches cryptox.ErrAuthentication.
func (e *Engine) Retrieve(ctx context.Context, locator string) (*Object, error) {
	if err := ValidateKey(locator); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorNotFound, err)
	}

	blob, err := e.backend.GetObject(ctx, locator)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: get %s: %v", common.ErrStorageUnavailable, locator, err)
	}

	plaintext, err := e.sealer.Open(blob)
	if err != nil {
		metrics.RecordIntegrityFailure()
		e.logger.Error(ctx, "stored payload failed authentication",
			"event", "integrity_failure", "locator", locator, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrorNotFound, err)
	}

	name := path.Base(locator)
	return &Object{
		Data:        plaintext,
		ContentType: ContentTypeFor(name),
		Name:        name,
	}, nil
}

// Delete removes the payload at locator. Deleting a missing payload is not
// an error.
func (e *Engine) Delete(ctx context.Context, locator string) error {
	if err := ValidateKey(locator); err != nil {
		return err
	}
	if err := e.backend.DeleteObject(ctx, locator); err != nil {
		return fmt.Errorf("%w: delete %s: %v", common.ErrStorageUnavailable, locator, err)
	}
	return nil
}

// SanitizeName reduces a client-supplied file name to a single safe path
// segment.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(path.Base(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	switch name {
	case "", ".", "..", "/":
		return "file"
	}
	return name
}

func validateOwner(ownerID string) error {
	if ownerID == "" || strings.ContainsAny(ownerID, "/\\") || ownerID == "." || ownerID == ".." {
		return fmt.Errorf("%w: owner %q", ErrInvalidKey, ownerID)
	}
	return nil
}
