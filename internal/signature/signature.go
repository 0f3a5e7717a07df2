// Package signature identifies uploads by their leading magic bytes. The
// declared file name and MIME type play no part in detection.
package signature

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Type is the detected file type.
type Type string

const (
	PDF     Type = "pdf"
	JPG     Type = "jpg"
	PNG     Type = "png"
	Unknown Type = "unknown"
)

// HeaderSize is how many leading bytes Detect needs to decide.
const HeaderSize = 8

const minHeader = 4

type magic struct {
	typ   Type
	bytes []byte
}

// magics is checked in order; the first prefix match wins.
var magics = [...]magic{
	{PDF, []byte{0x25, 0x50, 0x44, 0x46}},
	{JPG, []byte{0xFF, 0xD8, 0xFF, 0xE0}},
	{JPG, []byte{0xFF, 0xD8, 0xFF, 0xE1}},
	{JPG, []byte{0xFF, 0xD8, 0xFF, 0xE2}},
	{JPG, []byte{0xFF, 0xD8, 0xFF, 0xE3}},
	{JPG, []byte{0xFF, 0xD8, 0xFF, 0xE8}},
	{JPG, []byte{0xFF, 0xD8, 0xFF, 0xDB}},
	{PNG, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
}

// Detect returns the type whose magic number prefixes header, or Unknown.
// Headers shorter than 4 bytes are always Unknown.
func Detect(header []byte) Type {
	if len(header) < minHeader {
		return Unknown
	}
	for _, m := range magics {
		if bytes.HasPrefix(header, m.bytes) {
			return m.typ
		}
	}
	return Unknown
}

// DetectReader reads the header from the start of r and detects its type.
// The read position of r is restored before returning.
func DetectReader(r io.ReadSeeker) (Type, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return Unknown, fmt.Errorf("seek: %w", err)
	}
	defer func() { _, _ = r.Seek(pos, io.SeekStart) }()

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Unknown, fmt.Errorf("seek: %w", err)
	}

	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Unknown, fmt.Errorf("read header: %w", err)
	}
	return Detect(header[:n]), nil
}

// IsAllowed reports whether t may be stored in the vault.
func IsAllowed(t Type) bool {
	switch t {
	case PDF, JPG, PNG:
		return true
	default:
		return false
	}
}

// MIMEType is the canonical content type for t.
func (t Type) MIMEType() string {
	switch t {
	case PDF:
		return "application/pdf"
	case JPG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
