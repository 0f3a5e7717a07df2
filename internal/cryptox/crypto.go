// Package cryptox implements the at-rest encryption used by the storage
// engine: a single AEAD keyed with a 256-bit master key and a stored
// layout of nonce || tag || ciphertext.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required master key length in bytes.
const KeySize = 32

// TagSize is the authentication tag length of both supported ciphers.
const TagSize = 16

// Algorithm names an AEAD construction.
type Algorithm string

const (
	AESGCM            Algorithm = "aes-256-gcm"
	XChaCha20Poly1305 Algorithm = "xchacha20-poly1305"
)

var (
	ErrInvalidKey         = errors.New("encryption key must be 32 bytes (64 hex characters)")
	ErrUnknownAlgorithm   = errors.New("unknown cipher algorithm")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrAuthentication     = errors.New("message authentication failed")
)

// ParseHexKey decodes a 64-character hex string into a 32-byte key.
// Surrounding whitespace is ignored.
func ParseHexKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) != KeySize*2 {
		return nil, ErrInvalidKey
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// Sealer encrypts and authenticates whole payloads with one key.
// It is safe for concurrent use.
type Sealer struct {
	aead      cipher.AEAD
	algorithm Algorithm
}

// NewSealer builds a Sealer for alg keyed with key. The caller may wipe key
// after this returns.
func NewSealer(alg Algorithm, key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch alg {
	case AESGCM, "":
		alg = AESGCM
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		aead, err = cipher.NewGCM(block)
	case XChaCha20Poly1305:
		aead, err = chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
	if err != nil {
		return nil, err
	}

	return &Sealer{aead: aead, algorithm: alg}, nil
}

// Algorithm reports the cipher in use.
func (s *Sealer) Algorithm() Algorithm { return s.algorithm }

// Overhead is the number of bytes Seal adds to a plaintext.
func (s *Sealer) Overhead() int { return s.aead.NonceSize() + TagSize }

// Seal encrypts plaintext under a fresh random nonce and returns
//
//	nonce (NonceSize bytes) || tag (16 bytes) || ciphertext (len(plaintext) bytes)
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	ns := s.aead.NonceSize()

	out := make([]byte, ns+TagSize+len(plaintext))
	nonce := out[:ns]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	// Go's AEADs append the tag after the ciphertext.
	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(plaintext)], sealed[len(plaintext):]

	copy(out[ns:ns+TagSize], tag)
	copy(out[ns+TagSize:], ct)
	return out, nil
}

// Open verifies and decrypts a payload produced by Seal. On any
// verification failure it returns ErrAuthentication and no plaintext.
func (s *Sealer) Open(blob []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(blob) < ns+TagSize {
		return nil, ErrCiphertextTooShort
	}

	nonce := blob[:ns]
	tag := blob[ns : ns+TagSize]
	ct := blob[ns+TagSize:]

	sealed := make([]byte, 0, len(ct)+TagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
