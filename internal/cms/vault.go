package cms

import "io"

// Vault stores backup content, addressed by checksum.
type Vault interface {
	// PutContent stores content identified by its checksum.
	// Storing the same checksum twice is safe.
	// size is the number of bytes that will be read from r.
	PutContent(checksum string, r io.Reader, size int64) error

	// GetContent retrieves content by checksum and writes it to w.
	GetContent(checksum string, w io.Writer) error

	// DeleteContent removes content by checksum. Removing a checksum that
	// is not stored is not an error.
	DeleteContent(checksum string) error

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}

// Encryptor encrypts backup content at rest.
type Encryptor interface {
	// Setup creates the key material protected by passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock returns a context able to decrypt content.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether key material exists.
	IsConfigured() bool
}

// DecryptionContext holds unlocked key material.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// ElementCache caches rendered online output. Publish invalidates it.
type ElementCache interface {
	// Invalidate drops the entries for the given paths.
	Invalidate(paths []string) error
	// Clear drops everything.
	Clear() error
}

// NopCache is an ElementCache that caches nothing.
type NopCache struct{}

func (NopCache) Invalidate([]string) error { return nil }
func (NopCache) Clear() error              { return nil }
