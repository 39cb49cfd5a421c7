package encryption

import (
	"bytes"
	"fmt"
	"io"

	"vfs-go/internal/cms"
)

// testHeader marks content "encrypted" by TestEncryptor.
var testHeader = []byte("VFSENC\x00\x00")

// TestEncryptor is a deterministic stand-in for AgeEncryptor. It prepends a
// fixed 8-byte header, so stored checksums differ from plaintext ones.
// Unlock accepts any passphrase except WrongPassphrase.
type TestEncryptor struct {
	setupCalled bool
}

var _ cms.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.setupCalled = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

// WrongPassphrase is rejected by TestEncryptor.Unlock.
const WrongPassphrase = "wrong"

func (e *TestEncryptor) Unlock(passphrase string) (cms.DecryptionContext, error) {
	if passphrase == WrongPassphrase {
		return nil, fmt.Errorf("unlocking test key: %w", cms.ErrPermissionDenied)
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext strips the test header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ cms.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
