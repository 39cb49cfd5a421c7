package vault

import (
	"io"

	"vfs-go/internal/cms"
)

// Store is a content vault that also keeps named metadata snapshots,
// such as copies of the CMS database, each tagged with a version.
type Store interface {
	cms.Vault

	// PutMetadata stores a named metadata item, replacing any previous copy.
	PutMetadata(name string, r io.Reader, size int64, version int64) error

	// GetMetadata retrieves a named metadata item and writes it to w.
	GetMetadata(name string, w io.Writer) error

	// GetMetadataVersion returns the version stored with name, or 0 if absent.
	GetMetadataVersion(name string) (int64, error)
}
