package cms

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// BackupResource is an immutable snapshot of a resource taken at publish
// time. Principal names are copied so history stays readable after users
// or groups are renamed or removed.
type BackupResource struct {
	Resource

	VersionID          int64
	PublishedAt        time.Time
	OwnerName          string
	GroupName          string
	LastModifiedByName string
	Properties         map[string]string

	// ContentChecksum addresses the plaintext content; EncryptedChecksum,
	// when set, addresses the ciphertext actually stored in the vault.
	ContentChecksum   string
	EncryptedChecksum string
}

// PublishRecord summarizes one publish run.
type PublishRecord struct {
	VersionID    int64
	ProjectID    int
	ProjectName  string
	UserID       string
	StartedAt    time.Time
	FinishedAt   time.Time
	NewCount     int
	ChangedCount int
	DeletedCount int
	FailedCount  int
	Status       string
}

// Publish record statuses.
const (
	PublishRunning = "running"
	PublishSuccess = "success"
	PublishPartial = "partial"
	PublishFailed  = "failed"
)

// BackupStore writes and reads the version history. Rows are append-only
// until pruned; content lives in the vault, optionally encrypted.
type BackupStore struct {
	// mu keeps a prune from deleting a blob that a concurrent Write has just
	// stored but not yet referenced.
	mu sync.Mutex

	db        Database
	vault     Vault
	encryptor Encryptor
	logger    Logger
	clock     Clock
}

// NewBackupStore creates a history store. encryptor may be nil, in which
// case content is stored in plaintext.
func NewBackupStore(db Database, vault Vault, encryptor Encryptor, logger Logger, clock Clock) *BackupStore {
	return &BackupStore{db: db, vault: vault, encryptor: encryptor, logger: logger, clock: clock}
}

// NextVersionID returns a fresh version id shared by everything published together.
func (b *BackupStore) NextVersionID(createdAt time.Time) (int64, error) {
	id, err := b.db.NextVersionID(createdAt)
	if err != nil {
		return 0, backend("reserving version id", err)
	}
	return id, nil
}

// Write records one published resource under versionID.
func (b *BackupStore) Write(res *Resource, props map[string]string, versionID int64, publishedAt time.Time) error {
	backup := &BackupResource{
		Resource:    *res.Clone(),
		VersionID:   versionID,
		PublishedAt: publishedAt,
		Properties:  props,
	}
	backup.Content = nil

	b.mu.Lock()
	defer b.mu.Unlock()

	backup.OwnerName = b.userName(res.OwnerID)
	backup.LastModifiedByName = b.userName(res.LastModifiedBy)
	if res.GroupID != "" {
		if g, err := b.db.ReadGroup(res.GroupID); err == nil && g != nil {
			backup.GroupName = g.Name
		}
	}

	if res.IsFile() {
		if err := b.storeContent(backup, res.Content); err != nil {
			return err
		}
	}

	if err := b.db.WriteBackup(backup); err != nil {
		return backend(fmt.Sprintf("writing backup of %s", res.Name), err)
	}
	return nil
}

func (b *BackupStore) userName(id string) string {
	if id == "" {
		return ""
	}
	u, err := b.db.ReadUser(id)
	if err != nil || u == nil {
		return ""
	}
	return u.Name
}

// storeContent uploads content to the vault. Encrypted content is stored
// under the checksum of the ciphertext.
func (b *BackupStore) storeContent(backup *BackupResource, content []byte) error {
	backup.ContentChecksum = checksum(content)

	data := content
	if b.encryptor != nil {
		var buf bytes.Buffer
		if err := b.encryptor.Encrypt(bytes.NewReader(content), &buf); err != nil {
			return fmt.Errorf("encrypting backup content: %w", err)
		}
		data = buf.Bytes()
		backup.EncryptedChecksum = checksum(data)
	}

	key := backup.ContentChecksum
	if backup.EncryptedChecksum != "" {
		key = backup.EncryptedChecksum
	}
	if err := b.vault.PutContent(key, bytes.NewReader(data), int64(len(data))); err != nil {
		return backend("uploading backup content", err)
	}
	return nil
}

// ReadByVersion returns the snapshot of path at versionID. With
// withContent set the content is fetched from the vault; decryptCtx is
// required when the content is encrypted.
func (b *BackupStore) ReadByVersion(path string, versionID int64, withContent bool, decryptCtx DecryptionContext) (*BackupResource, error) {
	backup, err := b.db.ReadBackup(path, versionID)
	if err != nil {
		return nil, backend("reading backup", err)
	}
	if backup == nil {
		return nil, fmt.Errorf("version %d of %s: %w", versionID, path, ErrNotFound)
	}
	if withContent && backup.IsFile() {
		content, err := b.loadContent(backup, decryptCtx)
		if err != nil {
			return nil, err
		}
		backup.SetContent(content)
	}
	return backup, nil
}

// ReadAllVersions lists every snapshot of path, newest first, without content.
func (b *BackupStore) ReadAllVersions(path string) ([]*BackupResource, error) {
	backups, err := b.db.ReadBackups(path)
	if err != nil {
		return nil, backend("reading backups", err)
	}
	return backups, nil
}

// PruneOlderThan deletes snapshots published more than ageWeeks ago,
// removes vault content no remaining snapshot refers to, and returns the
// oldest remaining version id. A blob that cannot be removed is logged and
// left behind; the rows are already gone at that point.
func (b *BackupStore) PruneOlderThan(ageWeeks int) (int64, error) {
	if ageWeeks < 0 {
		return 0, fmt.Errorf("negative age: %d weeks", ageWeeks)
	}
	cutoff := b.clock.Now().Add(-time.Duration(ageWeeks) * 7 * 24 * time.Hour)

	b.mu.Lock()
	defer b.mu.Unlock()

	oldest, orphaned, err := b.db.DeleteBackupsBefore(cutoff)
	if err != nil {
		return 0, backend("pruning backups", err)
	}
	removed := 0
	for _, key := range orphaned {
		if err := b.vault.DeleteContent(key); err != nil {
			b.logger.Warn("removing pruned backup content", "checksum", key, "error", err)
			continue
		}
		removed++
	}
	b.logger.Info("backups pruned", "cutoff", cutoff.UTC().Format(time.RFC3339), "oldest_version", oldest, "content_removed", removed)
	return oldest, nil
}

func (b *BackupStore) loadContent(backup *BackupResource, decryptCtx DecryptionContext) ([]byte, error) {
	var buf bytes.Buffer
	if backup.EncryptedChecksum == "" {
		if err := b.vault.GetContent(backup.ContentChecksum, &buf); err != nil {
			return nil, backend("retrieving backup content", err)
		}
		return buf.Bytes(), nil
	}

	if decryptCtx == nil {
		return nil, denied("backup content of %s is encrypted but no passphrase was provided", backup.Name)
	}
	var cipher bytes.Buffer
	if err := b.vault.GetContent(backup.EncryptedChecksum, &cipher); err != nil {
		return nil, backend("retrieving backup content", err)
	}
	if err := decryptCtx.Decrypt(&cipher, &buf); err != nil {
		return nil, fmt.Errorf("decrypting backup content: %w", err)
	}
	if checksum(buf.Bytes()) != backup.ContentChecksum {
		return nil, inconsistent("checksum mismatch restoring %s version %d", backup.Name, backup.VersionID)
	}
	return buf.Bytes(), nil
}

func checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
