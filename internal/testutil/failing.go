package testutil

import (
	"errors"
	"sync"
	"time"

	"vfs-go/internal/cms"
)

// ErrInjected is the error returned by FailingDatabase for failing operations.
var ErrInjected = errors.New("injected failure")

// FailingDatabase wraps a cms.Database and fails selected operations.
// The zero value of each switch passes calls through.
type FailingDatabase struct {
	cms.Database

	mu               sync.Mutex
	failPublish      map[string]bool // full paths whose CommitPublish fails
	failDeletion     map[string]bool // structure ids whose CommitDeletion fails
	failBackups      bool
	failVersionID    bool
	failPublishStart bool
}

// NewFailingDatabase wraps db.
func NewFailingDatabase(db cms.Database) *FailingDatabase {
	return &FailingDatabase{
		Database:     db,
		failPublish:  make(map[string]bool),
		failDeletion: make(map[string]bool),
	}
}

// FailPublishOf makes CommitPublish fail for the given full paths.
func (f *FailingDatabase) FailPublishOf(paths ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		f.failPublish[p] = true
	}
}

// FailDeletionOf makes CommitDeletion fail for the given structure ids.
func (f *FailingDatabase) FailDeletionOf(structureIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range structureIDs {
		f.failDeletion[id] = true
	}
}

// FailBackups makes every WriteBackup fail.
func (f *FailingDatabase) FailBackups() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failBackups = true
}

// FailVersionID makes NextVersionID fail.
func (f *FailingDatabase) FailVersionID() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failVersionID = true
}

// FailPublishRecord makes CreatePublishRecord fail.
func (f *FailingDatabase) FailPublishRecord() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPublishStart = true
}

// ClearFailures removes every injected fault.
func (f *FailingDatabase) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPublish = make(map[string]bool)
	f.failDeletion = make(map[string]bool)
	f.failBackups = false
	f.failVersionID = false
	f.failPublishStart = false
}

func (f *FailingDatabase) CommitPublish(r *cms.Resource, props map[string]string) error {
	f.mu.Lock()
	fail := f.failPublish[r.Name]
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Database.CommitPublish(r, props)
}

func (f *FailingDatabase) CommitDeletion(structureID string) error {
	f.mu.Lock()
	fail := f.failDeletion[structureID]
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Database.CommitDeletion(structureID)
}

func (f *FailingDatabase) WriteBackup(b *cms.BackupResource) error {
	f.mu.Lock()
	fail := f.failBackups
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Database.WriteBackup(b)
}

func (f *FailingDatabase) NextVersionID(createdAt time.Time) (int64, error) {
	f.mu.Lock()
	fail := f.failVersionID
	f.mu.Unlock()
	if fail {
		return 0, ErrInjected
	}
	return f.Database.NextVersionID(createdAt)
}

func (f *FailingDatabase) CreatePublishRecord(rec *cms.PublishRecord) error {
	f.mu.Lock()
	fail := f.failPublishStart
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Database.CreatePublishRecord(rec)
}

var _ cms.Database = (*FailingDatabase)(nil)
