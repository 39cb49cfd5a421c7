package cms

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// LockMode distinguishes an ordinary edit lock from one taken on behalf of a publish.
type LockMode int

const (
	LockModeEdit    LockMode = 0
	LockModePublish LockMode = 1
)

func (m LockMode) String() string {
	if m == LockModePublish {
		return "publish"
	}
	return "edit"
}

// Lock is an exclusive edit claim on a resource.
type Lock struct {
	ResourceID string
	UserID     string
	ProjectID  int
	Mode       LockMode
	CreatedAt  time.Time
}

// NullLock is the value reported for an unlocked resource.
var NullLock = Lock{}

// IsNull reports whether l describes an unlocked resource.
func (l Lock) IsNull() bool { return l.UserID == "" }

// LockTable stores lock entries. Absence of an entry means unlocked.
type LockTable interface {
	ReadLock(resourceID string) (*Lock, error)
	WriteLock(lock *Lock) error
	DeleteLock(resourceID string) error
	ReadLocks() ([]*Lock, error)
}

// LockRegistry is the single source of truth for who may mutate what.
// Check-and-set on the underlying table happens under one mutex.
type LockRegistry struct {
	mu    sync.Mutex
	table LockTable
	clock Clock
}

// NewLockRegistry creates a registry over table.
func NewLockRegistry(table LockTable, clock Clock) *LockRegistry {
	return &LockRegistry{table: table, clock: clock}
}

// Lock grants resourceID to userID within projectID. It fails with a
// LockConflictError when another user holds the lock, unless force is set,
// in which case the lock is transferred.
func (r *LockRegistry) Lock(resourceID, userID string, projectID int, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.table.ReadLock(resourceID)
	if err != nil {
		return backend("reading lock", err)
	}
	if current != nil && current.UserID != userID && !force {
		return &LockConflictError{ResourceID: resourceID, HolderID: current.UserID, ProjectID: current.ProjectID}
	}
	return r.write(resourceID, userID, projectID, LockModeEdit)
}

// Unlock clears the lock entry. Unlocking an unlocked resource is a no-op.
func (r *LockRegistry) Unlock(resourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.table.DeleteLock(resourceID); err != nil {
		return backend("deleting lock", err)
	}
	return nil
}

// LockedBy returns the current lock, or NullLock when unlocked.
func (r *LockRegistry) LockedBy(resourceID string) (Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.table.ReadLock(resourceID)
	if err != nil {
		return NullLock, backend("reading lock", err)
	}
	if current == nil {
		return NullLock, nil
	}
	return *current, nil
}

// ChangeLock re-assigns an existing lock to userID in projectID. Unlike a
// forced Lock it never creates a lock on an unlocked resource.
func (r *LockRegistry) ChangeLock(resourceID, userID string, projectID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.table.ReadLock(resourceID)
	if err != nil {
		return backend("reading lock", err)
	}
	if current == nil {
		return inconsistent("cannot change lock of unlocked resource %s", resourceID)
	}
	return r.write(resourceID, userID, projectID, current.Mode)
}

// RequireHeldBy fails unless userID holds the lock on resourceID.
func (r *LockRegistry) RequireHeldBy(resourceID, userID string) error {
	l, err := r.LockedBy(resourceID)
	if err != nil {
		return err
	}
	if l.UserID != userID {
		return &LockConflictError{ResourceID: resourceID, HolderID: l.UserID, ProjectID: l.ProjectID}
	}
	return nil
}

// Locks returns all current locks ordered by resource id.
func (r *LockRegistry) Locks() ([]*Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	locks, err := r.table.ReadLocks()
	if err != nil {
		return nil, backend("reading locks", err)
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].ResourceID < locks[j].ResourceID })
	return locks, nil
}

func (r *LockRegistry) write(resourceID, userID string, projectID int, mode LockMode) error {
	l := &Lock{
		ResourceID: resourceID,
		UserID:     userID,
		ProjectID:  projectID,
		Mode:       mode,
		CreatedAt:  r.clock.Now(),
	}
	if err := r.table.WriteLock(l); err != nil {
		return backend(fmt.Sprintf("writing lock for %s", resourceID), err)
	}
	return nil
}

// MemoryLockTable keeps locks for the lifetime of the process.
// It is safe for concurrent use.
type MemoryLockTable struct {
	mu    sync.RWMutex
	locks map[string]Lock
}

// NewMemoryLockTable creates an empty lock table.
func NewMemoryLockTable() *MemoryLockTable {
	return &MemoryLockTable{locks: make(map[string]Lock)}
}

func (t *MemoryLockTable) ReadLock(resourceID string) (*Lock, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.locks[resourceID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (t *MemoryLockTable) WriteLock(lock *Lock) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locks[lock.ResourceID] = *lock
	return nil
}

func (t *MemoryLockTable) DeleteLock(resourceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, resourceID)
	return nil
}

func (t *MemoryLockTable) ReadLocks() ([]*Lock, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Lock, 0, len(t.locks))
	for _, l := range t.locks {
		l := l
		out = append(out, &l)
	}
	return out, nil
}

var _ LockTable = (*MemoryLockTable)(nil)
