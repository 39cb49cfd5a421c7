package testutil

import (
	"testing"

	"vfs-go/internal/cache"
	"vfs-go/internal/cms"
	"vfs-go/internal/database"
	"vfs-go/internal/vault"
)

// OfflineProjectID is the id of the seeded default working project.
const OfflineProjectID = 2

// Env is a fully wired service over an in-memory database.
type Env struct {
	Service *cms.Service
	DB      *database.SQLiteDatabase
	Failing *FailingDatabase
	Vault   *vault.MemoryVault
	Cache   *cache.MemoryCache
	Clock   *StubClock
	IDs     *StubIDGenerator
}

// NewEnv wires a service with plaintext backups. The database is wrapped
// in a FailingDatabase so tests can inject failures.
func NewEnv(t *testing.T) *Env {
	return NewEnvWithEncryptor(t, nil)
}

// NewEnvWithEncryptor is NewEnv with encrypted backup content.
func NewEnvWithEncryptor(t *testing.T, enc cms.Encryptor) *Env {
	t.Helper()

	db := NewTestDatabase(t)
	env := &Env{
		DB:      db,
		Failing: NewFailingDatabase(db),
		Vault:   NewTestVault(),
		Cache:   cache.NewMemoryCache(),
		Clock:   FixedClock(),
		IDs:     NewStubIDGenerator(),
	}
	env.Service = cms.NewService(env.Failing, env.Vault, enc, env.Cache, cms.NewNopLogger(), env.Clock, env.IDs)
	return env
}

// AdminContext returns a request context for the seeded admin working in
// the default offline project.
func (e *Env) AdminContext(t *testing.T) *cms.RequestContext {
	t.Helper()
	return e.ContextFor(t, "Admin", OfflineProjectID)
}

// ContextFor logs in the named user and switches to projectID.
func (e *Env) ContextFor(t *testing.T, name string, projectID int) *cms.RequestContext {
	t.Helper()

	user, err := e.Service.Login(name)
	if err != nil {
		t.Fatalf("Login(%s) error = %v", name, err)
	}
	rc := e.Service.NewRequestContextFor(user, "")
	if _, err := e.Service.SetCurrentProject(rc, projectID); err != nil {
		t.Fatalf("SetCurrentProject(%d) error = %v", projectID, err)
	}
	return rc
}
