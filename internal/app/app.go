package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"vfs-go/internal/cache"
	"vfs-go/internal/cms"
	"vfs-go/internal/config"
	"vfs-go/internal/database"
	"vfs-go/internal/encryption"
	"vfs-go/internal/fs"
	"vfs-go/internal/scheduler"
	"vfs-go/internal/vault"
)

// MetadataName is the vault metadata item holding the database snapshot.
const MetadataName = "vfs.db"

// VFSApp is the application layer between the CLI and cms.Service.
// It constructs all dependencies from config, exposes high-level operations
// on site-relative paths, and manages the DB lifecycle on Close.
type VFSApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	vault     vault.Store
	encryptor cms.Encryptor
	cache     cache.Cache
	service   *cms.Service
	rc        *cms.RequestContext
	logger    cms.Logger
	op        *Operation
	logFile   *os.File
}

// Option customizes NewVFSApp.
type Option func(*options)

type options struct {
	console io.Writer
	clock   cms.Clock
}

// WithConsole sets where warnings are echoed besides the log file. Defaults
// to stderr; nil disables the echo.
func WithConsole(w io.Writer) Option {
	return func(o *options) { o.console = w }
}

// WithClock replaces the wall clock.
func WithClock(c cms.Clock) Option {
	return func(o *options) { o.clock = c }
}

// NewVFSApp creates a fully wired VFSApp from the given config, acting as
// cfg.User. operation identifies the CLI command being run (e.g. "publish",
// "create"). The caller must call Close when done.
func NewVFSApp(cfg *config.Config, operation string, opts ...Option) (*VFSApp, error) {
	o := &options{console: os.Stderr, clock: cms.RealClock{}}
	for _, opt := range opts {
		opt(o)
	}

	if len(cfg.Vaults) == 0 {
		return nil, fmt.Errorf("no vaults configured")
	}
	v, err := vault.NewVaultFromConfig(cfg.Vaults[0])
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	// Check local DB version against remote vault version.
	remoteVersion, err := v.GetMetadataVersion(MetadataName)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checking remote metadata version: %w", err)
	}

	localMax, err := db.MaxOperationID()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checking local metadata version: %w", err)
	}

	if remoteVersion > localMax {
		db.Close()
		return nil, fmt.Errorf("local database is behind remote (local=%d, remote=%d): restore from vault or re-initialize", localMax, remoteVersion)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	c, err := cache.NewCacheFromConfig(cfg.Cache)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	opID := o.clock.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID, o.console)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	var elementCache cms.ElementCache
	if c != nil {
		elementCache = c
	}
	svc := cms.NewService(db, v, enc, elementCache, logger, o.clock, cms.UUIDGenerator{})
	svc.Events().On(cms.EventPublishProject, func(e cms.Event) {
		logger.Info("project published",
			"project", e.Result.ProjectID, "version", e.Result.VersionID,
			"status", e.Result.Status(), "resources", len(e.Result.ChangedResources()))
	})

	user, err := svc.Login(cfg.User)
	if err != nil {
		logFile.Close()
		db.Close()
		return nil, fmt.Errorf("logging in as %q: %w", cfg.User, err)
	}

	return &VFSApp{
		cfg:       cfg,
		db:        db,
		vault:     v,
		encryptor: enc,
		cache:     c,
		service:   svc,
		rc:        svc.NewRequestContextFor(user, cfg.SiteRoot),
		logger:    logger,
		op:        NewOperation(operation, ""),
		logFile:   logFile,
	}, nil
}

// Context returns the request context of the logged-in user.
func (a *VFSApp) Context() *cms.RequestContext { return a.rc }

// Operation returns the operation this app instance records.
func (a *VFSApp) Operation() *Operation { return a.op }

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for DB-mutating commands.
func (a *VFSApp) persistOperation(params ...string) error {
	if a.op.Persisted() {
		return nil
	}
	if len(params) > 0 {
		a.op.Parameters = strings.Join(params, " ")
	}
	dbOp, err := a.db.CreateOperation(a.op.Name, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// mutate persists the operation and runs fn, recording its outcome.
func (a *VFSApp) mutate(fn func() error, params ...string) error {
	if err := a.persistOperation(params...); err != nil {
		return err
	}
	return a.op.Record(fn())
}

// Resources

// ReadResource reads a resource in the current project, deleted ones included.
func (a *VFSApp) ReadResource(path string) (*cms.Resource, error) {
	return a.service.ReadResource(a.rc, path, true)
}

// ReadChildren lists a folder in the current project.
func (a *VFSApp) ReadChildren(path string, includeDeleted bool) ([]*cms.Resource, error) {
	return a.service.ReadChildren(a.rc, path, includeDeleted)
}

// ReadOnline returns the published content of a file, served from the
// element cache when possible.
func (a *VFSApp) ReadOnline(path string) ([]byte, error) {
	full := a.rc.AddSiteRoot(path)
	if a.cache != nil {
		data, ok, err := a.cache.Get(full)
		if err != nil {
			a.logger.Warn("cache read failed", "path", full, "error", err)
		} else if ok {
			return data, nil
		}
	}

	online, err := a.service.ReadProject(cms.OnlineProjectID)
	if err != nil {
		return nil, err
	}
	orc := cms.NewRequestContext(a.rc.CurrentUser(), online, a.cfg.SiteRoot)
	res, err := a.service.ReadResource(orc, path, false)
	if err != nil {
		return nil, err
	}
	if res.IsFolder() {
		return nil, fmt.Errorf("%s is a folder: %w", full, cms.ErrInconsistentState)
	}

	if a.cache != nil {
		if err := a.cache.Put(full, res.Content); err != nil {
			a.logger.Warn("cache write failed", "path", full, "error", err)
		}
	}
	return res.Content, nil
}

// CreateResource creates a file or folder. typeName is a registered
// resource type name; folders are recognized by their trailing separator.
func (a *VFSApp) CreateResource(path, typeName string, content []byte, props map[string]string) (*cms.Resource, error) {
	t, err := a.service.Types().ByName(typeName)
	if err != nil {
		return nil, err
	}
	var res *cms.Resource
	err = a.mutate(func() error {
		var err error
		res, err = a.service.CreateResource(a.rc, path, t.ID(), content, props)
		return err
	}, path)
	return res, err
}

// CreateSibling adds path as a second name for the content of source.
func (a *VFSApp) CreateSibling(source, path string) error {
	return a.mutate(func() error {
		_, err := a.service.CreateSibling(a.rc, source, path)
		return err
	}, source, path)
}

// WriteContent replaces the content of a file.
func (a *VFSApp) WriteContent(path string, content []byte) error {
	return a.mutate(func() error {
		_, err := a.service.WriteContent(a.rc, path, content)
		return err
	}, path)
}

// ReadProperties returns the properties of a resource.
func (a *VFSApp) ReadProperties(path string) (map[string]string, error) {
	return a.service.ReadProperties(a.rc, path)
}

// WriteProperty sets one property; an empty value removes it.
func (a *VFSApp) WriteProperty(path, key, value string) error {
	return a.mutate(func() error {
		return a.service.WriteProperty(a.rc, path, key, value)
	}, path, key)
}

// Touch overrides the last-modified date of a resource.
func (a *VFSApp) Touch(path string, ts time.Time) error {
	return a.mutate(func() error {
		return a.service.Touch(a.rc, path, ts)
	}, path)
}

// SetLinks replaces the outgoing links of a resource.
func (a *VFSApp) SetLinks(path string, targets []string) error {
	return a.mutate(func() error {
		return a.service.SetLinks(a.rc, path, targets)
	}, path)
}

// ReadLinks returns the outgoing links of a resource.
func (a *VFSApp) ReadLinks(path string) ([]string, error) {
	return a.service.ReadLinks(a.rc, path)
}

// DeleteResource marks a resource (and a folder's subtree) deleted.
func (a *VFSApp) DeleteResource(path string) error {
	return a.mutate(func() error {
		return a.service.DeleteResource(a.rc, path)
	}, path)
}

// UndeleteResource revives a deleted resource.
func (a *VFSApp) UndeleteResource(path string) error {
	return a.mutate(func() error {
		return a.service.UndeleteResource(a.rc, path)
	}, path)
}

// UndoChanges restores the online state of a resource.
func (a *VFSApp) UndoChanges(path string) error {
	return a.mutate(func() error {
		return a.service.UndoChanges(a.rc, path)
	}, path)
}

// CopyResource copies source to destination.
func (a *VFSApp) CopyResource(source, destination string) error {
	return a.mutate(func() error {
		_, err := a.service.CopyResource(a.rc, source, destination)
		return err
	}, source, destination)
}

// MoveResource moves source to destination.
func (a *VFSApp) MoveResource(source, destination string) error {
	return a.mutate(func() error {
		_, err := a.service.MoveResource(a.rc, source, destination)
		return err
	}, source, destination)
}

// AttachBody pairs a page with its body resource.
func (a *VFSApp) AttachBody(pagePath, bodyPath string) error {
	return a.mutate(func() error {
		return a.service.AttachBody(a.rc, pagePath, bodyPath)
	}, pagePath, bodyPath)
}

// Locks

// LockResource locks a resource for the current user. force steals a lock
// held by someone else.
func (a *VFSApp) LockResource(path string, force bool) error {
	return a.mutate(func() error {
		return a.service.LockResource(a.rc, path, force)
	}, path)
}

// UnlockResource releases the current user's lock.
func (a *VFSApp) UnlockResource(path string) error {
	return a.mutate(func() error {
		return a.service.UnlockResource(a.rc, path)
	}, path)
}

// ChangeLock takes over an existing lock.
func (a *VFSApp) ChangeLock(path string) error {
	return a.mutate(func() error {
		return a.service.ChangeLock(a.rc, path)
	}, path)
}

// LockedBy reports the lock on a resource.
func (a *VFSApp) LockedBy(path string) (cms.Lock, error) {
	return a.service.LockedBy(a.rc, path)
}

// Projects

// CurrentProject returns the project the user works in.
func (a *VFSApp) CurrentProject() *cms.Project { return a.rc.CurrentProject() }

// ListProjects returns every project ordered by id.
func (a *VFSApp) ListProjects() ([]*cms.Project, error) {
	return a.service.ListProjects()
}

// CreateProject creates a project scoped to resources, managed by the
// current project's groups.
func (a *VFSApp) CreateProject(name, description string, resources []string) (*cms.Project, error) {
	cur := a.rc.CurrentProject()
	group, manager := cur.GroupID, cur.ManagerGroupID
	if group == "" {
		group = "users"
	}
	if manager == "" {
		manager = "projectmanagers"
	}
	var p *cms.Project
	err := a.mutate(func() error {
		var err error
		p, err = a.service.CreateProject(a.rc, name, description, group, manager, resources)
		return err
	}, name)
	return p, err
}

// SwitchProject makes id the current project, remembered across runs.
func (a *VFSApp) SwitchProject(id int) (*cms.Project, error) {
	var p *cms.Project
	err := a.mutate(func() error {
		var err error
		p, err = a.service.SetCurrentProject(a.rc, id)
		return err
	}, fmt.Sprint(id))
	return p, err
}

// ProjectView lists the resources of a project matching filter
// ("all", "new", "changed", "deleted", "locked"). id 0 means the current project.
func (a *VFSApp) ProjectView(id int, filter string) ([]*cms.Resource, error) {
	f, err := cms.ParseProjectFilter(filter)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		id = a.rc.CurrentProject().ID
	}
	return a.service.ReadProjectView(a.rc, id, f)
}

// ArchiveProject freezes a project.
func (a *VFSApp) ArchiveProject(id int) error {
	return a.mutate(func() error {
		return a.service.ArchiveProject(a.rc, id)
	}, fmt.Sprint(id))
}

// DeleteProject removes a project that holds no locks.
func (a *VFSApp) DeleteProject(id int) error {
	return a.mutate(func() error {
		return a.service.DeleteProject(a.rc, id)
	}, fmt.Sprint(id))
}

// UnlockProject releases every lock held in a project.
func (a *VFSApp) UnlockProject(id int) (int, error) {
	var n int
	err := a.mutate(func() error {
		var err error
		n, err = a.service.UnlockProject(a.rc, id)
		return err
	}, fmt.Sprint(id))
	return n, err
}

// Publishing

// Publish publishes the current project.
func (a *VFSApp) Publish(reporter cms.Reporter) (*cms.PublishResult, error) {
	var result *cms.PublishResult
	err := a.mutate(func() error {
		var err error
		result, err = a.service.PublishProject(a.rc, reporter)
		return err
	}, fmt.Sprint(a.rc.CurrentProject().ID))
	return result, err
}

// PublishResource publishes a single resource. A dry run touches nothing
// and is not recorded as an operation.
func (a *VFSApp) PublishResource(path string, dryRun bool, reporter cms.Reporter) (*cms.DirectPublishResult, error) {
	if dryRun {
		return a.service.PublishResource(a.rc, path, true, reporter)
	}
	var result *cms.DirectPublishResult
	err := a.mutate(func() error {
		var err error
		result, err = a.service.PublishResource(a.rc, path, false, reporter)
		return err
	}, path)
	return result, err
}

// CheckBrokenLinks reports links that would dangle online after publishing
// the current project.
func (a *VFSApp) CheckBrokenLinks() ([]cms.BrokenLink, error) {
	return a.service.CheckBrokenLinks(a.rc, a.rc.CurrentProject().ID)
}

// History

// PublishHistory returns the most recent publish runs.
func (a *VFSApp) PublishHistory(limit int) ([]*cms.PublishRecord, error) {
	return a.service.PublishHistory(limit)
}

// Operations returns the most recent recorded CLI operations.
func (a *VFSApp) Operations(limit int) ([]*database.Operation, error) {
	return a.db.ListOperations(limit)
}

// Versions returns the backup versions of a resource, newest first.
func (a *VFSApp) Versions(path string) ([]*cms.BackupResource, error) {
	return a.service.ReadAllVersions(a.rc, path)
}

// ReadVersion returns one backup version with its content. passphrase
// unlocks encrypted history and is ignored without encryption.
func (a *VFSApp) ReadVersion(path string, versionID int64, passphrase string) (*cms.BackupResource, error) {
	dc, err := a.unlock(passphrase)
	if err != nil {
		return nil, err
	}
	return a.service.ReadBackup(a.rc, path, versionID, true, dc)
}

// RestoreVersion brings a backup version back into the current project.
func (a *VFSApp) RestoreVersion(path string, versionID int64, passphrase string) error {
	dc, err := a.unlock(passphrase)
	if err != nil {
		return err
	}
	return a.mutate(func() error {
		_, err := a.service.RestoreVersion(a.rc, path, versionID, dc)
		return err
	}, path, fmt.Sprint(versionID))
}

// Prune removes backups older than ageWeeks; 0 uses the configured age.
func (a *VFSApp) Prune(ageWeeks int) (int64, error) {
	if ageWeeks == 0 {
		ageWeeks = a.cfg.History.MaxAgeWeeks
	}
	var oldest int64
	err := a.mutate(func() error {
		var err error
		oldest, err = a.service.PruneBackups(a.rc, ageWeeks)
		return err
	}, fmt.Sprint(ageWeeks))
	return oldest, err
}

// NewPruneScheduler returns a scheduler pruning history on the configured
// schedule. Runs are recorded under this app's operation.
func (a *VFSApp) NewPruneScheduler() (*scheduler.PruneScheduler, error) {
	if err := a.persistOperation(a.cfg.History.PruneSchedule); err != nil {
		return nil, err
	}
	return scheduler.New(a.service.History(), a.cfg.History.PruneSchedule, a.cfg.History.MaxAgeWeeks, a.logger, cms.RealClock{})
}

func (a *VFSApp) unlock(passphrase string) (cms.DecryptionContext, error) {
	if a.encryptor == nil {
		return nil, nil
	}
	return a.encryptor.Unlock(passphrase)
}

// SetupEncryption generates the key pair protecting backup content.
func (a *VFSApp) SetupEncryption(passphrase string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is disabled in the config")
	}
	return a.encryptor.Setup(passphrase)
}

// Import copies a local directory below the VFS folder target.
func (a *VFSApp) Import(localDir, target string) (*fs.ImportResult, error) {
	var result *fs.ImportResult
	err := a.mutate(func() error {
		var err error
		result, err = fs.NewImporter(a.service, a.cfg.Import.Ignore, a.logger).Import(a.rc, localDir, target)
		return err
	}, localDir, target)
	return result, err
}

// Users

// CreateUser adds a user in the given groups.
func (a *VFSApp) CreateUser(name string, admin bool, groups ...string) error {
	return a.mutate(func() error {
		_, err := a.service.CreateUser(a.rc, name, admin, groups...)
		return err
	}, name)
}

// CreateGroup adds a group.
func (a *VFSApp) CreateGroup(id, name string) error {
	return a.mutate(func() error {
		_, err := a.service.CreateGroup(a.rc, id, name)
		return err
	}, id)
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record, backs up the DB, and uploads to vault.
// For non-persisted operations: just closes the database.
func (a *VFSApp) Close() error {
	var errs []error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status); err != nil {
			errs = append(errs, fmt.Errorf("finishing operation: %w", err))
		}

		tmpPath, err := a.snapshot()
		if err != nil {
			errs = append(errs, err)
		}

		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}

		// Upload DB snapshot to vault with version = operation ID
		if tmpPath != "" {
			if err := a.uploadMetadata(tmpPath, a.op.ID); err != nil {
				errs = append(errs, err)
			}
			os.Remove(tmpPath)
		}
	} else if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	if closer, ok := a.cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing cache: %w", err))
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return errors.Join(errs...)
}

// snapshot copies the database to a temp file and returns its path.
func (a *VFSApp) snapshot() (string, error) {
	tmpFile, err := os.CreateTemp("", "vfs-db-backup-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file for db backup: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	if err := a.db.BackupTo(tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("backing up database: %w", err)
	}
	return tmpPath, nil
}

// uploadMetadata opens the temp DB file and uploads it to the vault as metadata.
func (a *VFSApp) uploadMetadata(path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening db backup for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat db backup: %w", err)
	}

	if err := a.vault.PutMetadata(MetadataName, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading metadata to vault: %w", err)
	}

	return nil
}
