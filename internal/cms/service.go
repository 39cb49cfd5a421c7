package cms

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Well-known principals created with the schema.
const (
	AdminUserID          = "admin"
	GroupAdministrators  = "administrators"
	GroupProjectManagers = "projectmanagers"
	GroupUsers           = "users"
)

// Service is the orchestration layer over persistence, locking, publishing
// and history. All path arguments are site-relative; resources carry full names.
type Service struct {
	db      Database
	types   *TypeRegistry
	locks   *LockRegistry
	history *BackupStore
	cache   ElementCache
	events  *EventBus
	logger  Logger
	clock   Clock
	idgen   IDGenerator
}

// NewService creates a Service with the provided dependencies. Locks are
// kept in db. encryptor and cache may be nil.
func NewService(db Database, vault Vault, encryptor Encryptor, cache ElementCache, logger Logger, clock Clock, idgen IDGenerator) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		db:      db,
		types:   DefaultTypeRegistry(),
		locks:   NewLockRegistry(db, clock),
		history: NewBackupStore(db, vault, encryptor, logger, clock),
		cache:   cache,
		events:  NewEventBus(logger),
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
	}
}

// Types returns the resource type registry.
func (s *Service) Types() *TypeRegistry { return s.types }

// Locks returns the lock registry.
func (s *Service) Locks() *LockRegistry { return s.locks }

// History returns the backup store.
func (s *Service) History() *BackupStore { return s.history }

// Events returns the event bus publish notifications are sent to.
func (s *Service) Events() *EventBus { return s.events }

// ReadResource reads path in the current project's view. Deleted resources
// are reported as not found unless includeDeleted is set.
func (s *Service) ReadResource(rc *RequestContext, path string, includeDeleted bool) (*Resource, error) {
	return s.readResource(rc.CurrentProject().View(), rc.AddSiteRoot(path), includeDeleted)
}

// ReadChildren lists the direct children of a folder in the current view.
func (s *Service) ReadChildren(rc *RequestContext, path string, includeDeleted bool) ([]*Resource, error) {
	view := rc.CurrentProject().View()
	folder, err := s.readResource(view, rc.AddSiteRoot(path), includeDeleted)
	if err != nil {
		return nil, err
	}
	if !folder.IsFolder() {
		return nil, inconsistent("%s is not a folder", folder.Name)
	}
	children, err := s.db.ReadChildren(view, folder.Name)
	if err != nil {
		return nil, backend("reading children", err)
	}
	if includeDeleted {
		return children, nil
	}
	out := children[:0]
	for _, c := range children {
		if c.State != StateDeleted {
			out = append(out, c)
		}
	}
	return out, nil
}

// CreateResource creates a file or folder in the current offline project.
// The new resource is NEW and locked by the creator.
func (s *Service) CreateResource(rc *RequestContext, path string, typeID int, content []byte, props map[string]string) (*Resource, error) {
	full := rc.AddSiteRoot(path)
	if err := s.requireWritable(rc, full); err != nil {
		return nil, err
	}
	if err := ValidatePath(full); err != nil {
		return nil, inconsistent("%v", err)
	}

	t, err := s.types.Get(typeID)
	if err != nil {
		return nil, err
	}
	if t.Capabilities()&CapCreate == 0 {
		return nil, denied("resource type %s does not support create", t.Name())
	}
	if t.IsFolderType() != IsFolderPath(full) {
		return nil, inconsistent("type %s does not match path %s", t.Name(), full)
	}
	if err := t.ValidateContent(content); err != nil {
		return nil, inconsistent("invalid content for %s: %v", full, err)
	}

	parent, err := s.prepareTarget(full)
	if err != nil {
		return nil, err
	}

	user := rc.CurrentUser()
	now := s.clock.Now()
	res := &Resource{
		StructureID:         s.idgen.New(),
		ResourceID:          s.idgen.New(),
		ParentID:            parent.StructureID,
		Name:                full,
		Type:                typeID,
		Flags:               DefaultAccessFlags,
		OwnerID:             user.ID,
		GroupID:             rc.CurrentProject().GroupID,
		LastModifiedBy:      user.ID,
		ProjectID:           rc.CurrentProject().ID,
		State:               StateNew,
		DateCreated:         now,
		DateLastModified:    now,
		ContentLastModified: now,
	}
	if res.IsFile() {
		if content == nil {
			content = []byte{}
		}
		res.SetContent(content)
	}

	if err := s.db.WriteResource(ViewOffline, res); err != nil {
		return nil, backend("creating resource", err)
	}
	if len(props) > 0 {
		if err := s.db.WriteProperties(ViewOffline, res.ResourceID, props); err != nil {
			return nil, backend("writing properties", err)
		}
	}
	if err := s.locks.Lock(res.ResourceID, user.ID, rc.CurrentProject().ID, false); err != nil {
		return nil, err
	}

	s.logger.Info("resource created", "path", full, "type", t.Name())
	return res, nil
}

// CreateSibling adds a second path for the content of source (a VFS link).
func (s *Service) CreateSibling(rc *RequestContext, source, path string) (*Resource, error) {
	full := rc.AddSiteRoot(path)
	if err := s.requireWritable(rc, full); err != nil {
		return nil, err
	}
	src, err := s.readResource(ViewOffline, rc.AddSiteRoot(source), false)
	if err != nil {
		return nil, err
	}
	if src.IsFolder() || IsFolderPath(full) {
		return nil, inconsistent("siblings can only be created for files")
	}
	if err := ValidatePath(full); err != nil {
		return nil, inconsistent("%v", err)
	}
	if err := s.requireLock(rc, src); err != nil {
		return nil, err
	}
	parent, err := s.prepareTarget(full)
	if err != nil {
		return nil, err
	}

	sib := src.Clone()
	sib.StructureID = s.idgen.New()
	sib.ParentID = parent.StructureID
	sib.Name = full
	sib.State = StateNew
	sib.ProjectID = rc.CurrentProject().ID
	sib.LockedInProject = 0
	if err := s.db.WriteResource(ViewOffline, sib); err != nil {
		return nil, backend("creating sibling", err)
	}
	s.logger.Info("sibling created", "source", src.Name, "path", full)
	return sib, nil
}

// WriteContent replaces the content of a file. The caller must hold the lock.
func (s *Service) WriteContent(rc *RequestContext, path string, content []byte) (*Resource, error) {
	res, err := s.readForWrite(rc, path)
	if err != nil {
		return nil, err
	}
	if res.IsFolder() {
		return nil, inconsistent("folder %s has no content", res.Name)
	}
	t, err := s.types.Get(res.Type)
	if err != nil {
		return nil, err
	}
	if err := t.ValidateContent(content); err != nil {
		return nil, inconsistent("invalid content for %s: %v", res.Name, err)
	}
	if err := res.MarkModified(); err != nil {
		return nil, err
	}
	if content == nil {
		content = []byte{}
	}
	res.SetContent(content)
	res.ContentLastModified = s.clock.Now()
	res.LastModifiedBy = rc.CurrentUser().ID
	res.Touched = false

	if err := s.db.WriteResource(ViewOffline, res); err != nil {
		return nil, backend("writing content", err)
	}
	s.logger.Debug("content written", "path", res.Name, "size", res.Size)
	return res, nil
}

// ReadProperties returns the properties of a resource in the current view.
func (s *Service) ReadProperties(rc *RequestContext, path string) (map[string]string, error) {
	res, err := s.ReadResource(rc, path, true)
	if err != nil {
		return nil, err
	}
	props, err := s.db.ReadProperties(rc.CurrentProject().View(), res.ResourceID)
	if err != nil {
		return nil, backend("reading properties", err)
	}
	return props, nil
}

// WriteProperty sets one property; an empty value removes it.
func (s *Service) WriteProperty(rc *RequestContext, path, key, value string) error {
	res, err := s.readForWrite(rc, path)
	if err != nil {
		return err
	}
	props, err := s.db.ReadProperties(ViewOffline, res.ResourceID)
	if err != nil {
		return backend("reading properties", err)
	}
	if props == nil {
		props = make(map[string]string)
	}
	if value == "" {
		delete(props, key)
	} else {
		props[key] = value
	}
	if err := s.db.WriteProperties(ViewOffline, res.ResourceID, props); err != nil {
		return backend("writing properties", err)
	}
	return s.touchStructure(rc, res)
}

// Touch overrides the last-modified time of a resource.
func (s *Service) Touch(rc *RequestContext, path string, ts time.Time) error {
	res, err := s.readForWrite(rc, path)
	if err != nil {
		return err
	}
	if err := res.MarkModified(); err != nil {
		return err
	}
	res.DateLastModified = ts
	res.LastModifiedBy = rc.CurrentUser().ID
	res.Touched = true
	if err := s.db.WriteResource(ViewOffline, res); err != nil {
		return backend("touching resource", err)
	}
	return nil
}

// touchStructure records a structure-level change made by the current user.
func (s *Service) touchStructure(rc *RequestContext, res *Resource) error {
	if err := res.MarkModified(); err != nil {
		return err
	}
	res.DateLastModified = s.clock.Now()
	res.LastModifiedBy = rc.CurrentUser().ID
	res.Touched = false
	if err := s.db.WriteResource(ViewOffline, res); err != nil {
		return backend("writing resource", err)
	}
	return nil
}

// SetLinks replaces the outgoing link targets of a resource.
func (s *Service) SetLinks(rc *RequestContext, path string, targets []string) error {
	res, err := s.readForWrite(rc, path)
	if err != nil {
		return err
	}
	full := make([]string, 0, len(targets))
	for _, t := range targets {
		full = append(full, rc.AddSiteRoot(t))
	}
	sort.Strings(full)
	if err := s.db.WriteLinks(ViewOffline, res.ResourceID, full); err != nil {
		return backend("writing links", err)
	}
	return s.touchStructure(rc, res)
}

// ReadLinks returns the outgoing link targets of a resource in the current view.
func (s *Service) ReadLinks(rc *RequestContext, path string) ([]string, error) {
	res, err := s.ReadResource(rc, path, true)
	if err != nil {
		return nil, err
	}
	links, err := s.db.ReadLinks(rc.CurrentProject().View(), res.ResourceID)
	if err != nil {
		return nil, backend("reading links", err)
	}
	return links, nil
}

func (s *Service) readResource(view View, path string, includeDeleted bool) (*Resource, error) {
	res, err := s.db.ReadResource(view, path)
	if err != nil {
		return nil, backend(fmt.Sprintf("reading %s", path), err)
	}
	if res == nil || (res.State == StateDeleted && !includeDeleted) {
		return nil, notFound("resource", path)
	}
	return res, nil
}

// requireWritable rejects writes in the online project and outside the project's scope.
func (s *Service) requireWritable(rc *RequestContext, fullPath string) error {
	p := rc.CurrentProject()
	if p.IsOnline() {
		return denied("cannot modify %s in the online project", fullPath)
	}
	if p.Flags == ProjectArchive {
		return denied("project %s is archived", p.Name)
	}
	if !p.InScope(fullPath) {
		return denied("%s is outside the scope of project %s", fullPath, p.Name)
	}
	return nil
}

// requireLock fails unless the current user holds the lock on res.
func (s *Service) requireLock(rc *RequestContext, res *Resource) error {
	err := s.locks.RequireHeldBy(res.ResourceID, rc.CurrentUser().ID)
	var conflict *LockConflictError
	if errors.As(err, &conflict) {
		conflict.Path = res.Name
	}
	return err
}

// readForWrite loads a live offline resource the current user may modify.
func (s *Service) readForWrite(rc *RequestContext, path string) (*Resource, error) {
	full := rc.AddSiteRoot(path)
	if err := s.requireWritable(rc, full); err != nil {
		return nil, err
	}
	res, err := s.readResource(ViewOffline, full, false)
	if err != nil {
		return nil, err
	}
	if err := s.requireLock(rc, res); err != nil {
		return nil, err
	}
	return res, nil
}

// prepareTarget checks that nothing lives at path and returns its parent folder.
func (s *Service) prepareTarget(path string) (*Resource, error) {
	existing, err := s.db.ReadResource(ViewOffline, path)
	if err != nil {
		return nil, backend("checking target", err)
	}
	if existing != nil {
		return nil, inconsistent("resource %s already exists", path)
	}
	parentPath := ParentPath(path)
	if parentPath == "" {
		return nil, inconsistent("cannot create the root folder")
	}
	parent, err := s.readResource(ViewOffline, parentPath, false)
	if err != nil {
		return nil, err
	}
	if !parent.IsFolder() {
		return nil, inconsistent("parent %s is not a folder", parentPath)
	}
	return parent, nil
}
