package cms

import (
	"fmt"
	"sort"
	"time"
)

// PublishFailure records a resource that was not promoted.
type PublishFailure struct {
	Path  string
	State State
	Err   error
}

// PublishResult is the outcome of one publish run. A run with failures is
// still a successful run; the failures are listed here.
type PublishResult struct {
	ProjectID   int
	VersionID   int64
	PublishedAt time.Time

	New     []string
	Changed []string
	Deleted []string
	Failed  []PublishFailure
}

// ChangedResources returns every path that was successfully published,
// whatever its state, in sorted order.
func (r *PublishResult) ChangedResources() []string {
	out := make([]string, 0, len(r.New)+len(r.Changed)+len(r.Deleted))
	out = append(out, r.New...)
	out = append(out, r.Changed...)
	out = append(out, r.Deleted...)
	sort.Strings(out)
	return out
}

// Status summarizes the run for the publish history.
func (r *PublishResult) Status() string {
	switch {
	case len(r.Failed) == 0:
		return PublishSuccess
	case len(r.ChangedResources()) == 0:
		return PublishFailed
	default:
		return PublishPartial
	}
}

func (r *PublishResult) record(res *Resource) {
	switch res.State {
	case StateNew:
		r.New = append(r.New, res.Name)
	case StateChanged:
		r.Changed = append(r.Changed, res.Name)
	case StateDeleted:
		r.Deleted = append(r.Deleted, res.Name)
	}
}

func (r *PublishResult) fail(res *Resource, err error) {
	r.Failed = append(r.Failed, PublishFailure{Path: res.Name, State: res.State, Err: err})
}

// promotion is a resource that reached the online view, kept for backup.
type promotion struct {
	res   *Resource
	props map[string]string
	state State
}

// PublishProject promotes every modified resource of the current project to
// the online view. Resources that are locked, or whose promotion fails, are
// reported in the result while the rest of the run continues. Only failures
// before the first promotion are returned as errors.
func (s *Service) PublishProject(rc *RequestContext, reporter Reporter) (*PublishResult, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}
	project := rc.CurrentProject()
	user := rc.CurrentUser()
	if project.IsOnline() {
		return nil, denied("the online project cannot be published")
	}
	if !user.CanManage(project) {
		return nil, denied("user %s cannot publish project %s", user.Name, project.Name)
	}
	if project.Flags == ProjectArchive {
		return nil, inconsistent("archived project %s cannot be published", project.Name)
	}

	result := &PublishResult{ProjectID: project.ID}
	err := s.publish(rc, project, result, reporter)
	s.finishPublish(rc, project, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) publish(rc *RequestContext, project *Project, result *PublishResult, reporter Reporter) error {
	list, err := s.buildPublishList(rc, project)
	if err != nil {
		return err
	}

	publishedAt := s.clock.Now()
	versionID, err := s.history.NextVersionID(publishedAt)
	if err != nil {
		return err
	}
	result.VersionID = versionID
	result.PublishedAt = publishedAt

	record := &PublishRecord{
		VersionID:   versionID,
		ProjectID:   project.ID,
		ProjectName: project.Name,
		UserID:      rc.CurrentUser().ID,
		StartedAt:   result.PublishedAt,
		Status:      PublishRunning,
	}
	if err := s.db.CreatePublishRecord(record); err != nil {
		return backend("creating publish record", err)
	}
	s.logger.Info("publish started", "project", project.Name, "version", versionID, "resources", list.size(), "locked", len(list.locked))

	if len(list.locked) > 0 {
		reporter.Stage("locked", len(list.locked))
		for _, r := range list.locked {
			l, _ := s.locks.LockedBy(r.ResourceID)
			err := &LockConflictError{ResourceID: r.ResourceID, Path: r.Name, HolderID: l.UserID, ProjectID: l.ProjectID}
			result.fail(r, err)
			reporter.Failed(r.Name, r.State, err)
		}
	}

	s.dropStaleLinks(list)

	var promoted []*promotion
	stage := func(name string, items []*Resource) {
		reporter.Stage(name, len(items))
		for _, r := range items {
			p, err := s.promote(r)
			if err != nil {
				s.logger.Warn("publish failed for resource", "path", r.Name, "state", r.State.String(), "error", err)
				result.fail(r, err)
				reporter.Failed(r.Name, r.State, err)
				continue
			}
			result.record(r)
			reporter.Published(r.Name, r.State)
			promoted = append(promoted, p)
			s.events.Emit(Event{Type: EventPublishResource, Resource: p.res})
		}
	}
	stage("folders", list.folders)
	stage("files", list.files)
	stage("deleted files", list.deletedFiles)
	stage("deleted folders", list.deletedFolders)

	s.completeLinks(promoted)

	reporter.Stage("history", len(promoted))
	for _, p := range promoted {
		if err := s.history.Write(p.res, p.props, versionID, result.PublishedAt); err != nil {
			s.logger.Error("writing backup failed", "path", p.res.Name, "version", versionID, "error", err)
		}
	}

	record.FinishedAt = s.clock.Now()
	record.NewCount = len(result.New)
	record.ChangedCount = len(result.Changed)
	record.DeletedCount = len(result.Deleted)
	record.FailedCount = len(result.Failed)
	record.Status = result.Status()
	if err := s.db.FinishPublishRecord(record); err != nil {
		s.logger.Error("finishing publish record failed", "version", versionID, "error", err)
	}

	s.logger.Info("publish finished", "project", project.Name, "version", versionID,
		"new", len(result.New), "changed", len(result.Changed), "deleted", len(result.Deleted), "failed", len(result.Failed))
	return nil
}

// finishPublish runs after every publish attempt, successful or not.
func (s *Service) finishPublish(rc *RequestContext, project *Project, result *PublishResult, runErr error) {
	changed := result.ChangedResources()
	if runErr != nil || len(changed) == 0 {
		if err := s.cache.Clear(); err != nil {
			s.logger.Warn("clearing element cache failed", "error", err)
		}
	} else if err := s.cache.Invalidate(changed); err != nil {
		s.logger.Warn("invalidating element cache failed", "error", err)
	}

	if project.IsTemporary() && rc.CurrentProject().ID == project.ID {
		rc.SetCurrentProject(s.onlineProject())
	}
	s.events.Emit(Event{Type: EventPublishProject, Result: result})
}

// promote moves one resource from the offline to the online view.
func (s *Service) promote(r *Resource) (*promotion, error) {
	full, err := s.db.ReadResourceByID(ViewOffline, r.StructureID)
	if err != nil {
		return nil, backend("reading offline resource", err)
	}
	if full == nil {
		return nil, notFound("resource", r.Name)
	}
	props, err := s.db.ReadProperties(ViewOffline, full.ResourceID)
	if err != nil {
		return nil, backend("reading properties", err)
	}

	if r.State == StateDeleted {
		if full.IsFolder() {
			children, err := s.db.ReadChildren(ViewOnline, full.Name)
			if err != nil {
				return nil, backend("reading online children", err)
			}
			if len(children) > 0 {
				return nil, inconsistent("folder %s still has %d online children", full.Name, len(children))
			}
		}
		if err := s.db.CommitDeletion(full.StructureID); err != nil {
			return nil, backend("committing deletion", err)
		}
		return &promotion{res: full, props: props, state: StateDeleted}, nil
	}

	if parent := full.ParentPath(); parent != "" {
		p, err := s.db.ReadResource(ViewOnline, parent)
		if err != nil {
			return nil, backend("reading online parent", err)
		}
		if p == nil {
			return nil, inconsistent("parent folder %s does not exist online", parent)
		}
	}

	online := full.Clone()
	online.State = StateUnchanged
	online.ProjectID = OnlineProjectID
	online.LockedInProject = 0
	if online.IsFile() && online.Content == nil {
		online.Content = []byte{}
	}
	if err := s.db.CommitPublish(online, props); err != nil {
		return nil, backend("committing publish", err)
	}
	return &promotion{res: full, props: props, state: r.State}, nil
}

// DirectPublishResult is the outcome of publishing a single resource.
type DirectPublishResult struct {
	Resource  *Resource
	ProjectID int // id of the temporary project, already deleted

	// Result is nil for a dry run.
	Result *PublishResult

	// Pending and BrokenLinks are only filled for a dry run.
	Pending     []*Resource
	BrokenLinks []BrokenLink
}

// PublishResource publishes one resource, and for a folder everything
// modified below it, through a temporary project. With dryRun set nothing
// is promoted; the result lists what would be published instead.
func (s *Service) PublishResource(rc *RequestContext, path string, dryRun bool, reporter Reporter) (*DirectPublishResult, error) {
	original := rc.CurrentProject()
	user := rc.CurrentUser()
	if original.IsOnline() {
		return nil, denied("cannot publish from the online project")
	}
	if !user.CanManage(original) {
		return nil, denied("user %s cannot publish in project %s", user.Name, original.Name)
	}

	res, err := s.readResource(ViewOffline, rc.AddSiteRoot(path), true)
	if err != nil {
		return nil, err
	}
	l, err := s.locks.LockedBy(res.ResourceID)
	if err != nil {
		return nil, err
	}
	if !l.IsNull() {
		return nil, fmt.Errorf("publishing %s: %w", res.Name,
			&LockConflictError{ResourceID: res.ResourceID, Path: res.Name, HolderID: l.UserID, ProjectID: l.ProjectID})
	}
	if res.State == StateNew {
		if parent := res.ParentPath(); parent != "" {
			p, err := s.db.ReadResource(ViewOnline, parent)
			if err != nil {
				return nil, backend("reading online parent", err)
			}
			if p == nil {
				return nil, inconsistent("parent folder %s of %s is not published", parent, res.Name)
			}
		}
	}

	scope := []string{res.Name}
	if body := s.auxiliaryBody(res); body != nil {
		scope = append(scope, body.Name)
	}
	temp, err := s.createTemporaryProject(rc, scope)
	if err != nil {
		return nil, err
	}
	defer s.teardownTemporary(rc, original, temp, res)

	res.LockedInProject = temp.ID
	if err := s.db.WriteResource(ViewOffline, res); err != nil {
		return nil, backend("assigning resource to temporary project", err)
	}
	rc.SetCurrentProject(temp)

	out := &DirectPublishResult{Resource: res, ProjectID: temp.ID}
	if dryRun {
		if out.Pending, err = s.ReadProjectView(rc, temp.ID, FilterAll); err != nil {
			return nil, err
		}
		if out.BrokenLinks, err = s.CheckBrokenLinks(rc, temp.ID); err != nil {
			return nil, err
		}
		s.logger.Info("direct publish dry run", "path", res.Name, "pending", len(out.Pending), "broken_links", len(out.BrokenLinks))
		return out, nil
	}

	result, err := s.PublishProject(rc, reporter)
	if err != nil {
		return nil, err
	}
	out.Result = result
	s.events.Emit(Event{Type: EventPublishResource, Resource: res, Result: result})
	return out, nil
}

// teardownTemporary restores the caller's project and removes the temporary one.
func (s *Service) teardownTemporary(rc *RequestContext, original, temp *Project, res *Resource) {
	rc.SetCurrentProject(original)

	current, err := s.db.ReadResourceByID(ViewOffline, res.StructureID)
	if err != nil {
		s.logger.Warn("reading resource after direct publish failed", "path", res.Name, "error", err)
	} else if current != nil && current.LockedInProject == temp.ID {
		current.LockedInProject = 0
		if err := s.db.WriteResource(ViewOffline, current); err != nil {
			s.logger.Warn("releasing resource from temporary project failed", "path", res.Name, "error", err)
		}
	}
	if err := s.db.DeleteProject(temp.ID); err != nil {
		s.logger.Warn("deleting temporary project failed", "project", temp.ID, "error", err)
	}
}

// publishList is the ordered snapshot of a project taken before promotion.
type publishList struct {
	folders        []*Resource // new or changed, parents first
	files          []*Resource // new or changed
	deletedFiles   []*Resource
	deletedFolders []*Resource // children first
	locked         []*Resource
}

func (l *publishList) size() int {
	return len(l.folders) + len(l.files) + len(l.deletedFiles) + len(l.deletedFolders)
}

func (s *Service) buildPublishList(rc *RequestContext, project *Project) (*publishList, error) {
	view, err := s.ReadProjectView(rc, project.ID, FilterAll)
	if err != nil {
		return nil, err
	}
	list := &publishList{}
	for _, r := range view {
		l, err := s.locks.LockedBy(r.ResourceID)
		if err != nil {
			return nil, err
		}
		switch {
		case !l.IsNull():
			list.locked = append(list.locked, r)
		case r.State == StateDeleted && r.IsFolder():
			list.deletedFolders = append(list.deletedFolders, r)
		case r.State == StateDeleted:
			list.deletedFiles = append(list.deletedFiles, r)
		case r.IsFolder():
			list.folders = append(list.folders, r)
		default:
			list.files = append(list.files, r)
		}
	}
	sort.SliceStable(list.folders, func(i, j int) bool {
		return Depth(list.folders[i].Name) < Depth(list.folders[j].Name)
	})
	sort.SliceStable(list.deletedFolders, func(i, j int) bool {
		return Depth(list.deletedFolders[i].Name) > Depth(list.deletedFolders[j].Name)
	})
	return list, nil
}
