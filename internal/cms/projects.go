package cms

import (
	"fmt"
	"sort"
	"strings"
)

// ProjectFilter selects which resources of a project view are listed.
type ProjectFilter int

const (
	FilterAll ProjectFilter = iota
	FilterNew
	FilterChanged
	FilterDeleted
	FilterLocked
)

// ParseProjectFilter converts a filter name into a ProjectFilter.
func ParseProjectFilter(name string) (ProjectFilter, error) {
	switch strings.ToLower(name) {
	case "", "all":
		return FilterAll, nil
	case "new":
		return FilterNew, nil
	case "changed":
		return FilterChanged, nil
	case "deleted":
		return FilterDeleted, nil
	case "locked":
		return FilterLocked, nil
	default:
		return FilterAll, fmt.Errorf("unknown project filter %q", name)
	}
}

// CreateProject creates a normal project over the given resource paths.
// Only admins and project managers may create projects.
func (s *Service) CreateProject(rc *RequestContext, name, description, groupID, managerGroupID string, resources []string) (*Project, error) {
	user := rc.CurrentUser()
	if !user.Admin && !user.InGroup(GroupProjectManagers) {
		return nil, denied("user %s may not create projects", user.Name)
	}
	if name == "" {
		return nil, inconsistent("project name is empty")
	}
	if len(resources) == 0 {
		return nil, inconsistent("project %s has no resources", name)
	}

	scope := make([]string, 0, len(resources))
	for _, r := range resources {
		full := rc.AddSiteRoot(r)
		if _, err := s.readResource(ViewOffline, full, false); err != nil {
			return nil, err
		}
		scope = append(scope, full)
	}
	if groupID == "" {
		groupID = GroupUsers
	}
	if managerGroupID == "" {
		managerGroupID = GroupProjectManagers
	}
	return s.storeProject(&Project{
		Name:           name,
		Description:    description,
		OwnerID:        user.ID,
		GroupID:        groupID,
		ManagerGroupID: managerGroupID,
		Flags:          ProjectUnlocked,
		Type:           ProjectNormal,
		Resources:      scope,
	})
}

// createTemporaryProject creates the throwaway project used by a direct publish.
func (s *Service) createTemporaryProject(rc *RequestContext, scope []string) (*Project, error) {
	current := rc.CurrentProject()
	return s.storeProject(&Project{
		Name:           fmt.Sprintf("Direct publish %s", s.idgen.New()),
		Description:    "Temporary project for publishing " + strings.Join(scope, ", "),
		OwnerID:        rc.CurrentUser().ID,
		GroupID:        current.GroupID,
		ManagerGroupID: current.ManagerGroupID,
		Flags:          ProjectUnlocked,
		Type:           ProjectTemporary,
		Resources:      scope,
	})
}

func (s *Service) storeProject(p *Project) (*Project, error) {
	p.CreatedAt = s.clock.Now()
	if err := s.db.CreateProject(p); err != nil {
		return nil, backend("creating project", err)
	}
	s.logger.Info("project created", "id", p.ID, "name", p.Name, "type", p.Type.String())
	return p, nil
}

// ReadProject returns a project by id.
func (s *Service) ReadProject(id int) (*Project, error) {
	p, err := s.db.ReadProject(id)
	if err != nil {
		return nil, backend("reading project", err)
	}
	if p == nil {
		return nil, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	return p, nil
}

// ListProjects returns all projects ordered by id.
func (s *Service) ListProjects() ([]*Project, error) {
	projects, err := s.db.ReadProjects()
	if err != nil {
		return nil, backend("reading projects", err)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}

// SetCurrentProject switches the request context to project id and
// remembers the choice for the user.
func (s *Service) SetCurrentProject(rc *RequestContext, id int) (*Project, error) {
	p, err := s.ReadProject(id)
	if err != nil {
		return nil, err
	}
	if p.Flags == ProjectArchive {
		return nil, inconsistent("project %s is archived", p.Name)
	}
	rc.SetCurrentProject(p)
	if err := s.db.UpdateUserProject(rc.CurrentUser().ID, p.ID); err != nil {
		s.logger.Warn("remembering current project failed", "user", rc.CurrentUser().Name, "error", err)
	}
	return p, nil
}

// ReadProjectView lists the offline resources in the scope of a project
// that match filter, ordered by path. For FilterAll only modified
// resources are returned.
func (s *Service) ReadProjectView(rc *RequestContext, projectID int, filter ProjectFilter) ([]*Resource, error) {
	p, err := s.ReadProject(projectID)
	if err != nil {
		return nil, err
	}
	if p.IsOnline() && filter != FilterLocked {
		return nil, nil
	}

	roots := p.Resources
	if p.IsOnline() {
		roots = []string{RootPath}
	}
	seen := make(map[string]bool)
	var out []*Resource
	for _, root := range roots {
		subtree, err := s.db.ReadSubtree(ViewOffline, root)
		if err != nil {
			return nil, backend("reading project view", err)
		}
		for _, r := range subtree {
			if seen[r.StructureID] {
				continue
			}
			seen[r.StructureID] = true
			ok, err := s.matches(r, filter, projectID)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Service) matches(r *Resource, filter ProjectFilter, projectID int) (bool, error) {
	switch filter {
	case FilterNew:
		return r.State == StateNew, nil
	case FilterChanged:
		return r.State == StateChanged, nil
	case FilterDeleted:
		return r.State == StateDeleted, nil
	case FilterLocked:
		l, err := s.locks.LockedBy(r.ResourceID)
		if err != nil {
			return false, err
		}
		return !l.IsNull() && (projectID == OnlineProjectID || l.ProjectID == projectID), nil
	default:
		return r.State != StateUnchanged, nil
	}
}

// ArchiveProject freezes a project; archived projects cannot be worked in or published.
func (s *Service) ArchiveProject(rc *RequestContext, id int) error {
	p, err := s.manageableProject(rc, id)
	if err != nil {
		return err
	}
	p.Flags = ProjectArchive
	if err := s.db.UpdateProject(p); err != nil {
		return backend("archiving project", err)
	}
	s.logger.Info("project archived", "id", p.ID, "name", p.Name)
	return nil
}

// DeleteProject removes a project. Offline resources are shared by all
// projects and stay where they are.
func (s *Service) DeleteProject(rc *RequestContext, id int) error {
	p, err := s.manageableProject(rc, id)
	if err != nil {
		return err
	}
	if rc.CurrentProject().ID == p.ID {
		return inconsistent("cannot delete the current project %s", p.Name)
	}
	if err := s.db.DeleteProject(p.ID); err != nil {
		return backend("deleting project", err)
	}
	s.logger.Info("project deleted", "id", p.ID, "name", p.Name)
	return nil
}

func (s *Service) manageableProject(rc *RequestContext, id int) (*Project, error) {
	p, err := s.ReadProject(id)
	if err != nil {
		return nil, err
	}
	if p.IsOnline() {
		return nil, denied("the online project cannot be modified")
	}
	if !rc.CurrentUser().CanManage(p) {
		return nil, denied("user %s cannot manage project %s", rc.CurrentUser().Name, p.Name)
	}
	return p, nil
}

// onlineProject returns the stored online project, falling back to a
// minimal value when it cannot be read.
func (s *Service) onlineProject() *Project {
	p, err := s.db.ReadProject(OnlineProjectID)
	if err != nil || p == nil {
		return &Project{ID: OnlineProjectID, Name: "Online"}
	}
	return p
}

// Login resolves a user by name, with group memberships.
func (s *Service) Login(name string) (*User, error) {
	u, err := s.db.ReadUserByName(name)
	if err != nil {
		return nil, backend("reading user", err)
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", name, ErrNotFound)
	}
	return u, nil
}

// NewRequestContextFor builds a request context for user in their last
// used project, or the online project.
func (s *Service) NewRequestContextFor(user *User, siteRoot string) *RequestContext {
	project := s.onlineProject()
	if user.CurrentProjectID != 0 && user.CurrentProjectID != OnlineProjectID {
		p, err := s.db.ReadProject(user.CurrentProjectID)
		if err == nil && p != nil && p.Flags != ProjectArchive {
			project = p
		}
	}
	return NewRequestContext(user, project, siteRoot)
}

// CreateUser adds a user. Only admins may do this.
func (s *Service) CreateUser(rc *RequestContext, name string, admin bool, groups ...string) (*User, error) {
	if !rc.CurrentUser().Admin {
		return nil, denied("only admins may create users")
	}
	existing, err := s.db.ReadUserByName(name)
	if err != nil {
		return nil, backend("reading user", err)
	}
	if existing != nil {
		return nil, inconsistent("user %s already exists", name)
	}
	u := &User{ID: s.idgen.New(), Name: name, Admin: admin, CurrentProjectID: OnlineProjectID}
	if err := s.db.CreateUser(u); err != nil {
		return nil, backend("creating user", err)
	}
	for _, g := range append([]string{GroupUsers}, groups...) {
		if u.InGroup(g) {
			continue
		}
		if err := s.db.AddUserToGroup(u.ID, g); err != nil {
			return nil, backend("adding user to group", err)
		}
		u.Groups = append(u.Groups, g)
	}
	s.logger.Info("user created", "name", name, "admin", admin)
	return u, nil
}

// CreateGroup adds a group. Only admins may do this.
func (s *Service) CreateGroup(rc *RequestContext, id, name string) (*Group, error) {
	if !rc.CurrentUser().Admin {
		return nil, denied("only admins may create groups")
	}
	g := &Group{ID: id, Name: name}
	if err := s.db.CreateGroup(g); err != nil {
		return nil, backend("creating group", err)
	}
	return g, nil
}
