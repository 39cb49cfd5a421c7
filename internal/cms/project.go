package cms

import (
	"fmt"
	"time"
)

// OnlineProjectID is the reserved id of the published view.
const OnlineProjectID = 1

// ProjectFlags is the lifecycle state of a project.
type ProjectFlags int

const (
	ProjectUnlocked ProjectFlags = 0
	ProjectLocked   ProjectFlags = 1
	ProjectArchive  ProjectFlags = 2
)

func (f ProjectFlags) String() string {
	switch f {
	case ProjectUnlocked:
		return "unlocked"
	case ProjectLocked:
		return "locked"
	case ProjectArchive:
		return "archive"
	default:
		return fmt.Sprintf("flags(%d)", int(f))
	}
}

// ProjectType distinguishes regular working projects from throwaway ones.
type ProjectType int

const (
	ProjectNormal    ProjectType = 0
	ProjectTemporary ProjectType = 1
)

func (t ProjectType) String() string {
	if t == ProjectTemporary {
		return "temporary"
	}
	return "normal"
}

// Project is a named staging container. Resources lists the path prefixes
// that make up its view.
type Project struct {
	ID             int
	Name           string
	Description    string
	OwnerID        string
	GroupID        string
	ManagerGroupID string
	CreatedAt      time.Time
	Flags          ProjectFlags
	Type           ProjectType
	Resources      []string
}

// IsOnline reports whether p is the published view.
func (p *Project) IsOnline() bool { return p.ID == OnlineProjectID }

// IsTemporary reports whether p was created for a single direct publish.
func (p *Project) IsTemporary() bool { return p.Type == ProjectTemporary }

// InScope reports whether path lies within one of the project's resource paths.
// The online project covers everything.
func (p *Project) InScope(path string) bool {
	if p.IsOnline() {
		return true
	}
	for _, root := range p.Resources {
		if InSubtree(path, root) {
			return true
		}
	}
	return false
}

// View returns the storage view a project reads from.
func (p *Project) View() View {
	if p.IsOnline() {
		return ViewOnline
	}
	return ViewOffline
}

// User is a principal acting on the VFS.
type User struct {
	ID               string
	Name             string
	Admin            bool
	Groups           []string // group ids
	CurrentProjectID int
}

// InGroup reports whether u is a member of the group.
func (u *User) InGroup(groupID string) bool {
	for _, g := range u.Groups {
		if g == groupID {
			return true
		}
	}
	return false
}

// CanManage reports whether u may publish or administer p.
func (u *User) CanManage(p *Project) bool {
	return u.Admin || (p.ManagerGroupID != "" && u.InGroup(p.ManagerGroupID)) || p.OwnerID == u.ID
}

// Group is a named set of users.
type Group struct {
	ID   string
	Name string
}

// RequestContext is the ambient state of one request: who is acting, in
// which project, and under which site root. Switching projects only mutates
// the context; no data moves.
type RequestContext struct {
	user     *User
	project  *Project
	siteRoot string
}

// NewRequestContext returns a context for user working in project.
func NewRequestContext(user *User, project *Project, siteRoot string) *RequestContext {
	return &RequestContext{user: user, project: project, siteRoot: trimRoot(siteRoot)}
}

// CurrentUser returns the acting user.
func (c *RequestContext) CurrentUser() *User { return c.user }

// CurrentProject returns the active project.
func (c *RequestContext) CurrentProject() *Project { return c.project }

// SetCurrentProject switches the active project.
func (c *RequestContext) SetCurrentProject(p *Project) { c.project = p }

// SiteRoot returns the site root prefix, without a trailing separator.
func (c *RequestContext) SiteRoot() string { return c.siteRoot }

// AddSiteRoot prefixes a site-relative path with the site root.
func (c *RequestContext) AddSiteRoot(path string) string {
	if c.siteRoot == "" || InSubtree(path, c.siteRoot+PathSeparator) {
		return path
	}
	return c.siteRoot + path
}

// RemoveSiteRoot strips the site root from a full path.
func (c *RequestContext) RemoveSiteRoot(path string) string {
	if c.siteRoot == "" {
		return path
	}
	if InSubtree(path, c.siteRoot+PathSeparator) {
		return path[len(c.siteRoot):]
	}
	return path
}

func trimRoot(root string) string {
	for len(root) > 0 && root[len(root)-1] == '/' {
		root = root[:len(root)-1]
	}
	return root
}
