package cms

import (
	"fmt"
	"strings"
	"time"
)

// PathSeparator separates path segments. A resource name that ends with it is a folder.
const PathSeparator = "/"

// RootPath is the name of the root folder, present in both views.
const RootPath = "/"

// State describes a resource's relationship to its online counterpart.
type State int

const (
	StateUnchanged State = 0
	StateChanged   State = 1
	StateNew       State = 2
	StateDeleted   State = 3
)

func (s State) String() string {
	switch s {
	case StateUnchanged:
		return "unchanged"
	case StateChanged:
		return "changed"
	case StateNew:
		return "new"
	case StateDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// AccessFlags is the owner/group/public permission bitmask of a resource.
type AccessFlags int

const (
	AccessOwnerRead AccessFlags = 1 << iota
	AccessOwnerWrite
	AccessOwnerVisible
	AccessGroupRead
	AccessGroupWrite
	AccessGroupVisible
	AccessPublicRead
	AccessPublicWrite
	AccessPublicVisible
	// AccessInternalRead hides a resource from direct access; used for page bodies.
	AccessInternalRead
)

// DefaultAccessFlags is applied to resources created without explicit flags.
const DefaultAccessFlags = AccessOwnerRead | AccessOwnerWrite | AccessOwnerVisible |
	AccessGroupRead | AccessGroupWrite | AccessGroupVisible |
	AccessPublicRead | AccessPublicVisible

// Has reports whether all bits of f2 are set.
func (f AccessFlags) Has(f2 AccessFlags) bool { return f&f2 == f2 }

// Resource is a file or folder in the VFS.
//
// StructureID identifies the path position; ResourceID identifies the
// content. Several structure entries may share one ResourceID (VFS links),
// in which case they share content, properties and links.
type Resource struct {
	StructureID string
	ResourceID  string
	ParentID    string // structure id of the parent folder, empty for the root
	Name        string // full path including the site root; folders end with PathSeparator

	Type  int
	Flags AccessFlags

	OwnerID        string
	GroupID        string
	LastModifiedBy string

	ProjectID       int
	LockedInProject int
	State           State

	DateCreated         time.Time
	DateLastModified    time.Time
	ContentLastModified time.Time
	// Touched is set when DateLastModified was overridden explicitly rather
	// than derived from an edit.
	Touched bool

	Size    int64
	Content []byte

	// BodyResourceID references the auxiliary body resource of a page type.
	BodyResourceID string
}

// IsFolder reports whether the resource name ends with the path separator.
func (r *Resource) IsFolder() bool { return IsFolderPath(r.Name) }

// IsFile is the negation of IsFolder.
func (r *Resource) IsFile() bool { return !r.IsFolder() }

// EffectiveLastModified returns the later of the structure and content
// modification times. Folders have no content channel.
func (r *Resource) EffectiveLastModified() time.Time {
	if r.IsFolder() || r.ContentLastModified.Before(r.DateLastModified) {
		return r.DateLastModified
	}
	return r.ContentLastModified
}

// Clone returns a copy that shares no memory with r.
func (r *Resource) Clone() *Resource {
	c := *r
	if r.Content != nil {
		c.Content = make([]byte, len(r.Content))
		copy(c.Content, r.Content)
	}
	return &c
}

// Equal compares path names only. It does not detect content drift.
func (r *Resource) Equal(other *Resource) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Name == other.Name
}

// ParentPath returns the path of the folder containing r.
func (r *Resource) ParentPath() string { return ParentPath(r.Name) }

// BaseName returns the last path segment, keeping the trailing separator of folders.
func (r *Resource) BaseName() string {
	trimmed := strings.TrimSuffix(r.Name, PathSeparator)
	idx := strings.LastIndex(trimmed, PathSeparator)
	base := trimmed[idx+1:]
	if r.IsFolder() && base != "" {
		base += PathSeparator
	}
	return base
}

// SetContent replaces the content, keeping Size in step.
func (r *Resource) SetContent(content []byte) {
	r.Content = content
	r.Size = int64(len(content))
}

// MarkModified records a write to content or properties. NEW stays NEW;
// a DELETED resource cannot be written.
func (r *Resource) MarkModified() error {
	switch r.State {
	case StateUnchanged:
		r.State = StateChanged
	case StateChanged, StateNew:
	case StateDeleted:
		return inconsistent("cannot modify deleted resource %s", r.Name)
	}
	return nil
}

// MarkDeleted flags an offline resource for removal on the next publish.
// A NEW resource has no online counterpart and must be removed physically instead.
func (r *Resource) MarkDeleted() error {
	switch r.State {
	case StateUnchanged, StateChanged:
		r.State = StateDeleted
		return nil
	case StateDeleted:
		return nil
	default:
		return inconsistent("cannot mark %s resource %s as deleted", r.State, r.Name)
	}
}

// MarkPublished records a successful promotion of the offline copy.
func (r *Resource) MarkPublished() error {
	if r.State == StateDeleted {
		return inconsistent("deleted resource %s is removed on publish, not republished", r.Name)
	}
	r.State = StateUnchanged
	r.LockedInProject = 0
	return nil
}

// IsFolderPath reports whether path names a folder.
func IsFolderPath(path string) bool { return strings.HasSuffix(path, PathSeparator) }

// ParentPath returns the folder path containing path, or "" for the root.
func ParentPath(path string) string {
	if path == RootPath || path == "" {
		return ""
	}
	trimmed := strings.TrimSuffix(path, PathSeparator)
	idx := strings.LastIndex(trimmed, PathSeparator)
	if idx < 0 {
		return ""
	}
	return trimmed[:idx+1]
}

// Depth counts the path segments below the root.
func Depth(path string) int {
	return strings.Count(strings.TrimSuffix(path, PathSeparator), PathSeparator)
}

// ValidatePath checks that path is absolute and free of empty or relative segments.
func ValidatePath(path string) error {
	if !strings.HasPrefix(path, PathSeparator) {
		return fmt.Errorf("path must be absolute: %q", path)
	}
	if path == RootPath {
		return nil
	}
	for _, seg := range strings.Split(strings.Trim(path, PathSeparator), PathSeparator) {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("invalid path segment in %q", path)
		}
	}
	return nil
}

// InSubtree reports whether path equals root or lies below the folder root.
// A file root only matches itself.
func InSubtree(path, root string) bool {
	if path == root {
		return true
	}
	return IsFolderPath(root) && strings.HasPrefix(path, root)
}
