package cms

import "time"

// View selects one of the two copies every resource can have.
type View int

const (
	ViewOffline View = 0
	ViewOnline  View = 1
)

func (v View) String() string {
	if v == ViewOnline {
		return "online"
	}
	return "offline"
}

// Database provides an interface for persistence operations.
// Lookups return (nil, nil) when the record does not exist; the service
// turns that into ErrNotFound. Methods documented as atomic must be
// implemented in a single transaction.
type Database interface {
	LockTable

	// Resource operations

	// ReadResource returns the resource at path, including its content.
	ReadResource(view View, path string) (*Resource, error)

	// ReadResourceByID returns the resource with the given structure id, including content.
	ReadResourceByID(view View, structureID string) (*Resource, error)

	// ReadSiblings returns every structure entry sharing resourceID, without content.
	ReadSiblings(view View, resourceID string) ([]*Resource, error)

	// ReadChildren returns the direct children of a folder, without content.
	ReadChildren(view View, folderPath string) ([]*Resource, error)

	// ReadSubtree returns root and every resource below it, without content, ordered by path.
	ReadSubtree(view View, root string) ([]*Resource, error)

	// WriteResource inserts or updates the structure entry, the shared
	// resource record and, for files, the content.
	WriteResource(view View, r *Resource) error

	// DeleteResource removes a structure entry. Shared records (content,
	// properties, links) go with the last structure entry referencing them.
	DeleteResource(view View, structureID string) error

	// Property operations

	ReadProperties(view View, resourceID string) (map[string]string, error)

	// WriteProperties replaces all properties of a resource.
	WriteProperties(view View, resourceID string, props map[string]string) error

	// Link table operations

	ReadLinks(view View, resourceID string) ([]string, error)

	// WriteLinks replaces the link targets of a resource.
	WriteLinks(view View, resourceID string, targets []string) error

	// ReadLinkSources returns the ids of resources linking to target.
	ReadLinkSources(view View, target string) ([]string, error)

	// Publish operations

	// CommitPublish atomically writes the online copy of r with props and
	// marks the offline copy unchanged.
	CommitPublish(r *Resource, props map[string]string) error

	// CommitDeletion atomically removes a structure entry from both views.
	CommitDeletion(structureID string) error

	// Project operations

	// CreateProject stores p and assigns its id.
	CreateProject(p *Project) error
	ReadProject(id int) (*Project, error)
	ReadProjects() ([]*Project, error)
	UpdateProject(p *Project) error
	DeleteProject(id int) error

	// User and group operations

	CreateUser(u *User) error
	ReadUser(id string) (*User, error)
	ReadUserByName(name string) (*User, error)
	UpdateUserProject(userID string, projectID int) error
	CreateGroup(g *Group) error
	ReadGroup(id string) (*Group, error)
	AddUserToGroup(userID, groupID string) error

	// Backup operations

	// NextVersionID reserves a new version id, strictly greater than any before,
	// stamped with createdAt.
	NextVersionID(createdAt time.Time) (int64, error)

	// MaxVersionID returns the highest reserved version id, or 0.
	MaxVersionID() (int64, error)

	WriteBackup(b *BackupResource) error
	ReadBackup(path string, versionID int64) (*BackupResource, error)
	// ReadBackups returns every version of path, newest first.
	ReadBackups(path string) ([]*BackupResource, error)
	ReadBackupsByVersion(versionID int64) ([]*BackupResource, error)

	// DeleteBackupsBefore removes backup rows published before cutoff. It
	// returns the oldest remaining version id (0 when none remain) and the
	// vault keys of the removed rows that no remaining row refers to.
	DeleteBackupsBefore(cutoff time.Time) (oldest int64, orphaned []string, err error)

	// Publish history operations

	CreatePublishRecord(rec *PublishRecord) error
	FinishPublishRecord(rec *PublishRecord) error
	ListPublishRecords(limit int) ([]*PublishRecord, error)

	// Close closes the database connection.
	Close() error
}
