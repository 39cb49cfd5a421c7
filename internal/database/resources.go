package database

import (
	"context"
	"database/sql"
	"fmt"

	"vfs-go/internal/cms"
)

const resourceColumns = `s.structure_id, s.resource_id, s.parent_id, s.path, s.state, s.project_id, s.locked_in_project,
	r.type, r.flags, r.owner_id, r.group_id, r.last_modified_by, r.date_created, r.date_last_modified,
	r.content_last_modified, r.touched, r.size, r.body_resource_id`

const resourceFrom = ` FROM structures s JOIN resources r ON r.view = s.view AND r.resource_id = s.resource_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(row scanner) (*cms.Resource, error) {
	var r cms.Resource
	var state, flags int
	err := row.Scan(&r.StructureID, &r.ResourceID, &r.ParentID, &r.Name, &state, &r.ProjectID, &r.LockedInProject,
		&r.Type, &flags, &r.OwnerID, &r.GroupID, &r.LastModifiedBy, &r.DateCreated, &r.DateLastModified,
		&r.ContentLastModified, &r.Touched, &r.Size, &r.BodyResourceID)
	if err != nil {
		return nil, err
	}
	r.State = cms.State(state)
	r.Flags = cms.AccessFlags(flags)
	return &r, nil
}

// readOne loads a single resource with its content.
func readOne(ctx context.Context, q querier, view cms.View, where string, arg any) (*cms.Resource, error) {
	row := q.QueryRowContext(ctx, `SELECT `+resourceColumns+resourceFrom+` WHERE s.view = ? AND `+where, int(view), arg)
	r, err := scanResource(row)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading resource: %w", err)
	}
	if r.IsFile() {
		var data []byte
		err := q.QueryRowContext(ctx, `SELECT data FROM contents WHERE view = ? AND resource_id = ?`,
			int(view), r.ResourceID).Scan(&data)
		if err != nil && !noRows(err) {
			return nil, fmt.Errorf("reading content: %w", err)
		}
		if data == nil {
			data = []byte{}
		}
		r.Content = data
	}
	return r, nil
}

// readMany loads resources without content.
func readMany(ctx context.Context, q querier, where string, args ...any) ([]*cms.Resource, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+resourceColumns+resourceFrom+` WHERE `+where+` ORDER BY s.path`, args...)
	if err != nil {
		return nil, fmt.Errorf("reading resources: %w", err)
	}
	defer rows.Close()

	var out []*cms.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) ReadResource(view cms.View, path string) (*cms.Resource, error) {
	return readOne(context.Background(), s.db, view, "s.path = ?", path)
}

func (s *SQLiteDatabase) ReadResourceByID(view cms.View, structureID string) (*cms.Resource, error) {
	return readOne(context.Background(), s.db, view, "s.structure_id = ?", structureID)
}

func (s *SQLiteDatabase) ReadSiblings(view cms.View, resourceID string) ([]*cms.Resource, error) {
	return readMany(context.Background(), s.db, "s.view = ? AND s.resource_id = ?", int(view), resourceID)
}

func (s *SQLiteDatabase) ReadChildren(view cms.View, folderPath string) ([]*cms.Resource, error) {
	return readMany(context.Background(), s.db,
		`s.view = ? AND s.parent_id = (SELECT structure_id FROM structures WHERE view = ? AND path = ?)`,
		int(view), int(view), folderPath)
}

func (s *SQLiteDatabase) ReadSubtree(view cms.View, root string) ([]*cms.Resource, error) {
	if !cms.IsFolderPath(root) {
		return readMany(context.Background(), s.db, "s.view = ? AND s.path = ?", int(view), root)
	}
	return readMany(context.Background(), s.db, `s.view = ? AND (s.path = ? OR s.path LIKE ? ESCAPE '\')`,
		int(view), root, likePrefix(root))
}

func (s *SQLiteDatabase) WriteResource(view cms.View, r *cms.Resource) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		return writeResource(ctx, tx, view, r)
	})
}

// writeResource upserts the shared record, the structure entry and, when
// r.Content is set, the content.
func writeResource(ctx context.Context, q querier, view cms.View, r *cms.Resource) error {
	_, err := q.ExecContext(ctx, `INSERT INTO resources (view, resource_id, type, flags, owner_id, group_id,
			last_modified_by, date_created, date_last_modified, content_last_modified, touched, size, body_resource_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (view, resource_id) DO UPDATE SET
			type = excluded.type, flags = excluded.flags, owner_id = excluded.owner_id,
			group_id = excluded.group_id, last_modified_by = excluded.last_modified_by,
			date_created = excluded.date_created, date_last_modified = excluded.date_last_modified,
			content_last_modified = excluded.content_last_modified, touched = excluded.touched,
			size = excluded.size, body_resource_id = excluded.body_resource_id`,
		int(view), r.ResourceID, r.Type, int(r.Flags), r.OwnerID, r.GroupID, r.LastModifiedBy,
		r.DateCreated.UTC(), r.DateLastModified.UTC(), r.ContentLastModified.UTC(), r.Touched, r.Size, r.BodyResourceID)
	if err != nil {
		return fmt.Errorf("writing resource record: %w", err)
	}

	_, err = q.ExecContext(ctx, `INSERT INTO structures (view, structure_id, resource_id, parent_id, path, state,
			project_id, locked_in_project)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (view, structure_id) DO UPDATE SET
			resource_id = excluded.resource_id, parent_id = excluded.parent_id, path = excluded.path,
			state = excluded.state, project_id = excluded.project_id, locked_in_project = excluded.locked_in_project`,
		int(view), r.StructureID, r.ResourceID, r.ParentID, r.Name, int(r.State), r.ProjectID, r.LockedInProject)
	if err != nil {
		return fmt.Errorf("writing structure entry: %w", err)
	}

	if r.IsFile() && r.Content != nil {
		_, err = q.ExecContext(ctx, `INSERT INTO contents (view, resource_id, data) VALUES (?, ?, ?)
			ON CONFLICT (view, resource_id) DO UPDATE SET data = excluded.data`,
			int(view), r.ResourceID, r.Content)
		if err != nil {
			return fmt.Errorf("writing content: %w", err)
		}
	}
	return nil
}

func (s *SQLiteDatabase) DeleteResource(view cms.View, structureID string) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		return deleteStructure(ctx, tx, view, structureID)
	})
}

// deleteStructure removes a structure entry and, with the last entry for
// its resource, the shared records.
func deleteStructure(ctx context.Context, q querier, view cms.View, structureID string) error {
	var resourceID string
	err := q.QueryRowContext(ctx, `SELECT resource_id FROM structures WHERE view = ? AND structure_id = ?`,
		int(view), structureID).Scan(&resourceID)
	if noRows(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("finding structure entry: %w", err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM structures WHERE view = ? AND structure_id = ?`, int(view), structureID); err != nil {
		return fmt.Errorf("deleting structure entry: %w", err)
	}

	var remaining int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM structures WHERE view = ? AND resource_id = ?`,
		int(view), resourceID).Scan(&remaining); err != nil {
		return fmt.Errorf("counting siblings: %w", err)
	}
	if remaining > 0 {
		return nil
	}
	for _, table := range []string{"contents", "properties", "links", "resources"} {
		if _, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE view = ? AND resource_id = ?`, int(view), resourceID); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}
	return nil
}

// Property operations

func (s *SQLiteDatabase) ReadProperties(view cms.View, resourceID string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT name, value FROM properties WHERE view = ? AND resource_id = ?`, int(view), resourceID)
	if err != nil {
		return nil, fmt.Errorf("reading properties: %w", err)
	}
	defer rows.Close()

	props := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		props[k] = v
	}
	return props, rows.Err()
}

func (s *SQLiteDatabase) WriteProperties(view cms.View, resourceID string, props map[string]string) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		return writeProperties(ctx, tx, view, resourceID, props)
	})
}

func writeProperties(ctx context.Context, q querier, view cms.View, resourceID string, props map[string]string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM properties WHERE view = ? AND resource_id = ?`, int(view), resourceID); err != nil {
		return fmt.Errorf("clearing properties: %w", err)
	}
	for k, v := range props {
		if _, err := q.ExecContext(ctx, `INSERT INTO properties (view, resource_id, name, value) VALUES (?, ?, ?, ?)`,
			int(view), resourceID, k, v); err != nil {
			return fmt.Errorf("writing property %s: %w", k, err)
		}
	}
	return nil
}

// Link table operations

func (s *SQLiteDatabase) ReadLinks(view cms.View, resourceID string) ([]string, error) {
	return s.readStrings(`SELECT target FROM links WHERE view = ? AND resource_id = ? ORDER BY target`, int(view), resourceID)
}

func (s *SQLiteDatabase) WriteLinks(view cms.View, resourceID string, targets []string) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE view = ? AND resource_id = ?`, int(view), resourceID); err != nil {
			return fmt.Errorf("clearing links: %w", err)
		}
		for _, t := range targets {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO links (view, resource_id, target) VALUES (?, ?, ?)`,
				int(view), resourceID, t); err != nil {
				return fmt.Errorf("writing link to %s: %w", t, err)
			}
		}
		return nil
	})
}

func (s *SQLiteDatabase) ReadLinkSources(view cms.View, target string) ([]string, error) {
	return s.readStrings(`SELECT DISTINCT resource_id FROM links WHERE view = ? AND target = ? ORDER BY resource_id`, int(view), target)
}

func (s *SQLiteDatabase) readStrings(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Publish operations

// CommitPublish writes the online copy of r with its properties and marks
// the offline entry unchanged, in one transaction.
func (s *SQLiteDatabase) CommitPublish(r *cms.Resource, props map[string]string) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		if err := writeResource(ctx, tx, cms.ViewOnline, r); err != nil {
			return err
		}
		if err := writeProperties(ctx, tx, cms.ViewOnline, r.ResourceID, props); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE structures SET state = ?, locked_in_project = 0
			WHERE view = ? AND structure_id = ?`, int(cms.StateUnchanged), int(cms.ViewOffline), r.StructureID)
		if err != nil {
			return fmt.Errorf("marking offline entry published: %w", err)
		}
		return nil
	})
}

// CommitDeletion removes a structure entry from both views in one transaction.
func (s *SQLiteDatabase) CommitDeletion(structureID string) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		if err := deleteStructure(ctx, tx, cms.ViewOnline, structureID); err != nil {
			return err
		}
		return deleteStructure(ctx, tx, cms.ViewOffline, structureID)
	})
}
