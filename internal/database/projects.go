package database

import (
	"context"
	"database/sql"
	"fmt"

	"vfs-go/internal/cms"
)

// Project operations

const projectColumns = `id, name, description, owner_id, group_id, manager_group_id, created_at, flags, type`

func scanProject(row scanner) (*cms.Project, error) {
	var p cms.Project
	var flags, typ int
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.GroupID, &p.ManagerGroupID,
		&p.CreatedAt, &flags, &typ); err != nil {
		return nil, err
	}
	p.Flags = cms.ProjectFlags(flags)
	p.Type = cms.ProjectType(typ)
	return &p, nil
}

func (s *SQLiteDatabase) CreateProject(p *cms.Project) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO projects (name, description, owner_id, group_id, manager_group_id,
				created_at, flags, type) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Name, p.Description, p.OwnerID, p.GroupID, p.ManagerGroupID, p.CreatedAt.UTC(), int(p.Flags), int(p.Type))
		if err != nil {
			return fmt.Errorf("inserting project: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading project id: %w", err)
		}
		p.ID = int(id)
		return writeProjectResources(ctx, tx, p)
	})
}

func writeProjectResources(ctx context.Context, q querier, p *cms.Project) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM project_resources WHERE project_id = ?`, p.ID); err != nil {
		return fmt.Errorf("clearing project resources: %w", err)
	}
	for _, path := range p.Resources {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO project_resources (project_id, path) VALUES (?, ?)`,
			p.ID, path); err != nil {
			return fmt.Errorf("adding project resource %s: %w", path, err)
		}
	}
	return nil
}

func (s *SQLiteDatabase) ReadProject(id int) (*cms.Project, error) {
	p, err := scanProject(s.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading project: %w", err)
	}
	if p.Resources, err = s.readStrings(`SELECT path FROM project_resources WHERE project_id = ? ORDER BY path`, p.ID); err != nil {
		return nil, fmt.Errorf("reading project resources: %w", err)
	}
	return p, nil
}

func (s *SQLiteDatabase) ReadProjects() ([]*cms.Project, error) {
	rows, err := s.db.Query(`SELECT ` + projectColumns + ` FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("reading projects: %w", err)
	}
	var projects []*cms.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("reading projects: %w", err)
	}

	for _, p := range projects {
		if p.Resources, err = s.readStrings(`SELECT path FROM project_resources WHERE project_id = ? ORDER BY path`, p.ID); err != nil {
			return nil, fmt.Errorf("reading project resources: %w", err)
		}
	}
	return projects, nil
}

func (s *SQLiteDatabase) UpdateProject(p *cms.Project) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE projects SET name = ?, description = ?, owner_id = ?, group_id = ?,
				manager_group_id = ?, flags = ?, type = ? WHERE id = ?`,
			p.Name, p.Description, p.OwnerID, p.GroupID, p.ManagerGroupID, int(p.Flags), int(p.Type), p.ID)
		if err != nil {
			return fmt.Errorf("updating project: %w", err)
		}
		return writeProjectResources(ctx, tx, p)
	})
}

func (s *SQLiteDatabase) DeleteProject(id int) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM project_resources WHERE project_id = ?`, id); err != nil {
			return fmt.Errorf("deleting project resources: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting project: %w", err)
		}
		return nil
	})
}

// User and group operations

func (s *SQLiteDatabase) CreateUser(u *cms.User) error {
	_, err := s.db.Exec(`INSERT INTO users (id, name, admin, current_project_id) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, u.Admin, u.CurrentProjectID)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ReadUser(id string) (*cms.User, error) {
	return s.readUser(`SELECT id, name, admin, current_project_id FROM users WHERE id = ?`, id)
}

func (s *SQLiteDatabase) ReadUserByName(name string) (*cms.User, error) {
	return s.readUser(`SELECT id, name, admin, current_project_id FROM users WHERE name = ?`, name)
}

func (s *SQLiteDatabase) readUser(query string, arg any) (*cms.User, error) {
	var u cms.User
	err := s.db.QueryRow(query, arg).Scan(&u.ID, &u.Name, &u.Admin, &u.CurrentProjectID)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading user: %w", err)
	}
	if u.Groups, err = s.readStrings(`SELECT group_id FROM group_members WHERE user_id = ? ORDER BY group_id`, u.ID); err != nil {
		return nil, fmt.Errorf("reading user groups: %w", err)
	}
	return &u, nil
}

func (s *SQLiteDatabase) UpdateUserProject(userID string, projectID int) error {
	if _, err := s.db.Exec(`UPDATE users SET current_project_id = ? WHERE id = ?`, projectID, userID); err != nil {
		return fmt.Errorf("updating current project: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) CreateGroup(g *cms.Group) error {
	if _, err := s.db.Exec(`INSERT INTO user_groups (id, name) VALUES (?, ?)`, g.ID, g.Name); err != nil {
		return fmt.Errorf("creating group: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ReadGroup(id string) (*cms.Group, error) {
	var g cms.Group
	err := s.db.QueryRow(`SELECT id, name FROM user_groups WHERE id = ?`, id).Scan(&g.ID, &g.Name)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading group: %w", err)
	}
	return &g, nil
}

func (s *SQLiteDatabase) AddUserToGroup(userID, groupID string) error {
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO group_members (user_id, group_id) VALUES (?, ?)`, userID, groupID); err != nil {
		return fmt.Errorf("adding user to group: %w", err)
	}
	return nil
}

// Lock table operations

func (s *SQLiteDatabase) ReadLock(resourceID string) (*cms.Lock, error) {
	var l cms.Lock
	var mode int
	err := s.db.QueryRow(`SELECT resource_id, user_id, project_id, mode, created_at FROM locks WHERE resource_id = ?`,
		resourceID).Scan(&l.ResourceID, &l.UserID, &l.ProjectID, &mode, &l.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading lock: %w", err)
	}
	l.Mode = cms.LockMode(mode)
	return &l, nil
}

func (s *SQLiteDatabase) WriteLock(l *cms.Lock) error {
	_, err := s.db.Exec(`INSERT INTO locks (resource_id, user_id, project_id, mode, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (resource_id) DO UPDATE SET user_id = excluded.user_id, project_id = excluded.project_id,
			mode = excluded.mode, created_at = excluded.created_at`,
		l.ResourceID, l.UserID, l.ProjectID, int(l.Mode), l.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("writing lock: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteLock(resourceID string) error {
	if _, err := s.db.Exec(`DELETE FROM locks WHERE resource_id = ?`, resourceID); err != nil {
		return fmt.Errorf("deleting lock: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ReadLocks() ([]*cms.Lock, error) {
	rows, err := s.db.Query(`SELECT resource_id, user_id, project_id, mode, created_at FROM locks ORDER BY resource_id`)
	if err != nil {
		return nil, fmt.Errorf("reading locks: %w", err)
	}
	defer rows.Close()

	var locks []*cms.Lock
	for rows.Next() {
		var l cms.Lock
		var mode int
		if err := rows.Scan(&l.ResourceID, &l.UserID, &l.ProjectID, &mode, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning lock: %w", err)
		}
		l.Mode = cms.LockMode(mode)
		locks = append(locks, &l)
	}
	return locks, rows.Err()
}
