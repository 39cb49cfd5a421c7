package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vfs-go/internal/cms"
)

// Backup operations

func (s *SQLiteDatabase) NextVersionID(createdAt time.Time) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO backup_versions (created_at) VALUES (?)`, createdAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("reserving version id: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading version id: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) MaxVersionID() (int64, error) {
	var id int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM backup_versions`).Scan(&id); err != nil {
		return 0, fmt.Errorf("getting max version ID: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) WriteBackup(b *cms.BackupResource) error {
	props, err := json.Marshal(b.Properties)
	if err != nil {
		return fmt.Errorf("encoding properties: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO backup_resources (version_id, structure_id, resource_id, parent_id, path, type,
			flags, state, owner_id, owner_name, group_id, group_name, last_modified_by, last_modified_by_name,
			project_id, date_created, date_last_modified, content_last_modified, size, body_resource_id,
			content_checksum, encrypted_checksum, properties, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.VersionID, b.StructureID, b.ResourceID, b.ParentID, b.Name, b.Type,
		int(b.Flags), int(b.State), b.OwnerID, b.OwnerName, b.GroupID, b.GroupName, b.LastModifiedBy, b.LastModifiedByName,
		b.ProjectID, b.DateCreated.UTC(), b.DateLastModified.UTC(), b.ContentLastModified.UTC(), b.Size, b.BodyResourceID,
		b.ContentChecksum, b.EncryptedChecksum, string(props), b.PublishedAt.UTC())
	if err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}
	return nil
}

const backupColumns = `version_id, structure_id, resource_id, parent_id, path, type, flags, state,
	owner_id, owner_name, group_id, group_name, last_modified_by, last_modified_by_name,
	project_id, date_created, date_last_modified, content_last_modified, size, body_resource_id,
	content_checksum, encrypted_checksum, properties, published_at`

func scanBackup(row scanner) (*cms.BackupResource, error) {
	var b cms.BackupResource
	var flags, state int
	var props string
	err := row.Scan(&b.VersionID, &b.StructureID, &b.ResourceID, &b.ParentID, &b.Name, &b.Type, &flags, &state,
		&b.OwnerID, &b.OwnerName, &b.GroupID, &b.GroupName, &b.LastModifiedBy, &b.LastModifiedByName,
		&b.ProjectID, &b.DateCreated, &b.DateLastModified, &b.ContentLastModified, &b.Size, &b.BodyResourceID,
		&b.ContentChecksum, &b.EncryptedChecksum, &props, &b.PublishedAt)
	if err != nil {
		return nil, err
	}
	b.Flags = cms.AccessFlags(flags)
	b.State = cms.State(state)
	if err := json.Unmarshal([]byte(props), &b.Properties); err != nil {
		return nil, fmt.Errorf("decoding properties: %w", err)
	}
	return &b, nil
}

func (s *SQLiteDatabase) ReadBackup(path string, versionID int64) (*cms.BackupResource, error) {
	b, err := scanBackup(s.db.QueryRow(`SELECT `+backupColumns+` FROM backup_resources
		WHERE path = ? AND version_id = ?`, path, versionID))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup: %w", err)
	}
	return b, nil
}

func (s *SQLiteDatabase) ReadBackups(path string) ([]*cms.BackupResource, error) {
	return s.readBackups(`SELECT `+backupColumns+` FROM backup_resources WHERE path = ? ORDER BY version_id DESC`, path)
}

func (s *SQLiteDatabase) ReadBackupsByVersion(versionID int64) ([]*cms.BackupResource, error) {
	return s.readBackups(`SELECT `+backupColumns+` FROM backup_resources WHERE version_id = ? ORDER BY path`, versionID)
}

func (s *SQLiteDatabase) readBackups(query string, arg any) ([]*cms.BackupResource, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("reading backups: %w", err)
	}
	defer rows.Close()

	var out []*cms.BackupResource
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning backup: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// vaultKey is the checksum a backup row's content is stored under.
const vaultKey = `CASE WHEN encrypted_checksum != '' THEN encrypted_checksum ELSE content_checksum END`

func (s *SQLiteDatabase) DeleteBackupsBefore(cutoff time.Time) (int64, []string, error) {
	var oldest int64
	var orphaned []string
	err := s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		candidates, err := queryStrings(ctx, tx, `SELECT DISTINCT `+vaultKey+` FROM backup_resources
			WHERE published_at < ? AND `+vaultKey+` != '' ORDER BY 1`, cutoff.UTC())
		if err != nil {
			return fmt.Errorf("listing pruned content: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM backup_resources WHERE published_at < ?`, cutoff.UTC()); err != nil {
			return fmt.Errorf("deleting backups: %w", err)
		}
		for _, key := range candidates {
			var refs int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM backup_resources WHERE `+vaultKey+` = ?`, key).Scan(&refs); err != nil {
				return fmt.Errorf("counting references to %s: %w", key, err)
			}
			if refs == 0 {
				orphaned = append(orphaned, key)
			}
		}
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MIN(version_id), 0) FROM backup_resources`).Scan(&oldest); err != nil {
			return fmt.Errorf("finding oldest version: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return oldest, orphaned, nil
}

func queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Publish history operations

func (s *SQLiteDatabase) CreatePublishRecord(rec *cms.PublishRecord) error {
	_, err := s.db.Exec(`INSERT INTO publish_history (version_id, project_id, project_name, user_id, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.VersionID, rec.ProjectID, rec.ProjectName, rec.UserID, rec.StartedAt.UTC(), rec.Status)
	if err != nil {
		return fmt.Errorf("creating publish record: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FinishPublishRecord(rec *cms.PublishRecord) error {
	_, err := s.db.Exec(`UPDATE publish_history SET finished_at = ?, new_count = ?, changed_count = ?,
			deleted_count = ?, failed_count = ?, status = ? WHERE version_id = ?`,
		rec.FinishedAt.UTC(), rec.NewCount, rec.ChangedCount, rec.DeletedCount, rec.FailedCount, rec.Status, rec.VersionID)
	if err != nil {
		return fmt.Errorf("finishing publish record: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListPublishRecords(limit int) ([]*cms.PublishRecord, error) {
	rows, err := s.db.Query(`SELECT version_id, project_id, project_name, user_id, started_at, finished_at,
			new_count, changed_count, deleted_count, failed_count, status
		FROM publish_history ORDER BY version_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing publish records: %w", err)
	}
	defer rows.Close()

	var out []*cms.PublishRecord
	for rows.Next() {
		var rec cms.PublishRecord
		var finished sql.NullTime
		if err := rows.Scan(&rec.VersionID, &rec.ProjectID, &rec.ProjectName, &rec.UserID, &rec.StartedAt, &finished,
			&rec.NewCount, &rec.ChangedCount, &rec.DeletedCount, &rec.FailedCount, &rec.Status); err != nil {
			return nil, fmt.Errorf("scanning publish record: %w", err)
		}
		if finished.Valid {
			rec.FinishedAt = finished.Time
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
