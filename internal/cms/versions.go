package cms

// ReadBackup returns one historical version of path. decryptCtx is only
// needed with withContent set and encrypted history.
func (s *Service) ReadBackup(rc *RequestContext, path string, versionID int64, withContent bool, decryptCtx DecryptionContext) (*BackupResource, error) {
	return s.history.ReadByVersion(rc.AddSiteRoot(path), versionID, withContent, decryptCtx)
}

// ReadAllVersions lists the history of path, newest first.
func (s *Service) ReadAllVersions(rc *RequestContext, path string) ([]*BackupResource, error) {
	return s.history.ReadAllVersions(rc.AddSiteRoot(path))
}

// ReadVersion lists every resource published under versionID.
func (s *Service) ReadVersion(versionID int64) ([]*BackupResource, error) {
	backups, err := s.db.ReadBackupsByVersion(versionID)
	if err != nil {
		return nil, backend("reading version", err)
	}
	return backups, nil
}

// RestoreVersion copies a historical version back into the offline view.
// An existing resource becomes CHANGED and must be locked by the caller; a
// resource that no longer exists offline is recreated as NEW.
func (s *Service) RestoreVersion(rc *RequestContext, path string, versionID int64, decryptCtx DecryptionContext) (*Resource, error) {
	full := rc.AddSiteRoot(path)
	if err := s.requireWritable(rc, full); err != nil {
		return nil, err
	}
	backup, err := s.history.ReadByVersion(full, versionID, true, decryptCtx)
	if err != nil {
		return nil, err
	}

	current, err := s.db.ReadResource(ViewOffline, full)
	if err != nil {
		return nil, backend("reading current resource", err)
	}
	if current == nil {
		return s.recreate(rc, backup)
	}

	if _, err := s.types.require(current, CapRestore); err != nil {
		return nil, err
	}
	if err := s.requireLock(rc, current); err != nil {
		return nil, err
	}
	if current.State == StateDeleted {
		current.State = StateChanged
	} else if err := current.MarkModified(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	current.Type = backup.Type
	current.Flags = backup.Flags
	current.LastModifiedBy = rc.CurrentUser().ID
	current.DateLastModified = now
	current.Touched = false
	if current.IsFile() {
		current.SetContent(nonNil(backup.Content))
		current.ContentLastModified = now
	}
	if err := s.db.WriteResource(ViewOffline, current); err != nil {
		return nil, backend("restoring resource", err)
	}
	if err := s.db.WriteProperties(ViewOffline, current.ResourceID, backup.Properties); err != nil {
		return nil, backend("restoring properties", err)
	}
	s.logger.Info("version restored", "path", full, "version", versionID)
	return current, nil
}

func (s *Service) recreate(rc *RequestContext, backup *BackupResource) (*Resource, error) {
	parent, err := s.prepareTarget(backup.Name)
	if err != nil {
		return nil, err
	}
	user := rc.CurrentUser()
	project := rc.CurrentProject()
	now := s.clock.Now()

	res := backup.Resource.Clone()
	res.StructureID = s.idgen.New()
	res.ResourceID = s.idgen.New()
	res.ParentID = parent.StructureID
	res.State = StateNew
	res.ProjectID = project.ID
	res.LockedInProject = 0
	res.LastModifiedBy = user.ID
	res.DateLastModified = now
	res.BodyResourceID = ""
	if res.IsFile() {
		res.SetContent(nonNil(backup.Content))
	}
	if err := s.db.WriteResource(ViewOffline, res); err != nil {
		return nil, backend("recreating resource", err)
	}
	if err := s.db.WriteProperties(ViewOffline, res.ResourceID, backup.Properties); err != nil {
		return nil, backend("restoring properties", err)
	}
	if err := s.locks.Lock(res.ResourceID, user.ID, project.ID, false); err != nil {
		return nil, err
	}
	s.logger.Info("version recreated", "path", res.Name, "version", backup.VersionID)
	return res, nil
}

// PruneBackups deletes history older than ageWeeks. Only admins may prune.
func (s *Service) PruneBackups(rc *RequestContext, ageWeeks int) (int64, error) {
	if !rc.CurrentUser().Admin {
		return 0, denied("only admins may prune history")
	}
	return s.history.PruneOlderThan(ageWeeks)
}

// PublishHistory returns the most recent publish runs, newest first.
func (s *Service) PublishHistory(limit int) ([]*PublishRecord, error) {
	records, err := s.db.ListPublishRecords(limit)
	if err != nil {
		return nil, backend("reading publish history", err)
	}
	return records, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
