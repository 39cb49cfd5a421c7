package cms

// LockResource locks path for the current user in the current project.
// With force an existing lock of another user is stolen. The body of a page
// is locked along with it; failures there are only logged.
func (s *Service) LockResource(rc *RequestContext, path string, force bool) error {
	res, err := s.readLockTarget(rc, path)
	if err != nil {
		return err
	}
	if _, err := s.types.require(res, CapLock); err != nil {
		return err
	}

	user := rc.CurrentUser()
	project := rc.CurrentProject()
	if err := s.locks.Lock(res.ResourceID, user.ID, project.ID, force); err != nil {
		return withPath(err, res.Name)
	}
	s.logger.Debug("resource locked", "path", res.Name, "user", user.Name, "project", project.ID)

	if body := s.auxiliaryBody(res); body != nil {
		if err := s.locks.Lock(body.ResourceID, user.ID, project.ID, force); err != nil {
			s.logger.Warn("locking page body failed", "page", res.Name, "body", body.Name, "error", err)
		}
	}
	return nil
}

// UnlockResource releases the lock on path. Only the holder or an admin
// may unlock; unlocking an unlocked resource is a no-op.
func (s *Service) UnlockResource(rc *RequestContext, path string) error {
	res, err := s.readLockTarget(rc, path)
	if err != nil {
		return err
	}
	if err := s.unlockChecked(rc, res); err != nil {
		return err
	}
	s.logger.Debug("resource unlocked", "path", res.Name)

	if body := s.auxiliaryBody(res); body != nil {
		if err := s.unlockChecked(rc, body); err != nil {
			s.logger.Warn("unlocking page body failed", "page", res.Name, "body", body.Name, "error", err)
		}
	}
	return nil
}

func (s *Service) unlockChecked(rc *RequestContext, res *Resource) error {
	l, err := s.locks.LockedBy(res.ResourceID)
	if err != nil {
		return err
	}
	user := rc.CurrentUser()
	if !l.IsNull() && l.UserID != user.ID && !user.Admin {
		return &LockConflictError{ResourceID: res.ResourceID, Path: res.Name, HolderID: l.UserID, ProjectID: l.ProjectID}
	}
	return s.locks.Unlock(res.ResourceID)
}

// ChangeLock moves an existing lock to the current user and project.
func (s *Service) ChangeLock(rc *RequestContext, path string) error {
	res, err := s.readLockTarget(rc, path)
	if err != nil {
		return err
	}
	user := rc.CurrentUser()
	project := rc.CurrentProject()
	if err := s.locks.ChangeLock(res.ResourceID, user.ID, project.ID); err != nil {
		return withPath(err, res.Name)
	}
	if body := s.auxiliaryBody(res); body != nil {
		if err := s.locks.ChangeLock(body.ResourceID, user.ID, project.ID); err != nil {
			s.logger.Warn("changing page body lock failed", "page", res.Name, "body", body.Name, "error", err)
		}
	}
	return nil
}

// LockedBy reports the lock on path, or NullLock.
func (s *Service) LockedBy(rc *RequestContext, path string) (Lock, error) {
	res, err := s.readResource(ViewOffline, rc.AddSiteRoot(path), true)
	if err != nil {
		return NullLock, err
	}
	return s.locks.LockedBy(res.ResourceID)
}

// UnlockProject releases every lock held in project. Only a project manager may do this.
func (s *Service) UnlockProject(rc *RequestContext, projectID int) (int, error) {
	p, err := s.ReadProject(projectID)
	if err != nil {
		return 0, err
	}
	if !rc.CurrentUser().CanManage(p) {
		return 0, denied("user %s cannot manage project %s", rc.CurrentUser().Name, p.Name)
	}
	locks, err := s.locks.Locks()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, l := range locks {
		if l.ProjectID != projectID {
			continue
		}
		if err := s.locks.Unlock(l.ResourceID); err != nil {
			return n, err
		}
		n++
	}
	s.logger.Info("project unlocked", "project", p.Name, "count", n)
	return n, nil
}

// readLockTarget loads an offline resource, deleted ones included, for a lock operation.
func (s *Service) readLockTarget(rc *RequestContext, path string) (*Resource, error) {
	full := rc.AddSiteRoot(path)
	if rc.CurrentProject().IsOnline() {
		return nil, denied("cannot lock %s in the online project", full)
	}
	return s.readResource(ViewOffline, full, true)
}

func withPath(err error, path string) error {
	if conflict, ok := err.(*LockConflictError); ok {
		conflict.Path = path
	}
	return err
}
