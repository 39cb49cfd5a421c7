package cms

import (
	"sort"
	"strings"
)

// DeleteResource marks a resource for deletion on the next publish. A NEW
// resource is removed immediately. Deleting a folder deletes its subtree;
// every descendant must be unlocked or locked by the current user.
func (s *Service) DeleteResource(rc *RequestContext, path string) error {
	res, err := s.readForWrite(rc, path)
	if err != nil {
		return err
	}
	if res.Name == RootPath {
		return denied("cannot delete the root folder")
	}
	if _, err := s.types.require(res, CapDelete); err != nil {
		return err
	}

	targets := []*Resource{res}
	if res.IsFolder() {
		subtree, err := s.db.ReadSubtree(ViewOffline, res.Name)
		if err != nil {
			return backend("reading subtree", err)
		}
		targets = subtree
	}
	user := rc.CurrentUser()
	for _, t := range targets {
		l, err := s.locks.LockedBy(t.ResourceID)
		if err != nil {
			return err
		}
		if !l.IsNull() && l.UserID != user.ID {
			return &LockConflictError{ResourceID: t.ResourceID, Path: t.Name, HolderID: l.UserID, ProjectID: l.ProjectID}
		}
	}

	// deepest first, so a physically removed folder is already empty
	sort.Slice(targets, func(i, j int) bool { return targets[i].Name > targets[j].Name })
	for _, t := range targets {
		if err := s.deleteOne(t); err != nil {
			return err
		}
	}

	if body := s.auxiliaryBody(res); body != nil && body.State != StateDeleted {
		if err := s.deleteOne(body); err != nil {
			s.logger.Warn("deleting page body failed", "page", res.Name, "body", body.Name, "error", err)
		}
	}
	s.logger.Info("resource deleted", "path", res.Name, "count", len(targets))
	return nil
}

func (s *Service) deleteOne(r *Resource) error {
	switch r.State {
	case StateDeleted:
		return nil
	case StateNew:
		if err := s.db.DeleteResource(ViewOffline, r.StructureID); err != nil {
			return backend("removing new resource", err)
		}
		siblings, err := s.db.ReadSiblings(ViewOffline, r.ResourceID)
		if err != nil {
			return backend("reading siblings", err)
		}
		if len(siblings) == 0 {
			return s.locks.Unlock(r.ResourceID)
		}
		return nil
	default:
		if err := r.MarkDeleted(); err != nil {
			return err
		}
		if err := s.db.WriteResource(ViewOffline, r); err != nil {
			return backend("marking resource deleted", err)
		}
		return nil
	}
}

// UndeleteResource revokes a pending deletion. The resource comes back as
// CHANGED; its parent must not itself be deleted.
func (s *Service) UndeleteResource(rc *RequestContext, path string) error {
	full := rc.AddSiteRoot(path)
	if err := s.requireWritable(rc, full); err != nil {
		return err
	}
	res, err := s.readResource(ViewOffline, full, true)
	if err != nil {
		return err
	}
	if res.State != StateDeleted {
		return inconsistent("%s is not deleted", res.Name)
	}
	if err := s.requireLock(rc, res); err != nil {
		return err
	}
	if parent := res.ParentPath(); parent != "" {
		if _, err := s.readResource(ViewOffline, parent, false); err != nil {
			return inconsistent("parent folder %s is deleted", parent)
		}
	}
	res.State = StateChanged
	if err := s.db.WriteResource(ViewOffline, res); err != nil {
		return backend("undeleting resource", err)
	}
	s.logger.Info("resource undeleted", "path", res.Name)
	return nil
}

// UndoChanges discards offline changes and restores the online copy. A NEW
// resource has no online copy and is removed.
func (s *Service) UndoChanges(rc *RequestContext, path string) error {
	full := rc.AddSiteRoot(path)
	if err := s.requireWritable(rc, full); err != nil {
		return err
	}
	res, err := s.readResource(ViewOffline, full, true)
	if err != nil {
		return err
	}
	if err := s.requireLock(rc, res); err != nil {
		return err
	}

	switch res.State {
	case StateUnchanged:
		return nil
	case StateNew:
		if res.IsFolder() {
			children, err := s.db.ReadChildren(ViewOffline, res.Name)
			if err != nil {
				return backend("reading children", err)
			}
			if len(children) > 0 {
				return inconsistent("folder %s is not empty", res.Name)
			}
		}
		return s.deleteOne(res)
	}

	online, err := s.db.ReadResourceByID(ViewOnline, res.StructureID)
	if err != nil {
		return backend("reading online copy", err)
	}
	if online == nil {
		return inconsistent("%s has no online copy", res.Name)
	}
	props, err := s.db.ReadProperties(ViewOnline, res.ResourceID)
	if err != nil {
		return backend("reading online properties", err)
	}
	links, err := s.db.ReadLinks(ViewOnline, res.ResourceID)
	if err != nil {
		return backend("reading online links", err)
	}

	restored := online.Clone()
	restored.State = StateUnchanged
	restored.ProjectID = res.ProjectID
	restored.LockedInProject = 0
	if restored.IsFile() && restored.Content == nil {
		restored.Content = []byte{}
	}
	if err := s.db.WriteResource(ViewOffline, restored); err != nil {
		return backend("restoring online copy", err)
	}
	if err := s.db.WriteProperties(ViewOffline, res.ResourceID, props); err != nil {
		return backend("restoring properties", err)
	}
	if err := s.db.WriteLinks(ViewOffline, res.ResourceID, links); err != nil {
		return backend("restoring links", err)
	}
	s.logger.Info("changes undone", "path", res.Name)
	return nil
}

// CopyResource duplicates source at destination. Folders are copied with
// their subtree. Copies are independent NEW resources locked by the caller.
func (s *Service) CopyResource(rc *RequestContext, source, destination string) (*Resource, error) {
	dst := rc.AddSiteRoot(destination)
	if err := s.requireWritable(rc, dst); err != nil {
		return nil, err
	}
	src, err := s.readResource(ViewOffline, rc.AddSiteRoot(source), false)
	if err != nil {
		return nil, err
	}
	if _, err := s.types.require(src, CapCopy); err != nil {
		return nil, err
	}
	if src.IsFolder() != IsFolderPath(dst) {
		return nil, inconsistent("cannot copy %s to %s", src.Name, dst)
	}
	if src.IsFolder() && InSubtree(dst, src.Name) {
		return nil, inconsistent("cannot copy %s into itself", src.Name)
	}
	parent, err := s.prepareTarget(dst)
	if err != nil {
		return nil, err
	}

	nodes := []*Resource{src}
	if src.IsFolder() {
		if nodes, err = s.db.ReadSubtree(ViewOffline, src.Name); err != nil {
			return nil, backend("reading subtree", err)
		}
	}

	user := rc.CurrentUser()
	project := rc.CurrentProject()
	now := s.clock.Now()
	newParents := map[string]string{src.ParentID: parent.StructureID}
	var top *Resource
	for _, n := range nodes {
		if n.State == StateDeleted {
			continue
		}
		full, err := s.db.ReadResourceByID(ViewOffline, n.StructureID)
		if err != nil {
			return nil, backend("reading "+n.Name, err)
		}
		if full == nil {
			return nil, notFound("resource", n.Name)
		}
		parentID, ok := newParents[full.ParentID]
		if !ok {
			continue
		}

		cp := full.Clone()
		cp.StructureID = s.idgen.New()
		cp.ResourceID = s.idgen.New()
		cp.ParentID = parentID
		cp.Name = dst + strings.TrimPrefix(full.Name, src.Name)
		cp.State = StateNew
		cp.ProjectID = project.ID
		cp.LockedInProject = 0
		cp.OwnerID = user.ID
		cp.LastModifiedBy = user.ID
		cp.DateCreated = now
		cp.DateLastModified = now
		cp.Touched = false
		if cp.IsFile() && cp.Content == nil {
			cp.Content = []byte{}
		}
		if body := s.auxiliaryBody(full); body != nil {
			bodyCopy, err := s.copyBody(rc, body)
			if err != nil {
				s.logger.Warn("copying page body failed", "page", full.Name, "error", err)
				cp.BodyResourceID = ""
			} else {
				cp.BodyResourceID = bodyCopy.ResourceID
			}
		}

		if err := s.db.WriteResource(ViewOffline, cp); err != nil {
			return nil, backend("writing copy", err)
		}
		if err := s.copyShared(full.ResourceID, cp.ResourceID); err != nil {
			return nil, err
		}
		if err := s.locks.Lock(cp.ResourceID, user.ID, project.ID, false); err != nil {
			return nil, err
		}
		newParents[full.StructureID] = cp.StructureID
		if top == nil {
			top = cp
		}
	}
	s.logger.Info("resource copied", "source", src.Name, "destination", dst)
	return top, nil
}

// copyBody duplicates a page body next to the original under a fresh name.
func (s *Service) copyBody(rc *RequestContext, body *Resource) (*Resource, error) {
	full, err := s.db.ReadResourceByID(ViewOffline, body.StructureID)
	if err != nil {
		return nil, backend("reading body", err)
	}
	if full == nil {
		return nil, notFound("body", body.Name)
	}
	cp := full.Clone()
	cp.StructureID = s.idgen.New()
	cp.ResourceID = s.idgen.New()
	cp.Name = full.ParentPath() + cp.ResourceID
	cp.State = StateNew
	cp.ProjectID = rc.CurrentProject().ID
	cp.LockedInProject = 0
	if cp.Content == nil {
		cp.Content = []byte{}
	}
	if err := s.db.WriteResource(ViewOffline, cp); err != nil {
		return nil, backend("writing body copy", err)
	}
	if err := s.copyShared(full.ResourceID, cp.ResourceID); err != nil {
		return nil, err
	}
	if err := s.locks.Lock(cp.ResourceID, rc.CurrentUser().ID, rc.CurrentProject().ID, false); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *Service) copyShared(fromID, toID string) error {
	props, err := s.db.ReadProperties(ViewOffline, fromID)
	if err != nil {
		return backend("reading properties", err)
	}
	if len(props) > 0 {
		if err := s.db.WriteProperties(ViewOffline, toID, props); err != nil {
			return backend("copying properties", err)
		}
	}
	links, err := s.db.ReadLinks(ViewOffline, fromID)
	if err != nil {
		return backend("reading links", err)
	}
	if len(links) > 0 {
		if err := s.db.WriteLinks(ViewOffline, toID, links); err != nil {
			return backend("copying links", err)
		}
	}
	return nil
}

// MoveResource relocates source to destination. The destination entries
// are NEW structure entries sharing the source content; the source entries
// are marked deleted so the next publish removes them online.
func (s *Service) MoveResource(rc *RequestContext, source, destination string) (*Resource, error) {
	dst := rc.AddSiteRoot(destination)
	if err := s.requireWritable(rc, dst); err != nil {
		return nil, err
	}
	src, err := s.readForWrite(rc, source)
	if err != nil {
		return nil, err
	}
	if src.Name == RootPath {
		return nil, denied("cannot move the root folder")
	}
	if _, err := s.types.require(src, CapMove); err != nil {
		return nil, err
	}
	if src.IsFolder() != IsFolderPath(dst) {
		return nil, inconsistent("cannot move %s to %s", src.Name, dst)
	}
	if src.IsFolder() && InSubtree(dst, src.Name) {
		return nil, inconsistent("cannot move %s into itself", src.Name)
	}
	parent, err := s.prepareTarget(dst)
	if err != nil {
		return nil, err
	}

	nodes := []*Resource{src}
	if src.IsFolder() {
		if nodes, err = s.db.ReadSubtree(ViewOffline, src.Name); err != nil {
			return nil, backend("reading subtree", err)
		}
	}
	user := rc.CurrentUser()
	for _, n := range nodes {
		l, err := s.locks.LockedBy(n.ResourceID)
		if err != nil {
			return nil, err
		}
		if !l.IsNull() && l.UserID != user.ID {
			return nil, &LockConflictError{ResourceID: n.ResourceID, Path: n.Name, HolderID: l.UserID, ProjectID: l.ProjectID}
		}
	}

	project := rc.CurrentProject()
	newParents := map[string]string{src.ParentID: parent.StructureID}
	var top *Resource
	var moved []*Resource
	for _, n := range nodes {
		if n.State == StateDeleted {
			continue
		}
		full, err := s.db.ReadResourceByID(ViewOffline, n.StructureID)
		if err != nil {
			return nil, backend("reading "+n.Name, err)
		}
		if full == nil {
			return nil, notFound("resource", n.Name)
		}
		parentID, ok := newParents[full.ParentID]
		if !ok {
			continue
		}
		mv := full.Clone()
		mv.StructureID = s.idgen.New()
		mv.ParentID = parentID
		mv.Name = dst + strings.TrimPrefix(full.Name, src.Name)
		mv.State = StateNew
		mv.ProjectID = project.ID
		mv.LockedInProject = 0
		mv.LastModifiedBy = user.ID
		if mv.IsFile() && mv.Content == nil {
			mv.Content = []byte{}
		}
		if err := s.db.WriteResource(ViewOffline, mv); err != nil {
			return nil, backend("writing moved resource", err)
		}
		if err := s.locks.Lock(mv.ResourceID, user.ID, project.ID, false); err != nil {
			return nil, err
		}
		newParents[full.StructureID] = mv.StructureID
		moved = append(moved, full)
		if top == nil {
			top = mv
		}
	}

	sort.Slice(moved, func(i, j int) bool { return moved[i].Name > moved[j].Name })
	for _, m := range moved {
		if err := s.deleteOne(m); err != nil {
			return nil, err
		}
	}
	s.logger.Info("resource moved", "source", src.Name, "destination", dst)
	return top, nil
}

// auxiliaryBody returns the offline body resource of a page, or nil.
func (s *Service) auxiliaryBody(res *Resource) *Resource {
	if res.BodyResourceID == "" {
		return nil
	}
	t, err := s.types.Get(res.Type)
	if err != nil || !t.HasAuxiliary() {
		return nil
	}
	siblings, err := s.db.ReadSiblings(ViewOffline, res.BodyResourceID)
	if err != nil {
		s.logger.Warn("reading page body failed", "page", res.Name, "error", err)
		return nil
	}
	if len(siblings) == 0 {
		return nil
	}
	return siblings[0]
}

// AttachBody binds a body resource to a page. The body becomes internal:
// it is not served directly and follows the page on lock, copy and delete.
func (s *Service) AttachBody(rc *RequestContext, pagePath, bodyPath string) error {
	page, err := s.readForWrite(rc, pagePath)
	if err != nil {
		return err
	}
	t, err := s.types.Get(page.Type)
	if err != nil {
		return err
	}
	if !t.HasAuxiliary() {
		return inconsistent("type %s has no body resource", t.Name())
	}
	body, err := s.readForWrite(rc, bodyPath)
	if err != nil {
		return err
	}
	if body.IsFolder() {
		return inconsistent("body %s must be a file", body.Name)
	}

	page.BodyResourceID = body.ResourceID
	if err := s.touchStructure(rc, page); err != nil {
		return err
	}
	body.Flags |= AccessInternalRead
	return s.touchStructure(rc, body)
}
