package cms

import "sort"

// BrokenLink is a link whose target will not exist online after a publish.
type BrokenLink struct {
	Source string
	Target string
}

// dropStaleLinks removes online links that the publish is about to
// invalidate: links of deleted resources, and links a changed resource no
// longer has offline.
func (s *Service) dropStaleLinks(list *publishList) {
	for _, r := range append(append([]*Resource{}, list.deletedFiles...), list.deletedFolders...) {
		siblings, err := s.db.ReadSiblings(ViewOnline, r.ResourceID)
		if err != nil {
			s.logger.Warn("reading online siblings failed", "path", r.Name, "error", err)
			continue
		}
		// links belong to the shared resource; other siblings keep them
		if len(siblings) > 1 {
			continue
		}
		if err := s.db.WriteLinks(ViewOnline, r.ResourceID, nil); err != nil {
			s.logger.Warn("dropping online links failed", "path", r.Name, "error", err)
		}
	}

	for _, r := range append(append([]*Resource{}, list.folders...), list.files...) {
		if r.State != StateChanged {
			continue
		}
		online, err := s.db.ReadLinks(ViewOnline, r.ResourceID)
		if err != nil {
			s.logger.Warn("reading online links failed", "path", r.Name, "error", err)
			continue
		}
		offline, err := s.db.ReadLinks(ViewOffline, r.ResourceID)
		if err != nil {
			s.logger.Warn("reading offline links failed", "path", r.Name, "error", err)
			continue
		}
		keep := intersect(online, offline)
		if len(keep) == len(online) {
			continue
		}
		if err := s.db.WriteLinks(ViewOnline, r.ResourceID, keep); err != nil {
			s.logger.Warn("dropping stale online links failed", "path", r.Name, "error", err)
		}
	}
}

// completeLinks copies the offline links of promoted resources to the online view.
func (s *Service) completeLinks(promoted []*promotion) {
	for _, p := range promoted {
		if p.state == StateDeleted {
			continue
		}
		targets, err := s.db.ReadLinks(ViewOffline, p.res.ResourceID)
		if err != nil {
			s.logger.Warn("reading offline links failed", "path", p.res.Name, "error", err)
			continue
		}
		if err := s.db.WriteLinks(ViewOnline, p.res.ResourceID, targets); err != nil {
			s.logger.Warn("publishing links failed", "path", p.res.Name, "error", err)
		}
	}
}

// CheckBrokenLinks lists the links that would dangle online if the project
// were published now: outgoing links of modified resources to targets that
// will not exist, and online links into resources the project deletes.
func (s *Service) CheckBrokenLinks(rc *RequestContext, projectID int) ([]BrokenLink, error) {
	view, err := s.ReadProjectView(rc, projectID, FilterAll)
	if err != nil {
		return nil, err
	}
	pending := make(map[string]State, len(view))
	for _, r := range view {
		pending[r.Name] = r.State
	}

	exists := func(target string) (bool, error) {
		if st, ok := pending[target]; ok {
			return st != StateDeleted, nil
		}
		online, err := s.db.ReadResource(ViewOnline, target)
		if err != nil {
			return false, backend("reading link target", err)
		}
		return online != nil, nil
	}

	seen := make(map[BrokenLink]bool)
	var broken []BrokenLink
	add := func(b BrokenLink) {
		if !seen[b] {
			seen[b] = true
			broken = append(broken, b)
		}
	}

	for _, r := range view {
		if r.State == StateDeleted {
			sources, err := s.db.ReadLinkSources(ViewOnline, r.Name)
			if err != nil {
				return nil, backend("reading link sources", err)
			}
			for _, id := range sources {
				siblings, err := s.db.ReadSiblings(ViewOnline, id)
				if err != nil {
					return nil, backend("reading link source", err)
				}
				for _, sib := range siblings {
					// modified sources are checked with their offline links
					if _, ok := pending[sib.Name]; ok {
						continue
					}
					add(BrokenLink{Source: sib.Name, Target: r.Name})
				}
			}
			continue
		}

		targets, err := s.db.ReadLinks(ViewOffline, r.ResourceID)
		if err != nil {
			return nil, backend("reading links", err)
		}
		for _, t := range targets {
			ok, err := exists(t)
			if err != nil {
				return nil, err
			}
			if !ok {
				add(BrokenLink{Source: r.Name, Target: t})
			}
		}
	}

	sort.Slice(broken, func(i, j int) bool {
		if broken[i].Source != broken[j].Source {
			return broken[i].Source < broken[j].Source
		}
		return broken[i].Target < broken[j].Target
	})
	return broken, nil
}

func intersect(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, x := range b {
		in[x] = true
	}
	var out []string
	for _, x := range a {
		if in[x] {
			out = append(out, x)
		}
	}
	return out
}
