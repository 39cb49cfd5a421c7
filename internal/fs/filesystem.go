package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"vfs-go/internal/cms"
)

// IgnoreFileName is read from the root of an imported directory.
const IgnoreFileName = ".vfsignore"

// ResourceCreator is the part of cms.Service the importer needs.
type ResourceCreator interface {
	ReadResource(rc *cms.RequestContext, path string, includeDeleted bool) (*cms.Resource, error)
	CreateResource(rc *cms.RequestContext, path string, typeID int, content []byte, props map[string]string) (*cms.Resource, error)
}

// ImportResult lists what an import did, by VFS path.
type ImportResult struct {
	Created []string
	Skipped []string // already present in the VFS
	Ignored []string // matched an ignore pattern (local relative paths)
}

// Importer copies a local directory tree into the offline project as NEW
// resources.
type Importer struct {
	svc    ResourceCreator
	ignore []string
	logger cms.Logger
}

// NewImporter creates an importer applying the given ignore patterns in
// addition to any .vfsignore found in the imported directory.
func NewImporter(svc ResourceCreator, ignore []string, logger cms.Logger) *Importer {
	return &Importer{svc: svc, ignore: ignore, logger: logger}
}

// Import walks localDir and creates its folders and files below the VFS
// folder target, which must already exist. Entries that already exist are
// skipped rather than overwritten. Symlinks and special files are ignored.
func (im *Importer) Import(rc *cms.RequestContext, localDir, target string) (*ImportResult, error) {
	absDir, err := filepath.Abs(localDir)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absDir)
	}
	if !cms.IsFolderPath(target) {
		target += cms.PathSeparator
	}
	if _, err := im.svc.ReadResource(rc, target, false); err != nil {
		return nil, fmt.Errorf("import target %s: %w", target, err)
	}

	filePatterns, err := ParseIgnoreFile(filepath.Join(absDir, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := append(append([]string{}, defaultIgnorePatterns...), im.ignore...)
	matcher := NewIgnoreMatcher(append(patterns, filePatterns...))

	result := &ImportResult{}
	err = filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == absDir {
			return nil
		}
		rel, err := filepath.Rel(absDir, p)
		if err != nil {
			return err
		}
		if matcher.Match(rel) {
			result.Ignored = append(result.Ignored, filepath.ToSlash(rel))
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		vfsPath := path.Join(target, filepath.ToSlash(rel))
		switch {
		case d.IsDir():
			return im.create(rc, result, vfsPath+cms.PathSeparator, cms.TypeFolder, nil)
		case d.Type().IsRegular():
			content, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("reading %s: %w", p, err)
			}
			return im.create(rc, result, vfsPath, DetectType(content), content)
		default:
			im.logger.Debug("skipping special file", "path", p)
			return nil
		}
	})
	if err != nil {
		return result, fmt.Errorf("importing %s: %w", absDir, err)
	}

	sort.Strings(result.Ignored)
	im.logger.Info("import finished", "source", absDir, "target", target,
		"created", len(result.Created), "skipped", len(result.Skipped), "ignored", len(result.Ignored))
	return result, nil
}

func (im *Importer) create(rc *cms.RequestContext, result *ImportResult, vfsPath string, typeID int, content []byte) error {
	_, err := im.svc.ReadResource(rc, vfsPath, true)
	if err == nil {
		result.Skipped = append(result.Skipped, vfsPath)
		return nil
	}
	if !errors.Is(err, cms.ErrNotFound) {
		return err
	}
	if _, err := im.svc.CreateResource(rc, vfsPath, typeID, content, nil); err != nil {
		return err
	}
	result.Created = append(result.Created, vfsPath)
	return nil
}

// DetectType picks a file resource type from the content's sniffed MIME type.
func DetectType(content []byte) int {
	ct := http.DetectContentType(content)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return cms.TypeImage
	case strings.HasPrefix(ct, "text/"):
		return cms.TypePlain
	default:
		return cms.TypeBinary
	}
}
