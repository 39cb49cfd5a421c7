package output

import (
	"sort"
	"strings"

	"github.com/disiqueira/gotree/v3"

	"vfs-go/internal/cms"
)

// ProjectTree renders the resources of a project view as a folder tree,
// each entry prefixed with its state marker. Folders that are not part of
// the view themselves are shown without a marker.
type ProjectTree struct {
	tree    gotree.Tree
	folders map[string]gotree.Tree
	count   int
}

// NewProjectTree creates an empty tree whose root is labeled rootLabel.
func NewProjectTree(rootLabel string) *ProjectTree {
	root := gotree.New(rootLabel)
	return &ProjectTree{
		tree:    root,
		folders: map[string]gotree.Tree{cms.RootPath: root},
	}
}

// AddAll inserts resources in path order so parents precede their children.
func (t *ProjectTree) AddAll(resources []*cms.Resource) {
	sorted := append([]*cms.Resource(nil), resources...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, r := range sorted {
		t.Add(r)
	}
}

// Add inserts one resource.
func (t *ProjectTree) Add(r *cms.Resource) {
	if r.Name == cms.RootPath {
		return
	}
	t.count++
	label := StateMarker(r.State) + " " + r.BaseName()

	parent := t.folder(r.ParentPath())
	if r.IsFolder() {
		if _, ok := t.folders[r.Name]; ok {
			return
		}
		t.folders[r.Name] = parent.Add(label)
		return
	}
	parent.Add(label)
}

// folder returns the node for a folder path, creating unmarked nodes for
// any missing ancestors.
func (t *ProjectTree) folder(p string) gotree.Tree {
	if node, ok := t.folders[p]; ok {
		return node
	}
	parent := t.folder(cms.ParentPath(p))
	name := strings.TrimSuffix(p[len(cms.ParentPath(p)):], cms.PathSeparator)
	node := parent.Add("  " + name + cms.PathSeparator)
	t.folders[p] = node
	return node
}

// Len returns the number of resources added.
func (t *ProjectTree) Len() int { return t.count }

// Render returns the printable tree.
func (t *ProjectTree) Render() string {
	return t.tree.Print()
}
