package cms

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// Resource type ids.
const (
	TypeFolder          = 0
	TypePlain           = 1
	TypeBinary          = 2
	TypeImage           = 3
	TypePage            = 4
	TypeXMLPage         = 10
	TypeCompatiblePlain = 11
)

// Capability is the set of operations a resource type permits.
type Capability int

const (
	CapCreate Capability = 1 << iota
	CapCopy
	CapMove
	CapDelete
	CapLock
	CapRestore
)

// CapAll grants every capability.
const CapAll = CapCreate | CapCopy | CapMove | CapDelete | CapLock | CapRestore

func (c Capability) String() string {
	names := []string{"create", "copy", "move", "delete", "lock", "restore"}
	var out []string
	for i, n := range names {
		if c&(1<<i) != 0 {
			out = append(out, n)
		}
	}
	return strings.Join(out, "|")
}

// ResourceType is the policy governing one kind of resource.
type ResourceType interface {
	// ID is the type id stored on each resource.
	ID() int
	// Name is a short human-readable type name.
	Name() string
	// Capabilities lists the operations this type allows.
	Capabilities() Capability
	// IsFolderType reports whether resources of this type are folders.
	IsFolderType() bool
	// HasAuxiliary reports whether resources carry a paired body resource
	// that must follow them through lock, copy, move and delete.
	HasAuxiliary() bool
	// ValidateContent rejects content this type cannot hold.
	ValidateContent(content []byte) error
}

type baseType struct {
	id        int
	name      string
	caps      Capability
	folder    bool
	auxiliary bool
}

func (t baseType) ID() int                  { return t.id }
func (t baseType) Name() string             { return t.name }
func (t baseType) Capabilities() Capability { return t.caps }
func (t baseType) IsFolderType() bool       { return t.folder }
func (t baseType) HasAuxiliary() bool       { return t.auxiliary }

func (t baseType) ValidateContent(content []byte) error {
	if t.folder && len(content) > 0 {
		return errors.New("folders have no content")
	}
	return nil
}

type imageType struct{ baseType }

func (t imageType) ValidateContent(content []byte) error {
	if len(content) == 0 {
		return nil
	}
	if ct := http.DetectContentType(content); !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("content is %s, not an image", ct)
	}
	return nil
}

type xmlPageType struct{ baseType }

func (t xmlPageType) ValidateContent(content []byte) error {
	if len(content) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(content))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("malformed xml page: %w", err)
		}
	}
}

// TypeRegistry maps type ids to their policies. It is built once and read-only afterwards.
type TypeRegistry struct {
	types map[int]ResourceType
}

// NewTypeRegistry returns a registry holding the given types.
func NewTypeRegistry(types ...ResourceType) *TypeRegistry {
	r := &TypeRegistry{types: make(map[int]ResourceType, len(types))}
	for _, t := range types {
		r.types[t.ID()] = t
	}
	return r
}

// DefaultTypeRegistry returns the built-in resource types.
func DefaultTypeRegistry() *TypeRegistry {
	return NewTypeRegistry(
		baseType{id: TypeFolder, name: "folder", caps: CapAll, folder: true},
		baseType{id: TypePlain, name: "plain", caps: CapAll},
		baseType{id: TypeBinary, name: "binary", caps: CapAll},
		imageType{baseType{id: TypeImage, name: "image", caps: CapAll}},
		baseType{id: TypePage, name: "page", caps: CapAll, auxiliary: true},
		xmlPageType{baseType{id: TypeXMLPage, name: "xmlpage", caps: CapAll}},
		// Legacy content is kept readable and publishable but new instances are not created.
		baseType{id: TypeCompatiblePlain, name: "compatibleplain", caps: CapAll &^ CapCreate},
	)
}

// Get returns the type registered under id.
func (r *TypeRegistry) Get(id int) (ResourceType, error) {
	t, ok := r.types[id]
	if !ok {
		return nil, fmt.Errorf("resource type %d: %w", id, ErrNotFound)
	}
	return t, nil
}

// ByName looks a type up by its name.
func (r *TypeRegistry) ByName(name string) (ResourceType, error) {
	for _, t := range r.types {
		if t.Name() == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("resource type %q: %w", name, ErrNotFound)
}

// All returns the registered types ordered by id.
func (r *TypeRegistry) All() []ResourceType {
	out := make([]ResourceType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// require checks that the type of res allows op.
func (r *TypeRegistry) require(res *Resource, op Capability) (ResourceType, error) {
	t, err := r.Get(res.Type)
	if err != nil {
		return nil, err
	}
	if t.Capabilities()&op == 0 {
		return nil, denied("resource type %s does not support %s", t.Name(), op)
	}
	return t, nil
}
