package cms_test

import (
	"errors"
	"testing"
	"time"

	"vfs-go/internal/cms"
	"vfs-go/internal/testutil"
)

func TestService_CreateResource(t *testing.T) {
	env := testutil.NewEnv(t)
	rc := env.AdminContext(t)

	folder, err := env.Service.CreateResource(rc, "/docs/", cms.TypeFolder, nil, nil)
	if err != nil {
		t.Fatalf("CreateResource(folder) error = %v", err)
	}
	if folder.State != cms.StateNew {
		t.Errorf("folder state = %s, want new", folder.State)
	}

	file, err := env.Service.CreateResource(rc, "/docs/readme.txt", cms.TypePlain, []byte("hello"), map[string]string{"title": "Readme"})
	if err != nil {
		t.Fatalf("CreateResource(file) error = %v", err)
	}
	if file.ParentID != folder.StructureID {
		t.Errorf("ParentID = %s, want %s", file.ParentID, folder.StructureID)
	}
	if file.Size != 5 || file.OwnerID != cms.AdminUserID || file.ProjectID != testutil.OfflineProjectID {
		t.Errorf("created file = %+v", file)
	}

	t.Run("locked by creator", func(t *testing.T) {
		l, err := env.Service.LockedBy(rc, "/docs/readme.txt")
		if err != nil {
			t.Fatalf("LockedBy() error = %v", err)
		}
		if l.UserID != cms.AdminUserID || l.ProjectID != testutil.OfflineProjectID {
			t.Errorf("LockedBy() = %+v, want admin in project %d", l, testutil.OfflineProjectID)
		}
	})

	t.Run("read back", func(t *testing.T) {
		got, err := env.Service.ReadResource(rc, "/docs/readme.txt", false)
		if err != nil {
			t.Fatalf("ReadResource() error = %v", err)
		}
		if string(got.Content) != "hello" {
			t.Errorf("Content = %q, want %q", got.Content, "hello")
		}
		props, err := env.Service.ReadProperties(rc, "/docs/readme.txt")
		if err != nil {
			t.Fatalf("ReadProperties() error = %v", err)
		}
		if props["title"] != "Readme" {
			t.Errorf("properties = %v", props)
		}

		children, err := env.Service.ReadChildren(rc, "/docs/", false)
		if err != nil {
			t.Fatalf("ReadChildren() error = %v", err)
		}
		assertStrings(t, "children", names(children), []string{"/docs/readme.txt"})
	})

	t.Run("not visible online", func(t *testing.T) {
		_, err := env.Service.ReadResource(onlineContext(t, env), "/docs/readme.txt", false)
		if !errors.Is(err, cms.ErrNotFound) {
			t.Errorf("online ReadResource() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("children of a file", func(t *testing.T) {
		_, err := env.Service.ReadChildren(rc, "/docs/readme.txt", false)
		if !errors.Is(err, cms.ErrInconsistentState) {
			t.Errorf("ReadChildren(file) error = %v, want ErrInconsistentState", err)
		}
	})
}

func TestService_CreateResource_Errors(t *testing.T) {
	env := testutil.NewEnv(t)
	rc := env.AdminContext(t)
	create(t, env, rc, "/existing.txt", cms.TypePlain, "x")

	tests := []struct {
		name    string
		rc      *cms.RequestContext
		path    string
		typeID  int
		content string
		wantErr error
	}{
		{"online project", onlineContext(t, env), "/a.txt", cms.TypePlain, "", cms.ErrPermissionDenied},
		{"existing path", rc, "/existing.txt", cms.TypePlain, "", cms.ErrInconsistentState},
		{"missing parent", rc, "/nope/a.txt", cms.TypePlain, "", cms.ErrNotFound},
		{"parent path names a file", rc, "/existing.txt/a.txt", cms.TypePlain, "", cms.ErrNotFound},
		{"folder type on file path", rc, "/a.txt", cms.TypeFolder, "", cms.ErrInconsistentState},
		{"file type on folder path", rc, "/a/", cms.TypePlain, "", cms.ErrInconsistentState},
		{"legacy type", rc, "/a.txt", cms.TypeCompatiblePlain, "", cms.ErrPermissionDenied},
		{"unknown type", rc, "/a.txt", 42, "", cms.ErrNotFound},
		{"malformed xml", rc, "/a.xml", cms.TypeXMLPage, "<a>", cms.ErrInconsistentState},
		{"invalid path", rc, "/a//b.txt", cms.TypePlain, "", cms.ErrInconsistentState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Service.CreateResource(tt.rc, tt.path, tt.typeID, []byte(tt.content), nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateResource() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_WriteContent(t *testing.T) {
	env := testutil.NewEnv(t)
	rc := env.AdminContext(t)
	create(t, env, rc, "/docs/", cms.TypeFolder, "")
	create(t, env, rc, "/docs/a.txt", cms.TypePlain, "v1")

	t.Run("requires lock", func(t *testing.T) {
		_, err := env.Service.WriteContent(rc, "/docs/a.txt", []byte("v2"))
		var conflict *cms.LockConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("WriteContent() error = %v, want LockConflictError", err)
		}
		if conflict.Path != "/docs/a.txt" || conflict.HolderID != "" {
			t.Errorf("conflict = %+v", conflict)
		}
	})

	t.Run("new stays new", func(t *testing.T) {
		edit(t, env, rc, "/docs/a.txt", "v2")
		got, err := env.Service.ReadResource(rc, "/docs/a.txt", false)
		if err != nil {
			t.Fatalf("ReadResource() error = %v", err)
		}
		if got.State != cms.StateNew || string(got.Content) != "v2" || got.Size != 2 {
			t.Errorf("after write = %s %q size %d", got.State, got.Content, got.Size)
		}
	})

	t.Run("published becomes changed", func(t *testing.T) {
		publish(t, env, rc)
		edit(t, env, rc, "/docs/a.txt", "v3")
		got, err := env.Service.ReadResource(rc, "/docs/a.txt", false)
		if err != nil {
			t.Fatalf("ReadResource() error = %v", err)
		}
		if got.State != cms.StateChanged {
			t.Errorf("state = %s, want changed", got.State)
		}
		online, err := env.Service.ReadResource(onlineContext(t, env), "/docs/a.txt", false)
		if err != nil {
			t.Fatalf("online ReadResource() error = %v", err)
		}
		if string(online.Content) != "v2" {
			t.Errorf("online content = %q, want %q", online.Content, "v2")
		}
	})

	t.Run("folder has no content", func(t *testing.T) {
		if err := env.Service.LockResource(rc, "/docs/", false); err != nil {
			t.Fatalf("LockResource() error = %v", err)
		}
		_, err := env.Service.WriteContent(rc, "/docs/", []byte("x"))
		if !errors.Is(err, cms.ErrInconsistentState) {
			t.Errorf("WriteContent(folder) error = %v, want ErrInconsistentState", err)
		}
	})
}

func TestService_Properties(t *testing.T) {
	env := testutil.NewEnv(t)
	rc := env.AdminContext(t)
	if _, err := env.Service.CreateResource(rc, "/a.txt", cms.TypePlain, nil, map[string]string{"title": "A"}); err != nil {
		t.Fatalf("CreateResource() error = %v", err)
	}

	if err := env.Service.WriteProperty(rc, "/a.txt", "author", "jo"); err != nil {
		t.Fatalf("WriteProperty() error = %v", err)
	}
	if err := env.Service.WriteProperty(rc, "/a.txt", "title", ""); err != nil {
		t.Fatalf("WriteProperty(remove) error = %v", err)
	}

	props, err := env.Service.ReadProperties(rc, "/a.txt")
	if err != nil {
		t.Fatalf("ReadProperties() error = %v", err)
	}
	if len(props) != 1 || props["author"] != "jo" {
		t.Errorf("properties = %v, want only author=jo", props)
	}
}

func TestService_Touch(t *testing.T) {
	env := testutil.NewEnv(t)
	rc := env.AdminContext(t)
	if _, err := env.Service.CreateResource(rc, "/a.txt", cms.TypePlain, []byte("x"), nil); err != nil {
		t.Fatalf("CreateResource() error = %v", err)
	}

	ts := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := env.Service.Touch(rc, "/a.txt", ts); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	got, err := env.Service.ReadResource(rc, "/a.txt", false)
	if err != nil {
		t.Fatalf("ReadResource() error = %v", err)
	}
	if !got.Touched || !got.DateLastModified.Equal(ts) {
		t.Errorf("after touch = touched %v, modified %v", got.Touched, got.DateLastModified)
	}
	if !got.EffectiveLastModified().Equal(ts) {
		t.Errorf("EffectiveLastModified() = %v, want %v", got.EffectiveLastModified(), ts)
	}
}

func TestService_Links(t *testing.T) {
	env := testutil.NewEnv(t)
	rc := env.AdminContext(t)
	if _, err := env.Service.CreateResource(rc, "/a.txt", cms.TypePlain, nil, nil); err != nil {
		t.Fatalf("CreateResource() error = %v", err)
	}

	if err := env.Service.SetLinks(rc, "/a.txt", []string{"/z.txt", "/b.txt"}); err != nil {
		t.Fatalf("SetLinks() error = %v", err)
	}
	links, err := env.Service.ReadLinks(rc, "/a.txt")
	if err != nil {
		t.Fatalf("ReadLinks() error = %v", err)
	}
	assertStrings(t, "links", links, []string{"/b.txt", "/z.txt"})

	if err := env.Service.SetLinks(rc, "/a.txt", nil); err != nil {
		t.Fatalf("SetLinks(nil) error = %v", err)
	}
	links, err = env.Service.ReadLinks(rc, "/a.txt")
	if err != nil {
		t.Fatalf("ReadLinks() error = %v", err)
	}
	if len(links) != 0 {
		t.Errorf("links after clear = %v", links)
	}
}

func TestService_CreateSibling(t *testing.T) {
	env := testutil.NewEnv(t)
	rc := env.AdminContext(t)
	src, err := env.Service.CreateResource(rc, "/a.txt", cms.TypePlain, []byte("shared"), nil)
	if err != nil {
		t.Fatalf("CreateResource() error = %v", err)
	}

	sib, err := env.Service.CreateSibling(rc, "/a.txt", "/b.txt")
	if err != nil {
		t.Fatalf("CreateSibling() error = %v", err)
	}
	if sib.ResourceID != src.ResourceID || sib.StructureID == src.StructureID {
		t.Errorf("sibling ids = %s/%s, source %s/%s", sib.StructureID, sib.ResourceID, src.StructureID, src.ResourceID)
	}

	if _, err := env.Service.WriteContent(rc, "/a.txt", []byte("updated")); err != nil {
		t.Fatalf("WriteContent() error = %v", err)
	}
	got, err := env.Service.ReadResource(rc, "/b.txt", false)
	if err != nil {
		t.Fatalf("ReadResource(sibling) error = %v", err)
	}
	if string(got.Content) != "updated" {
		t.Errorf("sibling content = %q, want %q", got.Content, "updated")
	}

	t.Run("folders cannot have siblings", func(t *testing.T) {
		create(t, env, rc, "/docs/", cms.TypeFolder, "")
		_, err := env.Service.CreateSibling(rc, "/docs/", "/docs2/")
		if !errors.Is(err, cms.ErrInconsistentState) {
			t.Errorf("CreateSibling(folder) error = %v, want ErrInconsistentState", err)
		}
	})

	t.Run("undo keeps shared lock", func(t *testing.T) {
		if err := env.Service.UndoChanges(rc, "/b.txt"); err != nil {
			t.Fatalf("UndoChanges(sibling) error = %v", err)
		}
		l, err := env.Service.LockedBy(rc, "/a.txt")
		if err != nil {
			t.Fatalf("LockedBy() error = %v", err)
		}
		if l.IsNull() {
			t.Error("removing one sibling released the shared lock")
		}
	})
}
