package database

import (
	"path/filepath"
	"testing"
	"time"

	"vfs-go/internal/cms"
)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newFile(structureID, resourceID, path, content string) *cms.Resource {
	r := &cms.Resource{
		StructureID:         structureID,
		ResourceID:          resourceID,
		ParentID:            "root",
		Name:                path,
		Type:                cms.TypePlain,
		Flags:               cms.DefaultAccessFlags,
		OwnerID:             "admin",
		ProjectID:           2,
		State:               cms.StateNew,
		DateCreated:         testTime,
		DateLastModified:    testTime,
		ContentLastModified: testTime,
	}
	r.SetContent([]byte(content))
	return r
}

func newFolder(structureID, path string) *cms.Resource {
	return &cms.Resource{
		StructureID:         structureID,
		ResourceID:          structureID,
		ParentID:            "root",
		Name:                path,
		Type:                cms.TypeFolder,
		Flags:               cms.DefaultAccessFlags,
		ProjectID:           2,
		State:               cms.StateNew,
		DateCreated:         testTime,
		DateLastModified:    testTime,
		ContentLastModified: testTime,
	}
}

func mustWrite(t *testing.T, db *SQLiteDatabase, view cms.View, r *cms.Resource) {
	t.Helper()
	if err := db.WriteResource(view, r); err != nil {
		t.Fatalf("WriteResource(%s) error = %v", r.Name, err)
	}
}

func TestSQLiteDatabase_ReadResource(t *testing.T) {
	t.Run("returns nil when resource not found", func(t *testing.T) {
		db := newTestDB(t)

		r, err := db.ReadResource(cms.ViewOffline, "/missing.txt")
		if err != nil {
			t.Fatalf("ReadResource() error = %v", err)
		}
		if r != nil {
			t.Errorf("ReadResource() = %v, want nil", r)
		}
	})

	t.Run("root folder exists in both views", func(t *testing.T) {
		db := newTestDB(t)

		for _, view := range []cms.View{cms.ViewOffline, cms.ViewOnline} {
			r, err := db.ReadResource(view, "/")
			if err != nil {
				t.Fatalf("ReadResource(%s, /) error = %v", view, err)
			}
			if r == nil || !r.IsFolder() {
				t.Fatalf("ReadResource(%s, /) = %v, want root folder", view, r)
			}
		}
	})

	t.Run("round trips fields and content", func(t *testing.T) {
		db := newTestDB(t)
		want := newFile("s1", "r1", "/a.txt", "hello")
		want.Touched = true
		want.BodyResourceID = "body"
		mustWrite(t, db, cms.ViewOffline, want)

		got, err := db.ReadResource(cms.ViewOffline, "/a.txt")
		if err != nil {
			t.Fatalf("ReadResource() error = %v", err)
		}
		if got == nil {
			t.Fatal("ReadResource() returned nil")
		}
		if got.StructureID != "s1" || got.ResourceID != "r1" {
			t.Errorf("ids = %s/%s, want s1/r1", got.StructureID, got.ResourceID)
		}
		if string(got.Content) != "hello" || got.Size != 5 {
			t.Errorf("content = %q (size %d), want hello (5)", got.Content, got.Size)
		}
		if got.State != cms.StateNew {
			t.Errorf("State = %v, want new", got.State)
		}
		if !got.DateLastModified.Equal(testTime) {
			t.Errorf("DateLastModified = %v, want %v", got.DateLastModified, testTime)
		}
		if !got.Touched || got.BodyResourceID != "body" {
			t.Errorf("Touched = %v, BodyResourceID = %q", got.Touched, got.BodyResourceID)
		}

		other, err := db.ReadResource(cms.ViewOnline, "/a.txt")
		if err != nil {
			t.Fatalf("ReadResource(online) error = %v", err)
		}
		if other != nil {
			t.Error("offline write leaked into the online view")
		}
	})

	t.Run("metadata update keeps content when Content is nil", func(t *testing.T) {
		db := newTestDB(t)
		mustWrite(t, db, cms.ViewOffline, newFile("s1", "r1", "/a.txt", "hello"))

		update := newFile("s1", "r1", "/a.txt", "")
		update.Content = nil
		update.Size = 5
		update.State = cms.StateChanged
		mustWrite(t, db, cms.ViewOffline, update)

		got, _ := db.ReadResourceByID(cms.ViewOffline, "s1")
		if string(got.Content) != "hello" {
			t.Errorf("content = %q, want hello", got.Content)
		}
		if got.State != cms.StateChanged {
			t.Errorf("State = %v, want changed", got.State)
		}
	})
}

func TestSQLiteDatabase_Tree(t *testing.T) {
	db := newTestDB(t)
	mustWrite(t, db, cms.ViewOffline, newFolder("f1", "/docs/"))
	a := newFile("s1", "r1", "/docs/a.txt", "a")
	a.ParentID = "f1"
	mustWrite(t, db, cms.ViewOffline, a)
	sub := newFolder("f2", "/docs/sub/")
	sub.ParentID = "f1"
	mustWrite(t, db, cms.ViewOffline, sub)
	b := newFile("s2", "r2", "/docs/sub/b.txt", "b")
	b.ParentID = "f2"
	mustWrite(t, db, cms.ViewOffline, b)
	mustWrite(t, db, cms.ViewOffline, newFile("s3", "r3", "/docs_other.txt", "x"))

	t.Run("children", func(t *testing.T) {
		children, err := db.ReadChildren(cms.ViewOffline, "/docs/")
		if err != nil {
			t.Fatalf("ReadChildren() error = %v", err)
		}
		if len(children) != 2 {
			t.Fatalf("len(children) = %d, want 2", len(children))
		}
		if children[0].Name != "/docs/a.txt" || children[1].Name != "/docs/sub/" {
			t.Errorf("children = %s, %s", children[0].Name, children[1].Name)
		}
		if children[0].Content != nil {
			t.Error("ReadChildren() should not load content")
		}
	})

	t.Run("subtree of folder", func(t *testing.T) {
		subtree, err := db.ReadSubtree(cms.ViewOffline, "/docs/")
		if err != nil {
			t.Fatalf("ReadSubtree() error = %v", err)
		}
		var names []string
		for _, r := range subtree {
			names = append(names, r.Name)
		}
		want := []string{"/docs/", "/docs/a.txt", "/docs/sub/", "/docs/sub/b.txt"}
		if len(names) != len(want) {
			t.Fatalf("subtree = %v, want %v", names, want)
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("subtree[%d] = %s, want %s", i, names[i], want[i])
			}
		}
	})

	t.Run("subtree of file is the file", func(t *testing.T) {
		subtree, err := db.ReadSubtree(cms.ViewOffline, "/docs/a.txt")
		if err != nil {
			t.Fatalf("ReadSubtree() error = %v", err)
		}
		if len(subtree) != 1 || subtree[0].Name != "/docs/a.txt" {
			t.Errorf("subtree = %v, want only /docs/a.txt", subtree)
		}
	})
}

func TestSQLiteDatabase_Siblings(t *testing.T) {
	db := newTestDB(t)
	mustWrite(t, db, cms.ViewOffline, newFile("s1", "r1", "/a.txt", "shared"))
	sib := newFile("s2", "r1", "/b.txt", "")
	sib.Content = nil
	mustWrite(t, db, cms.ViewOffline, sib)

	siblings, err := db.ReadSiblings(cms.ViewOffline, "r1")
	if err != nil {
		t.Fatalf("ReadSiblings() error = %v", err)
	}
	if len(siblings) != 2 {
		t.Fatalf("len(siblings) = %d, want 2", len(siblings))
	}

	got, _ := db.ReadResource(cms.ViewOffline, "/b.txt")
	if string(got.Content) != "shared" {
		t.Errorf("sibling content = %q, want shared", got.Content)
	}

	t.Run("deleting one sibling keeps shared content", func(t *testing.T) {
		if err := db.DeleteResource(cms.ViewOffline, "s1"); err != nil {
			t.Fatalf("DeleteResource() error = %v", err)
		}
		got, _ := db.ReadResource(cms.ViewOffline, "/b.txt")
		if got == nil || string(got.Content) != "shared" {
			t.Errorf("remaining sibling = %v, want shared content", got)
		}
	})

	t.Run("deleting last sibling removes shared records", func(t *testing.T) {
		if err := db.WriteProperties(cms.ViewOffline, "r1", map[string]string{"title": "x"}); err != nil {
			t.Fatalf("WriteProperties() error = %v", err)
		}
		if err := db.DeleteResource(cms.ViewOffline, "s2"); err != nil {
			t.Fatalf("DeleteResource() error = %v", err)
		}
		props, err := db.ReadProperties(cms.ViewOffline, "r1")
		if err != nil {
			t.Fatalf("ReadProperties() error = %v", err)
		}
		if len(props) != 0 {
			t.Errorf("properties = %v, want none", props)
		}
	})
}

func TestSQLiteDatabase_PropertiesAndLinks(t *testing.T) {
	db := newTestDB(t)
	mustWrite(t, db, cms.ViewOffline, newFile("s1", "r1", "/a.txt", "a"))

	if err := db.WriteProperties(cms.ViewOffline, "r1", map[string]string{"title": "A", "lang": "en"}); err != nil {
		t.Fatalf("WriteProperties() error = %v", err)
	}
	if err := db.WriteProperties(cms.ViewOffline, "r1", map[string]string{"title": "B"}); err != nil {
		t.Fatalf("WriteProperties() error = %v", err)
	}
	props, _ := db.ReadProperties(cms.ViewOffline, "r1")
	if len(props) != 1 || props["title"] != "B" {
		t.Errorf("properties = %v, want only title=B", props)
	}

	if err := db.WriteLinks(cms.ViewOffline, "r1", []string{"/z.txt", "/b.txt", "/b.txt"}); err != nil {
		t.Fatalf("WriteLinks() error = %v", err)
	}
	links, _ := db.ReadLinks(cms.ViewOffline, "r1")
	if len(links) != 2 || links[0] != "/b.txt" || links[1] != "/z.txt" {
		t.Errorf("links = %v, want [/b.txt /z.txt]", links)
	}

	sources, err := db.ReadLinkSources(cms.ViewOffline, "/z.txt")
	if err != nil {
		t.Fatalf("ReadLinkSources() error = %v", err)
	}
	if len(sources) != 1 || sources[0] != "r1" {
		t.Errorf("sources = %v, want [r1]", sources)
	}
}

func TestSQLiteDatabase_CommitPublish(t *testing.T) {
	db := newTestDB(t)
	r := newFile("s1", "r1", "/a.txt", "v1")
	mustWrite(t, db, cms.ViewOffline, r)

	online := r.Clone()
	online.State = cms.StateUnchanged
	online.ProjectID = cms.OnlineProjectID
	if err := db.CommitPublish(online, map[string]string{"title": "A"}); err != nil {
		t.Fatalf("CommitPublish() error = %v", err)
	}

	got, _ := db.ReadResource(cms.ViewOnline, "/a.txt")
	if got == nil || string(got.Content) != "v1" {
		t.Fatalf("online copy = %v, want content v1", got)
	}
	if got.State != cms.StateUnchanged {
		t.Errorf("online State = %v, want unchanged", got.State)
	}
	props, _ := db.ReadProperties(cms.ViewOnline, "r1")
	if props["title"] != "A" {
		t.Errorf("online properties = %v", props)
	}
	offline, _ := db.ReadResource(cms.ViewOffline, "/a.txt")
	if offline.State != cms.StateUnchanged {
		t.Errorf("offline State = %v, want unchanged", offline.State)
	}

	t.Run("deletion removes both views", func(t *testing.T) {
		if err := db.CommitDeletion("s1"); err != nil {
			t.Fatalf("CommitDeletion() error = %v", err)
		}
		for _, view := range []cms.View{cms.ViewOffline, cms.ViewOnline} {
			r, _ := db.ReadResource(view, "/a.txt")
			if r != nil {
				t.Errorf("%s copy still present after deletion", view)
			}
		}
	})
}

func TestSQLiteDatabase_Projects(t *testing.T) {
	db := newTestDB(t)

	p := &cms.Project{
		Name:           "Spring",
		OwnerID:        "admin",
		GroupID:        "users",
		ManagerGroupID: "projectmanagers",
		CreatedAt:      testTime,
		Resources:      []string{"/news/", "/about.html"},
	}
	if err := db.CreateProject(p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if p.ID <= 2 {
		t.Errorf("ID = %d, want an id after the seeded projects", p.ID)
	}

	got, err := db.ReadProject(p.ID)
	if err != nil {
		t.Fatalf("ReadProject() error = %v", err)
	}
	if got.Name != "Spring" || len(got.Resources) != 2 {
		t.Errorf("ReadProject() = %+v", got)
	}

	got.Flags = cms.ProjectArchive
	got.Resources = []string{"/news/"}
	if err := db.UpdateProject(got); err != nil {
		t.Fatalf("UpdateProject() error = %v", err)
	}
	got, _ = db.ReadProject(p.ID)
	if got.Flags != cms.ProjectArchive || len(got.Resources) != 1 {
		t.Errorf("after update = %+v", got)
	}

	all, err := db.ReadProjects()
	if err != nil {
		t.Fatalf("ReadProjects() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(ReadProjects()) = %d, want 3", len(all))
	}

	if err := db.DeleteProject(p.ID); err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}
	gone, _ := db.ReadProject(p.ID)
	if gone != nil {
		t.Error("project still present after delete")
	}
}

func TestSQLiteDatabase_Users(t *testing.T) {
	db := newTestDB(t)

	admin, err := db.ReadUserByName("Admin")
	if err != nil {
		t.Fatalf("ReadUserByName() error = %v", err)
	}
	if admin == nil || !admin.Admin || !admin.InGroup("administrators") {
		t.Fatalf("seeded admin = %+v", admin)
	}

	u := &cms.User{ID: "u1", Name: "editor", CurrentProjectID: 1}
	if err := db.CreateUser(u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := db.AddUserToGroup("u1", "users"); err != nil {
		t.Fatalf("AddUserToGroup() error = %v", err)
	}
	if err := db.AddUserToGroup("u1", "users"); err != nil {
		t.Errorf("AddUserToGroup() twice error = %v", err)
	}
	if err := db.UpdateUserProject("u1", 2); err != nil {
		t.Fatalf("UpdateUserProject() error = %v", err)
	}
	got, _ := db.ReadUser("u1")
	if got.CurrentProjectID != 2 || len(got.Groups) != 1 {
		t.Errorf("ReadUser() = %+v", got)
	}

	if err := db.CreateGroup(&cms.Group{ID: "editors", Name: "Editors"}); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	g, _ := db.ReadGroup("editors")
	if g == nil || g.Name != "Editors" {
		t.Errorf("ReadGroup() = %v", g)
	}
}

func TestSQLiteDatabase_Locks(t *testing.T) {
	db := newTestDB(t)

	l, err := db.ReadLock("r1")
	if err != nil || l != nil {
		t.Fatalf("ReadLock() = %v, %v; want nil, nil", l, err)
	}

	if err := db.WriteLock(&cms.Lock{ResourceID: "r1", UserID: "admin", ProjectID: 2, CreatedAt: testTime}); err != nil {
		t.Fatalf("WriteLock() error = %v", err)
	}
	if err := db.WriteLock(&cms.Lock{ResourceID: "r1", UserID: "u2", ProjectID: 3, CreatedAt: testTime}); err != nil {
		t.Fatalf("WriteLock() overwrite error = %v", err)
	}
	l, _ = db.ReadLock("r1")
	if l.UserID != "u2" || l.ProjectID != 3 {
		t.Errorf("ReadLock() = %+v, want u2 in project 3", l)
	}

	locks, _ := db.ReadLocks()
	if len(locks) != 1 {
		t.Errorf("len(ReadLocks()) = %d, want 1", len(locks))
	}
	if err := db.DeleteLock("r1"); err != nil {
		t.Fatalf("DeleteLock() error = %v", err)
	}
	if err := db.DeleteLock("r1"); err != nil {
		t.Errorf("DeleteLock() on unlocked error = %v", err)
	}
}

func TestSQLiteDatabase_Backups(t *testing.T) {
	db := newTestDB(t)

	v1, err := db.NextVersionID(testTime)
	if err != nil {
		t.Fatalf("NextVersionID() error = %v", err)
	}
	v2, _ := db.NextVersionID(testTime.Add(time.Hour))
	if v2 <= v1 {
		t.Errorf("version ids not increasing: %d then %d", v1, v2)
	}
	var created time.Time
	if err := db.db.QueryRow(`SELECT created_at FROM backup_versions WHERE id = ?`, v2).Scan(&created); err != nil {
		t.Fatalf("reading created_at: %v", err)
	}
	if !created.Equal(testTime.Add(time.Hour)) {
		t.Errorf("created_at = %v, want %v", created, testTime.Add(time.Hour))
	}
	max, _ := db.MaxVersionID()
	if max != v2 {
		t.Errorf("MaxVersionID() = %d, want %d", max, v2)
	}

	old := &cms.BackupResource{
		Resource:        *newFile("s1", "r1", "/a.txt", ""),
		VersionID:       v1,
		PublishedAt:     testTime.Add(-30 * 24 * time.Hour),
		OwnerName:       "Admin",
		Properties:      map[string]string{"title": "old"},
		ContentChecksum: "c1",
	}
	recent := &cms.BackupResource{
		Resource:        *newFile("s1", "r1", "/a.txt", ""),
		VersionID:       v2,
		PublishedAt:     testTime,
		ContentChecksum: "c2",
	}
	sharedOld := &cms.BackupResource{
		Resource:        *newFile("s2", "r2", "/b.txt", ""),
		VersionID:       v1,
		PublishedAt:     testTime.Add(-30 * 24 * time.Hour),
		ContentChecksum: "c2",
	}
	for _, b := range []*cms.BackupResource{old, sharedOld, recent} {
		if err := db.WriteBackup(b); err != nil {
			t.Fatalf("WriteBackup() error = %v", err)
		}
	}

	got, err := db.ReadBackup("/a.txt", v1)
	if err != nil {
		t.Fatalf("ReadBackup() error = %v", err)
	}
	if got.OwnerName != "Admin" || got.Properties["title"] != "old" || got.ContentChecksum != "c1" {
		t.Errorf("ReadBackup() = %+v", got)
	}

	all, _ := db.ReadBackups("/a.txt")
	if len(all) != 2 || all[0].VersionID != v2 {
		t.Errorf("ReadBackups() not newest first: %v", all)
	}

	byVersion, _ := db.ReadBackupsByVersion(v2)
	if len(byVersion) != 1 {
		t.Errorf("len(ReadBackupsByVersion()) = %d, want 1", len(byVersion))
	}

	oldest, orphaned, err := db.DeleteBackupsBefore(testTime.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("DeleteBackupsBefore() error = %v", err)
	}
	if oldest != v2 {
		t.Errorf("oldest remaining = %d, want %d", oldest, v2)
	}
	if len(orphaned) != 1 || orphaned[0] != "c1" {
		t.Errorf("orphaned = %v, want [c1]", orphaned)
	}
	if b, _ := db.ReadBackup("/b.txt", v1); b != nil {
		t.Error("pruned row still readable")
	}
}

func TestSQLiteDatabase_PublishRecords(t *testing.T) {
	db := newTestDB(t)
	v, _ := db.NextVersionID(testTime)

	rec := &cms.PublishRecord{VersionID: v, ProjectID: 2, ProjectName: "Offline", UserID: "admin", StartedAt: testTime, Status: cms.PublishRunning}
	if err := db.CreatePublishRecord(rec); err != nil {
		t.Fatalf("CreatePublishRecord() error = %v", err)
	}
	rec.FinishedAt = testTime.Add(time.Second)
	rec.NewCount = 3
	rec.Status = cms.PublishSuccess
	if err := db.FinishPublishRecord(rec); err != nil {
		t.Fatalf("FinishPublishRecord() error = %v", err)
	}

	records, err := db.ListPublishRecords(10)
	if err != nil {
		t.Fatalf("ListPublishRecords() error = %v", err)
	}
	if len(records) != 1 || records[0].NewCount != 3 || records[0].Status != cms.PublishSuccess {
		t.Errorf("ListPublishRecords() = %+v", records)
	}
}

func TestSQLiteDatabase_Operations(t *testing.T) {
	db := newTestDB(t)

	op, err := db.CreateOperation("Publish", "project=2")
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if op.ID == 0 {
		t.Error("operation ID is zero")
	}
	if err := db.FinishOperation(op.ID, "success"); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}

	ops, _ := db.ListOperations(5)
	if len(ops) != 1 || ops[0].Status != "success" || ops[0].FinishedAt == nil {
		t.Errorf("ListOperations() = %+v", ops)
	}
	max, _ := db.MaxOperationID()
	if max != op.ID {
		t.Errorf("MaxOperationID() = %d, want %d", max, op.ID)
	}
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	db := newTestDB(t)
	mustWrite(t, db, cms.ViewOffline, newFile("s1", "r1", "/a.txt", "a"))

	dest := filepath.Join(t.TempDir(), "copy.db")
	if err := db.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	copyDB, err := NewSQLiteDatabase(dest)
	if err != nil {
		t.Fatalf("opening backup copy: %v", err)
	}
	defer copyDB.Close()

	r, _ := copyDB.ReadResource(cms.ViewOffline, "/a.txt")
	if r == nil {
		t.Error("backup copy is missing /a.txt")
	}
}
