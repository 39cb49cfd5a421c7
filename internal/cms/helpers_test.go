package cms_test

import (
	"testing"

	"vfs-go/internal/cms"
	"vfs-go/internal/testutil"
)

// create adds a resource and releases the creator's lock so it can be published.
func create(t *testing.T, env *testutil.Env, rc *cms.RequestContext, path string, typeID int, content string) *cms.Resource {
	t.Helper()
	var data []byte
	if !cms.IsFolderPath(path) {
		data = []byte(content)
	}
	res, err := env.Service.CreateResource(rc, path, typeID, data, nil)
	if err != nil {
		t.Fatalf("CreateResource(%s) error = %v", path, err)
	}
	if err := env.Service.UnlockResource(rc, path); err != nil {
		t.Fatalf("UnlockResource(%s) error = %v", path, err)
	}
	return res
}

// edit locks path, replaces its content and unlocks it again.
func edit(t *testing.T, env *testutil.Env, rc *cms.RequestContext, path, content string) {
	t.Helper()
	if err := env.Service.LockResource(rc, path, false); err != nil {
		t.Fatalf("LockResource(%s) error = %v", path, err)
	}
	if _, err := env.Service.WriteContent(rc, path, []byte(content)); err != nil {
		t.Fatalf("WriteContent(%s) error = %v", path, err)
	}
	if err := env.Service.UnlockResource(rc, path); err != nil {
		t.Fatalf("UnlockResource(%s) error = %v", path, err)
	}
}

// remove locks path, marks it deleted and unlocks it again.
func remove(t *testing.T, env *testutil.Env, rc *cms.RequestContext, path string) {
	t.Helper()
	if err := env.Service.LockResource(rc, path, false); err != nil {
		t.Fatalf("LockResource(%s) error = %v", path, err)
	}
	if err := env.Service.DeleteResource(rc, path); err != nil {
		t.Fatalf("DeleteResource(%s) error = %v", path, err)
	}
	if err := env.Service.UnlockResource(rc, path); err != nil {
		t.Fatalf("UnlockResource(%s) error = %v", path, err)
	}
}

func publish(t *testing.T, env *testutil.Env, rc *cms.RequestContext) *cms.PublishResult {
	t.Helper()
	result, err := env.Service.PublishProject(rc, nil)
	if err != nil {
		t.Fatalf("PublishProject() error = %v", err)
	}
	return result
}

func onlineContext(t *testing.T, env *testutil.Env) *cms.RequestContext {
	t.Helper()
	user, err := env.Service.Login("Admin")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return cms.NewRequestContext(user, &cms.Project{ID: cms.OnlineProjectID, Name: "Online"}, "")
}

func newEditor(t *testing.T, env *testutil.Env, admin *cms.RequestContext, groups ...string) *cms.RequestContext {
	t.Helper()
	if _, err := env.Service.CreateUser(admin, "editor", false, groups...); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return env.ContextFor(t, "editor", testutil.OfflineProjectID)
}

func names(resources []*cms.Resource) []string {
	out := make([]string, len(resources))
	for i, r := range resources {
		out[i] = r.Name
	}
	return out
}

func assertStrings(t *testing.T, what string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", what, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s[%d] = %q, want %q", what, i, got[i], want[i])
		}
	}
}
