package feed

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/symtab-snapshot/internal/selector"
	"github.com/DeusData/symtab-snapshot/internal/store"
	"github.com/DeusData/symtab-snapshot/internal/symtab"
)

const fooClass = `{
  "id": "01p000000000001",
  "kind": "class",
  "displayName": "Foo",
  "symbolTable": {
    "name": "Foo",
    "namespace": "",
    "methods": [{"name": "run", "returnType": "void", "parameters": [], "location": {"line": 3, "column": 17}}]
  }
}`

const barClass = `{"id": "01p000000000002", "kind": "class", "displayName": "Bar", "symbolTable": null}`

const accountTrigger = `{
  "id": "01q000000000001",
  "kind": "trigger",
  "displayName": "AccountTrigger",
  "status": "Active",
  "symbolTable": {"name": "AccountTrigger"}
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func bundleDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ClassesDir, "Foo.json"), fooClass)
	writeFile(t, filepath.Join(dir, ClassesDir, "Bar.json"), barClass)
	writeFile(t, filepath.Join(dir, ClassesDir, "README.txt"), "ignored")
	writeFile(t, filepath.Join(dir, TriggersDir, "AccountTrigger.json"), accountTrigger)
	writeFile(t, filepath.Join(dir, JobsFile), `jobs:
  - id: 08e000000000001
    class_id: 01p000000000001
    status: Queued
`)
	writeFile(t, filepath.Join(dir, ContainerFile), "id: c-1\norg_id: org-1\n")
	return dir
}

func TestLoadDir(t *testing.T) {
	b, err := LoadDir(context.Background(), bundleDir(t), Options{})
	require.NoError(t, err)

	assert.Equal(t, "c-1", b.Container.ID)
	assert.Equal(t, "org-1", b.Container.OrgID)
	require.Len(t, b.Members, 3)

	classes, triggers := b.Counts()
	assert.Equal(t, 2, classes)
	assert.Equal(t, 1, triggers)

	// files are read in sorted order within each directory
	assert.Equal(t, "Bar", b.Members[0].DisplayName)
	assert.Nil(t, b.Members[0].SymbolTable)
	assert.Empty(t, b.Members[0].Digest)
	assert.Equal(t, "Foo", b.Members[1].DisplayName)
	require.NotNil(t, b.Members[1].SymbolTable)
	assert.Len(t, b.Members[1].SymbolTable.Methods, 1)
	assert.Len(t, b.Members[1].Digest, 16)
	assert.Equal(t, symtab.MemberTrigger, b.Members[2].Kind)

	require.Len(t, b.Jobs, 1)
	assert.Equal(t, "01p000000000001", b.Jobs[0].ClassID)
}

func TestLoadDirOptionsOverrideManifest(t *testing.T) {
	b, err := LoadDir(context.Background(), bundleDir(t), Options{ContainerID: "c-2", Namespace: "acme"})
	require.NoError(t, err)
	assert.Equal(t, "c-2", b.Container.ID)
	assert.Equal(t, "org-1", b.Container.OrgID)
	assert.Equal(t, "acme", b.Container.Namespace)
}

func TestLoadDirRejectsInvalidMember(t *testing.T) {
	dir := bundleDir(t)
	writeFile(t, filepath.Join(dir, ClassesDir, "Broken.json"), `{"kind": "class", "displayName": "Broken"}`)

	_, err := LoadDir(context.Background(), dir, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken.json")
}

func TestLoadDirRejectsMisplacedMember(t *testing.T) {
	dir := bundleDir(t)
	writeFile(t, filepath.Join(dir, TriggersDir, "Foo.json"), fooClass)

	_, err := LoadDir(context.Background(), dir, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class member in trigger directory")
}

func TestDigestStable(t *testing.T) {
	a, err := decodeMember([]byte(fooClass))
	require.NoError(t, err)
	b, err := decodeMember([]byte(fooClass))
	require.NoError(t, err)
	assert.Equal(t, a.Digest, b.Digest)

	c, err := decodeMember([]byte(strings.Replace(fooClass, `"line": 3`, `"line": 4`, 1)))
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest, c.Digest)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	defer st.Close()

	b, err := LoadDir(ctx, bundleDir(t), Options{})
	require.NoError(t, err)
	id, err := Import(ctx, st, b)
	require.NoError(t, err)
	assert.Equal(t, "c-1", id)

	n, err := st.CountMembers(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	sel := selector.New(st, 10)
	ids, err := sel.ScheduledJobClassIDs(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, ids["01p000000000001"])

	// importing again replaces rather than duplicates
	_, err = Import(ctx, st, b)
	require.NoError(t, err)
	n, err = st.CountMembers(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestImportRequiresOrg(t *testing.T) {
	st, err := store.OpenMemory()
	require.NoError(t, err)
	defer st.Close()

	_, err = Import(context.Background(), st, &Bundle{Container: selector.Container{ID: "c"}})
	assert.ErrorContains(t, err, "org id")
}

func TestLoadSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("sqlite3 driver unavailable: %v", err)
	}
	_, err = db.Exec(`
		CREATE TABLE members (id TEXT, kind TEXT, display_name TEXT, namespace TEXT, status TEXT, symbol_table TEXT);
		CREATE TABLE scheduled_jobs (id TEXT, class_id TEXT, status TEXT);
		INSERT INTO members VALUES ('01p1', 'class', 'Foo', NULL, NULL, '{"name": "Foo"}');
		INSERT INTO members VALUES ('01p2', 'class', 'Bar', NULL, NULL, NULL);
		INSERT INTO members VALUES ('01q1', 'trigger', 'T', NULL, 'Inactive', '{"name": "T"}');
		INSERT INTO scheduled_jobs VALUES ('08e1', '01p1', 'Queued');
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = LoadSQLite(context.Background(), path, Options{})
	require.Error(t, err)

	b, err := LoadSQLite(context.Background(), path, Options{ContainerID: "c", OrgID: "o"})
	require.NoError(t, err)
	require.Len(t, b.Members, 3)
	assert.Equal(t, "Foo", b.Members[0].SymbolTable.Name)
	assert.NotEmpty(t, b.Members[0].Digest)
	assert.Nil(t, b.Members[1].SymbolTable)
	assert.Equal(t, "Inactive", b.Members[2].Status)
	require.Len(t, b.Jobs, 1)
	assert.Equal(t, "c", b.Container.ID)
}
