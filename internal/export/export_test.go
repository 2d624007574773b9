package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/store"
)

func seed(t *testing.T) (*store.Store, int64) {
	t.Helper()
	ctx := context.Background()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	snap := entity.New(entity.KindSnapshot, "Snapshot run-1", map[string]any{entity.FieldOrgID: "org-1"})
	snap.Key = "Snapshot:run-1"
	res, err := s.UpsertByKey(ctx, entity.KindSnapshot, []*entity.Record{snap}, 0)
	require.NoError(t, err)
	require.True(t, res[0].Success)
	sid := res[0].ID

	var classes []*entity.Record
	for i, name := range []string{"Foo", "Bar"} {
		c := entity.New(entity.KindClass, name, map[string]any{
			entity.FieldSnapshot: sid,
			entity.FieldFullName: name,
		})
		c.Key = "1:ApexClass:" + string(rune('a'+i))
		classes = append(classes, c)
	}
	res, err = s.UpsertByKey(ctx, entity.KindClass, classes, 0)
	require.NoError(t, err)
	for _, r := range res {
		require.True(t, r.Success, r.Err)
	}
	return s, sid
}

func readLines(t *testing.T, path string) []*entity.Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var out []*entity.Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var l *entity.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		out = append(out, l)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestWriteFileSink(t *testing.T) {
	s, sid := seed(t)
	dir := t.TempDir()

	res, err := Write(context.Background(), s, FileSink{Dir: dir}, sid)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, filepath.Join(dir, "snapshots", ObjectName(sid)[len("snapshots/"):]), res.Location)

	lines := readLines(t, res.Location)
	require.Len(t, lines, 3)
	assert.Equal(t, entity.KindSnapshot, lines[0].Kind)
	assert.Equal(t, "org-1", lines[0].Fields[entity.FieldOrgID])
	assert.Equal(t, entity.KindClass, lines[1].Kind)
	assert.Equal(t, "Foo", lines[1].Name)
	assert.Equal(t, "Bar", lines[2].Name)

	entries, err := os.ReadDir(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestWriteUnknownSnapshot(t *testing.T) {
	s, _ := seed(t)
	_, err := Write(context.Background(), s, FileSink{Dir: t.TempDir()}, 999)
	assert.Error(t, err)
}

type failingSink struct{ aborted bool }

func (f *failingSink) Location(name string) string { return name }

func (f *failingSink) Create(context.Context, string) (Object, error) {
	return &failingObject{sink: f}, nil
}

type failingObject struct{ sink *failingSink }

func (o *failingObject) Write([]byte) (int, error) { return 0, errors.New("quota exceeded") }
func (o *failingObject) Commit() error             { return nil }
func (o *failingObject) Abort()                    { o.sink.aborted = true }

func TestWriteAbortsOnFailure(t *testing.T) {
	s, sid := seed(t)
	sink := &failingSink{}
	_, err := Write(context.Background(), s, sink, sid)
	require.Error(t, err)
	assert.True(t, sink.aborted)
}
