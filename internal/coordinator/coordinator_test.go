package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/selector"
	"github.com/DeusData/symtab-snapshot/internal/store"
)

// memUpserter assigns ids by key and records the kinds in call order.
type memUpserter struct {
	next  int64
	ids   map[string]int64
	rows  map[string]*entity.Record
	calls []entity.Kind
	fail  map[string]error
}

func newMemUpserter() *memUpserter {
	return &memUpserter{ids: map[string]int64{}, rows: map[string]*entity.Record{}, fail: map[string]error{}}
}

func (m *memUpserter) UpsertByKey(_ context.Context, kind entity.Kind, recs []*entity.Record, _ int) ([]store.UpsertResult, error) {
	m.calls = append(m.calls, kind)
	out := make([]store.UpsertResult, len(recs))
	for i, r := range recs {
		out[i].Key = r.Key
		if err := m.fail[r.Key]; err != nil {
			out[i].Err = err
			continue
		}
		id, ok := m.ids[r.Key]
		if !ok {
			m.next++
			id = m.next
			m.ids[r.Key] = id
		}
		cp := *r
		m.rows[r.Key] = &cp
		out[i].ID = id
		out[i].Success = true
	}
	return out, nil
}

func rec(kind entity.Kind, key string, fields map[string]any) *entity.Record {
	r := entity.New(kind, key, fields)
	r.Key = key
	return r
}

func TestRegisterUpsertMergesDuplicateKeys(t *testing.T) {
	c := New(newMemUpserter(), 0)

	_, err := c.RegisterUpsert(rec(entity.KindClass, "k", map[string]any{"a": 1}))
	require.NoError(t, err)
	merged, err := c.RegisterUpsert(rec(entity.KindClass, "k", map[string]any{"b": 2}))
	require.NoError(t, err)

	staged := c.Staged(entity.KindClass)
	require.Len(t, staged, 1)
	assert.Same(t, merged, staged[0])
	assert.Equal(t, 1, merged.Fields["a"])
	assert.Equal(t, 2, merged.Fields["b"])
}

func TestRegisterUpsertTruncatesName(t *testing.T) {
	c := New(newMemUpserter(), 0)
	long := rec(entity.KindMethod, "m", nil)
	long.Name = "a123456789b123456789c123456789d123456789e123456789f123456789g123456789h123456789i123456789"

	got, err := c.RegisterUpsert(long)
	require.NoError(t, err)
	assert.Len(t, got.Name, entity.MaxNameLength)
}

func TestRegisterUpsertRequiresKey(t *testing.T) {
	c := New(newMemUpserter(), 0)
	_, err := c.RegisterUpsert(entity.New(entity.KindClass, "Foo", nil))
	assert.ErrorIs(t, err, ErrMissingContentKey)
}

func TestRegisterRelationshipRejectsNilTarget(t *testing.T) {
	c := New(newMemUpserter(), 0)
	err := c.RegisterRelationship(rec(entity.KindMethod, "m", nil), entity.FieldClass, nil)
	assert.ErrorIs(t, err, ErrUnresolvedRelationshipTarget)
}

func TestCommitOrderAndRelationships(t *testing.T) {
	up := newMemUpserter()
	c := New(up, 10)
	ctx := context.Background()

	snap, err := c.RegisterSnapshot(rec(entity.KindSnapshot, "Snapshot:1", map[string]any{entity.FieldOrgID: "org"}))
	require.NoError(t, err)
	// register in reverse dependency order; commit still sorts them
	m, err := c.RegisterUpsert(rec(entity.KindMethod, "1:Method:1", nil))
	require.NoError(t, err)
	cls, err := c.RegisterUpsert(rec(entity.KindClass, "1:ApexClass:1", nil))
	require.NoError(t, err)
	require.NoError(t, c.RegisterRelationship(m, entity.FieldClass, cls))
	require.NoError(t, c.RegisterRelationship(m, entity.FieldSnapshot, snap))
	require.NoError(t, c.RegisterRelationship(cls, entity.FieldSnapshot, snap))

	require.NoError(t, c.Commit(ctx))

	assert.Equal(t, []entity.Kind{entity.KindSnapshot, entity.KindClass, entity.KindMethod}, up.calls)
	assert.NotZero(t, c.SnapshotID())
	assert.NotZero(t, cls.ID)

	stored := up.rows["1:Method:1"]
	assert.Equal(t, cls.ID, stored.Ref(entity.FieldClass))
	assert.Equal(t, c.SnapshotID(), stored.Ref(entity.FieldSnapshot))

	records, rels := c.Pending()
	assert.Zero(t, records)
	assert.Zero(t, rels)
}

func TestCommitResolvesMergedSource(t *testing.T) {
	up := newMemUpserter()
	c := New(up, 10)
	ctx := context.Background()

	cls, err := c.RegisterUpsert(rec(entity.KindClass, "c", nil))
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))
	c.Clear()

	first, err := c.RegisterUpsert(rec(entity.KindMethod, "m", map[string]any{"x": 1}))
	require.NoError(t, err)
	require.NoError(t, c.RegisterRelationship(first, entity.FieldClass, cls))
	// a second registration replaces the staged pointer
	_, err = c.RegisterUpsert(rec(entity.KindMethod, "m", map[string]any{"y": 2}))
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))

	stored := up.rows["m"]
	assert.Equal(t, cls.ID, stored.Ref(entity.FieldClass))
	assert.Equal(t, 1, stored.Fields["x"])
	assert.Equal(t, 2, stored.Fields["y"])
}

func TestCommitFailsOnUncommittedTarget(t *testing.T) {
	c := New(newMemUpserter(), 10)
	target := rec(entity.KindClass, "never-committed", nil)
	src, err := c.RegisterUpsert(rec(entity.KindMethod, "m", nil))
	require.NoError(t, err)
	require.NoError(t, c.RegisterRelationship(src, entity.FieldClass, target))

	err = c.Commit(context.Background())
	assert.ErrorIs(t, err, ErrUnresolvedRelationshipTarget)
}

func TestCommitAbortsOnFirstFailure(t *testing.T) {
	up := newMemUpserter()
	boom := errors.New("FIELD_INTEGRITY_EXCEPTION")
	up.fail["bad"] = boom
	c := New(up, 10)

	_, err := c.RegisterUpsert(rec(entity.KindClass, "good", nil))
	require.NoError(t, err)
	_, err = c.RegisterUpsert(rec(entity.KindClass, "bad", nil))
	require.NoError(t, err)
	_, err = c.RegisterUpsert(rec(entity.KindMethod, "m", nil))
	require.NoError(t, err)

	err = c.Commit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpsertBatchFailure)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad")
	// methods were never attempted
	assert.Equal(t, []entity.Kind{entity.KindClass}, up.calls)
}

func TestRegisterSnapshotCarriesFieldsAcrossClear(t *testing.T) {
	up := newMemUpserter()
	c := New(up, 10)
	ctx := context.Background()

	_, err := c.RegisterSnapshot(rec(entity.KindSnapshot, "Snapshot:x", map[string]any{entity.FieldOrgID: "org"}))
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))
	id := c.SnapshotID()
	c.Clear()

	promote := entity.New(entity.KindSnapshot, "", map[string]any{entity.FieldIsLatest: true})
	promote.Key = "Snapshot:x"
	_, err = c.RegisterSnapshot(promote)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx))

	assert.Equal(t, id, c.SnapshotID())
	stored := up.rows["Snapshot:x"]
	assert.Equal(t, "org", stored.String(entity.FieldOrgID))
	assert.True(t, stored.Bool(entity.FieldIsLatest))
}

func TestRunCacheRefresh(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	defer st.Close()

	put := func(key string) {
		r := rec(entity.KindClass, key, map[string]any{entity.FieldSnapshot: int64(9)})
		_, err := st.UpsertByKey(ctx, entity.KindClass, []*entity.Record{r}, 10)
		require.NoError(t, err)
	}
	put("a")

	cache := NewRunCache(selector.New(st, 1), "org", 9)
	recs, err := cache.Entities(ctx, entity.KindClass)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Same(t, recs[0], cache.ByID(recs[0].ID))

	put("b")
	recs, err = cache.Entities(ctx, entity.KindClass)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "served from cache until refreshed")

	require.NoError(t, cache.Refresh(ctx, entity.KindClass))
	recs, err = cache.Entities(ctx, entity.KindClass)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	jobs, err := cache.ScheduledJobClassIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
