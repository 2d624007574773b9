// Package coordinator stages entities and relationships for one snapshot run
// and persists them in dependency order.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/metrics"
	"github.com/DeusData/symtab-snapshot/internal/store"
)

var (
	ErrMissingContentKey            = errors.New("entity has no content key")
	ErrUnresolvedRelationshipTarget = errors.New("relationship target unresolved")
	ErrUpsertBatchFailure           = errors.New("upsert batch failure")
)

// DefaultChunkSize is the number of records sent per upsert statement.
const DefaultChunkSize = 50

// Upserter persists records of one kind by content key.
type Upserter interface {
	UpsertByKey(ctx context.Context, kind entity.Kind, recs []*entity.Record, chunkSize int) ([]store.UpsertResult, error)
}

// Relationship asks for Field on Source to hold Target's live id.
type Relationship struct {
	Source *entity.Record
	Field  string
	Target *entity.Record
}

type staging struct {
	order []string
	byKey map[string]*entity.Record
}

// Context is the staging area of one pipeline run. It is not safe for
// concurrent use.
type Context struct {
	up        Upserter
	chunkSize int

	snapshot *entity.Record
	staged   map[entity.Kind]*staging
	rels     []Relationship
	// live ids of every record committed through this context
	ids map[string]int64
}

// New creates an empty context writing through up.
func New(up Upserter, chunkSize int) *Context {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Context{
		up:        up,
		chunkSize: chunkSize,
		staged:    map[entity.Kind]*staging{},
		ids:       map[string]int64{},
	}
}

// Snapshot returns the run's snapshot record, or nil before RegisterSnapshot.
func (c *Context) Snapshot() *entity.Record { return c.snapshot }

// SnapshotID returns the live id of the snapshot, zero until committed.
func (c *Context) SnapshotID() int64 {
	if c.snapshot == nil {
		return 0
	}
	return c.snapshot.ID
}

// RegisterSnapshot stages the run's snapshot record and remembers it across
// Clear calls. Registering the same snapshot again stages an update carrying
// every field known so far.
func (c *Context) RegisterSnapshot(rec *entity.Record) (*entity.Record, error) {
	if rec.Kind != entity.KindSnapshot {
		return nil, fmt.Errorf("register snapshot: got %s record", rec.Kind)
	}
	if c.snapshot != nil && c.snapshot.Key == rec.Key && c.StagedByKey(entity.KindSnapshot, rec.Key) == nil {
		rec = entity.Merge(c.snapshot, rec)
	}
	staged, err := c.RegisterUpsert(rec)
	if err != nil {
		return nil, err
	}
	c.snapshot = staged
	return staged, nil
}

// RegisterUpsert stages rec for the next commit. A record whose key is
// already staged is merged into the staged one and the merged record is
// returned.
func (c *Context) RegisterUpsert(rec *entity.Record) (*entity.Record, error) {
	if rec == nil || rec.Key == "" {
		name := ""
		if rec != nil {
			name = rec.Name
		}
		return nil, fmt.Errorf("%w: %q", ErrMissingContentKey, name)
	}
	if !rec.Kind.Valid() {
		return nil, fmt.Errorf("register %s: invalid kind %d", rec.Key, rec.Kind)
	}
	rec.Name = entity.TruncateName(rec.Name)

	st := c.staged[rec.Kind]
	if st == nil {
		st = &staging{byKey: map[string]*entity.Record{}}
		c.staged[rec.Kind] = st
	}
	if old, ok := st.byKey[rec.Key]; ok {
		merged := entity.Merge(old, rec)
		st.byKey[rec.Key] = merged
		if c.snapshot != nil && c.snapshot.Key == rec.Key {
			c.snapshot = merged
		}
		return merged, nil
	}
	st.order = append(st.order, rec.Key)
	st.byKey[rec.Key] = rec
	return rec, nil
}

// RegisterRelationship stages a link from source to target through field.
func (c *Context) RegisterRelationship(source *entity.Record, field string, target *entity.Record) error {
	if target == nil {
		return fmt.Errorf("%w: %s.%s", ErrUnresolvedRelationshipTarget, keyOf(source), field)
	}
	if source == nil || source.Key == "" {
		return fmt.Errorf("%w: relationship source for %s", ErrMissingContentKey, field)
	}
	c.rels = append(c.rels, Relationship{Source: source, Field: field, Target: target})
	return nil
}

// Staged returns the records pending for kind, in registration order.
func (c *Context) Staged(kind entity.Kind) []*entity.Record {
	st := c.staged[kind]
	if st == nil {
		return nil
	}
	out := make([]*entity.Record, 0, len(st.order))
	for _, k := range st.order {
		out = append(out, st.byKey[k])
	}
	return out
}

// StagedByKey returns the pending record with the given key, or nil.
func (c *Context) StagedByKey(kind entity.Kind, key string) *entity.Record {
	if st := c.staged[kind]; st != nil {
		return st.byKey[key]
	}
	return nil
}

// Pending reports the number of staged records and relationships.
func (c *Context) Pending() (records, relationships int) {
	for _, st := range c.staged {
		records += len(st.order)
	}
	return records, len(c.rels)
}

// LiveID returns the id a record committed with, or zero.
func (c *Context) LiveID(rec *entity.Record) int64 {
	if rec == nil {
		return 0
	}
	if id, ok := c.ids[rec.Key]; ok {
		return id
	}
	return rec.ID
}

// Commit persists every staged kind in entity.CommitOrder. Before a kind is
// written, relationships whose source is of that kind get their target's
// live id. The first failing record aborts the commit.
func (c *Context) Commit(ctx context.Context) error {
	t := time.Now()
	defer func() { metrics.ObserveCommit(time.Since(t)) }()

	for _, kind := range entity.CommitOrder {
		st := c.staged[kind]
		if st == nil || len(st.order) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.resolve(kind); err != nil {
			return err
		}
		recs := c.Staged(kind)
		kt := time.Now()
		results, err := c.up.UpsertByKey(ctx, kind, recs, c.chunkSize)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrUpsertBatchFailure, kind, err)
		}
		if len(results) != len(recs) {
			return fmt.Errorf("%w: %s: %d results for %d records", ErrUpsertBatchFailure, kind, len(results), len(recs))
		}
		for i, res := range results {
			if !res.Success {
				return fmt.Errorf("%w: %s %s: %w", ErrUpsertBatchFailure, kind, recs[i].Key, res.Err)
			}
		}
		for i, res := range results {
			recs[i].ID = res.ID
			c.ids[recs[i].Key] = res.ID
		}
		if kind == entity.KindSnapshot && c.snapshot != nil {
			if id, ok := c.ids[c.snapshot.Key]; ok {
				c.snapshot.ID = id
			}
		}
		delete(c.staged, kind)
		metrics.RecordUpserted(kind.String(), len(recs))
		slog.Debug("commit.upsert", "kind", kind, "records", len(recs), "elapsed", time.Since(kt))
	}
	return nil
}

// resolve copies live target ids into staged sources of kind and drops the
// applied relationships.
func (c *Context) resolve(kind entity.Kind) error {
	st := c.staged[kind]
	kept := c.rels[:0]
	for _, rel := range c.rels {
		if rel.Source.Kind != kind {
			kept = append(kept, rel)
			continue
		}
		src, ok := st.byKey[rel.Source.Key]
		if !ok {
			// source already committed in an earlier call
			continue
		}
		id := c.LiveID(rel.Target)
		if id == 0 {
			if staged := c.StagedByKey(rel.Target.Kind, rel.Target.Key); staged != nil && staged.ID != 0 {
				id = staged.ID
			}
		}
		if id == 0 {
			return fmt.Errorf("%w: %s.%s -> %s has no live id", ErrUnresolvedRelationshipTarget, src.Key, rel.Field, keyOf(rel.Target))
		}
		src.Set(rel.Field, id)
	}
	c.rels = kept
	return nil
}

// Clear drops staged records and relationships. The snapshot and the ids of
// committed records survive.
func (c *Context) Clear() {
	c.staged = map[entity.Kind]*staging{}
	c.rels = nil
}

func keyOf(r *entity.Record) string {
	if r == nil {
		return "<nil>"
	}
	return r.Key
}
