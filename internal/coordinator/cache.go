package coordinator

import (
	"context"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/selector"
)

// RunCache memoizes the reads one pipeline run repeats: the scheduled-job
// class ids of the org and the persisted entities of the run's snapshot. It
// belongs to a single run and is never shared between runs.
type RunCache struct {
	sel        *selector.Selector
	orgID      string
	snapshotID int64

	jobs     map[string]bool
	entities map[entity.Kind][]*entity.Record
	byID     map[int64]*entity.Record
}

// NewRunCache creates an empty cache for one run.
func NewRunCache(sel *selector.Selector, orgID string, snapshotID int64) *RunCache {
	return &RunCache{
		sel:        sel,
		orgID:      orgID,
		snapshotID: snapshotID,
		entities:   map[entity.Kind][]*entity.Record{},
		byID:       map[int64]*entity.Record{},
	}
}

// ScheduledJobClassIDs returns the ids of classes backing active scheduled
// jobs, querying once per refresh.
func (c *RunCache) ScheduledJobClassIDs(ctx context.Context) (map[string]bool, error) {
	if c.jobs != nil {
		return c.jobs, nil
	}
	ids, err := c.sel.ScheduledJobClassIDs(ctx, c.orgID)
	if err != nil {
		return nil, err
	}
	c.jobs = ids
	return ids, nil
}

// Entities returns the persisted entities of kind in the run's snapshot.
func (c *RunCache) Entities(ctx context.Context, kind entity.Kind) ([]*entity.Record, error) {
	if recs, ok := c.entities[kind]; ok {
		return recs, nil
	}
	recs, err := c.sel.Entities(ctx, c.snapshotID, kind)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*entity.Record{}
	}
	c.entities[kind] = recs
	for _, r := range recs {
		c.byID[r.ID] = r
	}
	return recs, nil
}

// Load fetches every kind in kinds.
func (c *RunCache) Load(ctx context.Context, kinds ...entity.Kind) error {
	for _, k := range kinds {
		if _, err := c.Entities(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// ByID returns a loaded entity by live id, or nil.
func (c *RunCache) ByID(id int64) *entity.Record {
	if id == 0 {
		return nil
	}
	return c.byID[id]
}

// Refresh forgets everything loaded so far. Kinds in reload are fetched
// again immediately.
func (c *RunCache) Refresh(ctx context.Context, reload ...entity.Kind) error {
	c.jobs = nil
	c.entities = map[entity.Kind][]*entity.Record{}
	c.byID = map[int64]*entity.Record{}
	return c.Load(ctx, reload...)
}
