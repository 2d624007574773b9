package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/DeusData/symtab-snapshot/internal/coordinator"
	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/selector"
	"github.com/DeusData/symtab-snapshot/internal/store"
)

// ErrNoContainer is returned when no input container can be found for a run.
var ErrNoContainer = errors.New("no input container")

// SnapshotKeyPrefix prefixes every snapshot content key.
const SnapshotKeyPrefix = "Snapshot:"

// passSnapshot resolves the input container and persists the snapshot record
// so later keys can embed its live id.
func (p *Pipeline) passSnapshot() error {
	c, err := p.container()
	if err != nil {
		return err
	}
	p.containerID = c.ID
	if p.opts.OrgID == "" {
		p.opts.OrgID = c.OrgID
	}
	if p.opts.OrgNamespace == "" {
		p.opts.OrgNamespace = c.Namespace
	}
	p.runID = uuid.NewString()

	rec, err := p.snapshotRecord()
	if err != nil {
		return err
	}
	if _, err := p.coord.RegisterSnapshot(rec); err != nil {
		return err
	}
	if err := p.commit(); err != nil {
		return err
	}
	p.cache = coordinator.NewRunCache(p.sel, p.opts.OrgID, p.coord.SnapshotID())
	slog.Info("snapshot.created", "snapshot", p.coord.SnapshotID(), "key", rec.Key, "run", p.runID, "container", c.ID)
	return nil
}

func (p *Pipeline) container() (*selector.Container, error) {
	if p.opts.ContainerID != "" {
		c, err := p.sel.Container(p.ctx, p.opts.ContainerID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoContainer, p.opts.ContainerID)
		}
		return c, nil
	}
	if p.opts.OrgID == "" {
		return nil, fmt.Errorf("%w: neither container nor org given", ErrNoContainer)
	}
	c, err := p.sel.LatestContainer(p.ctx, p.opts.OrgID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: org %s has none", ErrNoContainer, p.opts.OrgID)
	}
	return c, nil
}

// snapshotRecord builds a fresh snapshot, or reloads the one named by
// Options.SnapshotKey. A reloaded snapshot loses its latest flag until the
// run completes, since generation rewrites its rows in place.
func (p *Pipeline) snapshotRecord() (*entity.Record, error) {
	fields := map[string]any{
		entity.FieldOrgID:        p.opts.OrgID,
		entity.FieldOrgNamespace: p.opts.OrgNamespace,
		entity.FieldRunID:        p.runID,
		entity.FieldContainerID:  p.containerID,
		entity.FieldIsLatest:     false,
	}
	if p.opts.SnapshotKey == "" {
		fields[entity.FieldCreatedAt] = store.Now()
		rec := entity.New(entity.KindSnapshot, "Snapshot "+p.runID, fields)
		rec.Key = SnapshotKeyPrefix + p.runID
		return rec, nil
	}

	existing, err := p.Store.FindEntityByKey(p.ctx, p.opts.SnapshotKey)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.Kind != entity.KindSnapshot {
		return nil, fmt.Errorf("snapshot %s not found", p.opts.SnapshotKey)
	}
	if org := existing.String(entity.FieldOrgID); org != p.opts.OrgID {
		return nil, fmt.Errorf("snapshot %s belongs to org %q, not %q", existing.Key, org, p.opts.OrgID)
	}
	return entity.Merge(existing, &entity.Record{Fields: fields}), nil
}

// passMarkLatest promotes the snapshot. The store demotes every other
// snapshot of the org in the same transaction.
func (p *Pipeline) passMarkLatest() error {
	snap := p.coord.Snapshot()
	update := &entity.Record{
		Kind:   entity.KindSnapshot,
		ID:     snap.ID,
		Key:    snap.Key,
		Fields: map[string]any{entity.FieldIsLatest: true},
	}
	if _, err := p.coord.RegisterSnapshot(update); err != nil {
		return err
	}
	return p.commit()
}
