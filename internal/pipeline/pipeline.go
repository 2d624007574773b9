// Package pipeline drives one snapshot run end to end: generation, lookup
// resolution, local reference binding, scoring and promotion to latest.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeusData/symtab-snapshot/internal/coordinator"
	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/generator"
	"github.com/DeusData/symtab-snapshot/internal/metrics"
	"github.com/DeusData/symtab-snapshot/internal/selector"
	"github.com/DeusData/symtab-snapshot/internal/store"
	"github.com/DeusData/symtab-snapshot/internal/symtab"
)

// EntryPoint is a method signature that marks framework-invoked code.
type EntryPoint struct {
	Signature            string `yaml:"signature" json:"signature"`
	RequiresScheduledJob bool   `yaml:"requires_scheduled_job" json:"requires_scheduled_job"`
}

// DefaultEntryPoints returns the entry points seeded when none are configured.
func DefaultEntryPoints() []EntryPoint {
	return []EntryPoint{{Signature: "execute(QueueableContext): void", RequiresScheduledJob: true}}
}

// DefaultTestPropagation is what test code passes on to what it references.
const DefaultTestPropagation = 0.01

// Options configure a run.
type Options struct {
	OrgID        string
	OrgNamespace string
	// ContainerID selects the input container; empty picks the org's latest.
	ContainerID string
	// SnapshotKey reruns into an existing snapshot instead of creating one.
	SnapshotKey string

	PageSize    int
	ChunkSize   int
	EntryPoints []EntryPoint
	// TestPropagation is what test code passes on; nil means
	// DefaultTestPropagation.
	TestPropagation *float64

	// Progress, when set, is called after every generated page.
	Progress func(stage string, members int)
}

func (o *Options) defaults() {
	if o.PageSize <= 0 {
		o.PageSize = selector.DefaultPageSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = coordinator.DefaultChunkSize
	}
	if o.EntryPoints == nil {
		o.EntryPoints = DefaultEntryPoints()
	}
	if o.TestPropagation == nil {
		v := DefaultTestPropagation
		o.TestPropagation = &v
	}
}

// Result summarizes a finished run.
type Result struct {
	SnapshotID  int64
	SnapshotKey string
	RunID       string
	ContainerID string
	Generated   generator.Stats
	Counts      map[entity.Kind]int
	Elapsed     time.Duration
}

// Pipeline orchestrates one snapshot run.
type Pipeline struct {
	ctx   context.Context
	Store *store.Store
	opts  Options

	sel   *selector.Selector
	coord *coordinator.Context
	cache *coordinator.RunCache

	containerID string
	runID       string
	stats       generator.Stats
}

// New creates a pipeline reading its input feed from s and writing the
// snapshot back to it.
func New(ctx context.Context, s *store.Store, opts Options) *Pipeline {
	opts.defaults()
	return &Pipeline{
		ctx:   ctx,
		Store: s,
		opts:  opts,
		sel:   selector.New(s, opts.PageSize),
		coord: coordinator.New(s, opts.ChunkSize),
	}
}

// checkCancel returns ctx.Err() if the run's context has been cancelled.
func (p *Pipeline) checkCancel() error {
	return p.ctx.Err()
}

type stage struct {
	name string
	run  func() error
}

// Run executes every stage in order. Any failure aborts the run before the
// snapshot is marked latest.
func (p *Pipeline) Run() (*Result, error) {
	start := time.Now()
	slog.Info("pipeline.start", "org", p.opts.OrgID, "namespace", p.opts.OrgNamespace, "container", p.opts.ContainerID)

	stages := []stage{
		{"snapshot", p.passSnapshot},
		{"generate", p.passGenerate},
		{"requery", p.passRequery},
		{"lookups", p.passLookups},
		{"bind_local_refs", p.passBindLocalReferences},
		{"scores", p.passScores},
		{"latest", p.passMarkLatest},
	}
	for _, s := range stages {
		if err := p.checkCancel(); err != nil {
			metrics.RecordRun(metrics.StatusFailure)
			return nil, err
		}
		t := time.Now()
		if err := s.run(); err != nil {
			metrics.RecordRun(metrics.StatusFailure)
			slog.Error("pipeline.failed", "pass", s.name, "snapshot", p.coord.SnapshotID(), "err", err)
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		elapsed := time.Since(t)
		metrics.ObserveStage(s.name, elapsed)
		slog.Info("pass.timing", "pass", s.name, "elapsed", elapsed)
	}

	counts, err := p.Store.CountEntities(p.ctx, p.coord.SnapshotID())
	if err != nil {
		return nil, err
	}
	metrics.RecordRun(metrics.StatusSuccess)
	res := &Result{
		SnapshotID:  p.coord.SnapshotID(),
		SnapshotKey: p.coord.Snapshot().Key,
		RunID:       p.runID,
		ContainerID: p.containerID,
		Generated:   p.stats,
		Counts:      counts,
		Elapsed:     time.Since(start),
	}
	slog.Info("pipeline.done", "snapshot", res.SnapshotID, "classes", counts[entity.KindClass],
		"methods", counts[entity.KindMethod], "references", counts[entity.KindMethodReference], "elapsed", res.Elapsed)
	return res, nil
}

// commit persists everything staged and resets staging for the next stage.
func (p *Pipeline) commit() error {
	records, rels := p.coord.Pending()
	if records == 0 {
		return nil
	}
	t := time.Now()
	if err := p.coord.Commit(p.ctx); err != nil {
		return err
	}
	p.coord.Clear()
	slog.Info("commit.upsert", "records", records, "relationships", rels, "elapsed", time.Since(t))
	return nil
}

func (p *Pipeline) passGenerate() error {
	jobs, err := p.cache.ScheduledJobClassIDs(p.ctx)
	if err != nil {
		return fmt.Errorf("scheduled jobs: %w", err)
	}
	gen := generator.New(p.coord, jobs)

	err = p.sel.ClassMembers(p.ctx, p.containerID, p.opts.OrgNamespace, func(members []*symtab.Member) error {
		if err := gen.Classes(members); err != nil {
			return err
		}
		p.progress("classes", len(members))
		return p.commit()
	})
	if err != nil {
		return fmt.Errorf("classes: %w", err)
	}
	err = p.sel.TriggerMembers(p.ctx, p.containerID, p.opts.OrgNamespace, func(members []*symtab.Member) error {
		if err := gen.Triggers(members); err != nil {
			return err
		}
		p.progress("triggers", len(members))
		return p.commit()
	})
	if err != nil {
		return fmt.Errorf("triggers: %w", err)
	}
	p.stats = gen.Stats()
	slog.Info("generate.done", "classes", p.stats.Classes, "inner_classes", p.stats.InnerClasses,
		"triggers", p.stats.Triggers, "methods", p.stats.Methods, "references", p.stats.MethodReferences,
		"no_symbol_table", p.stats.NoSymbolTable)
	return nil
}

func (p *Pipeline) progress(stage string, n int) {
	if p.opts.Progress != nil {
		p.opts.Progress(stage, n)
	}
}

// passRequery loads the persisted entities of the snapshot the later stages
// work on.
func (p *Pipeline) passRequery() error {
	return p.cache.Refresh(p.ctx,
		entity.KindClass,
		entity.KindTrigger,
		entity.KindMethod,
		entity.KindProperty,
		entity.KindInterfaceImplementation,
		entity.KindMethodReference,
	)
}

// entities returns already loaded entities of kind.
func (p *Pipeline) entities(kind entity.Kind) []*entity.Record {
	recs, err := p.cache.Entities(p.ctx, kind)
	if err != nil {
		// every kind is loaded by passRequery; a miss here is a read failure
		slog.Warn("pipeline.entities.err", "kind", kind, "err", err)
		return nil
	}
	return recs
}

// update stages a field-less copy of rec so only the fields set on it are
// written.
func (p *Pipeline) update(rec *entity.Record) (*entity.Record, error) {
	return p.coord.RegisterUpsert(&entity.Record{Kind: rec.Kind, ID: rec.ID, Key: rec.Key, Fields: map[string]any{}})
}

// link stages source.field = target and mirrors it on the loaded record.
func (p *Pipeline) link(source *entity.Record, field string, target *entity.Record) error {
	staged, err := p.update(source)
	if err != nil {
		return err
	}
	if err := p.coord.RegisterRelationship(staged, field, target); err != nil {
		return err
	}
	source.Set(field, target.ID)
	return nil
}
