package pipeline

import (
	"log/slog"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/graph"
)

const (
	accessGlobal = "global"
	maxSeed      = entity.MaxScore
)

// passScores seeds the usage graph from what is reachable from outside the
// code (active triggers, tests, global API, framework entry points),
// propagates, rolls method scores up into their classes and writes back
// every score that changed.
func (p *Pipeline) passScores() error {
	classes := p.entities(entity.KindClass)
	triggers := p.entities(entity.KindTrigger)
	methods := p.entities(entity.KindMethod)

	g, err := graph.Build(graph.Input{
		Classes:                  classes,
		Triggers:                 triggers,
		Methods:                  methods,
		MethodReferences:         p.entities(entity.KindMethodReference),
		InterfaceImplementations: p.entities(entity.KindInterfaceImplementation),
	})
	if err != nil {
		return err
	}

	seeds := 0
	seed := func(rec *entity.Record, propagate float64) error {
		seeds++
		return g.AddToScore(rec.Key, maxSeed, propagate)
	}
	for _, t := range triggers {
		if t.Bool(entity.FieldIsActive) {
			if err := seed(t, maxSeed); err != nil {
				return err
			}
		}
	}
	for _, set := range [][]*entity.Record{classes, methods} {
		for _, r := range set {
			if r.Bool(entity.FieldIsTest) {
				if err := seed(r, *p.opts.TestPropagation); err != nil {
					return err
				}
			}
			if p.opts.OrgNamespace != "" && r.String(entity.FieldAccessModifier) == accessGlobal {
				if err := seed(r, maxSeed); err != nil {
					return err
				}
			}
		}
	}
	for _, m := range methods {
		if p.isEntryPoint(m) {
			if err := seed(m, maxSeed); err != nil {
				return err
			}
		}
	}

	// roll method scores up into their classes
	for _, m := range methods {
		cls := p.cache.ByID(m.Ref(entity.FieldClass))
		if cls == nil {
			continue
		}
		cn, mn := g.Node(cls.Key), g.Node(m.Key)
		if cn != nil && mn != nil && mn.Score > cn.Score {
			cn.Score = mn.Score
		}
	}

	changed := 0
	for _, n := range g.Nodes() {
		if n.Score == n.Record.Score() && n.Record.Has(entity.FieldScore) {
			continue
		}
		staged, err := p.update(n.Record)
		if err != nil {
			return err
		}
		staged.Set(entity.FieldScore, n.Score)
		n.Record.Set(entity.FieldScore, n.Score)
		changed++
	}
	slog.Info("scores.propagated", "nodes", g.Len(), "seeds", seeds, "changed", changed)
	return p.commit()
}

// isEntryPoint reports whether m matches a configured framework entry point.
func (p *Pipeline) isEntryPoint(m *entity.Record) bool {
	sig := m.String(entity.FieldSignature)
	for _, ep := range p.opts.EntryPoints {
		if ep.Signature != sig {
			continue
		}
		if !ep.RequiresScheduledJob {
			return true
		}
		if cls := p.cache.ByID(m.Ref(entity.FieldClass)); cls != nil && cls.Bool(entity.FieldIsScheduledJob) {
			return true
		}
	}
	return false
}
