package pipeline

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/DeusData/symtab-snapshot/internal/entity"
)

// located is a method or property of one owner, ordered by source position.
type located struct {
	rec    *entity.Record
	method bool
}

// ownerKey groups the members and call sites of one class or trigger. Inner
// classes share their top-level class's id and therefore its group.
func ownerKey(rec *entity.Record) string {
	if rec == nil {
		return ""
	}
	switch rec.Kind {
	case entity.KindClass:
		return "class:" + rec.String(entity.FieldClassID)
	case entity.KindTrigger:
		return "trigger:" + rec.String(entity.FieldTriggerID)
	}
	return ""
}

// passBindLocalReferences attributes every call site to the method it sits
// in. The enclosing method is approximated as the last method of the same
// owner declared on an earlier line.
func (p *Pipeline) passBindLocalReferences() error {
	members := map[string][]located{}
	for _, m := range p.entities(entity.KindMethod) {
		k := ownerKey(p.cache.ByID(m.Ref(entity.FieldClass)))
		if k != "" {
			members[k] = append(members[k], located{rec: m, method: true})
		}
	}
	for _, prop := range p.entities(entity.KindProperty) {
		owner := p.cache.ByID(prop.Ref(entity.FieldClass))
		if owner == nil {
			owner = p.cache.ByID(prop.Ref(entity.FieldTrigger))
		}
		if k := ownerKey(owner); k != "" {
			members[k] = append(members[k], located{rec: prop})
		}
	}
	for _, items := range members {
		slices.SortStableFunc(items, func(a, b located) int {
			return cmp.Or(cmp.Compare(a.rec.Line(), b.rec.Line()), cmp.Compare(a.rec.Column(), b.rec.Column()))
		})
	}

	var bound, unbound int
	for _, ref := range p.entities(entity.KindMethodReference) {
		owner := p.cache.ByID(ref.Ref(entity.FieldUsedByClass))
		if owner == nil {
			owner = p.cache.ByID(ref.Ref(entity.FieldUsedByTrigger))
		}
		method := enclosingMethod(members[ownerKey(owner)], ref.Line())
		if method == nil {
			unbound++
			continue
		}
		if err := p.link(ref, entity.FieldUsedByMethod, method); err != nil {
			return err
		}
		bound++
	}
	slog.Info("bind.local_refs", "bound", bound, "unbound", unbound)
	return p.commit()
}

// enclosingMethod returns the last method in items declared strictly before
// line, or nil. items must be sorted by position.
func enclosingMethod(items []located, line int) *entity.Record {
	var found *entity.Record
	for _, it := range items {
		if it.rec.Line() >= line {
			break
		}
		if it.method {
			found = it.rec
		}
	}
	return found
}
