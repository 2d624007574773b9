package graph

import (
	"github.com/DeusData/symtab-snapshot/internal/entity"
)

// Input is the persisted state of one snapshot a graph is built from.
// Relationship fields of the records hold live ids.
type Input struct {
	Classes                  []*entity.Record
	Triggers                 []*entity.Record
	Methods                  []*entity.Record
	MethodReferences         []*entity.Record
	InterfaceImplementations []*entity.Record
}

// Build adds a node per class, trigger and method, then the usage edges:
// every user of a reference (method, class or trigger) points at the
// referenced method and at that method's class, and every implementing class
// points at the interface it implements.
func Build(in Input) (*Graph, error) {
	g := New()
	byID := map[int64]*entity.Record{}
	for _, set := range [][]*entity.Record{in.Triggers, in.Classes, in.Methods} {
		for _, r := range set {
			if _, err := g.AddNode(r); err != nil {
				return nil, err
			}
			if r.ID != 0 {
				byID[r.ID] = r
			}
		}
	}

	for _, ref := range in.MethodReferences {
		target := byID[ref.Ref(entity.FieldReferencedMethod)]
		if target == nil {
			continue
		}
		targetClass := byID[target.Ref(entity.FieldClass)]
		for _, field := range []string{entity.FieldUsedByMethod, entity.FieldUsedByClass, entity.FieldUsedByTrigger} {
			user := byID[ref.Ref(field)]
			if user == nil {
				continue
			}
			if err := g.AddEdge(user, target); err != nil {
				return nil, err
			}
			if targetClass != nil {
				if err := g.AddEdge(user, targetClass); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, impl := range in.InterfaceImplementations {
		cls := byID[impl.Ref(entity.FieldImplementationClass)]
		iface := byID[impl.Ref(entity.FieldImplementsInterface)]
		if cls == nil || iface == nil {
			continue
		}
		if err := g.AddEdge(cls, iface); err != nil {
			return nil, err
		}
	}
	return g, nil
}
