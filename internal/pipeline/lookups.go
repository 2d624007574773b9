package pipeline

import (
	"log/slog"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/symtab"
)

// methodIdent is how a reference names the method it calls.
type methodIdent struct {
	method    string
	class     string
	namespace string
}

// passLookups resolves the links generation can only express by name:
// extended and top-level classes, implemented interfaces and referenced
// methods.
func (p *Pipeline) passLookups() error {
	classes := p.entities(entity.KindClass)
	declared := make(map[string]*entity.Record, len(classes))
	for _, c := range classes {
		declared[c.String(entity.FieldFullName)] = c
	}

	var extends, topLevel, impls, refs int
	for _, c := range classes {
		if target := declared[c.String(entity.FieldExtendsFullName)]; target != nil && target != c {
			if err := p.link(c, entity.FieldExtendsClass, target); err != nil {
				return err
			}
			extends++
		}
		if target := declared[c.String(entity.FieldTopLevelFullName)]; target != nil && target != c {
			if err := p.link(c, entity.FieldTopLevelClass, target); err != nil {
				return err
			}
			topLevel++
		}
	}

	for _, impl := range p.entities(entity.KindInterfaceImplementation) {
		iface := impl.String(entity.FieldImplements)
		target := declared[iface]
		if target == nil {
			// unqualified names resolve within the implementing class's namespace
			if owner := p.cache.ByID(impl.Ref(entity.FieldImplementationClass)); owner != nil {
				target = declared[symtab.FullName(owner.String(entity.FieldNamespace), iface)]
			}
		}
		if target == nil {
			continue
		}
		if err := p.link(impl, entity.FieldImplementsInterface, target); err != nil {
			return err
		}
		impls++
	}

	methods := map[methodIdent][]*entity.Record{}
	for _, m := range p.entities(entity.KindMethod) {
		owner := p.cache.ByID(m.Ref(entity.FieldClass))
		if owner == nil {
			continue
		}
		id := methodIdent{
			method:    m.String(entity.FieldMethodName),
			class:     owner.String(entity.FieldClassName),
			namespace: owner.String(entity.FieldNamespace),
		}
		methods[id] = append(methods[id], m)
	}
	for _, ref := range p.entities(entity.KindMethodReference) {
		id := methodIdent{
			method:    ref.String(entity.FieldReferencedMethodName),
			class:     ref.String(entity.FieldReferencedClassName),
			namespace: ref.String(entity.FieldReferencedNamespace),
		}
		matches := methods[id]
		for _, m := range matches {
			if err := p.link(ref, entity.FieldReferencedMethod, m); err != nil {
				return err
			}
		}
		if len(matches) > 0 {
			refs++
		}
	}

	slog.Info("lookups.resolved", "extends", extends, "top_level", topLevel, "implements", impls, "references", refs)
	return p.commit()
}
