package generator

import (
	"strconv"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/hashkey"
	"github.com/DeusData/symtab-snapshot/internal/symtab"
)

// methodReferences emits one external reference per call site of every
// method invoked on an external type. The reference is attributed to the
// owning class or trigger; the enclosing method is bound later.
func (g *Generator) methodReferences(o owner, t *symtab.SymbolTable) error {
	for _, ext := range t.ExternalReferences {
		var ns any
		if ext.Namespace != "" {
			ns = ext.Namespace
		}
		for _, em := range ext.Methods {
			for _, loc := range em.References {
				rec := entity.New(entity.KindMethodReference, o.name+" => "+ext.Name+"."+em.Name, map[string]any{
					entity.FieldReferencedClassName:  ext.Name,
					entity.FieldReferencedNamespace:  ns,
					entity.FieldReferencedMethodName: em.Name,
					entity.FieldLine:                 loc.Line,
					entity.FieldColumn:               loc.Column,
					entity.FieldIsExternal:           true,
				})
				rec.Key = g.key(entity.TagMethodRef,
					hashkey.Parts(o.id, o.name, ext.Name, ns, em.Name, hashkey.Location(loc.Line, loc.Column)))
				ref, err := g.stage(rec)
				if err != nil {
					return err
				}
				if err := g.st.RegisterRelationship(ref, o.usedByField(), o.rec); err != nil {
					return err
				}
				g.stats.MethodReferences++
			}
		}
	}
	return nil
}

// localReference records a call site of method inside its own class. The
// referenced class and method are the owner and the method itself.
func (g *Generator) localReference(o owner, method *entity.Record, loc symtab.Position) error {
	var ns any
	if o.namespace != "" {
		ns = o.namespace
	}
	methodName := method.String(entity.FieldMethodName)
	name := method.Name + " => [" + strconv.Itoa(loc.Line) + "," + strconv.Itoa(loc.Column) + "]"
	rec := entity.New(entity.KindMethodReference, name, map[string]any{
		entity.FieldReferencedClassName:  o.name,
		entity.FieldReferencedNamespace:  ns,
		entity.FieldReferencedMethodName: methodName,
		entity.FieldLine:                 loc.Line,
		entity.FieldColumn:               loc.Column,
		entity.FieldIsExternal:           false,
	})
	rec.Key = g.key(entity.TagLocalMethodRef,
		hashkey.Parts(o.id, o.name, o.name, ns, methodName, hashkey.Location(loc.Line, loc.Column)))
	ref, err := g.stage(rec)
	if err != nil {
		return err
	}
	if err := g.st.RegisterRelationship(ref, entity.FieldUsedByClass, o.rec); err != nil {
		return err
	}
	g.stats.MethodReferences++
	return nil
}
