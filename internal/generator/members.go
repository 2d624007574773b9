package generator

import (
	"strings"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/hashkey"
	"github.com/DeusData/symtab-snapshot/internal/symtab"
)

func (g *Generator) interfaceImpls(o owner) error {
	for _, iface := range symtab.SplitList(o.rec.String(entity.FieldImplements)) {
		rec := entity.New(entity.KindInterfaceImplementation, o.name+" implements "+iface, map[string]any{
			entity.FieldImplements: iface,
		})
		rec.Key = g.key(entity.TagInterfaceImpl, hashkey.Parts(o.id, o.name, iface))
		impl, err := g.stage(rec)
		if err != nil {
			return err
		}
		if err := g.st.RegisterRelationship(impl, entity.FieldImplementationClass, o.rec); err != nil {
			return err
		}
		g.stats.Implementations++
	}
	return nil
}

// methods generates constructors then methods. Two entries sharing a name
// are both flagged overloaded.
func (g *Generator) methods(o owner, t *symtab.SymbolTable) error {
	byName := map[string]string{}
	for i := range t.Constructors {
		if err := g.method(o, &t.Constructors[i], true, byName); err != nil {
			return err
		}
	}
	for i := range t.Methods {
		if err := g.method(o, &t.Methods[i], false, byName); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) method(o owner, m *symtab.Method, ctor bool, byName map[string]string) error {
	paramTypes := make([]string, len(m.Parameters))
	params := make([]string, len(m.Parameters))
	for i, p := range m.Parameters {
		paramTypes[i] = p.Type
		params[i] = p.Type + " " + p.Name
	}

	var returnType any
	tag := entity.TagConstructor
	if !ctor {
		returnType = m.ReturnType
		tag = entity.TagMethod
	}
	parts := []any{o.id, o.name, m.Name, returnType}
	for _, pt := range paramTypes {
		parts = append(parts, pt)
	}
	parts = append(parts, hashkey.Location(m.Location.Line, m.Location.Column))

	name := m.Name + "(" + strings.Join(params, ", ") + ")"
	signature := m.Name + "(" + strings.Join(paramTypes, ", ") + ")"
	ret := o.name
	if !ctor {
		ret = m.ReturnType
		name += ": " + ret
		signature += ": " + ret
	}

	rec := entity.New(entity.KindMethod, name, map[string]any{
		entity.FieldMethodName:     m.Name,
		entity.FieldSignature:      signature,
		entity.FieldReturnType:     ret,
		entity.FieldIsConstructor:  ctor,
		entity.FieldIsOverloaded:   false,
		entity.FieldIsTest:         symtab.IsTest(m.Modifiers),
		entity.FieldAccessModifier: symtab.AccessModifier(m.Modifiers),
		entity.FieldModifiers:      symtab.JoinList(m.Modifiers),
		entity.FieldParamCount:     len(m.Parameters),
		entity.FieldLine:           m.Location.Line,
		entity.FieldColumn:         m.Location.Column,
		entity.FieldScore:          0.0,
	})
	rec.Key = g.key(tag, hashkey.Parts(parts...))

	if first, ok := byName[m.Name]; ok {
		rec.Fields[entity.FieldIsOverloaded] = true
		flag := entity.New(entity.KindMethod, "", map[string]any{entity.FieldIsOverloaded: true})
		flag.Key = first
		if _, err := g.st.RegisterUpsert(flag); err != nil {
			return err
		}
	} else {
		byName[m.Name] = rec.Key
	}

	method, err := g.stage(rec)
	if err != nil {
		return err
	}
	if err := g.st.RegisterRelationship(method, entity.FieldClass, o.rec); err != nil {
		return err
	}
	g.stats.Methods++

	if err := g.declarations(method, m); err != nil {
		return err
	}
	for _, ref := range m.References {
		if err := g.localReference(o, method, ref); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) properties(o owner, t *symtab.SymbolTable) error {
	for _, p := range t.Properties {
		rec := entity.New(entity.KindProperty, o.name+" having "+p.Name+" ("+p.Type+")", map[string]any{
			entity.FieldPropertyName: p.Name,
			entity.FieldPropertyType: p.Type,
			entity.FieldLine:         p.Location.Line,
			entity.FieldColumn:       p.Location.Column,
		})
		rec.Key = g.key(entity.TagProperty, hashkey.Parts(o.id, o.name, p.Name, p.Type, p.Location.Line, p.Location.Column))
		prop, err := g.stage(rec)
		if err != nil {
			return err
		}
		if err := g.st.RegisterRelationship(prop, o.field, o.rec); err != nil {
			return err
		}
		g.stats.Properties++
	}
	return nil
}

// declarations tags a method with its modifiers and annotations. Declaration
// records are shared across the snapshot; the join records are per method.
func (g *Generator) declarations(method *entity.Record, m *symtab.Method) error {
	for _, mod := range m.Modifiers {
		if err := g.declaration(method, entity.DeclarationModifier, mod); err != nil {
			return err
		}
	}
	for _, a := range m.Annotations {
		if err := g.declaration(method, entity.DeclarationAnnotation, a.Name); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) declaration(method *entity.Record, declType, name string) error {
	rec := entity.New(entity.KindDeclaration, name, map[string]any{
		entity.FieldDeclarationType: declType,
	})
	rec.Key = g.key(declType, hashkey.Parts(name, declType))
	decl, err := g.stage(rec)
	if err != nil {
		return err
	}

	prefix := ""
	if declType == entity.DeclarationAnnotation {
		prefix = "@"
	}
	join := entity.New(entity.KindMethodDeclaration, prefix+name+" "+method.Name, map[string]any{
		entity.FieldDeclarationType: declType,
	})
	join.Key = g.key(entity.TagMethodDeclaration, hashkey.Parts(method.Key, decl.Key))
	md, err := g.stage(join)
	if err != nil {
		return err
	}
	if err := g.st.RegisterRelationship(md, entity.FieldMethod, method); err != nil {
		return err
	}
	if err := g.st.RegisterRelationship(md, entity.FieldDeclaration, decl); err != nil {
		return err
	}
	g.stats.Declarations++
	return nil
}
