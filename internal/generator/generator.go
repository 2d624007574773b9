// Package generator turns symbol tables into snapshot entities and the
// relationships between them. Generators never touch the store; everything
// goes through a Stager.
package generator

import (
	"log/slog"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/hashkey"
	"github.com/DeusData/symtab-snapshot/internal/symtab"
)

// Stager is the part of the coordinator generators write through.
type Stager interface {
	Snapshot() *entity.Record
	SnapshotID() int64
	RegisterUpsert(rec *entity.Record) (*entity.Record, error)
	RegisterRelationship(source *entity.Record, field string, target *entity.Record) error
}

// Stats counts what a generator produced.
type Stats struct {
	Classes          int
	InnerClasses     int
	Triggers         int
	Methods          int
	Properties       int
	Implementations  int
	MethodReferences int
	Declarations     int
	NoSymbolTable    int
}

// Generator produces the raw entities of one snapshot.
type Generator struct {
	st            Stager
	scheduledJobs map[string]bool
	stats         Stats
}

// New creates a generator staging into st. scheduledJobs holds the ids of
// classes that back active scheduled jobs.
func New(st Stager, scheduledJobs map[string]bool) *Generator {
	if scheduledJobs == nil {
		scheduledJobs = map[string]bool{}
	}
	return &Generator{st: st, scheduledJobs: scheduledJobs}
}

// Stats returns the running totals.
func (g *Generator) Stats() Stats { return g.stats }

func (g *Generator) key(tag string, h int32) string {
	return hashkey.Key(g.st.SnapshotID(), tag, h)
}

// stage registers rec and its snapshot relationship, returning the staged
// record.
func (g *Generator) stage(rec *entity.Record) (*entity.Record, error) {
	staged, err := g.st.RegisterUpsert(rec)
	if err != nil {
		return nil, err
	}
	if err := g.st.RegisterRelationship(staged, entity.FieldSnapshot, g.st.Snapshot()); err != nil {
		return nil, err
	}
	return staged, nil
}

// owner is the class or trigger whose body a fragment belongs to.
type owner struct {
	rec       *entity.Record
	id        string
	name      string
	namespace string
	field     string // used-by / property relationship field
}

func classOwner(rec *entity.Record) owner {
	return owner{
		rec:       rec,
		id:        rec.String(entity.FieldClassID),
		name:      rec.String(entity.FieldClassName),
		namespace: rec.String(entity.FieldNamespace),
		field:     entity.FieldClass,
	}
}

func triggerOwner(rec *entity.Record) owner {
	return owner{
		rec:       rec,
		id:        rec.String(entity.FieldTriggerID),
		name:      rec.String(entity.FieldTriggerName),
		namespace: rec.String(entity.FieldNamespace),
		field:     entity.FieldTrigger,
	}
}

func (o owner) usedByField() string {
	if o.field == entity.FieldTrigger {
		return entity.FieldUsedByTrigger
	}
	return entity.FieldUsedByClass
}

// Classes generates every class member of a page. A member without a symbol
// table still yields its class record.
func (g *Generator) Classes(members []*symtab.Member) error {
	for _, m := range members {
		if err := g.class(m); err != nil {
			return err
		}
	}
	return nil
}

// Triggers generates every trigger member of a page.
func (g *Generator) Triggers(members []*symtab.Member) error {
	for _, m := range members {
		if err := g.trigger(m); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) class(m *symtab.Member) error {
	t := m.SymbolTable
	fields := map[string]any{
		entity.FieldClassID:              m.ID,
		entity.FieldSymbolTableAvailable: t != nil,
		entity.FieldIsTopLevel:           true,
		entity.FieldTopLevelFullName:     "",
		entity.FieldIsScheduledJob:       g.scheduledJobs[m.ID],
		entity.FieldScore:                0.0,
	}
	if m.Digest != "" {
		fields[entity.FieldSourceDigest] = m.Digest
	}
	fullName := m.DisplayName
	if t != nil {
		fullName = symtab.FullName(t.Namespace, t.Name)
		describeClass(fields, t)
	} else {
		fields[entity.FieldClassName] = m.DisplayName
		fields[entity.FieldNamespace] = m.Namespace
		fields[entity.FieldMethodCount] = 0
		g.stats.NoSymbolTable++
		slog.Warn("generate.class.no_symbol_table", "id", m.ID, "name", m.DisplayName)
	}
	fields[entity.FieldFullName] = fullName

	rec := entity.New(entity.KindClass, fullName, fields)
	rec.Key = g.key(entity.TagClass, hashkey.Parts(m.ID))
	cls, err := g.stage(rec)
	if err != nil {
		return err
	}
	g.stats.Classes++
	if t == nil {
		return nil
	}
	if err := g.innerClasses(cls, t); err != nil {
		return err
	}
	return g.classBody(classOwner(cls), t)
}

// describeClass fills the fields every class derives from its own table.
func describeClass(fields map[string]any, t *symtab.SymbolTable) {
	mods := t.Modifiers()
	fields[entity.FieldClassName] = t.Name
	fields[entity.FieldNamespace] = t.Namespace
	fields[entity.FieldExtendsFullName] = t.ParentClass
	if len(t.Interfaces) > 0 {
		fields[entity.FieldImplements] = symtab.JoinList(t.Interfaces)
	}
	fields[entity.FieldIsTest] = symtab.IsTest(mods)
	fields[entity.FieldModifiers] = symtab.JoinList(mods)
	fields[entity.FieldAccessModifier] = symtab.AccessModifier(mods)
	fields[entity.FieldMethodCount] = len(t.Methods)
}

func (g *Generator) innerClasses(parent *entity.Record, t *symtab.SymbolTable) error {
	parentFull := parent.String(entity.FieldFullName)
	parentID := parent.String(entity.FieldClassID)
	for _, inner := range t.InnerClasses {
		if inner == nil {
			continue
		}
		fullName := parentFull + "." + inner.Name
		fields := map[string]any{
			entity.FieldClassID:              parentID,
			entity.FieldFullName:             fullName,
			entity.FieldSymbolTableAvailable: true,
			entity.FieldIsTopLevel:           false,
			entity.FieldTopLevelFullName:     parentFull,
			entity.FieldIsScheduledJob:       false,
			entity.FieldScore:                0.0,
		}
		describeClass(fields, inner)
		rec := entity.New(entity.KindClass, fullName, fields)
		rec.Key = g.key(entity.TagInnerClass, hashkey.Parts(parentID, inner.Name, parentFull))
		cls, err := g.stage(rec)
		if err != nil {
			return err
		}
		g.stats.InnerClasses++
		if err := g.classBody(classOwner(cls), inner); err != nil {
			return err
		}
	}
	return nil
}

// classBody generates what a class declares: implementations, methods,
// properties and external references.
func (g *Generator) classBody(o owner, t *symtab.SymbolTable) error {
	if err := g.interfaceImpls(o); err != nil {
		return err
	}
	if err := g.methods(o, t); err != nil {
		return err
	}
	if err := g.properties(o, t); err != nil {
		return err
	}
	return g.methodReferences(o, t)
}

func (g *Generator) trigger(m *symtab.Member) error {
	t := m.SymbolTable
	fullName := symtab.FullName(m.Namespace, m.DisplayName)
	if t != nil {
		fullName = symtab.FullName(t.Namespace, t.Name)
	}
	fields := map[string]any{
		entity.FieldTriggerID:            m.ID,
		entity.FieldTriggerName:          m.DisplayName,
		entity.FieldFullName:             fullName,
		entity.FieldNamespace:            m.Namespace,
		entity.FieldIsActive:             m.Status == symtab.TriggerActive,
		entity.FieldSymbolTableAvailable: t != nil,
		entity.FieldScore:                0.0,
	}
	if m.Digest != "" {
		fields[entity.FieldSourceDigest] = m.Digest
	}
	rec := entity.New(entity.KindTrigger, fullName, fields)
	rec.Key = g.key(entity.TagTrigger, hashkey.Parts(m.ID))
	trg, err := g.stage(rec)
	if err != nil {
		return err
	}
	g.stats.Triggers++
	if t == nil {
		g.stats.NoSymbolTable++
		slog.Warn("generate.trigger.no_symbol_table", "id", m.ID, "name", m.DisplayName)
		return nil
	}
	o := triggerOwner(trg)
	if err := g.properties(o, t); err != nil {
		return err
	}
	return g.methodReferences(o, t)
}
