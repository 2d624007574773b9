package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/hashkey"
	"github.com/DeusData/symtab-snapshot/internal/symtab"
)

type link struct {
	source, field, target string
}

// fakeStager keeps staged records by key and merges duplicates.
type fakeStager struct {
	snap  *entity.Record
	byKey map[string]*entity.Record
	order []string
	links []link
}

func newFakeStager() *fakeStager {
	snap := entity.New(entity.KindSnapshot, "snap", nil)
	snap.Key = "Snapshot:test"
	snap.ID = 42
	return &fakeStager{snap: snap, byKey: map[string]*entity.Record{}}
}

func (f *fakeStager) Snapshot() *entity.Record { return f.snap }
func (f *fakeStager) SnapshotID() int64        { return f.snap.ID }

func (f *fakeStager) RegisterUpsert(rec *entity.Record) (*entity.Record, error) {
	rec.Name = entity.TruncateName(rec.Name)
	if old, ok := f.byKey[rec.Key]; ok {
		merged := entity.Merge(old, rec)
		f.byKey[rec.Key] = merged
		return merged, nil
	}
	f.byKey[rec.Key] = rec
	f.order = append(f.order, rec.Key)
	return rec, nil
}

func (f *fakeStager) RegisterRelationship(source *entity.Record, field string, target *entity.Record) error {
	f.links = append(f.links, link{source.Key, field, target.Key})
	return nil
}

func (f *fakeStager) ofKind(kind entity.Kind) []*entity.Record {
	var out []*entity.Record
	for _, k := range f.order {
		if r := f.byKey[k]; r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeStager) linked(source, field string) string {
	for _, l := range f.links {
		if l.source == source && l.field == field {
			return l.target
		}
	}
	return ""
}

func fooMember() *symtab.Member {
	return &symtab.Member{
		ID:          "01p000000000001",
		Kind:        symtab.MemberClass,
		DisplayName: "Foo",
		Digest:      "abc",
		SymbolTable: &symtab.SymbolTable{
			Namespace:        "ns",
			Name:             "Foo",
			ParentClass:      "ns.Base",
			Interfaces:       []string{"Queueable", "ns.Iface"},
			TableDeclaration: &symtab.Declaration{Modifiers: []string{"public", "with sharing"}},
			Constructors: []symtab.Method{
				{Name: "Foo", Location: symtab.Position{Line: 2, Column: 12}},
			},
			Methods: []symtab.Method{
				{
					Name: "execute", ReturnType: "void",
					Parameters:  []symtab.Parameter{{Name: "ctx", Type: "QueueableContext"}},
					Modifiers:   []string{"public"},
					Annotations: []symtab.Annotation{{Name: "Future"}},
					Location:    symtab.Position{Line: 10, Column: 17},
					References:  []symtab.Position{{Line: 40, Column: 9}},
				},
				{
					Name: "run", ReturnType: "void",
					Modifiers: []string{"private"},
					Location:  symtab.Position{Line: 20, Column: 18},
				},
				{
					Name: "run", ReturnType: "Integer",
					Parameters: []symtab.Parameter{{Name: "n", Type: "Integer"}},
					Modifiers:  []string{"private"},
					Location:   symtab.Position{Line: 30, Column: 21},
				},
			},
			Properties: []symtab.Property{
				{Name: "count", Type: "Integer", Location: symtab.Position{Line: 5, Column: 20}},
			},
			InnerClasses: []*symtab.SymbolTable{
				nil,
				{Name: "Inner", Methods: []symtab.Method{{Name: "go", ReturnType: "void", Location: symtab.Position{Line: 50, Column: 14}}}},
			},
			ExternalReferences: []symtab.ExternalReference{
				{Name: "Util", Methods: []symtab.ExternalMethod{
					{Name: "log", References: []symtab.Position{{Line: 22, Column: 5}, {Line: 33, Column: 5}}},
				}},
			},
		},
	}
}

func TestClassRecord(t *testing.T) {
	st := newFakeStager()
	g := New(st, map[string]bool{"01p000000000001": true})
	require.NoError(t, g.Classes([]*symtab.Member{fooMember()}))

	classes := st.ofKind(entity.KindClass)
	require.Len(t, classes, 2)
	foo := classes[0]
	assert.Equal(t, hashkey.Key(42, entity.TagClass, hashkey.Parts("01p000000000001")), foo.Key)
	assert.Equal(t, "ns.Foo", foo.Name)
	assert.Equal(t, "ns.Foo", foo.String(entity.FieldFullName))
	assert.Equal(t, "Foo", foo.String(entity.FieldClassName))
	assert.Equal(t, "ns.Base", foo.String(entity.FieldExtendsFullName))
	assert.Equal(t, "Queueable;ns.Iface", foo.String(entity.FieldImplements))
	assert.Equal(t, "public", foo.String(entity.FieldAccessModifier))
	assert.Equal(t, "public;with sharing", foo.String(entity.FieldModifiers))
	assert.EqualValues(t, 3, foo.Int(entity.FieldMethodCount))
	assert.True(t, foo.Bool(entity.FieldIsScheduledJob))
	assert.True(t, foo.Bool(entity.FieldIsTopLevel))
	assert.True(t, foo.Bool(entity.FieldSymbolTableAvailable))
	assert.Equal(t, "abc", foo.String(entity.FieldSourceDigest))
	assert.Equal(t, st.snap.Key, st.linked(foo.Key, entity.FieldSnapshot))

	inner := classes[1]
	assert.Equal(t, hashkey.Key(42, entity.TagInnerClass, hashkey.Parts("01p000000000001", "Inner", "ns.Foo")), inner.Key)
	assert.Equal(t, "ns.Foo.Inner", inner.String(entity.FieldFullName))
	assert.Equal(t, "ns.Foo", inner.String(entity.FieldTopLevelFullName))
	assert.False(t, inner.Bool(entity.FieldIsTopLevel))
	assert.Equal(t, "01p000000000001", inner.String(entity.FieldClassID))

	assert.Equal(t, 2, g.Stats().Classes+g.Stats().InnerClasses)
}

func TestMethodsAndOverloads(t *testing.T) {
	st := newFakeStager()
	g := New(st, nil)
	require.NoError(t, g.Classes([]*symtab.Member{fooMember()}))

	methods := st.ofKind(entity.KindMethod)
	require.Len(t, methods, 5)
	classes := st.ofKind(entity.KindClass)

	// inner classes are generated before the outer class body
	assert.Equal(t, "go(): void", methods[0].Name)
	assert.Equal(t, classes[1].Key, st.linked(methods[0].Key, entity.FieldClass))

	ctor := methods[1]
	assert.True(t, ctor.Bool(entity.FieldIsConstructor))
	assert.Equal(t, "Foo()", ctor.Name)
	assert.Equal(t, "Foo()", ctor.String(entity.FieldSignature))
	assert.Equal(t, "Foo", ctor.String(entity.FieldReturnType))
	assert.Equal(t,
		hashkey.Key(42, entity.TagConstructor, hashkey.Parts("01p000000000001", "Foo", "Foo", nil, "2-12")),
		ctor.Key)

	execute := methods[2]
	assert.Equal(t, "execute(QueueableContext ctx): void", execute.Name)
	assert.Equal(t, "execute(QueueableContext): void", execute.String(entity.FieldSignature))
	assert.False(t, execute.Bool(entity.FieldIsOverloaded))
	assert.EqualValues(t, 10, execute.Line())
	assert.EqualValues(t, 1, execute.Int(entity.FieldParamCount))
	assert.Contains(t, execute.Key, ":"+entity.TagMethod+":")

	runA, runB := methods[3], methods[4]
	assert.True(t, runA.Bool(entity.FieldIsOverloaded))
	assert.True(t, runB.Bool(entity.FieldIsOverloaded))
	assert.Equal(t, "run(Integer): Integer", runB.String(entity.FieldSignature))

	for _, m := range methods[1:] {
		assert.Equal(t, classes[0].Key, st.linked(m.Key, entity.FieldClass))
	}
}

func TestDeclarationsAreShared(t *testing.T) {
	st := newFakeStager()
	g := New(st, nil)
	require.NoError(t, g.Classes([]*symtab.Member{fooMember()}))

	decls := st.ofKind(entity.KindDeclaration)
	names := map[string]string{}
	for _, d := range decls {
		names[d.Name] = d.String(entity.FieldDeclarationType)
	}
	// public appears on execute only; private on both run overloads
	assert.Equal(t, map[string]string{"public": "Modifier", "Future": "Annotation", "private": "Modifier"}, names)

	joins := st.ofKind(entity.KindMethodDeclaration)
	require.Len(t, joins, 4)
	joinNames := []string{}
	for _, j := range joins {
		joinNames = append(joinNames, j.Name)
	}
	assert.Contains(t, joinNames, "@Future execute(QueueableContext ctx): void")
	assert.Contains(t, joinNames, "public execute(QueueableContext ctx): void")
}

func TestPropertiesAndImplementations(t *testing.T) {
	st := newFakeStager()
	g := New(st, nil)
	require.NoError(t, g.Classes([]*symtab.Member{fooMember()}))

	props := st.ofKind(entity.KindProperty)
	require.Len(t, props, 1)
	assert.Equal(t, "Foo having count (Integer)", props[0].Name)
	assert.Equal(t, st.ofKind(entity.KindClass)[0].Key, st.linked(props[0].Key, entity.FieldClass))

	impls := st.ofKind(entity.KindInterfaceImplementation)
	require.Len(t, impls, 2)
	assert.Equal(t, "Foo implements Queueable", impls[0].Name)
	assert.Equal(t, "ns.Iface", impls[1].String(entity.FieldImplements))
	assert.Equal(t, st.ofKind(entity.KindClass)[0].Key, st.linked(impls[1].Key, entity.FieldImplementationClass))
}

func TestReferences(t *testing.T) {
	st := newFakeStager()
	g := New(st, nil)
	require.NoError(t, g.Classes([]*symtab.Member{fooMember()}))

	refs := st.ofKind(entity.KindMethodReference)
	require.Len(t, refs, 3)

	local := refs[0]
	assert.Equal(t, "execute(QueueableContext ctx): void => [40,9]", local.Name)
	assert.False(t, local.Bool(entity.FieldIsExternal))
	assert.Equal(t, "Foo", local.String(entity.FieldReferencedClassName))
	assert.Equal(t, "ns", local.String(entity.FieldReferencedNamespace))
	assert.Equal(t, "execute", local.String(entity.FieldReferencedMethodName))

	ext := refs[1]
	assert.Equal(t, "Foo => Util.log", ext.Name)
	assert.True(t, ext.Bool(entity.FieldIsExternal))
	assert.Nil(t, ext.Fields[entity.FieldReferencedNamespace])
	assert.EqualValues(t, 22, ext.Line())
	assert.Equal(t, st.ofKind(entity.KindClass)[0].Key, st.linked(ext.Key, entity.FieldUsedByClass))
	assert.NotEqual(t, refs[1].Key, refs[2].Key)
}

func TestMemberWithoutSymbolTableContinues(t *testing.T) {
	st := newFakeStager()
	g := New(st, nil)
	members := []*symtab.Member{
		{ID: "01p2", Kind: symtab.MemberClass, DisplayName: "Broken"},
		fooMember(),
	}
	require.NoError(t, g.Classes(members))

	classes := st.ofKind(entity.KindClass)
	require.Len(t, classes, 3)
	assert.Equal(t, "Broken", classes[0].Name)
	assert.False(t, classes[0].Bool(entity.FieldSymbolTableAvailable))
	assert.Equal(t, 1, g.Stats().NoSymbolTable)
}

func TestTrigger(t *testing.T) {
	st := newFakeStager()
	g := New(st, nil)
	members := []*symtab.Member{{
		ID: "01q1", Kind: symtab.MemberTrigger, DisplayName: "AccountTrigger", Status: symtab.TriggerActive,
		SymbolTable: &symtab.SymbolTable{
			Name: "AccountTrigger",
			ExternalReferences: []symtab.ExternalReference{{Name: "Handler", Methods: []symtab.ExternalMethod{
				{Name: "handle", References: []symtab.Position{{Line: 3, Column: 9}}},
			}}},
		},
	}}
	require.NoError(t, g.Triggers(members))

	triggers := st.ofKind(entity.KindTrigger)
	require.Len(t, triggers, 1)
	trg := triggers[0]
	assert.Equal(t, hashkey.Key(42, entity.TagTrigger, hashkey.Parts("01q1")), trg.Key)
	assert.True(t, trg.Bool(entity.FieldIsActive))
	assert.Equal(t, "AccountTrigger", trg.String(entity.FieldTriggerName))

	refs := st.ofKind(entity.KindMethodReference)
	require.Len(t, refs, 1)
	assert.Equal(t, "AccountTrigger => Handler.handle", refs[0].Name)
	assert.Equal(t, trg.Key, st.linked(refs[0].Key, entity.FieldUsedByTrigger))
}

func TestLongNamesAreTruncated(t *testing.T) {
	st := newFakeStager()
	g := New(st, nil)
	long := strings.Repeat("VeryLongName", 10)
	m := &symtab.Member{ID: "01p9", Kind: symtab.MemberClass, DisplayName: long,
		SymbolTable: &symtab.SymbolTable{Name: long}}
	require.NoError(t, g.Classes([]*symtab.Member{m}))

	cls := st.ofKind(entity.KindClass)[0]
	assert.Len(t, cls.Name, entity.MaxNameLength)
	assert.Equal(t, long, cls.String(entity.FieldFullName))
}
