package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/symtab-snapshot/internal/entity"
)

func node(kind entity.Kind, id int64, key string, fields map[string]any) *entity.Record {
	r := entity.New(kind, key, fields)
	r.ID = id
	r.Key = key
	return r
}

func TestScoreClamp(t *testing.T) {
	g := New()
	_, err := g.AddNode(node(entity.KindClass, 1, "c", nil))
	require.NoError(t, err)

	require.NoError(t, g.AddToScore("c", 60, 0))
	require.NoError(t, g.AddToScore("c", 60, 0))
	assert.Equal(t, 100.0, g.Node("c").Score)
}

func TestCycleTerminates(t *testing.T) {
	g := New()
	a := node(entity.KindMethod, 1, "a", nil)
	b := node(entity.KindMethod, 2, "b", nil)
	require.NoError(t, g.AddEdge(a, b))
	require.NoError(t, g.AddEdge(b, a))

	require.NoError(t, g.AddToScore("a", 30, 20))
	assert.Equal(t, 30.0, g.Node("a").Score)
	assert.Equal(t, 20.0, g.Node("b").Score)
}

func TestPropagationReachesEveryNodeOnce(t *testing.T) {
	// diamond: t -> m1, t -> m2, m1 -> c, m2 -> c
	g := New()
	trg := node(entity.KindTrigger, 1, "t", nil)
	m1 := node(entity.KindMethod, 2, "m1", nil)
	m2 := node(entity.KindMethod, 3, "m2", nil)
	c := node(entity.KindClass, 4, "c", nil)
	require.NoError(t, g.AddEdge(trg, m1))
	require.NoError(t, g.AddEdge(trg, m2))
	require.NoError(t, g.AddEdge(m1, c))
	require.NoError(t, g.AddEdge(m2, c))
	require.NoError(t, g.AddEdge(m2, c))
	assert.Len(t, g.Node("m2").Out, 1)

	require.NoError(t, g.AddToScore("t", 1, 0.5))
	assert.Equal(t, 1.0, g.Node("t").Score)
	assert.Equal(t, 0.5, g.Node("m1").Score)
	assert.Equal(t, 0.5, g.Node("m2").Score)
	assert.Equal(t, 0.5, g.Node("c").Score)
}

func TestStoredScoreIsStartingPoint(t *testing.T) {
	g := New()
	n, err := g.AddNode(node(entity.KindMethod, 1, "m", map[string]any{entity.FieldScore: 40.0}))
	require.NoError(t, err)
	assert.Equal(t, 40.0, n.Score)
	require.NoError(t, g.AddToScore("m", 10, 0))
	assert.Equal(t, 50.0, n.Score)
}

func TestRejectsNonGraphKinds(t *testing.T) {
	g := New()
	_, err := g.AddNode(node(entity.KindProperty, 1, "p", nil))
	assert.Error(t, err)
	assert.Error(t, g.AddToScore("missing", 1, 1))
}

func TestBuild(t *testing.T) {
	trg := node(entity.KindTrigger, 1, "trg", nil)
	svc := node(entity.KindClass, 2, "svc", nil)
	iface := node(entity.KindClass, 3, "iface", nil)
	run := node(entity.KindMethod, 4, "run", map[string]any{entity.FieldClass: int64(2)})
	helper := node(entity.KindMethod, 5, "helper", map[string]any{entity.FieldClass: int64(2)})

	in := Input{
		Classes:  []*entity.Record{svc, iface},
		Triggers: []*entity.Record{trg},
		Methods:  []*entity.Record{run, helper},
		MethodReferences: []*entity.Record{
			node(entity.KindMethodReference, 10, "r1", map[string]any{
				entity.FieldReferencedMethod: int64(4),
				entity.FieldUsedByTrigger:    int64(1),
			}),
			node(entity.KindMethodReference, 11, "r2", map[string]any{
				entity.FieldReferencedMethod: int64(5),
				entity.FieldUsedByClass:      int64(2),
				entity.FieldUsedByMethod:     int64(4),
			}),
			// unresolved references add no edge
			node(entity.KindMethodReference, 12, "r3", map[string]any{entity.FieldUsedByClass: int64(2)}),
		},
		InterfaceImplementations: []*entity.Record{
			node(entity.KindInterfaceImplementation, 20, "i1", map[string]any{
				entity.FieldImplementationClass: int64(2),
				entity.FieldImplementsInterface: int64(3),
			}),
		},
	}
	g, err := Build(in)
	require.NoError(t, err)
	assert.Equal(t, 5, g.Len())

	assert.ElementsMatch(t, []string{"run", "svc"}, g.Node("trg").Out)
	assert.ElementsMatch(t, []string{"helper", "svc"}, g.Node("run").Out)
	assert.ElementsMatch(t, []string{"helper", "svc", "iface"}, g.Node("svc").Out)

	require.NoError(t, g.AddToScore("trg", 100, 100))
	for _, k := range []string{"trg", "svc", "iface", "run", "helper"} {
		assert.Equal(t, 100.0, g.Node(k).Score, k)
	}
}
