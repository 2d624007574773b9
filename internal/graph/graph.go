// Package graph holds the usage graph of a snapshot and propagates reference
// scores through it.
package graph

import (
	"fmt"
	"math"

	"github.com/DeusData/symtab-snapshot/internal/entity"
)

// Node is one class, trigger or method. Out lists the keys of the nodes this
// one uses.
type Node struct {
	Key    string
	Record *entity.Record
	Score  float64
	Out    []string

	outSet map[string]bool
}

// Graph is an arena of nodes addressed by content key. Edges are plain key
// references, so cycles need no special ownership handling.
type Graph struct {
	nodes map[string]*Node
	order []string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: map[string]*Node{}}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	for i, k := range g.order {
		out[i] = g.nodes[k]
	}
	return out
}

// Node returns the node for key, or nil.
func (g *Graph) Node(key string) *Node { return g.nodes[key] }

// AddNode returns rec's node, creating it on first sight. Its score starts at
// the record's stored score.
func (g *Graph) AddNode(rec *entity.Record) (*Node, error) {
	if rec == nil {
		return nil, fmt.Errorf("add node: nil record")
	}
	if !rec.Kind.IsGraphNode() {
		return nil, fmt.Errorf("add node %s: %s is not a graph node", rec.Key, rec.Kind)
	}
	if n, ok := g.nodes[rec.Key]; ok {
		return n, nil
	}
	n := &Node{Key: rec.Key, Record: rec, Score: clamp(rec.Score()), outSet: map[string]bool{}}
	g.nodes[rec.Key] = n
	g.order = append(g.order, rec.Key)
	return n, nil
}

// AddEdge records that from uses to. Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to *entity.Record) error {
	a, err := g.AddNode(from)
	if err != nil {
		return err
	}
	b, err := g.AddNode(to)
	if err != nil {
		return err
	}
	if !a.outSet[b.Key] {
		a.outSet[b.Key] = true
		a.Out = append(a.Out, b.Key)
	}
	return nil
}

// AddToScore adds add to the node at key and, when propagate is non-zero,
// adds propagate to every node reachable from it. Each node is touched at
// most once per call, which bounds the walk on cyclic graphs.
func (g *Graph) AddToScore(key string, add, propagate float64) error {
	root, ok := g.nodes[key]
	if !ok {
		return fmt.Errorf("add to score: unknown node %s", key)
	}
	visited := map[string]bool{key: true}
	root.Score = clamp(root.Score + add)
	if propagate == 0 {
		return nil
	}
	stack := append([]string(nil), root.Out...)
	for len(stack) > 0 {
		k := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[k] {
			continue
		}
		visited[k] = true
		n := g.nodes[k]
		n.Score = clamp(n.Score + propagate)
		stack = append(stack, n.Out...)
	}
	return nil
}

func clamp(score float64) float64 {
	return math.Max(0, math.Min(entity.MaxScore, score))
}
