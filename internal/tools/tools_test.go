package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/symtab-snapshot/internal/pipeline"
	"github.com/DeusData/symtab-snapshot/internal/selector"
	"github.com/DeusData/symtab-snapshot/internal/store"
	"github.com/DeusData/symtab-snapshot/internal/symtab"
)

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.UpsertContainer(ctx, &selector.Container{ID: "c-1", OrgID: "org-1"}))
	require.NoError(t, s.UpsertMembers(ctx, "c-1", []*symtab.Member{
		{
			ID: "01p000000000001", Kind: symtab.MemberClass, DisplayName: "Orphan",
			SymbolTable: &symtab.SymbolTable{
				Name:    "Orphan",
				Methods: []symtab.Method{{Name: "noop", ReturnType: "void", Location: symtab.Position{Line: 2, Column: 5}}},
			},
		},
	}))
	return s
}

func connect(t *testing.T, s *store.Store) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	srv := NewServer(s, pipeline.Options{OrgID: "org-1"})

	ct, st := mcp.NewInMemoryTransports()
	ss, err := srv.MCPServer().Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	if out != nil && !res.IsError {
		require.NoError(t, json.Unmarshal([]byte(text.Text), out), text.Text)
	}
	return res
}

func TestListTools(t *testing.T) {
	cs := connect(t, seedStore(t))
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"generate_snapshot", "list_snapshots", "snapshot_summary", "find_unreferenced", "compare_snapshots",
	}, names)
}

func TestGenerateThenReport(t *testing.T) {
	cs := connect(t, seedStore(t))

	var gen generateResult
	res := call(t, cs, "generate_snapshot", map[string]any{}, &gen)
	require.False(t, res.IsError)
	assert.NotZero(t, gen.SnapshotID)
	assert.Equal(t, "c-1", gen.ContainerID)
	assert.Equal(t, 1, gen.Counts["Class"])
	assert.Equal(t, 1, gen.Counts["Method"])

	var snaps []map[string]any
	call(t, cs, "list_snapshots", map[string]any{"org_id": "org-1"}, &snaps)
	require.Len(t, snaps, 1)
	assert.Equal(t, "Snapshot", snaps[0]["kind"])

	var sum store.Summary
	call(t, cs, "snapshot_summary", map[string]any{"snapshot_id": gen.SnapshotID}, &sum)
	assert.Equal(t, 1, sum.Counts["Class"])

	var dead []map[string]any
	call(t, cs, "find_unreferenced", map[string]any{"snapshot_id": gen.SnapshotID}, &dead)
	assert.Len(t, dead, 2)

	call(t, cs, "find_unreferenced", map[string]any{"snapshot_id": gen.SnapshotID, "kinds": []string{"Method"}}, &dead)
	require.Len(t, dead, 1)
	assert.Equal(t, "noop(): void", dead[0]["name"])

	var cmp store.Comparison
	call(t, cs, "compare_snapshots", map[string]any{"from": gen.SnapshotID, "to": gen.SnapshotID}, &cmp)
	assert.Empty(t, cmp.Changed)
}

func TestSummaryOfMissingSnapshotIsToolError(t *testing.T) {
	cs := connect(t, seedStore(t))
	res := call(t, cs, "snapshot_summary", map[string]any{"snapshot_id": 4242}, nil)
	assert.True(t, res.IsError)
}
