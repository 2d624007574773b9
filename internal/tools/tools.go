// Package tools exposes snapshot generation and the snapshot reports as MCP
// tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/symtab-snapshot/internal/pipeline"
	"github.com/DeusData/symtab-snapshot/internal/store"
)

// Version is reported to MCP clients.
var Version = "dev"

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp   *mcp.Server
	store *store.Store
	base  pipeline.Options

	// runs are serialized; each one writes a whole snapshot
	runMu sync.Mutex
}

// NewServer registers every tool. base carries the configured pipeline
// settings that generate_snapshot starts from.
func NewServer(s *store.Store, base pipeline.Options) *Server {
	srv := &Server{
		store: s,
		base:  base,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "symtab-snapshot",
			Version: Version,
		}, nil),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Run serves over stdio until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// inputSchema derives the schema of a tool's arguments from In and lets
// mutate add what struct tags cannot express.
func inputSchema[In any](mutate func(props map[string]*jsonschema.Schema)) *jsonschema.Schema {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		panic(fmt.Sprintf("schema for %T: %v", *new(In), err))
	}
	if mutate != nil {
		mutate(schema.Properties)
	}
	return schema
}

func minimum(v float64) *float64 { return &v }

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "generate_snapshot",
		Description: "Generate a new snapshot from the latest imported container of an org (or a given container). " +
			"Builds classes, triggers, methods, properties and references, resolves lookups, scores reachability and " +
			"marks the snapshot latest. Returns the snapshot id and entity counts.",
		InputSchema: inputSchema[generateArgs](nil),
	}, s.handleGenerateSnapshot)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_snapshots",
		Description: "List the snapshots of an org, newest first, with their latest flag, run id and container.",
		InputSchema: inputSchema[orgArgs](nil),
	}, s.handleListSnapshots)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "snapshot_summary",
		Description: "Entity counts per kind and score histograms (zero, low, high, maximum) for one snapshot.",
		InputSchema: inputSchema[snapshotArgs](func(p map[string]*jsonschema.Schema) {
			p["snapshot_id"].Minimum = minimum(1)
		}),
	}, s.handleSnapshotSummary)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "find_unreferenced",
		Description: "Dead-code candidates: classes, triggers and methods of a snapshot whose reachability score is " +
			"at most max_score (default 0), lowest score first.",
		InputSchema: inputSchema[unreferencedArgs](func(p map[string]*jsonschema.Schema) {
			p["snapshot_id"].Minimum = minimum(1)
			p["max_score"].Minimum = minimum(0)
			p["max_score"].Maximum = minimum(100)
			p["limit"].Minimum = minimum(0)
			p["kinds"].Items = &jsonschema.Schema{Type: "string", Enum: []any{"Class", "Trigger", "Method"}}
		}),
	}, s.handleFindUnreferenced)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "compare_snapshots",
		Description: "Classes added, removed or changed (by source digest) between two snapshots, matched by full name.",
		InputSchema: inputSchema[compareArgs](func(p map[string]*jsonschema.Schema) {
			p["from"].Minimum = minimum(1)
			p["to"].Minimum = minimum(1)
		}),
	}, s.handleCompareSnapshots)
}

// jsonResult marshals data to JSON and returns it as the tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
