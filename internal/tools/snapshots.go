package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/pipeline"
)

type generateArgs struct {
	OrgID       string `json:"org_id,omitempty" jsonschema:"org to snapshot; defaults to the configured org"`
	Namespace   string `json:"namespace,omitempty" jsonschema:"org namespace; defaults to the container's namespace"`
	ContainerID string `json:"container_id,omitempty" jsonschema:"input container; defaults to the org's latest"`
}

type orgArgs struct {
	OrgID string `json:"org_id,omitempty" jsonschema:"org whose snapshots to list; defaults to the configured org"`
}

type snapshotArgs struct {
	SnapshotID int64 `json:"snapshot_id" jsonschema:"snapshot id as returned by list_snapshots"`
}

type unreferencedArgs struct {
	SnapshotID int64    `json:"snapshot_id" jsonschema:"snapshot id as returned by list_snapshots"`
	MaxScore   float64  `json:"max_score,omitempty" jsonschema:"highest score still reported (0-100)"`
	Kinds      []string `json:"kinds,omitempty" jsonschema:"entity kinds to include (default Class, Trigger, Method)"`
	Limit      int      `json:"limit,omitempty" jsonschema:"max results (default 100)"`
}

type compareArgs struct {
	From int64 `json:"from" jsonschema:"older snapshot id"`
	To   int64 `json:"to" jsonschema:"newer snapshot id"`
}

type generateResult struct {
	SnapshotID  int64          `json:"snapshot_id"`
	SnapshotKey string         `json:"snapshot_key"`
	RunID       string         `json:"run_id"`
	ContainerID string         `json:"container_id"`
	Counts      map[string]int `json:"counts"`
	Elapsed     string         `json:"elapsed"`
}

func (s *Server) handleGenerateSnapshot(ctx context.Context, _ *mcp.CallToolRequest, in generateArgs) (*mcp.CallToolResult, any, error) {
	opts := s.base
	if in.OrgID != "" {
		opts.OrgID = in.OrgID
	}
	if in.Namespace != "" {
		opts.OrgNamespace = in.Namespace
	}
	opts.ContainerID = in.ContainerID
	if opts.OrgID == "" && opts.ContainerID == "" {
		return errResult("org_id or container_id is required"), nil, nil
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()
	res, err := pipeline.New(ctx, s.store, opts).Run()
	if err != nil {
		slog.Warn("tools.generate.failed", "org", opts.OrgID, "err", err)
		return errResult(fmt.Sprintf("generate failed: %v", err)), nil, nil
	}

	counts := make(map[string]int, len(res.Counts))
	for k, n := range res.Counts {
		counts[k.String()] = n
	}
	return jsonResult(generateResult{
		SnapshotID:  res.SnapshotID,
		SnapshotKey: res.SnapshotKey,
		RunID:       res.RunID,
		ContainerID: res.ContainerID,
		Counts:      counts,
		Elapsed:     res.Elapsed.String(),
	}), nil, nil
}

func (s *Server) handleListSnapshots(ctx context.Context, _ *mcp.CallToolRequest, in orgArgs) (*mcp.CallToolResult, any, error) {
	org := in.OrgID
	if org == "" {
		org = s.base.OrgID
	}
	if org == "" {
		return errResult("org_id is required"), nil, nil
	}
	snaps, err := s.store.ListSnapshots(ctx, org)
	if err != nil {
		return errResult(fmt.Sprintf("list snapshots: %v", err)), nil, nil
	}
	if snaps == nil {
		snaps = []*entity.Record{}
	}
	return jsonResult(snaps), nil, nil
}

func (s *Server) handleSnapshotSummary(ctx context.Context, _ *mcp.CallToolRequest, in snapshotArgs) (*mcp.CallToolResult, any, error) {
	sum, err := s.store.SnapshotSummary(ctx, in.SnapshotID)
	if err != nil {
		return errResult(err.Error()), nil, nil
	}
	return jsonResult(sum), nil, nil
}

func (s *Server) handleFindUnreferenced(ctx context.Context, _ *mcp.CallToolRequest, in unreferencedArgs) (*mcp.CallToolResult, any, error) {
	var kinds []entity.Kind
	for _, name := range in.Kinds {
		k, err := entity.ParseKind(name)
		if err != nil {
			return errResult(err.Error()), nil, nil
		}
		kinds = append(kinds, k)
	}
	recs, err := s.store.Unreferenced(ctx, in.SnapshotID, in.MaxScore, kinds, in.Limit)
	if err != nil {
		return errResult(fmt.Sprintf("find unreferenced: %v", err)), nil, nil
	}
	type candidate struct {
		ID       int64   `json:"id"`
		Kind     string  `json:"kind"`
		Name     string  `json:"name"`
		FullName string  `json:"full_name,omitempty"`
		Score    float64 `json:"score"`
	}
	out := make([]candidate, 0, len(recs))
	for _, r := range recs {
		out = append(out, candidate{
			ID:       r.ID,
			Kind:     r.Kind.String(),
			Name:     r.Name,
			FullName: r.String(entity.FieldFullName),
			Score:    r.Score(),
		})
	}
	return jsonResult(out), nil, nil
}

func (s *Server) handleCompareSnapshots(ctx context.Context, _ *mcp.CallToolRequest, in compareArgs) (*mcp.CallToolResult, any, error) {
	cmp, err := s.store.CompareSnapshots(ctx, in.From, in.To)
	if err != nil {
		return errResult(fmt.Sprintf("compare snapshots: %v", err)), nil, nil
	}
	return jsonResult(cmp), nil, nil
}
