package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/DeusData/symtab-snapshot/internal/entity"
)

// ListSnapshots returns the snapshots of an org, newest first. An empty orgID
// lists every snapshot.
func (s *Store) ListSnapshots(ctx context.Context, orgID string) ([]*entity.Record, error) {
	query := "SELECT " + entityCols + " FROM entities WHERE kind = ?"
	args := []any{entity.KindSnapshot.String()}
	if orgID != "" {
		query += " AND COALESCE(json_extract(fields, '$.org_id'), '') = ?"
		args = append(args, orgID)
	}
	query += " ORDER BY id DESC"
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// LatestSnapshot returns the snapshot flagged latest for an org, or nil.
func (s *Store) LatestSnapshot(ctx context.Context, orgID string) (*entity.Record, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+entityCols+` FROM entities
		WHERE kind = ? AND json_extract(fields, '$.is_latest') = 1
		AND COALESCE(json_extract(fields, '$.org_id'), '') = ?
		ORDER BY id DESC LIMIT 1`, entity.KindSnapshot.String(), orgID)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	defer rows.Close()
	recs, err := scanEntities(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// Unreferenced returns classes, triggers and methods of a snapshot whose score
// is at most maxScore, lowest score first.
func (s *Store) Unreferenced(ctx context.Context, snapshotID int64, maxScore float64, kinds []entity.Kind, limit int) ([]*entity.Record, error) {
	if len(kinds) == 0 {
		kinds = []entity.Kind{entity.KindClass, entity.KindTrigger, entity.KindMethod}
	}
	if limit <= 0 {
		limit = 100
	}
	placeholders := make([]string, len(kinds))
	args := []any{snapshotID}
	for i, k := range kinds {
		if !k.IsGraphNode() {
			return nil, fmt.Errorf("%s entities carry no score", k)
		}
		placeholders[i] = "?"
		args = append(args, k.String())
	}
	args = append(args, maxScore, limit)
	rows, err := s.q.QueryContext(ctx, "SELECT "+entityCols+` FROM entities
		WHERE snapshot_id = ? AND kind IN (`+strings.Join(placeholders, ",")+`)
		AND COALESCE(json_extract(fields, '$.score'), 0) <= ?
		ORDER BY COALESCE(json_extract(fields, '$.score'), 0), name, id
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("unreferenced: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// ScoreBuckets counts scored entities by band.
type ScoreBuckets struct {
	Zero    int `json:"zero"`
	Low     int `json:"low"`  // (0, 50)
	High    int `json:"high"` // [50, 100)
	Maximum int `json:"maximum"`
}

// Summary describes one snapshot.
type Summary struct {
	Snapshot *entity.Record          `json:"snapshot"`
	Counts   map[string]int          `json:"counts"`
	Scores   map[string]ScoreBuckets `json:"scores"`
}

// SnapshotSummary counts a snapshot's entities and buckets their scores.
func (s *Store) SnapshotSummary(ctx context.Context, snapshotID int64) (*Summary, error) {
	snap, err := s.FindEntityByID(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap == nil || snap.Kind != entity.KindSnapshot {
		return nil, fmt.Errorf("snapshot %d not found", snapshotID)
	}
	counts, err := s.CountEntities(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Snapshot: snap, Counts: map[string]int{}, Scores: map[string]ScoreBuckets{}}
	for k, n := range counts {
		sum.Counts[k.String()] = n
	}

	rows, err := s.q.QueryContext(ctx, `SELECT kind,
			SUM(CASE WHEN sc = 0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN sc > 0 AND sc < 50 THEN 1 ELSE 0 END),
			SUM(CASE WHEN sc >= 50 AND sc < 100 THEN 1 ELSE 0 END),
			SUM(CASE WHEN sc >= 100 THEN 1 ELSE 0 END)
		FROM (SELECT kind, COALESCE(json_extract(fields, '$.score'), 0) AS sc
			FROM entities WHERE snapshot_id = ? AND kind IN (?, ?, ?))
		GROUP BY kind`,
		snapshotID, entity.KindClass.String(), entity.KindTrigger.String(), entity.KindMethod.String())
	if err != nil {
		return nil, fmt.Errorf("score buckets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var b ScoreBuckets
		if err := rows.Scan(&kind, &b.Zero, &b.Low, &b.High, &b.Maximum); err != nil {
			return nil, err
		}
		sum.Scores[kind] = b
	}
	return sum, rows.Err()
}

// Comparison lists class full names that differ between two snapshots.
type Comparison struct {
	From    int64    `json:"from"`
	To      int64    `json:"to"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
}

// CompareSnapshots matches classes by full name and compares their source
// digests. Classes without a digest on either side are never reported as
// changed.
func (s *Store) CompareSnapshots(ctx context.Context, from, to int64) (*Comparison, error) {
	a, err := s.classDigests(ctx, from)
	if err != nil {
		return nil, err
	}
	b, err := s.classDigests(ctx, to)
	if err != nil {
		return nil, err
	}
	cmp := &Comparison{From: from, To: to}
	for name, digest := range b {
		old, ok := a[name]
		switch {
		case !ok:
			cmp.Added = append(cmp.Added, name)
		case old != "" && digest != "" && old != digest:
			cmp.Changed = append(cmp.Changed, name)
		}
	}
	for name := range a {
		if _, ok := b[name]; !ok {
			cmp.Removed = append(cmp.Removed, name)
		}
	}
	sort.Strings(cmp.Added)
	sort.Strings(cmp.Removed)
	sort.Strings(cmp.Changed)
	return cmp, nil
}

func (s *Store) classDigests(ctx context.Context, snapshotID int64) (map[string]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT
			COALESCE(json_extract(fields, '$.full_name'), ''),
			COALESCE(json_extract(fields, '$.source_digest'), '')
		FROM entities WHERE snapshot_id = ? AND kind = ?`, snapshotID, entity.KindClass.String())
	if err != nil {
		return nil, fmt.Errorf("class digests: %w", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var name, digest string
		if err := rows.Scan(&name, &digest); err != nil {
			return nil, err
		}
		out[name] = digest
	}
	return out, rows.Err()
}
