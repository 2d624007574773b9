package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/DeusData/symtab-snapshot/internal/store"
)

// LoadSQLite reads a bundle from an exported SQLite file. The file holds a
// members table (id, kind, display_name, namespace, status, symbol_table)
// and optionally a scheduled_jobs table (id, class_id, status). Opts must
// name the container and org since the export carries neither.
func LoadSQLite(ctx context.Context, path string, opts Options) (*Bundle, error) {
	if opts.ContainerID == "" || opts.OrgID == "" {
		return nil, fmt.Errorf("load %s: container and org ids are required", path)
	}
	t := time.Now()
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	b := &Bundle{}
	opts.apply(&b.Container)
	b.Container.CreatedAt = store.Now()

	rows, err := db.QueryContext(ctx, `SELECT id, kind, display_name,
		COALESCE(namespace, ''), COALESCE(status, ''), symbol_table
		FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var doc struct {
			ID          string          `json:"id"`
			Kind        string          `json:"kind"`
			DisplayName string          `json:"displayName"`
			Namespace   string          `json:"namespace,omitempty"`
			Status      string          `json:"status,omitempty"`
			SymbolTable json.RawMessage `json:"symbolTable"`
		}
		var table sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Kind, &doc.DisplayName, &doc.Namespace, &doc.Status, &table); err != nil {
			return nil, err
		}
		doc.SymbolTable = json.RawMessage("null")
		if table.Valid && table.String != "" {
			doc.SymbolTable = json.RawMessage(table.String)
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		m, err := decodeMember(raw)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", doc.ID, err)
		}
		b.Members = append(b.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	jobs, err := loadJobs(ctx, db)
	if err != nil {
		return nil, err
	}
	b.Jobs = jobs

	slog.Info("feed.load", "source", path, "members", len(b.Members), "jobs", len(b.Jobs), "elapsed", time.Since(t))
	return b, nil
}

func loadJobs(ctx context.Context, db *sql.DB) ([]store.ScheduledJob, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'scheduled_jobs'").Scan(&n)
	if err != nil || n == 0 {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT id, class_id, status FROM scheduled_jobs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("read scheduled jobs: %w", err)
	}
	defer rows.Close()
	var out []store.ScheduledJob
	for rows.Next() {
		var j store.ScheduledJob
		if err := rows.Scan(&j.ID, &j.ClassID, &j.Status); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
