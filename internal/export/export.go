// Package export streams a snapshot out of the store as JSON lines.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/selector"
	"github.com/DeusData/symtab-snapshot/internal/store"
)

// Object is one export being written. Exactly one of Commit or Abort must be
// called; an aborted object leaves nothing behind.
type Object interface {
	io.Writer
	Commit() error
	Abort()
}

// Sink creates export objects.
type Sink interface {
	Create(ctx context.Context, name string) (Object, error)
	// Location describes where name ends up, for logs and CLI output.
	Location(name string) string
}

// Result describes a finished export.
type Result struct {
	SnapshotID int64
	Records    int
	Location   string
}

// ObjectName is the name every sink stores a snapshot under.
func ObjectName(snapshotID int64) string {
	return fmt.Sprintf("snapshots/%d.jsonl", snapshotID)
}

// Write exports the snapshot record followed by every entity of the
// snapshot, one JSON object per line.
func Write(ctx context.Context, s *store.Store, sink Sink, snapshotID int64) (*Result, error) {
	snap, err := s.FindEntityByID(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap == nil || snap.Kind != entity.KindSnapshot {
		return nil, fmt.Errorf("snapshot %d not found", snapshotID)
	}

	t := time.Now()
	name := ObjectName(snapshotID)
	obj, err := sink.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	bw := bufio.NewWriter(obj)
	enc := json.NewEncoder(bw)
	n := 0
	emit := func(r *entity.Record) error {
		n++
		return enc.Encode(r)
	}

	err = emit(snap)
	if err == nil {
		err = selector.New(s, 0).EachSnapshotEntity(ctx, snapshotID, func(recs []*entity.Record) error {
			for _, r := range recs {
				if err := emit(r); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		obj.Abort()
		return nil, fmt.Errorf("export snapshot %d: %w", snapshotID, err)
	}
	if err := obj.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s: %w", name, err)
	}

	res := &Result{SnapshotID: snapshotID, Records: n, Location: sink.Location(name)}
	slog.Info("export.done", "snapshot", snapshotID, "records", n, "location", res.Location, "elapsed", time.Since(t))
	return res, nil
}
