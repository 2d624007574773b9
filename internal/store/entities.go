package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/selector"
)

const numEntityCols = 6

// maxEntityChunk keeps one multi-row insert under SQLite's 999 bind variables.
const maxEntityChunk = 999 / numEntityCols

// UpsertResult reports the outcome for one record of an UpsertByKey batch.
type UpsertResult struct {
	Key     string
	ID      int64
	Success bool
	Err     error
}

// UpsertByKey inserts or updates records by content key, chunkSize records
// per statement. Results line up with recs. A chunk that fails as a whole is
// retried row by row so that each record gets its own error; the batch is not
// transactional across chunks. The returned error is reserved for failures
// that affect the call itself (cancellation, lost connection).
//
// Updates merge fields: values present on the record replace stored ones,
// fields absent from the record keep their stored value.
func (s *Store) UpsertByKey(ctx context.Context, kind entity.Kind, recs []*entity.Record, chunkSize int) ([]UpsertResult, error) {
	if chunkSize <= 0 || chunkSize > maxEntityChunk {
		chunkSize = maxEntityChunk
	}
	results := make([]UpsertResult, len(recs))
	for i := 0; i < len(recs); i += chunkSize {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		end := min(i+chunkSize, len(recs))
		if err := s.upsertChunk(ctx, kind, recs[i:end], results[i:end]); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (s *Store) upsertChunk(ctx context.Context, kind entity.Kind, recs []*entity.Record, results []UpsertResult) error {
	valid := make([]*entity.Record, 0, len(recs))
	validIdx := make([]int, 0, len(recs))
	for i, r := range recs {
		results[i].Key = r.Key
		switch {
		case r.Key == "":
			results[i].Err = errors.New("record has no content key")
		case r.Kind != kind:
			results[i].Err = fmt.Errorf("record %s is a %s, batch is %s", r.Key, r.Kind, kind)
		default:
			valid = append(valid, r)
			validIdx = append(validIdx, i)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	err := s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.insertEntities(ctx, kind, valid); err != nil {
			return err
		}
		if kind == entity.KindSnapshot {
			return tx.demoteOtherSnapshots(ctx, valid)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// isolate the failing rows
		for j, r := range valid {
			single := []*entity.Record{r}
			rowErr := s.WithTransaction(ctx, func(tx *Store) error {
				if err := tx.insertEntities(ctx, kind, single); err != nil {
					return err
				}
				if kind == entity.KindSnapshot {
					return tx.demoteOtherSnapshots(ctx, single)
				}
				return nil
			})
			if rowErr != nil {
				results[validIdx[j]].Err = rowErr
			}
		}
	}

	ids, err := s.resolveEntityIDs(ctx, valid)
	if err != nil {
		return err
	}
	for j, r := range valid {
		res := &results[validIdx[j]]
		if res.Err != nil {
			continue
		}
		got, ok := ids[r.Key]
		switch {
		case !ok:
			res.Err = fmt.Errorf("record %s not found after upsert", r.Key)
		case got.kind != kind.String():
			res.Err = fmt.Errorf("content key %s already used by a %s", r.Key, got.kind)
		default:
			res.ID = got.id
			res.Success = true
		}
	}
	return nil
}

func (s *Store) insertEntities(ctx context.Context, kind entity.Kind, recs []*entity.Record) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO entities (snapshot_id, kind, key, name, fields, updated_at) VALUES ")
	args := make([]any, 0, len(recs)*numEntityCols)
	now := Now()
	for i, r := range recs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?,?)")
		fields, err := marshalFields(r.Fields)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", r.Key, err)
		}
		args = append(args, r.Ref(entity.FieldSnapshot), kind.String(), r.Key, r.Name, fields, now)
	}
	sb.WriteString(` ON CONFLICT(key) DO UPDATE SET
		snapshot_id = CASE WHEN excluded.snapshot_id <> 0 THEN excluded.snapshot_id ELSE entities.snapshot_id END,
		name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE entities.name END,
		fields = json_patch(entities.fields, excluded.fields),
		updated_at = excluded.updated_at
		WHERE entities.kind = excluded.kind`)

	if _, err := s.q.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("upsert %s: %w", kind, err)
	}
	return nil
}

// demoteOtherSnapshots clears the latest flag on every other snapshot of the
// same org whenever one of recs is being marked latest.
func (s *Store) demoteOtherSnapshots(ctx context.Context, recs []*entity.Record) error {
	for _, r := range recs {
		if !r.Bool(entity.FieldIsLatest) {
			continue
		}
		_, err := s.q.ExecContext(ctx, `UPDATE entities
			SET fields = json_set(fields, '$.is_latest', json('false'))
			WHERE kind = ? AND key <> ? AND COALESCE(json_extract(fields, '$.org_id'), '') = ?`,
			entity.KindSnapshot.String(), r.Key, r.String(entity.FieldOrgID))
		if err != nil {
			return fmt.Errorf("demote snapshots: %w", err)
		}
	}
	return nil
}

type idKind struct {
	id   int64
	kind string
}

// resolveEntityIDs looks up the live ids for the given records' keys.
func (s *Store) resolveEntityIDs(ctx context.Context, recs []*entity.Record) (map[string]idKind, error) {
	out := make(map[string]idKind, len(recs))
	const batchSize = 998
	for i := 0; i < len(recs); i += batchSize {
		end := min(i+batchSize, len(recs))
		chunk := recs[i:end]
		placeholders := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for j, r := range chunk {
			placeholders[j] = "?"
			args[j] = r.Key
		}
		query := "SELECT id, key, kind FROM entities WHERE key IN (" + strings.Join(placeholders, ",") + ")"
		if err := func() error {
			rows, err := s.q.QueryContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("resolve ids: %w", err)
			}
			defer rows.Close()
			for rows.Next() {
				var ik idKind
				var key string
				if err := rows.Scan(&ik.id, &key, &ik.kind); err != nil {
					return err
				}
				out[key] = ik
			}
			return rows.Err()
		}(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const entityCols = "id, kind, key, name, fields"

// FindEntityByKey returns the entity with the given content key, or nil.
func (s *Store) FindEntityByKey(ctx context.Context, key string) (*entity.Record, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+entityCols+" FROM entities WHERE key = ?", key)
	if err != nil {
		return nil, fmt.Errorf("find by key: %w", err)
	}
	defer rows.Close()
	recs, err := scanEntities(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// FindEntityByID returns the entity with the given id, or nil.
func (s *Store) FindEntityByID(ctx context.Context, id int64) (*entity.Record, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+entityCols+" FROM entities WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("find by id: %w", err)
	}
	defer rows.Close()
	recs, err := scanEntities(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// CountEntities returns the number of entities per kind in a snapshot.
func (s *Store) CountEntities(ctx context.Context, snapshotID int64) (map[entity.Kind]int, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT kind, COUNT(*) FROM entities WHERE snapshot_id = ? GROUP BY kind", snapshotID)
	if err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}
	defer rows.Close()
	out := map[entity.Kind]int{}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		k, err := entity.ParseKind(kind)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

func scanEntities(rows *sql.Rows) ([]*entity.Record, error) {
	var out []*entity.Record
	for rows.Next() {
		var id int64
		var kind, key, name, fields string
		if err := rows.Scan(&id, &kind, &key, &name, &fields); err != nil {
			return nil, err
		}
		rec, err := selector.DecodeRecord(selector.Row{
			"id": id, "kind": kind, "key": key, "name": name, "fields": fields,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
