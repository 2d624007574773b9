// Package selector reads the input feed and previously persisted entities
// through named, parameterized query templates with paginated results.
package selector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/DeusData/symtab-snapshot/internal/entity"
	"github.com/DeusData/symtab-snapshot/internal/symtab"
)

// ErrPaginationFault wraps any failure reported by the Source while paging.
var ErrPaginationFault = errors.New("pagination fault")

// DefaultPageSize is used when a Selector is built with a non-positive size.
const DefaultPageSize = 200

// Row is one result row keyed by column name.
type Row map[string]any

// Page is one batch of a paginated result. Next is set whenever Done is false.
type Page struct {
	Rows []Row
	Done bool
	Next string
}

// Source executes rendered queries. QueryMore continues a result from the
// token of the previous page.
type Source interface {
	Query(ctx context.Context, query string, pageSize int) (*Page, error)
	QueryMore(ctx context.Context, token string) (*Page, error)
}

// Container identifies one batch of compiled members.
type Container struct {
	ID        string
	OrgID     string
	Namespace string
	CreatedAt string
}

// Selector binds a Source to a template set.
type Selector struct {
	src       Source
	templates *Templates
	pageSize  int
}

// New returns a Selector over the embedded templates.
func New(src Source, pageSize int) *Selector {
	return NewWithTemplates(src, DefaultTemplates(), pageSize)
}

// NewWithTemplates returns a Selector over a caller-provided template set.
func NewWithTemplates(src Source, t *Templates, pageSize int) *Selector {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Selector{src: src, templates: t, pageSize: pageSize}
}

// Each renders the named query and calls fn once per page until the result is
// exhausted. An error from fn stops paging and is returned unchanged.
func (s *Selector) Each(ctx context.Context, name string, params Params, fn func(rows []Row) error) error {
	query, err := s.templates.Render(name, params)
	if err != nil {
		return err
	}
	page, err := s.src.Query(ctx, query, s.pageSize)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPaginationFault, name, err)
	}
	for {
		if err := fn(page.Rows); err != nil {
			return err
		}
		if page.Done {
			return nil
		}
		if page.Next == "" {
			return fmt.Errorf("%w: %s: page not done but no continuation token", ErrPaginationFault, name)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err = s.src.QueryMore(ctx, page.Next)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPaginationFault, name, err)
		}
	}
}

// All collects every row of the named query.
func (s *Selector) All(ctx context.Context, name string, params Params) ([]Row, error) {
	var out []Row
	err := s.Each(ctx, name, params, func(rows []Row) error {
		out = append(out, rows...)
		return nil
	})
	return out, err
}

// ClassMembers pages through the class members of a container.
func (s *Selector) ClassMembers(ctx context.Context, containerID, namespace string, fn func([]*symtab.Member) error) error {
	return s.eachMember(ctx, "class_members", containerID, namespace, fn)
}

// TriggerMembers pages through the trigger members of a container.
func (s *Selector) TriggerMembers(ctx context.Context, containerID, namespace string, fn func([]*symtab.Member) error) error {
	return s.eachMember(ctx, "trigger_members", containerID, namespace, fn)
}

func (s *Selector) eachMember(ctx context.Context, query, containerID, namespace string, fn func([]*symtab.Member) error) error {
	params := Params{"containerId": containerID, "namespace": nullable(namespace)}
	return s.Each(ctx, query, params, func(rows []Row) error {
		members := make([]*symtab.Member, 0, len(rows))
		for _, row := range rows {
			m, err := decodeMember(row)
			if err != nil {
				return err
			}
			members = append(members, m)
		}
		return fn(members)
	})
}

// ScheduledJobClassIDs returns the ids of classes backing active scheduled jobs.
func (s *Selector) ScheduledJobClassIDs(ctx context.Context, orgID string) (map[string]bool, error) {
	rows, err := s.All(ctx, "scheduled_job_class_ids", Params{"orgId": orgID})
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(rows))
	for _, row := range rows {
		if id := row.String("class_id"); id != "" {
			ids[id] = true
		}
	}
	return ids, nil
}

// Container returns the container with the given id, or nil when absent.
func (s *Selector) Container(ctx context.Context, id string) (*Container, error) {
	rows, err := s.All(ctx, "container", Params{"containerId": id})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return decodeContainer(rows[0]), nil
}

// LatestContainer returns the most recently imported container of an org.
func (s *Selector) LatestContainer(ctx context.Context, orgID string) (*Container, error) {
	var found *Container
	err := s.Each(ctx, "latest_container", Params{"orgId": orgID}, func(rows []Row) error {
		if found == nil && len(rows) > 0 {
			found = decodeContainer(rows[0])
		}
		return nil
	})
	return found, err
}

// Entities returns every persisted entity of one kind in a snapshot.
func (s *Selector) Entities(ctx context.Context, snapshotID int64, kind entity.Kind) ([]*entity.Record, error) {
	var out []*entity.Record
	err := s.EachEntity(ctx, snapshotID, kind, func(recs []*entity.Record) error {
		out = append(out, recs...)
		return nil
	})
	return out, err
}

// EachEntity pages through the persisted entities of one kind in a snapshot.
func (s *Selector) EachEntity(ctx context.Context, snapshotID int64, kind entity.Kind, fn func([]*entity.Record) error) error {
	params := Params{"snapshotId": snapshotID, "kind": kind.String()}
	return s.Each(ctx, "entities_by_snapshot", params, decodeRecords(fn))
}

// EachSnapshotEntity pages through every entity of a snapshot.
func (s *Selector) EachSnapshotEntity(ctx context.Context, snapshotID int64, fn func([]*entity.Record) error) error {
	return s.Each(ctx, "snapshot_entities", Params{"snapshotId": snapshotID}, decodeRecords(fn))
}

func decodeRecords(fn func([]*entity.Record) error) func([]Row) error {
	return func(rows []Row) error {
		recs := make([]*entity.Record, 0, len(rows))
		for _, row := range rows {
			r, err := DecodeRecord(row)
			if err != nil {
				return err
			}
			recs = append(recs, r)
		}
		return fn(recs)
	}
}

// DecodeRecord converts an entities row into a Record.
func DecodeRecord(row Row) (*entity.Record, error) {
	kind, err := entity.ParseKind(row.String("kind"))
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if raw := row.Bytes("fields"); len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("decode fields of %s: %w", row.String("key"), err)
		}
	}
	return &entity.Record{
		Kind:   kind,
		ID:     row.Int("id"),
		Key:    row.String("key"),
		Name:   row.String("name"),
		Fields: fields,
	}, nil
}

func decodeMember(row Row) (*symtab.Member, error) {
	st, err := symtab.DecodeSymbolTable(row.Bytes("symbol_table"))
	if err != nil {
		return nil, fmt.Errorf("member %s: %w", row.String("id"), err)
	}
	return &symtab.Member{
		ID:          row.String("id"),
		Kind:        symtab.MemberKind(row.String("kind")),
		DisplayName: row.String("display_name"),
		Namespace:   row.String("namespace"),
		Status:      row.String("status"),
		SymbolTable: st,
		Digest:      row.String("digest"),
	}, nil
}

func decodeContainer(row Row) *Container {
	return &Container{
		ID:        row.String("id"),
		OrgID:     row.String("org_id"),
		Namespace: row.String("namespace"),
		CreatedAt: row.String("created_at"),
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// String returns a text column, or "" for NULL.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

// Bytes returns a text or blob column as bytes.
func (r Row) Bytes(col string) []byte {
	switch v := r[col].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	return nil
}

// Int returns an integer column, or 0.
func (r Row) Int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
