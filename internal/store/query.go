package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DeusData/symtab-snapshot/internal/selector"
)

// cursor is the decoded form of a continuation token.
type cursor struct {
	Query  string `json:"q"`
	Offset int    `json:"o"`
	Size   int    `json:"s"`
}

// Query runs a read-only query and returns its first page.
func (s *Store) Query(ctx context.Context, query string, pageSize int) (*selector.Page, error) {
	if pageSize <= 0 {
		pageSize = selector.DefaultPageSize
	}
	return s.page(ctx, cursor{Query: query, Size: pageSize})
}

// QueryMore returns the page a continuation token points at.
func (s *Store) QueryMore(ctx context.Context, token string) (*selector.Page, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if c.Size <= 0 || c.Offset < 0 {
		return nil, fmt.Errorf("invalid token")
	}
	return s.page(ctx, c)
}

func (s *Store) page(ctx context.Context, c cursor) (*selector.Page, error) {
	q := strings.TrimRight(strings.TrimSpace(c.Query), ";")
	// one extra row tells whether another page exists
	rows, err := s.q.QueryContext(ctx, q+"\nLIMIT ? OFFSET ?", c.Size+1, c.Offset)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	page := &selector.Page{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(selector.Row, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		page.Rows = append(page.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(page.Rows) <= c.Size {
		page.Done = true
		return page, nil
	}
	page.Rows = page.Rows[:c.Size]
	next, err := json.Marshal(cursor{Query: c.Query, Offset: c.Offset + c.Size, Size: c.Size})
	if err != nil {
		return nil, err
	}
	page.Next = base64.RawURLEncoding.EncodeToString(next)
	return page, nil
}
