package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DeusData/symtab-snapshot/internal/selector"
	"github.com/DeusData/symtab-snapshot/internal/symtab"
)

// ScheduledJob is one row of the entry-point signal feed.
type ScheduledJob struct {
	ID      string `json:"id" yaml:"id"`
	ClassID string `json:"class_id" yaml:"class_id"`
	Status  string `json:"status" yaml:"status"`
}

const membersBatchSize = 100

// UpsertContainer creates or replaces a container row.
func (s *Store) UpsertContainer(ctx context.Context, c *selector.Container) error {
	createdAt := c.CreatedAt
	if createdAt == "" {
		createdAt = Now()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO containers (id, org_id, namespace, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET org_id=excluded.org_id, namespace=excluded.namespace, created_at=excluded.created_at`,
		c.ID, c.OrgID, nullString(c.Namespace), createdAt)
	if err != nil {
		return fmt.Errorf("upsert container: %w", err)
	}
	return nil
}

// UpsertMembers writes members into a container in batched transactions.
func (s *Store) UpsertMembers(ctx context.Context, containerID string, members []*symtab.Member) error {
	for i := 0; i < len(members); i += membersBatchSize {
		end := min(i+membersBatchSize, len(members))
		err := s.WithTransaction(ctx, func(tx *Store) error {
			for _, m := range members[i:end] {
				if err := tx.upsertMember(ctx, containerID, m); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertMember(ctx context.Context, containerID string, m *symtab.Member) error {
	var table any
	if m.SymbolTable != nil {
		b, err := json.Marshal(m.SymbolTable)
		if err != nil {
			return fmt.Errorf("marshal symbol table %s: %w", m.ID, err)
		}
		table = string(b)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO members (id, container_id, kind, display_name, namespace, status, symbol_table, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(container_id, id) DO UPDATE SET
			kind=excluded.kind, display_name=excluded.display_name, namespace=excluded.namespace,
			status=excluded.status, symbol_table=excluded.symbol_table, digest=excluded.digest`,
		m.ID, containerID, string(m.Kind), m.DisplayName, nullString(m.Namespace), nullString(m.Status), table, m.Digest)
	if err != nil {
		return fmt.Errorf("upsert member %s: %w", m.ID, err)
	}
	return nil
}

// CountMembers returns the number of members in a container.
func (s *Store) CountMembers(ctx context.Context, containerID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM members WHERE container_id = ?", containerID).Scan(&n)
	return n, err
}

// ReplaceScheduledJobs replaces the scheduled jobs known for an org.
func (s *Store) ReplaceScheduledJobs(ctx context.Context, orgID string, jobs []ScheduledJob) error {
	return s.WithTransaction(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx, "DELETE FROM scheduled_jobs WHERE org_id = ?", orgID); err != nil {
			return fmt.Errorf("clear scheduled jobs: %w", err)
		}
		for _, j := range jobs {
			_, err := tx.q.ExecContext(ctx,
				"INSERT OR REPLACE INTO scheduled_jobs (id, org_id, class_id, status) VALUES (?, ?, ?, ?)",
				j.ID, orgID, j.ClassID, j.Status)
			if err != nil {
				return fmt.Errorf("insert scheduled job %s: %w", j.ID, err)
			}
		}
		return nil
	})
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
