// Package feed loads compiled members and scheduled jobs from exported
// bundles and imports them into the store the pipeline reads from.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/DeusData/symtab-snapshot/internal/selector"
	"github.com/DeusData/symtab-snapshot/internal/store"
	"github.com/DeusData/symtab-snapshot/internal/symtab"
)

// Bundle is one loaded container with its members and the org's scheduled
// jobs.
type Bundle struct {
	Container selector.Container
	Members   []*symtab.Member
	Jobs      []store.ScheduledJob
}

// Options identify the container a bundle is imported as. Empty fields fall
// back to what the bundle itself declares.
type Options struct {
	ContainerID string
	OrgID       string
	Namespace   string
}

func (o Options) apply(c *selector.Container) {
	if o.ContainerID != "" {
		c.ID = o.ContainerID
	}
	if o.OrgID != "" {
		c.OrgID = o.OrgID
	}
	if o.Namespace != "" {
		c.Namespace = o.Namespace
	}
}

// Counts reports how many members of each kind a bundle holds.
func (b *Bundle) Counts() (classes, triggers int) {
	for _, m := range b.Members {
		switch m.Kind {
		case symtab.MemberClass:
			classes++
		case symtab.MemberTrigger:
			triggers++
		}
	}
	return classes, triggers
}

// Import writes a bundle into st: the container row, its members and the
// org's scheduled jobs. It returns the container id.
func Import(ctx context.Context, st *store.Store, b *Bundle) (string, error) {
	if b.Container.ID == "" {
		return "", fmt.Errorf("bundle has no container id")
	}
	if b.Container.OrgID == "" {
		return "", fmt.Errorf("bundle has no org id")
	}
	t := time.Now()
	err := st.WithTransaction(ctx, func(tx *store.Store) error {
		if err := tx.UpsertContainer(ctx, &b.Container); err != nil {
			return err
		}
		if err := tx.UpsertMembers(ctx, b.Container.ID, b.Members); err != nil {
			return err
		}
		return tx.ReplaceScheduledJobs(ctx, b.Container.OrgID, b.Jobs)
	})
	if err != nil {
		return "", fmt.Errorf("import %s: %w", b.Container.ID, err)
	}
	classes, triggers := b.Counts()
	slog.Info("feed.import", "container", b.Container.ID, "org", b.Container.OrgID,
		"classes", classes, "triggers", triggers, "jobs", len(b.Jobs), "elapsed", time.Since(t))
	return b.Container.ID, nil
}

// digest hashes the raw symbol table of a member document. Members without
// a symbol table have no digest.
func digest(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return fmt.Sprintf("%016x", xxh3.Hash(raw))
}

// decodeMember validates one member document and stamps its digest.
func decodeMember(raw []byte) (*symtab.Member, error) {
	m, err := symtab.DecodeMember(raw)
	if err != nil {
		return nil, err
	}
	var doc struct {
		SymbolTable json.RawMessage `json:"symbolTable"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	m.Digest = digest(doc.SymbolTable)
	return m, nil
}
