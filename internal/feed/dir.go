package feed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/DeusData/symtab-snapshot/internal/store"
	"github.com/DeusData/symtab-snapshot/internal/symtab"
)

// Directory layout of an exported bundle.
const (
	ClassesDir    = "classes"
	TriggersDir   = "triggers"
	JobsFile      = "jobs.yaml"
	ContainerFile = "container.yaml"
)

type containerManifest struct {
	ID        string `yaml:"id"`
	OrgID     string `yaml:"org_id"`
	Namespace string `yaml:"namespace"`
	CreatedAt string `yaml:"created_at"`
}

type jobsManifest struct {
	Jobs []store.ScheduledJob `yaml:"jobs"`
}

// LoadDir reads a bundle directory: classes/*.json, triggers/*.json, an
// optional jobs.yaml and an optional container.yaml. Member files are decoded
// and validated in parallel.
func LoadDir(ctx context.Context, dir string, opts Options) (*Bundle, error) {
	t := time.Now()
	b := &Bundle{}

	var manifest containerManifest
	if err := readYAML(filepath.Join(dir, ContainerFile), &manifest); err != nil {
		return nil, err
	}
	b.Container.ID = manifest.ID
	b.Container.OrgID = manifest.OrgID
	b.Container.Namespace = manifest.Namespace
	b.Container.CreatedAt = manifest.CreatedAt
	opts.apply(&b.Container)
	if b.Container.ID == "" {
		b.Container.ID = filepath.Base(filepath.Clean(dir))
	}

	var jobs jobsManifest
	if err := readYAML(filepath.Join(dir, JobsFile), &jobs); err != nil {
		return nil, err
	}
	b.Jobs = jobs.Jobs

	classes, err := memberFiles(filepath.Join(dir, ClassesDir))
	if err != nil {
		return nil, err
	}
	triggers, err := memberFiles(filepath.Join(dir, TriggersDir))
	if err != nil {
		return nil, err
	}
	files := append(classes, triggers...)
	want := make([]symtab.MemberKind, 0, len(files))
	for range classes {
		want = append(want, symtab.MemberClass)
	}
	for range triggers {
		want = append(want, symtab.MemberTrigger)
	}

	members := make([]*symtab.Member, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(runtime.NumCPU(), len(files))))
	for i, path := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			m, err := decodeMember(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if m.Kind != want[i] {
				return fmt.Errorf("%s: %s member in %s directory", path, m.Kind, want[i])
			}
			members[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	b.Members = members

	slog.Info("feed.load", "source", dir, "members", len(members), "jobs", len(b.Jobs), "elapsed", time.Since(t))
	return b, nil
}

func memberFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// readYAML decodes path into v. A missing file leaves v untouched.
func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
