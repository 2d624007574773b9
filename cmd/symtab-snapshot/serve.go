package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	clierr "github.com/DeusData/symtab-snapshot/internal/errors"
	"github.com/DeusData/symtab-snapshot/internal/feed"
	"github.com/DeusData/symtab-snapshot/internal/httpapi"
	"github.com/DeusData/symtab-snapshot/internal/metrics"
	"github.com/DeusData/symtab-snapshot/internal/pipeline"
	"github.com/DeusData/symtab-snapshot/internal/store"
	"github.com/DeusData/symtab-snapshot/internal/watcher"
)

func newServeCommand(a *app) *cobra.Command {
	var addr, schedule string
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the snapshot API, optionally generating on a schedule",
		Long: `Serve exposes the snapshot reports over HTTP. With --schedule (or
schedule.cron) a generate run fires on every cron tick. With --watch the
import source (store.source_path) is polled and every change is imported
and followed by a generate run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			if schedule == "" {
				schedule = a.cfg.Schedule.Cron
			}
			if watch && a.cfg.Store.SourcePath == "" {
				return clierr.NewConfigError("Nothing to watch", "--watch needs store.source_path",
					"Set store.source_path or SYMTAB_STORE_SOURCE_PATH", nil)
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()
			metrics.Register()
			r := &runner{store: s, opts: a.cfg.PipelineOptions()}

			if schedule != "" {
				c, err := r.schedule(ctx, schedule)
				if err != nil {
					return err
				}
				defer func() { <-c.Stop().Done() }()
			}
			if watch {
				w := watcher.New(a.cfg.Store.SourcePath, r.reimport)
				go w.Run(ctx)
				slog.Info("watch.start", "path", a.cfg.Store.SourcePath)
			}

			servers := []*http.Server{{
				Addr:              addr,
				Handler:           (&httpapi.Server{Store: s, DefaultOrg: a.cfg.Org.ID}).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}}
			if m := a.cfg.Metrics.Addr; m != "" && m != addr {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				servers = append(servers, &http.Server{Addr: m, Handler: mux, ReadHeaderTimeout: 10 * time.Second})
			}
			return listen(ctx, servers)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron spec for periodic generation (overrides schedule.cron)")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-import store.source_path and generate when it changes")
	return cmd
}

// runner serializes background generate runs of the serve command.
type runner struct {
	store   *store.Store
	opts    pipeline.Options
	running sync.Mutex
}

func (r *runner) generate(ctx context.Context, trigger string, opts pipeline.Options) error {
	res, err := pipeline.New(ctx, r.store, opts).Run()
	if err != nil {
		slog.Error(trigger+".run", "err", err)
		return err
	}
	slog.Info(trigger+".run", "snapshot", res.SnapshotID, "elapsed", res.Elapsed)
	return nil
}

// schedule runs the pipeline on every tick of spec. A tick that fires
// while a run is still going is skipped.
func (r *runner) schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if !r.running.TryLock() {
			slog.Warn("schedule.skip", "reason", "previous run still in progress")
			return
		}
		defer r.running.Unlock()
		_ = r.generate(ctx, "schedule", r.opts)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	slog.Info("schedule.start", "cron", spec, "org", r.opts.OrgID)
	return c, nil
}

// reimport loads the changed source into the store and generates from it.
// It waits for a running scheduled run instead of skipping.
func (r *runner) reimport(ctx context.Context, path string) error {
	r.running.Lock()
	defer r.running.Unlock()

	bundle, err := load(ctx, path, feed.Options{OrgID: r.opts.OrgID, Namespace: r.opts.OrgNamespace})
	if err != nil {
		return err
	}
	id, err := feed.Import(ctx, r.store, bundle)
	if err != nil {
		return err
	}
	opts := r.opts
	if opts.ContainerID == "" {
		opts.ContainerID = id
	}
	return r.generate(ctx, "watch", opts)
}

// listen serves until ctx ends or one server fails, then shuts all down.
func listen(ctx context.Context, servers []*http.Server) error {
	errc := make(chan error, len(servers))
	for _, srv := range servers {
		go func() {
			slog.Info("serve.listen", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	return err
}
