package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pders01/feedq/internal/admin"
	"github.com/pders01/feedq/internal/config"
	"github.com/pders01/feedq/internal/debuglog"
	"github.com/pders01/feedq/internal/delivery"
	"github.com/pders01/feedq/internal/feed"
	"github.com/pders01/feedq/internal/relay"
	"github.com/pders01/feedq/internal/scheduler"
	"github.com/pders01/feedq/internal/storage"
)

var quiet bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the feed and publish queued items",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := setupLogging(cfg); err != nil {
			return err
		}
		defer debuglog.Close()

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if !quiet {
			showBanner(cmd.OutOrStdout(), cfg.Admin.Listen, a.source.URL())
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&quiet, "quiet", false, "Skip startup banner")
	rootCmd.AddCommand(serveCmd)
}

// app is one running relay: the store plus everything wired on top of it.
type app struct {
	cfg      *config.Config
	store    storage.Store
	source   *feed.HTTPSource
	sched    *scheduler.Scheduler
	pipeline *relay.Pipeline
	service  *relay.Service
	server   *admin.Server
}

func newApp(cfg *config.Config) (*app, error) {
	source, err := feed.NewHTTPSource(cfg)
	if err != nil {
		return nil, err
	}
	sink, err := delivery.New(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(cfg.Database.Driver, cfg.Database.Path, cfg.Database.Timeout)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	delay, err := relay.NewDelayPolicy(store, cfg.Queue.DefaultDelayMinutes)
	if err != nil {
		store.Close()
		return nil, err
	}

	executor := relay.NewExecutor(store, sink, cfg)
	sched := scheduler.New(executor.Fire, nil)
	service := relay.NewService(store, delay, sched, nil)

	return &app{
		cfg:      cfg,
		store:    store,
		source:   source,
		sched:    sched,
		pipeline: relay.NewPipeline(store, delay, sched, nil),
		service:  service,
		server:   admin.NewServer(admin.NewCommands(service, cfg.Admin.Users), service),
	}, nil
}

// Run restores pending timers and runs the dispatch loop, the poller and
// the admin API until ctx is cancelled or one of them fails.
func (a *app) Run(ctx context.Context) error {
	n, err := a.service.Restore()
	if err != nil {
		return err
	}
	debuglog.Infof("feedq %s started: %s store at %s, %d queued, delay %d minutes",
		Version, a.store.Backend(), a.cfg.Database.Path, n, a.service.Delay())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.sched.Run(ctx) })
	g.Go(func() error { return a.pipeline.Run(ctx, a.source, a.cfg.Feed.PollInterval) })
	if a.cfg.Admin.Listen != "" {
		g.Go(func() error { return a.server.Serve(ctx, a.cfg.Admin.Listen) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		debuglog.Infof("feedq stopped")
		return nil
	}
	return err
}

func (a *app) Close() error {
	return a.store.Close()
}
