package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aquadoggo-go/aquadoggo/internal/config"
	"github.com/aquadoggo-go/aquadoggo/internal/eventbus"
	"github.com/aquadoggo-go/aquadoggo/internal/logging"
	"github.com/aquadoggo-go/aquadoggo/internal/materializer"
	"github.com/aquadoggo-go/aquadoggo/internal/publish"
	"github.com/aquadoggo-go/aquadoggo/internal/replication"
	"github.com/aquadoggo-go/aquadoggo/internal/schema"
	"github.com/aquadoggo-go/aquadoggo/internal/store/factory"
	"github.com/aquadoggo-go/aquadoggo/internal/taskqueue"
	"github.com/aquadoggo-go/aquadoggo/internal/telemetry"
	"github.com/aquadoggo-go/aquadoggo/internal/validator"
	"github.com/aquadoggo-go/aquadoggo/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the node's store, publish pipeline, materializer and replication engine",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

var log = logging.New("aquadoggod")

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	shutdownTelemetry, err := telemetry.Init(cfg.OTELExporter)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	id, err := loadOrCreateIdentity(cfg.PrivateKeyPath)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	log.Printf("node identity %s (pubkey %s)", id.alias, id.publicKey)

	s, err := factory.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("serve: open store: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	bus := eventbus.New()
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("serve: connect nats %s: %w", cfg.NATSURL, err)
		}
		defer nc.Close()
		js, err := nc.JetStream()
		if err != nil {
			return fmt.Errorf("serve: jetstream: %w", err)
		}
		bus.SetJetStream(js)
		log.Printf("mirroring events to jetstream at %s", cfg.NATSURL)
	}

	registry := schema.New(bus)
	v := validator.New(s, registry)
	pipeline := publish.New(s, v, bus)

	queue := taskqueue.New(s)
	if err := queue.Restore(ctx); err != nil {
		return fmt.Errorf("serve: restore tasks: %w", err)
	}

	mat := materializer.New(s, queue, registry, bus)
	pool := worker.New(queue, s, cfg.WorkerPoolSize)
	mat.Register(pool)

	if err := mat.WarmStart(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	engine := replication.NewEngine(cfg, s, pipeline, registry)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return pool.Run(gctx)
	})
	group.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-pool.Fatal():
			return fmt.Errorf("worker pool: %w", err)
		}
	})

	replAddr := fmt.Sprintf(":%d", cfg.QUICPort)
	group.Go(func() error {
		if err := engine.Listen(gctx, "tcp", replAddr); err != nil {
			return fmt.Errorf("replication listen: %w", err)
		}
		return nil
	})

	for _, addr := range cfg.DirectNodeAddresses {
		addr := addr
		group.Go(func() error {
			return dialDirectLoop(gctx, engine, addr)
		})
	}

	log.Printf("serving on %s (worker_pool_size=%d, database=%s)", replAddr, cfg.WorkerPoolSize, cfg.DatabaseURL)

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	log.Printf("shutdown complete")
	return nil
}

// directSyncInterval governs how often a configured direct_node_address is
// redialed for a one-shot sync, independent of the per-peer cool-down
// Manager enforces after a connection failure.
const directSyncInterval = 30 * time.Second

func dialDirectLoop(ctx context.Context, engine *replication.Engine, addr string) error {
	ticker := time.NewTicker(directSyncInterval)
	defer ticker.Stop()

	sync := func() {
		if err := engine.DialDirect(ctx, addr, addr); err != nil {
			log.Printf("direct dial %s failed: %v", addr, err)
		}
	}
	sync()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sync()
		}
	}
}
