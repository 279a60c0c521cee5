// Command strobed serves the strobe search engine over HTTP: one shard per
// process, boot-time WAL replay, and the five endpoints of spec.md §6.4.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/go-mizu/strobe"
	"github.com/go-mizu/strobe/internal/ingest"
	"github.com/go-mizu/strobe/internal/shard"
	"github.com/go-mizu/strobe/middlewares/cors"
	"github.com/go-mizu/strobe/middlewares/metrics"
	"github.com/go-mizu/strobe/middlewares/recover"
	"github.com/go-mizu/strobe/middlewares/requestlog"
)

const (
	queueCapacity      = 65_536
	ingestRatePerSec   = 200_000.0
	ingestBurst        = 10_000
	ingestBackpressure = 50 * time.Millisecond
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Error("config error", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("strobed exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config, log *slog.Logger) error {
	queue := ingest.NewQueue(queueCapacity, ingestRatePerSec, ingestBurst, ingestBackpressure)

	sh, err := shard.Open(shard.Config{
		ShardID:          cfg.ShardID,
		DataDir:          cfg.DataDir,
		FlushDocs:        cfg.FlushDocs,
		FlushInterval:    cfg.FlushInterval,
		ReplaySegDocs:    cfg.ReplaySegDocs,
		WalSync:          cfg.WalSync,
		WalCoalesceBytes: cfg.WalCoalesce,
	}, log, queue)
	if err != nil {
		return fmt.Errorf("open shard %d: %w", cfg.ShardID, err)
	}
	defer func() { _ = sh.Close() }()

	log.Info("boot replay complete",
		slog.Int("shard", cfg.ShardID),
		slog.Int("segments", sh.Published().Load().SegmentCount()),
		slog.Int("docs_total", sh.Published().Load().TotalDocs()),
	)

	m, metricsMW := metrics.New()

	h := newHandlers(sh, queue, log)
	mux := http.NewServeMux()
	h.register(mux, m)

	var handler http.Handler = mux
	handler = metricsMW(handler)
	handler = requestlog.WithLogger(log)(handler)
	handler = recover.WithOptions(recover.Options{Logger: log})(handler)
	handler = cors.AllowAll()(handler)
	handler = optionsPreflight(handler)

	app := strobe.New(strobe.WithLogger(log))
	app.Handle("/", handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sh.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := serve(app, handler, cfg, log)
		cancel()
		return err
	})

	return g.Wait()
}

func serve(app *strobe.App, handler http.Handler, cfg config, log *slog.Logger) error {
	log.Info("strobed starting",
		slog.String("bind", cfg.Bind),
		slog.String("mode", cfg.Mode),
		slog.Int("shards", cfg.Shards),
		slog.Int("shard_id", cfg.ShardID),
	)

	switch cfg.Mode {
	case "h1":
		return app.Listen(cfg.Bind)
	case "h2c":
		h2s := &http2.Server{}
		wrapped := h2c.NewHandler(handler, h2s)
		ln, err := net.Listen("tcp", cfg.Bind)
		if err != nil {
			return err
		}
		return app.Serve(ln, wrapped)
	case "h2":
		return app.ListenTLS(cfg.Bind, cfg.Cert, cfg.Key)
	default:
		return fmt.Errorf("unknown MODE %q", cfg.Mode)
	}
}
