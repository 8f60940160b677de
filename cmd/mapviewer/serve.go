package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jasonAVM/Map-Viewer/internal/config"
	"github.com/jasonAVM/Map-Viewer/internal/gdal"
	"github.com/jasonAVM/Map-Viewer/internal/httpapi"
	"github.com/jasonAVM/Map-Viewer/internal/metrics"
	"github.com/jasonAVM/Map-Viewer/internal/tilegen"
)

func runServe(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mapviewer serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		common commonFlags
		addr   string
		watch  bool
	)
	common.register(fs)
	fs.StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	fs.BoolVar(&watch, "watch", false, "regenerate tiles when GeoTIFFs change")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, err := common.load(func(c *config.Config) {
		if addr != "" {
			c.HTTP.Addr = addr
		}
	})
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitFailure
	}
	log := newLogger(cfg, stderr)
	m := metrics.New()

	h := httpapi.NewHandler(log, httpapi.Options{
		WebDir:               cfg.WebPath(),
		TilesDir:             cfg.TilesPath(),
		APIRequestsPerMinute: cfg.HTTP.APIRequestsPerMinute,
		Metrics:              m,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "Serving the viewer at http://%s/web/\n", displayAddr(ln.Addr()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("mapviewer listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if watch {
		regenerate := func(ctx context.Context) error {
			_, _, err := generate(ctx, cfg, log, gdal.ExecRunner{}, m, false)
			return err
		}
		w := tilegen.NewWatcher(log, cfg.OrthosPath(), cfg.Tiles.WatchDebounce, regenerate)
		g.Go(func() error { return watchOrthos(gctx, log, w) })
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("serve stopped")
		return exitFailure
	}
	log.Info().Msg("shutdown complete")
	return exitOK
}

type orthoWatcher interface {
	Run(ctx context.Context) error
}

// watchOrthos runs w for as long as ctx lives. A watcher that cannot start
// (no orthos directory yet) only disables regeneration; the preview keeps
// serving.
func watchOrthos(ctx context.Context, log zerolog.Logger, w orthoWatcher) error {
	if err := w.Run(ctx); err != nil {
		log.Warn().Err(err).Msg("watch disabled, serving without regeneration")
	}
	return nil
}

func displayAddr(a net.Addr) string {
	if tcp, ok := a.(*net.TCPAddr); ok && tcp.IP.IsUnspecified() {
		return fmt.Sprintf("localhost:%d", tcp.Port)
	}
	return a.String()
}
