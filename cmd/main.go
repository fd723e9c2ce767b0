package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/callledger/internal/adapters/http/api"
	"github.com/okian/callledger/internal/app"
	"github.com/okian/callledger/internal/config"
	"github.com/okian/callledger/pkg/logger"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 30 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "call ledger exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

// run loads configuration, starts the supervised services and blocks until
// ctx is cancelled or startup fails.
func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := app.New(cfg, app.WithLogger(log.Named("service")))
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	server := api.NewServer(svc.Dispatcher(), svc, api.Options{
		MaxBodyBytes:       cfg.MaxBodyBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(ctx),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	sup := suture.New("callledger", suture.Spec{
		EventHook: (&sutureslog.Handler{Logger: logger.Slog()}).MustHook(),
		Timeout:   shutdownTimeout,
	})
	sup.Add(newHTTPService(srv, shutdownTimeout))
	sup.Add(svc)
	sup.Add(newSystemMetrics(systemMetricsInterval))

	log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
	err = sup.Serve(ctx)
	log.Info(context.Background(), "server stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
