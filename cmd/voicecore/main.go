// Command voicecore runs the farmer voice gateway: the app-facing voice API,
// the Twilio IVR webhooks, the admin alert API and the scheduled alert scan.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kisansetu/voicecore/pkg/gateway/config"
	"github.com/kisansetu/voicecore/pkg/gateway/metrics"
	gatewayserver "github.com/kisansetu/voicecore/pkg/gateway/server"
)

type runDeps struct {
	loadConfig   func() (config.Config, error)
	buildApp     func(context.Context, config.Config, *slog.Logger, *metrics.Metrics) (*app, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultRunDeps() runDeps {
	return runDeps{
		loadConfig: config.LoadFromEnv,
		buildApp:   buildApp,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func newLogger(w io.Writer, format config.LogFormat) *slog.Logger {
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, nil))
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

func run(ctx context.Context, stderr io.Writer, deps runDeps) error {
	if deps.loadConfig == nil || deps.buildApp == nil {
		return errors.New("missing startup dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(stderr, cfg.LogFormat)
	slog.SetDefault(logger)

	m := metrics.New("voicecore")
	a, err := deps.buildApp(ctx, cfg, logger, m)
	if err != nil {
		return fmt.Errorf("build components: %w", err)
	}
	defer a.close()

	gw := gatewayserver.New(cfg, a.deps, logger)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway", "addr", cfg.Addr, "public_base_url", cfg.PublicBaseURL)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()
	if a.scheduler != nil {
		a.scheduler.Start()
	}

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if a.scheduler != nil {
		a.scheduler.Stop(shutdownCtx)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps runDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "voicecore: load .env: %v\n", err)
		return 1
	}
	if err := run(ctx, stderr, deps); err != nil {
		fmt.Fprintf(stderr, "voicecore: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultRunDeps()))
}
