package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"lmctld/internal/config"
	"lmctld/internal/configstore"
	"lmctld/internal/controller"
	"lmctld/internal/engine"
	"lmctld/internal/httpapi"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath      string
	addr            string
	documentPath    string
	llamaBin        string
	startTimeoutSec int
	healthPollMS    int
	logLevel        string
	inProcess       bool
	corsEnabled     bool
	corsOrigins     []string
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "lmctld",
		Short:         "Control daemon for a local llama.cpp inference service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfigFile(cmd, &opts)
			return run(opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", envOr("LMCTLD_CONFIG", ""), "Daemon config file (yaml/json/toml)")
	f.StringVar(&opts.addr, "addr", envOr("LMCTLD_ADDR", ":5001"), "HTTP listen address, e.g. :5001")
	f.StringVar(&opts.documentPath, "llm-config", envOr("LMCTLD_LLM_CONFIG", "llm_config.json"), "Path to the persisted configuration document")
	f.StringVar(&opts.llamaBin, "llama-bin", envOr("LMCTLD_LLAMA_BIN", "llama-server"), "Path to the llama-server binary")
	f.IntVar(&opts.startTimeoutSec, "start-timeout", 0, "Engine initialization timeout in seconds (0 disables)")
	f.IntVar(&opts.healthPollMS, "health-poll-ms", 250, "Interval between engine health probes during startup")
	f.StringVar(&opts.logLevel, "log-level", envOr("LMCTLD_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	f.BoolVar(&opts.inProcess, "in-process", false, "Load the model in-process instead of spawning llama-server (requires the llama build)")
	f.BoolVar(&opts.corsEnabled, "cors-enabled", false, "Enable CORS for the control API")
	f.StringSliceVar(&opts.corsOrigins, "cors-origins", splitCSV(os.Getenv("LMCTLD_CORS_ORIGINS")), "Allowed CORS origins")

	return cmd
}

// applyConfigFile fills options from the daemon config file for flags the
// user did not set explicitly. Flags win over the file, the file wins over
// built-in defaults.
func applyConfigFile(cmd *cobra.Command, opts *options) {
	if opts.configPath == "" {
		return
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		logger := zerolog.New(os.Stderr)
		logger.Warn().Err(err).Str("path", opts.configPath).Msg("daemon config unreadable, ignoring")
		return
	}
	f := cmd.Flags()
	if !f.Changed("addr") && cfg.Addr != "" {
		opts.addr = cfg.Addr
	}
	if !f.Changed("llm-config") && cfg.DocumentPath != "" {
		opts.documentPath = cfg.DocumentPath
	}
	if !f.Changed("llama-bin") && cfg.LlamaBin != "" {
		opts.llamaBin = cfg.LlamaBin
	}
	if !f.Changed("start-timeout") && cfg.StartTimeoutSec > 0 {
		opts.startTimeoutSec = cfg.StartTimeoutSec
	}
	if !f.Changed("health-poll-ms") && cfg.HealthPollMS > 0 {
		opts.healthPollMS = cfg.HealthPollMS
	}
	if !f.Changed("log-level") && cfg.LogLevel != "" {
		opts.logLevel = cfg.LogLevel
	}
	if !f.Changed("cors-enabled") {
		opts.corsEnabled = cfg.CORSEnabled
	}
	if !f.Changed("cors-origins") && len(cfg.CORSOrigins) > 0 {
		opts.corsOrigins = cfg.CORSOrigins
	}
}

func run(opts options) error {
	logger := newLogger(opts.logLevel)

	store := configstore.New(opts.documentPath, logger.With().Str("component", "configstore").Logger())

	var factory engine.Factory
	if opts.inProcess {
		factory = engine.NewInProcessFactory()
	} else {
		factory = engine.NewSubprocessFactory(engine.SubprocessConfig{
			Binary:       opts.llamaBin,
			PollInterval: time.Duration(opts.healthPollMS) * time.Millisecond,
			Logger:       logger.With().Str("component", "engine").Logger(),
		})
	}

	ctrl := controller.New(controller.Config{
		Factory:     factory,
		InitTimeout: time.Duration(opts.startTimeoutSec) * time.Second,
		Logger:      logger.With().Str("component", "controller").Logger(),
	})

	httpapi.SetLogger(logger.With().Str("component", "http").Logger())
	httpapi.SetCORSOptions(opts.corsEnabled, opts.corsOrigins, nil, nil)
	mux := httpapi.NewMux(ctrl, store)
	srv := &http.Server{Addr: opts.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", opts.addr).Str("document", store.Path()).Msg("lmctld listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	// Stop the supervised service before the control plane goes away.
	if err := ctrl.Stop(); err != nil && !controller.IsNotRunning(err) {
		logger.Warn().Err(err).Msg("service stop during shutdown")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitCSV splits a comma-separated list, trimming blanks.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		p := strings.TrimSpace(part)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
