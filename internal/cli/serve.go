package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ricochet1k/ptymux/internal/api"
	"github.com/ricochet1k/ptymux/internal/config"
	"github.com/ricochet1k/ptymux/internal/provider/pty"
	"github.com/ricochet1k/ptymux/internal/realtime"
	"github.com/ricochet1k/ptymux/internal/service"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	configPath  string
	host        string
	port        int
	command     string
	commandArgs string
	baseURL     string
	logLevel    string
	logFormat   string
	banner      string
}

func (o *serveOptions) bind(fs *pflag.FlagSet) {
	defaults := config.Default()
	fs.StringVarP(&o.configPath, "config", "c", "", "path to a TOML config file")
	fs.StringVar(&o.host, "host", defaults.Host, "address to listen on")
	fs.IntVarP(&o.port, "port", "p", defaults.Port, "port to listen on")
	fs.StringVar(&o.command, "command", defaults.Command, "command to run in each terminal")
	fs.StringVar(&o.commandArgs, "command-args", defaults.CommandArgs, "arguments for the command, split with shell quoting rules")
	fs.StringVar(&o.baseURL, "base-url", defaults.BaseURL, "URL prefix to serve under, starting and ending with /")
	fs.StringVar(&o.logLevel, "log-level", defaults.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", defaults.LogFormat, "log format: text or json")
	fs.StringVar(&o.banner, "banner", defaults.Banner, "line shown to every new connection")
}

// resolve layers defaults, the config file, the environment and explicitly
// set flags, in that order.
func (o *serveOptions) resolve(fs *pflag.FlagSet, lookup func(string) (string, bool)) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		if err := cfg.LoadFile(o.configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, err
	}

	overrides := map[string]func(){
		"host":         func() { cfg.Host = o.host },
		"port":         func() { cfg.Port = o.port },
		"command":      func() { cfg.Command = o.command },
		"command-args": func() { cfg.CommandArgs = o.commandArgs },
		"base-url":     func() { cfg.BaseURL = o.baseURL },
		"log-level":    func() { cfg.LogLevel = o.logLevel },
		"log-format":   func() { cfg.LogFormat = o.logFormat },
		"banner":       func() { cfg.Banner = o.banner },
	}
	fs.Visit(func(f *pflag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})

	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := opts.resolve(cmd.Flags(), os.LookupEnv)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}
	return serve(ctx, ln, cfg, logger)
}

// serve runs the server on ln until ctx is done, then shuts it down.
func serve(ctx context.Context, ln net.Listener, cfg config.Config, logger *slog.Logger) error {
	argv, err := cfg.Argv()
	if err != nil {
		return err
	}

	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()

	hub := realtime.NewHub(logger)
	router := service.NewRouter(sessionCtx, service.NewRegistry(), hub,
		pty.NewLauncher(uint16(cfg.InitialRows), uint16(cfg.InitialCols)),
		service.RouterConfig{
			Argv:                  argv,
			Banner:                cfg.Banner,
			PollInterval:          cfg.PollInterval,
			ChunkBytes:            cfg.ReadChunkBytes,
			ScrollbackBytes:       cfg.ScrollbackBytes,
			SpawnFailureThreshold: cfg.SpawnFailureThreshold,
			SpawnCooldown:         cfg.SpawnCooldown,
		}, logger)
	handler := api.NewHandler(router, hub, api.Options{
		BaseURL:   cfg.BaseURL,
		EventPath: cfg.EventPath(),
		Version:   Version,
		Logger:    logger,
	})

	srv := &http.Server{
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("server started", "addr", ln.Addr().String(), "base_url", cfg.BaseURL, "argv", argv, "version", Version)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		cancelSessions()
		router.Wait()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	hub.CloseAll()
	cancelSessions()
	router.Wait()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
