package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/articgate/internal/admin"
	"github.com/danmuck/articgate/internal/config"
	"github.com/danmuck/articgate/internal/native"
	"github.com/danmuck/articgate/internal/native/hostfs"
	"github.com/danmuck/articgate/internal/observability"
	"github.com/danmuck/articgate/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

type options struct {
	configPath string
	listen     string
	adminAddr  string
	noAdmin    bool
	root       string
	nimHeader  string
}

func parseFlags(args []string) (options, *pflag.FlagSet, error) {
	var opts options
	fs := pflag.NewFlagSet("articd", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "TOML config file")
	fs.StringVar(&opts.listen, "listen", "", "gateway listen address (overrides config)")
	fs.StringVar(&opts.adminAddr, "admin", "", "admin HTTP address (overrides config)")
	fs.BoolVar(&opts.noAdmin, "no-admin", false, "disable the admin HTTP surface")
	fs.StringVar(&opts.root, "root", "", "host directory to serve (overrides config)")
	fs.StringVar(&opts.nimHeader, "nim-header", "", "file holding the System_GetNIM header blob")
	err := fs.Parse(args)
	return opts, fs, err
}

// resolveConfig loads the config file, if any, and applies flag overrides.
func resolveConfig(opts options, fs *pflag.FlagSet) (config.Daemon, error) {
	cfg := config.DefaultDaemon()
	if opts.configPath != "" {
		loaded, err := config.LoadDaemon(opts.configPath)
		if err != nil {
			return config.Daemon{}, err
		}
		cfg = loaded
	}
	if fs.Changed("listen") {
		cfg.Server.ListenAddr = opts.listen
	}
	if fs.Changed("admin") {
		cfg.Admin.Addr = opts.adminAddr
	}
	if opts.noAdmin {
		cfg.AdminEnabled = false
	}
	if fs.Changed("root") {
		cfg.HostRoot = opts.root
	}
	if fs.Changed("nim-header") {
		header, err := os.ReadFile(opts.nimHeader)
		if err != nil {
			return config.Daemon{}, err
		}
		cfg.NIMHeaderPath = opts.nimHeader
		cfg.Server.Gateway.NIMHeader = header
	}
	return cfg, config.ValidateDaemon(cfg)
}

func run(args []string) error {
	opts, fs, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	observability.InitLogger("articd")
	observability.RegisterMetrics()

	cfg, err := resolveConfig(opts, fs)
	if err != nil {
		return err
	}
	if len(cfg.Server.Gateway.NIMHeader) == 0 {
		log.Warn().Msg("articd no nim header configured; System_GetNIM will fail")
	}

	backend, err := hostfs.Open(cfg.HostRoot)
	if err != nil {
		return err
	}
	defer backend.Close()

	svc := server.NewService(cfg.Server, func() (native.Services, error) {
		return backend.Services(), nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	running := 1
	go func() { errCh <- svc.ListenAndServe(ctx) }()
	if cfg.AdminEnabled {
		running++
		a := admin.New(cfg.Admin, svc)
		go func() { errCh <- a.ListenAndServe(ctx) }()
	}
	log.Info().Str("root", backend.Root()).Str("listen", cfg.Server.ListenAddr).Bool("admin", cfg.AdminEnabled).Msg("articd started")

	var firstErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			stop()
		}
	}
	log.Info().Msg("articd stopped")
	return firstErr
}
