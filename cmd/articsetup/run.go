package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/danmuck/articgate/internal/bootstrap"
	"github.com/danmuck/articgate/internal/config"
	"github.com/danmuck/articgate/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

var ErrUsage = errors.New("usage: articsetup pack|install|loader-init [flags]")

type options struct {
	configPath    string
	sdRoot        string
	pluginPath    string
	pkg           string
	loaderState   string
	image         string
	loaderVersion string
	skipLaunch    bool
}

func run(args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]

	var opts options
	fs := pflag.NewFlagSet("articsetup "+cmd, pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "TOML config file")
	fs.StringVar(&opts.sdRoot, "sd-root", "", "host directory standing in for the SD card")
	fs.StringVar(&opts.pluginPath, "plugin-path", "", "plugin path on the SD card")
	fs.StringVar(&opts.pkg, "package", "", "packaged plugin image")
	fs.StringVar(&opts.loaderState, "loader-state", "", "plugin loader state file")
	fs.StringVar(&opts.image, "image", "", "raw plugin image to package")
	fs.StringVar(&opts.loaderVersion, "loader-version", "1.0.2", "loader version for loader-init")
	fs.BoolVar(&opts.skipLaunch, "skip-launch", false, "install without arming the loader")
	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	observability.InitLogger("articsetup")

	cfg, err := resolveConfig(opts, fs)
	if err != nil {
		return err
	}
	switch cmd {
	case "pack":
		return pack(opts.image, cfg.Package)
	case "install":
		return install(cfg, opts.skipLaunch)
	case "loader-init":
		return loaderInit(cfg, opts.loaderVersion)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func resolveConfig(opts options, fs *pflag.FlagSet) (config.Setup, error) {
	cfg := config.DefaultSetup()
	if opts.configPath != "" {
		loaded, err := config.LoadSetup(opts.configPath)
		if err != nil {
			return config.Setup{}, err
		}
		cfg = loaded
	}
	if fs.Changed("sd-root") {
		cfg.SDRoot = opts.sdRoot
	}
	if fs.Changed("plugin-path") {
		cfg.PluginPath = opts.pluginPath
	}
	if fs.Changed("package") {
		cfg.Package = opts.pkg
	}
	if fs.Changed("loader-state") {
		cfg.LoaderState = opts.loaderState
	}
	return cfg, nil
}

func pack(image, out string) error {
	if image == "" {
		return fmt.Errorf("pack: --image is required")
	}
	raw, err := os.ReadFile(image)
	if err != nil {
		return err
	}
	p, err := bootstrap.Pack(raw)
	if err != nil {
		return err
	}
	if err := bootstrap.WritePackage(out, p); err != nil {
		return err
	}
	log.Info().Str("package", out).Int("raw", len(raw)).Int("compressed", len(p.Compressed)).Msg("articsetup.pack wrote package")
	return nil
}

func install(cfg config.Setup, skipLaunch bool) error {
	p, err := bootstrap.ReadPackage(cfg.Package)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	wrote, err := bootstrap.Materialize(cfg.HostPluginPath(), p)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if !wrote {
		log.Info().Str("path", cfg.HostPluginPath()).Msg("articsetup.install plugin up to date")
	}
	if skipLaunch {
		return nil
	}
	return bootstrap.Launch(bootstrap.FileLoader{Path: cfg.LoaderState}, cfg.PluginPath)
}

func loaderInit(cfg config.Setup, version string) error {
	v, err := parseVersion(version)
	if err != nil {
		return err
	}
	return bootstrap.FileLoader{Path: cfg.LoaderState}.Store(bootstrap.LoaderState{Version: v})
}

// parseVersion reads a major.minor.revision string.
func parseVersion(s string) (uint32, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("version %q: want major.minor.revision", s)
	}
	var nums [3]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("version %q: %w", s, err)
		}
		nums[i] = uint8(n)
	}
	return bootstrap.SystemVersion(nums[0], nums[1], nums[2]), nil
}
