// Package config loads the TOML files for the gateway daemon and the setup
// tool. Keys absent from a file keep their defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/articgate/internal/admin"
	"github.com/danmuck/articgate/internal/bootstrap"
	"github.com/danmuck/articgate/internal/server"
)

// Daemon is the resolved articd configuration.
type Daemon struct {
	Server       server.Config
	Admin        admin.Config
	AdminEnabled bool
	// HostRoot is the directory the host backend serves.
	HostRoot string
	// NIMHeaderPath is the file Server.Gateway.NIMHeader was read from.
	NIMHeaderPath string
}

func DefaultDaemon() Daemon {
	return Daemon{
		Server:       server.DefaultConfig(),
		Admin:        admin.DefaultConfig(),
		AdminEnabled: true,
		HostRoot:     ".",
	}
}

type daemonFile struct {
	ListenAddr         string   `toml:"listen_addr"`
	AdminAddr          string   `toml:"admin_addr"`
	AdminEnabled       bool     `toml:"admin_enabled"`
	AdminToken         string   `toml:"admin_token"`
	CORSOrigins        []string `toml:"cors_origins"`
	HostRoot           string   `toml:"host_root"`
	NIMHeader          string   `toml:"nim_header"`
	IdleTimeout        string   `toml:"idle_timeout"`
	WriteTimeout       string   `toml:"write_timeout"`
	MaxResultBytes     int      `toml:"max_result_bytes"`
	MaxFramePayloadLen uint64   `toml:"max_frame_payload_bytes"`
}

// LoadDaemon reads path on top of DefaultDaemon. Relative host_root and
// nim_header paths resolve against the directory holding the file.
func LoadDaemon(path string) (Daemon, error) {
	cfg := DefaultDaemon()

	var raw daemonFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Daemon{}, fmt.Errorf("load daemon config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Daemon{}, fmt.Errorf("load daemon config: unknown key %q", undecoded[0].String())
	}
	base := filepath.Dir(path)

	if meta.IsDefined("listen_addr") {
		cfg.Server.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_enabled") {
		cfg.AdminEnabled = raw.AdminEnabled
	}
	if meta.IsDefined("admin_token") {
		cfg.Admin.Token = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("cors_origins") {
		cfg.Admin.CORSOrigins = normalizeList(raw.CORSOrigins)
	}
	if meta.IsDefined("host_root") {
		cfg.HostRoot = relativeTo(base, raw.HostRoot)
	}
	if meta.IsDefined("idle_timeout") {
		d, err := parseDuration("idle_timeout", raw.IdleTimeout)
		if err != nil {
			return Daemon{}, err
		}
		cfg.Server.Session.IdleTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := parseDuration("write_timeout", raw.WriteTimeout)
		if err != nil {
			return Daemon{}, err
		}
		cfg.Server.Session.WriteTimeout = d
	}
	if meta.IsDefined("max_result_bytes") {
		cfg.Server.Gateway.Limits.MaxResultBytes = raw.MaxResultBytes
	}
	if meta.IsDefined("max_frame_payload_bytes") {
		cfg.Server.Frame.MaxPayloadBytes = raw.MaxFramePayloadLen
	}
	if meta.IsDefined("nim_header") {
		cfg.NIMHeaderPath = relativeTo(base, raw.NIMHeader)
		header, err := os.ReadFile(cfg.NIMHeaderPath)
		if err != nil {
			return Daemon{}, fmt.Errorf("load nim_header: %w", err)
		}
		cfg.Server.Gateway.NIMHeader = header
	}

	if err := ValidateDaemon(cfg); err != nil {
		return Daemon{}, err
	}
	return cfg, nil
}

func ValidateDaemon(cfg Daemon) error {
	if strings.TrimSpace(cfg.Server.ListenAddr) == "" {
		return fmt.Errorf("daemon config missing listen_addr")
	}
	if cfg.AdminEnabled && strings.TrimSpace(cfg.Admin.Addr) == "" {
		return fmt.Errorf("daemon config missing admin_addr")
	}
	if strings.TrimSpace(cfg.HostRoot) == "" {
		return fmt.Errorf("daemon config missing host_root")
	}
	if cfg.Server.Gateway.Limits.MaxResultBytes <= 0 {
		return fmt.Errorf("daemon config max_result_bytes must be positive")
	}
	return nil
}

// Setup is the resolved articsetup configuration.
type Setup struct {
	// SDRoot is the host directory standing in for the SD card.
	SDRoot      string
	PluginPath  string
	Package     string
	LoaderState string
}

func DefaultSetup() Setup {
	return Setup{
		SDRoot:      ".",
		PluginPath:  bootstrap.DefaultPluginPath,
		Package:     "AzaharArticSetup.3gx.pkg",
		LoaderState: "plgldr.cbor",
	}
}

type setupFile struct {
	SDRoot      string `toml:"sd_root"`
	PluginPath  string `toml:"plugin_path"`
	Package     string `toml:"package"`
	LoaderState string `toml:"loader_state"`
}

func LoadSetup(path string) (Setup, error) {
	cfg := DefaultSetup()

	var raw setupFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Setup{}, fmt.Errorf("load setup config: %w", err)
	}
	base := filepath.Dir(path)

	if meta.IsDefined("sd_root") {
		cfg.SDRoot = relativeTo(base, raw.SDRoot)
	}
	if meta.IsDefined("plugin_path") {
		cfg.PluginPath = strings.TrimSpace(raw.PluginPath)
	}
	if meta.IsDefined("package") {
		cfg.Package = relativeTo(base, raw.Package)
	}
	if meta.IsDefined("loader_state") {
		cfg.LoaderState = relativeTo(base, raw.LoaderState)
	}
	if !strings.HasPrefix(cfg.PluginPath, "/") {
		return Setup{}, fmt.Errorf("setup config plugin_path must be absolute on the SD card: %q", cfg.PluginPath)
	}
	return cfg, nil
}

// HostPluginPath is where the plugin lands on the host.
func (s Setup) HostPluginPath() string {
	return filepath.Join(s.SDRoot, filepath.FromSlash(s.PluginPath))
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration", key)
	}
	return d, nil
}

func relativeTo(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
