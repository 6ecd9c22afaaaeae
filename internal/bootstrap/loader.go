package bootstrap

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"
)

// MinLoaderVersion is the oldest plugin loader able to launch the plugin.
var MinLoaderVersion = SystemVersion(1, 0, 2)

var ErrLoaderTooOld = errors.New("bootstrap: unsupported plugin loader version")

// MemoryStrategy selects how the loader reserves plugin memory.
type MemoryStrategy uint8

const (
	StrategyNone MemoryStrategy = iota
	StrategySwap
	StrategyMode3
)

// LoadParameters tell the loader which plugin to start for the next title.
// Config[0] records whether the loader was enabled before the gateway armed it.
type LoadParameters struct {
	NoFlash        bool           `cbor:"no_flash"`
	MemoryStrategy MemoryStrategy `cbor:"memory_strategy"`
	Persistent     bool           `cbor:"persistent"`
	LowTitleID     uint32         `cbor:"low_title_id"`
	Path           string         `cbor:"path"`
	Config         [32]uint32     `cbor:"config"`
}

// Loader is the plugin loader service.
type Loader interface {
	Version() (uint32, error)
	Enabled() (bool, error)
	SetEnabled(bool) error
	SetLoadParameters(LoadParameters) error
}

// Launch checks the loader version, enables the loader and queues the plugin
// at path for the next launched title.
func Launch(l Loader, path string) error {
	version, err := l.Version()
	if err != nil {
		return fmt.Errorf("bootstrap: loader version: %w", err)
	}
	if version < MinLoaderVersion {
		return fmt.Errorf("%w: %s < %s", ErrLoaderTooOld, FormatVersion(version), FormatVersion(MinLoaderVersion))
	}
	enabled, err := l.Enabled()
	if err != nil {
		return fmt.Errorf("bootstrap: loader state: %w", err)
	}
	params := LoadParameters{
		NoFlash:        true,
		MemoryStrategy: StrategyNone,
		Path:           path,
	}
	if enabled {
		params.Config[0] = 1
	}
	if err := l.SetEnabled(true); err != nil {
		return fmt.Errorf("bootstrap: enable loader: %w", err)
	}
	if err := l.SetLoadParameters(params); err != nil {
		return fmt.Errorf("bootstrap: set load parameters: %w", err)
	}
	log.Info().Str("path", path).Str("loader", FormatVersion(version)).Bool("was_enabled", enabled).Msg("bootstrap.Launch plugin queued")
	return nil
}

// LoaderState is the persisted state of a FileLoader.
type LoaderState struct {
	Version uint32          `cbor:"version"`
	Enabled bool            `cbor:"enabled"`
	Params  *LoadParameters `cbor:"params,omitempty"`
}

// FileLoader keeps loader state in a CBOR file, for hosts without a real
// plugin loader.
type FileLoader struct {
	Path string
}

func (f FileLoader) Load() (LoaderState, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return LoaderState{}, err
	}
	var st LoaderState
	if err := cbor.Unmarshal(data, &st); err != nil {
		return LoaderState{}, fmt.Errorf("bootstrap: decode loader state: %w", err)
	}
	return st, nil
}

func (f FileLoader) Store(st LoaderState) error {
	data, err := cbor.Marshal(st)
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0o644)
}

func (f FileLoader) Version() (uint32, error) {
	st, err := f.Load()
	return st.Version, err
}

func (f FileLoader) Enabled() (bool, error) {
	st, err := f.Load()
	return st.Enabled, err
}

func (f FileLoader) SetEnabled(enabled bool) error {
	st, err := f.Load()
	if err != nil {
		return err
	}
	st.Enabled = enabled
	return f.Store(st)
}

func (f FileLoader) SetLoadParameters(p LoadParameters) error {
	st, err := f.Load()
	if err != nil {
		return err
	}
	st.Params = &p
	return f.Store(st)
}
