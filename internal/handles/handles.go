// Package handles tracks host resources opened by gateway calls so a session
// can release whatever the caller left open.
package handles

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

type Kind uint8

const (
	KindFile Kind = iota + 1
	KindDirectory
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// Closer is the kind-specific close path used by ReleaseAll.
type Closer interface {
	CloseFile(file uint32) error
	CloseDirectory(dir uint32) error
	CloseArchive(archive uint64) error
}

var ErrUnknownKind = errors.New("handles: unknown kind")

// Entry is one tracked handle.
type Entry struct {
	Handle uint64 `json:"handle"`
	Kind   Kind   `json:"-"`
	Type   string `json:"kind"`
}

// Table maps open handles to their kind.
type Table struct {
	mu      sync.Mutex
	closer  Closer
	entries map[uint64]Kind
}

func NewTable(closer Closer) *Table {
	return &Table{closer: closer, entries: make(map[uint64]Kind)}
}

// Register records h as open. Registering an existing handle replaces its kind.
func (t *Table) Register(h uint64, kind Kind) {
	t.mu.Lock()
	t.entries[h] = kind
	t.mu.Unlock()
}

// Unregister forgets h without closing it.
func (t *Table) Unregister(h uint64) {
	t.mu.Lock()
	delete(t.entries, h)
	t.mu.Unlock()
}

func (t *Table) Lookup(h uint64) (Kind, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k, ok := t.entries[h]
	return k, ok
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Snapshot returns the open handles ordered by value.
func (t *Table) Snapshot() []Entry {
	t.mu.Lock()
	out := make([]Entry, 0, len(t.entries))
	for h, k := range t.entries {
		out = append(out, Entry{Handle: h, Kind: k, Type: k.String()})
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// ReleaseAll closes every tracked handle and empties the table. Close
// failures are logged and skipped. It returns the number of handles visited.
func (t *Table) ReleaseAll() int {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[uint64]Kind)
	t.mu.Unlock()

	for h, kind := range entries {
		if err := t.close(h, kind); err != nil {
			log.Debug().Uint64("handle", h).Str("kind", kind.String()).Err(err).Msg("handles.ReleaseAll close failed")
			continue
		}
		log.Debug().Uint64("handle", h).Str("kind", kind.String()).Msg("handles.ReleaseAll closed")
	}
	return len(entries)
}

func (t *Table) close(h uint64, kind Kind) error {
	if t.closer == nil {
		return nil
	}
	switch kind {
	case KindFile:
		return t.closer.CloseFile(uint32(h))
	case KindDirectory:
		return t.closer.CloseDirectory(uint32(h))
	case KindArchive:
		return t.closer.CloseArchive(h)
	default:
		return ErrUnknownKind
	}
}
