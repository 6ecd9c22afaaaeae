package handles

import (
	"errors"
	"testing"

	"github.com/danmuck/articgate/internal/testutil/testlog"
)

type recordingCloser struct {
	files    map[uint32]int
	dirs     map[uint32]int
	archives map[uint64]int
	failFile bool
}

func newRecordingCloser() *recordingCloser {
	return &recordingCloser{
		files:    make(map[uint32]int),
		dirs:     make(map[uint32]int),
		archives: make(map[uint64]int),
	}
}

func (c *recordingCloser) CloseFile(h uint32) error {
	c.files[h]++
	if c.failFile {
		return errors.New("close failed")
	}
	return nil
}

func (c *recordingCloser) CloseDirectory(h uint32) error {
	c.dirs[h]++
	return nil
}

func (c *recordingCloser) CloseArchive(h uint64) error {
	c.archives[h]++
	return nil
}

func TestReleaseAllClosesOnce(t *testing.T) {
	testlog.Start(t)

	closer := newRecordingCloser()
	table := NewTable(closer)
	table.Register(0x20, KindFile)

	if n := table.ReleaseAll(); n != 1 {
		t.Fatalf("expected 1 released handle, got %d", n)
	}
	if table.Len() != 0 {
		t.Fatalf("table not empty after release")
	}
	if closer.files[0x20] != 1 {
		t.Fatalf("expected one file close, got %d", closer.files[0x20])
	}

	if n := table.ReleaseAll(); n != 0 {
		t.Fatalf("expected no-op second release, got %d", n)
	}
	if closer.files[0x20] != 1 {
		t.Fatalf("second release closed again: %d", closer.files[0x20])
	}
}

func TestReleaseAllUsesKindClosePath(t *testing.T) {
	testlog.Start(t)

	closer := newRecordingCloser()
	table := NewTable(closer)
	table.Register(1, KindFile)
	table.Register(2, KindDirectory)
	table.Register(0x1_0000_0003, KindArchive)
	table.ReleaseAll()

	if closer.files[1] != 1 || closer.dirs[2] != 1 || closer.archives[0x1_0000_0003] != 1 {
		t.Fatalf("unexpected closes files=%v dirs=%v archives=%v", closer.files, closer.dirs, closer.archives)
	}
}

func TestReleaseAllSwallowsFailures(t *testing.T) {
	testlog.Start(t)

	closer := newRecordingCloser()
	closer.failFile = true
	table := NewTable(closer)
	table.Register(1, KindFile)
	table.Register(2, KindFile)
	table.Register(3, KindDirectory)

	if n := table.ReleaseAll(); n != 3 {
		t.Fatalf("expected 3 visited handles, got %d", n)
	}
	if closer.dirs[3] != 1 {
		t.Fatalf("directory close skipped after file failures")
	}
	if table.Len() != 0 {
		t.Fatalf("table not cleared")
	}
}

func TestUnregisterAndSnapshot(t *testing.T) {
	testlog.Start(t)

	table := NewTable(nil)
	table.Register(9, KindDirectory)
	table.Register(4, KindFile)
	table.Register(7, KindArchive)
	table.Unregister(7)

	if _, ok := table.Lookup(7); ok {
		t.Fatalf("unregistered handle still present")
	}
	snap := table.Snapshot()
	if len(snap) != 2 || snap[0].Handle != 4 || snap[1].Handle != 9 || snap[1].Type != "directory" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	kind, ok := table.Lookup(4)
	if !ok || kind != KindFile {
		t.Fatalf("lookup mismatch: %v %v", kind, ok)
	}
}
