package native

import (
	"errors"
	"fmt"
	"testing"

	"github.com/danmuck/articgate/internal/testutil/testlog"
)

func TestParsePath(t *testing.T) {
	testlog.Start(t)

	p, err := ParsePath(ASCIIPath("/rw/sys/SecureInfo_A").Encode())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	text, ok := p.Text()
	if !ok || p.Type != PathASCII || text != "/rw/sys/SecureInfo_A" {
		t.Fatalf("unexpected path: %s", p)
	}

	for _, blob := range [][]byte{
		{1, 0, 0, 0},
		{3, 0, 0, 0, 4, 0, 0, 0, 'a', 'b'},
		{3, 0, 0, 0, 1, 0, 0, 0, 'a', 'b'},
	} {
		if _, err := ParsePath(blob); !errors.Is(err, ErrMalformedPath) {
			t.Fatalf("expected ErrMalformedPath for %v, got %v", blob, err)
		}
	}
}

func TestBinaryPathWords(t *testing.T) {
	testlog.Start(t)

	p := BinaryPath(0x2C02, 0x00040130, uint32(MediaNAND), 0)
	if len(p.Data) != 0x10 {
		t.Fatalf("unexpected size %d", len(p.Data))
	}
	hi, ok := p.Word(1)
	if !ok || hi != 0x00040130 {
		t.Fatalf("unexpected word: 0x%X ok=%v", hi, ok)
	}
	if _, ok := p.Word(4); ok {
		t.Fatalf("expected word past end to fail")
	}
}

func TestUTF16PathText(t *testing.T) {
	testlog.Start(t)

	text, ok := UTF16Path("/saves/ä.bin").Text()
	if !ok || text != "/saves/ä.bin" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestDirectoryEntryRecord(t *testing.T) {
	testlog.Start(t)

	in := DirectoryEntry{
		Name:       "banner.bin",
		ShortName:  "BANNER",
		ShortExt:   "BIN",
		Valid:      true,
		Attributes: AttrArchive,
		FileSize:   0x3AC0,
	}
	buf := make([]byte, DirectoryEntrySize)
	in.MarshalTo(buf)
	if out := UnmarshalDirectoryEntry(buf); out != in {
		t.Fatalf("record mismatch: got %+v want %+v", out, in)
	}
}

func TestCode(t *testing.T) {
	testlog.Start(t)

	if Code(nil) != 0 {
		t.Fatalf("nil error should be 0")
	}
	wrapped := fmt.Errorf("open: %w", Fail("FSUSER_OpenFile", ResultNotFound))
	if Code(wrapped) != ResultNotFound {
		t.Fatalf("unexpected code 0x%08X", uint32(Code(wrapped)))
	}
	if Code(errors.New("boom")) != ResultInternal {
		t.Fatalf("expected ResultInternal for foreign errors")
	}
}
