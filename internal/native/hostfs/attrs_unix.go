//go:build unix

package hostfs

import (
	"path/filepath"
	"strings"

	"github.com/danmuck/articgate/internal/native"
	"golang.org/x/sys/unix"
)

// attributes maps host mode bits onto archive attributes. Files nobody may
// write are read-only; dot files are hidden.
func attributes(full string) (uint32, error) {
	var st unix.Stat_t
	if err := unix.Stat(full, &st); err != nil {
		return 0, err
	}
	var attrs uint32
	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		attrs |= native.AttrDirectory
	} else {
		attrs |= native.AttrArchive
	}
	if st.Mode&0o222 == 0 {
		attrs |= native.AttrReadOnly
	}
	if strings.HasPrefix(filepath.Base(full), ".") {
		attrs |= native.AttrHidden
	}
	return attrs, nil
}
