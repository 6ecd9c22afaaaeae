//go:build !unix

package hostfs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/articgate/internal/native"
)

func attributes(full string) (uint32, error) {
	info, err := os.Stat(full)
	if err != nil {
		return 0, err
	}
	var attrs uint32
	if info.IsDir() {
		attrs |= native.AttrDirectory
	} else {
		attrs |= native.AttrArchive
	}
	if info.Mode().Perm()&0o222 == 0 {
		attrs |= native.AttrReadOnly
	}
	if strings.HasPrefix(filepath.Base(full), ".") {
		attrs |= native.AttrHidden
	}
	return attrs, nil
}
