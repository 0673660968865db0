package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raskfs/rask/pkg/inode"
)

// safeJoin resolves name against root, rejecting any path that would
// escape it. Grounded on original_source/src/file.cpp's relative_path,
// which raises not_implemented for a location outside the tenant root
// rather than materializing it anywhere on disk.
func safeJoin(root, name string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	full := filepath.Join(root, clean)
	rootClean := filepath.Clean(root)
	if full != rootClean && !strings.HasPrefix(full, rootClean+string(filepath.Separator)) {
		return "", fmt.Errorf("reconcile: path %q escapes tenant root %q", name, root)
	}
	return full, nil
}

// applyFilesystemEffect performs the real disk effect a leaf packet
// names, under the tenant's local root (spec §4.6 point 4, §4.7's
// FILE-EXISTS/CREATE-DIRECTORY/MOVE-OUT rows). Grounded on
// original_source/src/connection.create.cpp's create_directory (a
// recursive mkdir under the tenant root) and src/file.cpp's
// allocate_file (open-or-resize a file to its advertised size).
func applyFilesystemEffect(root string, rec inode.Record) error {
	full, err := safeJoin(root, rec.Name)
	if err != nil {
		return err
	}
	switch rec.Type {
	case inode.TypeDirectory:
		return os.MkdirAll(full, 0o755)
	case inode.TypeMoved:
		if err := os.RemoveAll(full); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	default:
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		return allocateFile(full, rec.SizeBytes)
	}
}

// allocateFile opens or creates fn and resizes it to size, the Go
// equivalent of allocate_file's open+fallocate/resize_file pair: the
// standard library has no portable fallocate, so Truncate is used to
// reserve (or shrink) the file to its advertised length.
func allocateFile(fn string, size uint64) error {
	f, err := os.OpenFile(fn, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(int64(size))
}

// writeFileBlock writes data at offset into fn, creating it (and any
// missing parent directories) first if needed (spec §4.7's
// FILE-DATA-BLOCK row: "write <offset, bytes> into the corresponding
// file").
func writeFileBlock(fn string, offset int64, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(fn), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(fn, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(data, offset)
	return err
}
