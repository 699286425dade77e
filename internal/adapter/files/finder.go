// Package files locates raw station exports on disk and copies them into
// the public tree.
package files

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/watertemp-etl/internal/domain"
)

// PrefixFinder matches raw files named "{code}_*.csv".
type PrefixFinder struct {
	Dir string
}

// Find returns the first matching file in directory order and the number of
// candidates considered. domain.ErrNoMatchingFile is returned when none match.
func (f PrefixFinder) Find(code string) (string, int, error) {
	return find(f.Dir, code, func(name string) bool {
		return strings.HasPrefix(name, code+"_")
	})
}

// SubstringFinder matches any raw .csv file whose name contains the code.
type SubstringFinder struct {
	Dir string
}

// Find returns the first matching file in directory order and the number of
// candidates considered. domain.ErrNoMatchingFile is returned when none match.
func (f SubstringFinder) Find(code string) (string, int, error) {
	return find(f.Dir, code, func(name string) bool {
		return strings.Contains(name, code)
	})
}

func find(dir, code string, match func(name string) bool) (string, int, error) {
	if code == "" {
		return "", 0, domain.ErrNoMatchingFile
	}

	// os.ReadDir returns entries sorted by name.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, fmt.Errorf("list raw files: %w", err)
	}

	var candidates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".csv") {
			continue
		}
		if match(name) {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}
	if len(candidates) == 0 {
		return "", 0, domain.ErrNoMatchingFile
	}
	return candidates[0], len(candidates), nil
}

// Archiver copies matched raw files into the public raw directory.
type Archiver struct {
	Dir string
}

// Archive copies path into a.Dir and returns the copy's path.
func (a Archiver) Archive(path string) (string, error) {
	return CopyFile(path, a.Dir)
}

// CopyFile copies src into dstDir under the same base name and returns the
// destination path. The copy lands via a temporary file and rename, and a
// destination that already is src is left untouched.
func CopyFile(src, dstDir string) (string, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dstDir, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	defer in.Close()

	dst := filepath.Join(dstDir, filepath.Base(src))
	same, err := sameFile(in, dst)
	if err != nil {
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	if same {
		return dst, nil
	}

	tmp, err := os.CreateTemp(dstDir, "."+filepath.Base(src)+".*")
	if err != nil {
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	return dst, nil
}

func sameFile(src *os.File, dst string) (bool, error) {
	srcInfo, err := src.Stat()
	if err != nil {
		return false, err
	}
	dstInfo, err := os.Stat(dst)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return os.SameFile(srcInfo, dstInfo), nil
}
