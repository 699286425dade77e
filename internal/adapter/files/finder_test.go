package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/watertemp-etl/internal/domain"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("timestamp,wtmp\n"), 0o600))
	}
}

func TestPrefixFinder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "STU01_2021.csv", "STU01_2019.csv", "XSTU01_2020.csv", "STU01.csv", "STU01_notes.txt")

	path, n, err := PrefixFinder{Dir: dir}.Find("STU01")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "STU01_2019.csv"), path, "first in name order")
	assert.Equal(t, 2, n)

	_, _, err = PrefixFinder{Dir: dir}.Find("NEC01")
	assert.ErrorIs(t, err, domain.ErrNoMatchingFile)
}

func TestSubstringFinder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "export-STU01.CSV", "STU01_2019.csv", "NEC01_2019.csv")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "STU01_old.csv"), 0o755))

	path, n, err := SubstringFinder{Dir: dir}.Find("STU01")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "STU01_2019.csv"), path)
	assert.Equal(t, 2, n, "directories are ignored")

	_, _, err = SubstringFinder{Dir: dir}.Find("")
	assert.ErrorIs(t, err, domain.ErrNoMatchingFile)
}

func TestFinder_MissingDir(t *testing.T) {
	_, _, err := SubstringFinder{Dir: filepath.Join(t.TempDir(), "nope")}.Find("STU01")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNoMatchingFile)
}

func TestCopyFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "STU01_2019.csv")
	require.NoError(t, os.WriteFile(src, []byte("timestamp,wtmp\n2019-06-15,8\n"), 0o600))

	dstDir := filepath.Join(t.TempDir(), "public", "raw")
	dst, err := CopyFile(src, dstDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dstDir, "STU01_2019.csv"), dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "timestamp,wtmp\n2019-06-15,8\n", string(data))

	_, err = CopyFile(filepath.Join(t.TempDir(), "missing.csv"), dstDir)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCopyFile_IntoOwnDirectoryKeepsContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "STU01_2019.csv")
	content := "timestamp,wtmp\n2019-06-15,8\n"
	require.NoError(t, os.WriteFile(src, []byte(content), 0o600))

	link := filepath.Join(t.TempDir(), "raw")
	require.NoError(t, os.Symlink(dir, link))

	for _, dstDir := range []string{dir, link} {
		dst, err := CopyFile(src, dstDir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dstDir, "STU01_2019.csv"), dst)

		data, err := os.ReadFile(src)
		require.NoError(t, err)
		assert.Equal(t, content, string(data), "source survives copy onto itself via %s", dstDir)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestCopyFile_ReplacesExisting(t *testing.T) {
	src := filepath.Join(t.TempDir(), "NEC01.csv")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o600))

	dstDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dstDir, "NEC01.csv"), []byte("old and longer"), 0o600))

	dst, err := CopyFile(src, dstDir)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(dstDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestArchiver_SourceAlreadyArchived(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "STU01_2019.csv")

	dst, err := Archiver{Dir: dir}.Archive(filepath.Join(dir, "STU01_2019.csv"))
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "timestamp,wtmp\n", string(data))
}

func TestArchiver(t *testing.T) {
	src := filepath.Join(t.TempDir(), "NEC01.csv")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	dir := t.TempDir()
	dst, err := Archiver{Dir: dir}.Archive(src)
	require.NoError(t, err)
	assert.FileExists(t, dst)
	assert.Equal(t, dir, filepath.Dir(dst))
}
