package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemProvider(t *testing.T) (*FileSystemProvider, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	p, err := NewFileSystemProvider(fs, "/uploads")
	require.NoError(t, err)
	return p, fs
}

func writeTemp(t *testing.T, p *FileSystemProvider, content string) string {
	t.Helper()
	f, name, err := p.CreateTemp()
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return name
}

func TestNewFileSystemProvider_CreatesRoot(t *testing.T) {
	p, fs := newMemProvider(t)

	info, err := fs.Stat(p.GetPath())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(p.GetPath()))
}

func TestCreateTemp_IsHidden(t *testing.T) {
	p, _ := newMemProvider(t)

	name := writeTemp(t, p, "abc")
	assert.True(t, IsHidden(name))
	assert.True(t, strings.HasPrefix(name, TempPrefix))
	assert.True(t, p.Exists(name))
}

func TestPublish(t *testing.T) {
	p, fs := newMemProvider(t)

	tmp := writeTemp(t, p, "hello")
	require.NoError(t, p.Publish(tmp, "hello.txt"))

	assert.False(t, p.Exists(tmp))
	data, err := afero.ReadFile(fs, filepath.Join(p.GetPath(), "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestPublish_NeverOverwrites(t *testing.T) {
	p, fs := newMemProvider(t)

	first := writeTemp(t, p, "first")
	require.NoError(t, p.Publish(first, "a.txt"))

	second := writeTemp(t, p, "second")
	err := p.Publish(second, "a.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrExist), "got %v", err)

	data, err := afero.ReadFile(fs, filepath.Join(p.GetPath(), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	assert.True(t, p.Exists(second), "losing temp file is left for the caller to clean up")
}

func newDiskProvider(t *testing.T) *FileSystemProvider {
	t.Helper()
	p, err := NewFileSystemProvider(afero.NewOsFs(), t.TempDir())
	require.NoError(t, err)
	return p
}

func TestPublish_OnDisk(t *testing.T) {
	p := newDiskProvider(t)

	tmp := writeTemp(t, p, "hello")
	require.NoError(t, p.Publish(tmp, "hello.txt"))

	names, err := p.ReadNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"hello.txt"}, names)
	data, err := os.ReadFile(filepath.Join(p.GetPath(), "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestPublish_OnDiskNeverOverwrites(t *testing.T) {
	p := newDiskProvider(t)
	existing := filepath.Join(p.GetPath(), "a.txt")
	require.NoError(t, os.WriteFile(existing, []byte("first"), 0o644))

	tmp := writeTemp(t, p, "second")
	err := p.Publish(tmp, "a.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrExist), "got %v", err)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	assert.True(t, p.Exists(tmp))
}

func TestSweepTemp(t *testing.T) {
	p, fs := newMemProvider(t)

	writeTemp(t, p, "partial")
	writeTemp(t, p, "another")
	for _, name := range []string{"keep.txt", ".upload-notes", ".hidden.part"} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(p.GetPath(), name), []byte("x"), 0o644))
	}

	n, err := p.SweepTemp()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	names, err := p.ReadNames()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"keep.txt", ".upload-notes", ".hidden.part"}, names)
}

func TestRemove(t *testing.T) {
	p, _ := newMemProvider(t)

	tmp := writeTemp(t, p, "x")
	require.NoError(t, p.Remove(tmp))
	assert.False(t, p.Exists(tmp))

	assert.NoError(t, p.Remove("missing.txt"))
}

func TestInvalidNames(t *testing.T) {
	p, _ := newMemProvider(t)

	for _, name := range []string{"", ".", "..", "../etc/passwd", "a/b", `a\b`, "nul\x00"} {
		_, err := p.Stat(name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
		assert.False(t, p.Exists(name), "name %q", name)
		assert.ErrorIs(t, p.Remove(name), ErrInvalidName, "name %q", name)
	}
}

func TestReadNames(t *testing.T) {
	p, fs := newMemProvider(t)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(p.GetPath(), "a.txt"), []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(p.GetPath(), "b.txt"), []byte("b"), 0o644))

	names, err := p.ReadNames()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
}
