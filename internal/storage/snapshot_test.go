package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dropzone/internal/models"
)

func TestSnapshot_NewestFirst(t *testing.T) {
	p, fs := newMemProvider(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	put := func(name, content string, mod time.Time) {
		path := filepath.Join(p.GetPath(), name)
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
		require.NoError(t, fs.Chtimes(path, mod, mod))
	}
	put("old.txt", "1", base)
	put("new.txt", "22", base.Add(2*time.Hour))
	put("mid-b.txt", "333", base.Add(time.Hour))
	put("mid-a.txt", "4444", base.Add(time.Hour))
	put(".upload-123.part", "partial", base.Add(3*time.Hour))
	require.NoError(t, fs.Mkdir(filepath.Join(p.GetPath(), "sub"), 0o755))

	got, err := Snapshot(p)
	require.NoError(t, err)

	want := []models.StoredFile{
		{Name: "new.txt", Size: 2, ModTime: base.Add(2 * time.Hour)},
		{Name: "mid-a.txt", Size: 4, ModTime: base.Add(time.Hour)},
		{Name: "mid-b.txt", Size: 3, ModTime: base.Add(time.Hour)},
		{Name: "old.txt", Size: 1, ModTime: base},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshot_Idempotent(t *testing.T) {
	p, fs := newMemProvider(t)
	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(p.GetPath(), name), []byte(name), 0o644))
	}

	first, err := Snapshot(p)
	require.NoError(t, err)
	second, err := Snapshot(p)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("listing changed without filesystem change:\n%s", diff)
	}
}

type flakyProvider struct {
	StorageProvider
	names    []string
	readErr  error
	statFail map[string]bool
}

func (f *flakyProvider) ReadNames() ([]string, error) {
	return f.names, f.readErr
}

func (f *flakyProvider) Stat(name string) (os.FileInfo, error) {
	if f.statFail[name] {
		return nil, os.ErrNotExist
	}
	return f.StorageProvider.Stat(name)
}

func TestSnapshot_SkipsVanishedEntries(t *testing.T) {
	p, fs := newMemProvider(t)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(p.GetPath(), "kept.txt"), []byte("k"), 0o644))

	flaky := &flakyProvider{
		StorageProvider: p,
		names:           []string{"gone.txt", "kept.txt"},
		statFail:        map[string]bool{"gone.txt": true},
	}

	got, err := Snapshot(flaky)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept.txt", got[0].Name)
}

func TestSnapshot_UnreadableDirectory(t *testing.T) {
	p, _ := newMemProvider(t)
	flaky := &flakyProvider{StorageProvider: p, readErr: errors.New("boom")}

	got, err := Snapshot(flaky)
	assert.Error(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
