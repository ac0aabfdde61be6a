package upload

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"dropzone/internal/metrics"
	"dropzone/internal/storage"
)

var errDiskFull = errors.New("no space left on device")

// faultyFs fails writes to the failCreate-th temp file (1-based) once
// failAfter bytes have been written to it. A non-nil openErr fails every
// temp file creation instead.
type faultyFs struct {
	afero.Fs
	mu         sync.Mutex
	creates    int
	failCreate int
	failAfter  int
	openErr    error
}

func (f *faultyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	isTemp := strings.HasPrefix(filepath.Base(name), storage.TempPrefix)
	if isTemp && f.openErr != nil {
		return nil, f.openErr
	}
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil || !isTemp {
		return file, err
	}
	f.mu.Lock()
	f.creates++
	n := f.creates
	f.mu.Unlock()
	if n == f.failCreate {
		return &faultyFile{File: file, remaining: f.failAfter}, nil
	}
	return file, nil
}

type faultyFile struct {
	afero.File
	remaining int
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if len(p) > f.remaining {
		n, _ := f.File.Write(p[:f.remaining])
		f.remaining = 0
		return n, errDiskFull
	}
	f.remaining -= len(p)
	return f.File.Write(p)
}

func newProvider(t *testing.T, fs afero.Fs) *storage.FileSystemProvider {
	t.Helper()
	p, err := storage.NewFileSystemProvider(fs, "/uploads")
	require.NoError(t, err)
	return p
}

// dirNames lists everything in the storage directory, hidden files included.
func dirNames(t *testing.T, p storage.StorageProvider) []string {
	t.Helper()
	names, err := p.ReadNames()
	require.NoError(t, err)
	sort.Strings(names)
	return names
}

func readStored(t *testing.T, fs afero.Fs, p storage.StorageProvider, name string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, filepath.Join(p.GetPath(), name))
	require.NoError(t, err)
	return string(data)
}

type testPart struct {
	field       string
	filename    string
	contentType string
	content     string
}

func multipartBody(t *testing.T, parts ...testPart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		disposition := `form-data; name="` + p.field + `"`
		if p.filename != "" {
			disposition += `; filename="` + p.filename + `"`
		}
		h.Set("Content-Disposition", disposition)
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write([]byte(p.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
