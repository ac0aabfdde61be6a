package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

type FileSystemProvider struct {
	fs       afero.Fs
	rootPath string
}

// NewFileSystemProvider returns a provider rooted at rootPath on fs,
// creating the directory if needed.
func NewFileSystemProvider(fs afero.Fs, rootPath string) (*FileSystemProvider, error) {
	absPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootPath, err)
	}
	if err := fs.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure directory %s: %w", absPath, err)
	}
	return &FileSystemProvider{fs: fs, rootPath: absPath}, nil
}

func (p *FileSystemProvider) GetPath() string {
	return p.rootPath
}

func (p *FileSystemProvider) Exists(name string) bool {
	fullPath, err := p.join(name)
	if err != nil {
		return false
	}
	_, err = p.fs.Stat(fullPath)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

func (p *FileSystemProvider) ReadNames() ([]string, error) {
	dir, err := p.fs.Open(p.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory %s: %w", p.rootPath, err)
	}
	defer dir.Close()

	names, err := dir.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", p.rootPath, err)
	}
	return names, nil
}

func (p *FileSystemProvider) Stat(name string) (os.FileInfo, error) {
	fullPath, err := p.join(name)
	if err != nil {
		return nil, err
	}
	return p.fs.Stat(fullPath)
}

func (p *FileSystemProvider) Open(name string) (afero.File, error) {
	fullPath, err := p.join(name)
	if err != nil {
		return nil, err
	}
	return p.fs.Open(fullPath)
}

func (p *FileSystemProvider) CreateTemp() (afero.File, string, error) {
	name := TempPrefix + uuid.NewString() + ".part"
	file, err := p.fs.OpenFile(filepath.Join(p.rootPath, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create temp file in %s: %w", p.rootPath, err)
	}
	return file, name, nil
}

// Publish moves the temp file to name without ever replacing an existing
// file. On a real disk the temp file is hard-linked to name, which fails
// atomically if name is taken, so name is never visible without its
// content. Filesystems without hard links fall back to claiming name with
// an exclusive create and renaming the temp file over the claim; there a
// crash between the two steps leaves an empty file under name.
func (p *FileSystemProvider) Publish(tempName, name string) error {
	tempPath, err := p.join(tempName)
	if err != nil {
		return err
	}
	finalPath, err := p.join(name)
	if err != nil {
		return err
	}

	if _, ok := p.fs.(*afero.OsFs); ok {
		err := os.Link(tempPath, finalPath)
		switch {
		case err == nil:
			if err := p.fs.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", tempName, err)
			}
			return nil
		case errors.Is(err, os.ErrExist):
			return fmt.Errorf("failed to claim %s: %w", name, err)
		}
	}
	return p.claimAndRename(tempPath, finalPath, name)
}

func (p *FileSystemProvider) claimAndRename(tempPath, finalPath, name string) error {
	claim, err := p.fs.OpenFile(finalPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to claim %s: %w", name, err)
	}
	if err := claim.Close(); err != nil {
		_ = p.fs.Remove(finalPath)
		return fmt.Errorf("failed to claim %s: %w", name, err)
	}

	if err := p.fs.Rename(tempPath, finalPath); err != nil {
		_ = p.fs.Remove(finalPath)
		return fmt.Errorf("failed to publish %s: %w", name, err)
	}
	return nil
}

// SweepTemp removes temp files left behind by a previous run that died
// mid-upload. It must run before any upload starts.
func (p *FileSystemProvider) SweepTemp() (int, error) {
	names, err := p.ReadNames()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range names {
		if !strings.HasPrefix(name, TempPrefix) || !strings.HasSuffix(name, ".part") {
			continue
		}
		if err := p.Remove(name); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (p *FileSystemProvider) Remove(name string) error {
	fullPath, err := p.join(name)
	if err != nil {
		return err
	}
	if err := p.fs.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", fullPath, err)
	}
	return nil
}

func (p *FileSystemProvider) join(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(p.rootPath, name), nil
}
