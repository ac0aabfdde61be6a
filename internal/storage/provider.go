package storage

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// TempPrefix marks in-flight upload files. Names starting with a dot are
// never listed, so partial uploads stay invisible to viewers.
const TempPrefix = ".upload-"

// ErrInvalidName is returned for names that are not a plain file name
// inside the storage directory.
var ErrInvalidName = errors.New("invalid file name")

// StorageProvider is the storage directory as seen by the upload pipeline
// and the listing endpoints. Every name is a bare file name relative to
// GetPath().
type StorageProvider interface {
	GetPath() string
	Exists(name string) bool
	ReadNames() ([]string, error)
	Stat(name string) (os.FileInfo, error)
	Open(name string) (afero.File, error)
	// CreateTemp opens a new hidden file for an in-flight upload and
	// returns it together with its name.
	CreateTemp() (afero.File, string, error)
	// Publish moves a finished temp file to name. It fails with an error
	// matching os.ErrExist if name is already taken; it never overwrites.
	Publish(tempName, name string) error
	Remove(name string) error
}

// IsHidden reports whether name is excluded from listings.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
