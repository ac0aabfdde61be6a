package storage

import (
	"sort"

	"dropzone/internal/models"
)

// Snapshot lists the stored files newest first. Entries that vanish or
// cannot be stat'ed while the listing is built are left out; if the
// directory itself cannot be read, an empty listing is returned alongside
// the error.
func Snapshot(p StorageProvider) ([]models.StoredFile, error) {
	files := make([]models.StoredFile, 0)

	names, err := p.ReadNames()
	if err != nil {
		return files, err
	}

	for _, name := range names {
		if IsHidden(name) {
			continue
		}
		info, err := p.Stat(name)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, models.StoredFile{
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.After(files[j].ModTime)
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}
