package engine

import (
	"github.com/fsnotify/fsnotify"

	"dropzone/internal/storage"
)

// changesListing reports whether event can alter the directory listing.
// Hidden names cover in-progress uploads, so their churn is ignored until
// the final rename, and permission changes never show up in a listing.
func (w *Watcher) changesListing(event fsnotify.Event) bool {
	name, ok := relativeName(w.root, event.Name)
	if !ok || storage.IsHidden(name) {
		return false
	}

	switch {
	case event.Op.Has(fsnotify.Create),
		event.Op.Has(fsnotify.Remove),
		event.Op.Has(fsnotify.Rename),
		event.Op.Has(fsnotify.Write):
		return true
	}
	return false
}
