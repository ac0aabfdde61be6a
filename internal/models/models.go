package models

import "time"

// StoredFile describes one file in the storage directory.
type StoredFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified"`
}

// FailedFile records a stream that did not make it to disk.
type FailedFile struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}
