package domain

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LocatorKind tells whether an asset still has to be downloaded.
type LocatorKind string

const (
	LocatorRemote LocatorKind = "remote"
	LocatorLocal  LocatorKind = "local"
)

// AssetReference points at one located media item. Ordinal defines delivery order.
type AssetReference struct {
	Locator string      `json:"locator"`
	Kind    LocatorKind `json:"kind"`
	Ordinal int         `json:"ordinal"`
}

// IsLocal reports whether the reference is an already materialized file.
func (r AssetReference) IsLocal() bool {
	return r.Kind == LocatorLocal
}

// AssetKind is the file kind used to pick a delivery operation.
type AssetKind string

const (
	AssetKindImage    AssetKind = "image"
	AssetKindVideo    AssetKind = "video"
	AssetKindAudio    AssetKind = "audio"
	AssetKindDocument AssetKind = "document"
)

var (
	audioExtensions = map[string]bool{".mp3": true, ".m4a": true, ".aac": true, ".wav": true}
	imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
	videoExtensions = map[string]bool{".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true}
)

// KindFromExtension maps a file extension to an AssetKind.
// The second return value is false for unknown extensions.
func KindFromExtension(ext string) (AssetKind, bool) {
	ext = strings.ToLower(ext)
	switch {
	case audioExtensions[ext]:
		return AssetKindAudio, true
	case imageExtensions[ext]:
		return AssetKindImage, true
	case videoExtensions[ext]:
		return AssetKindVideo, true
	}
	return AssetKindDocument, false
}

// FetchedAsset is a file in the scoped temp directory, owned by whoever holds it.
// Release deletes the file; only the first call does any work.
type FetchedAsset struct {
	Path    string
	Size    int64
	Kind    AssetKind
	Ordinal int

	once       sync.Once
	releaseErr error
}

// NewFetchedAsset creates an ownership handle for a file on disk.
func NewFetchedAsset(path string, size int64, kind AssetKind, ordinal int) *FetchedAsset {
	return &FetchedAsset{
		Path:    path,
		Size:    size,
		Kind:    kind,
		Ordinal: ordinal,
	}
}

// Ext returns the lowercase file extension including the dot.
func (a *FetchedAsset) Ext() string {
	return strings.ToLower(filepath.Ext(a.Path))
}

// Release removes the temporary file exactly once.
func (a *FetchedAsset) Release() error {
	a.once.Do(func() {
		err := os.Remove(a.Path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.releaseErr = err
		}
	})
	return a.releaseErr
}
