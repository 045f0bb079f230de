package gphotos

import (
	"context"
	"time"
)

// AlbumInfo describes one album as seen in the gallery grid
type AlbumInfo struct {
	Title  string
	Items  int
	Shared bool
	URL    string
}

// PictureInfo is the structured record extracted for one photo
type PictureInfo struct {
	Filename string
	// DateTaken is nil when the panel's date string could not be parsed
	DateTaken *time.Time
	// Owner is the "Shared by" attribution, empty when absent
	Owner string
	// SourceID is the stable per-item identifier derived from the photo URL
	SourceID string
}

// WalkSummary reports the outcome of walking one album
type WalkSummary struct {
	NewPhotos       int
	AssociatedUsers []string
	// Aborted is set when the walk ended early on a fatal extraction error
	Aborted bool
}

// RunSummary reports the outcome of processing a set of albums
type RunSummary struct {
	AlbumsProcessed int
	NewPhotos       int
	Errors          []string
}

// walkCursor tracks where in the item sequence a single walk believes it
// is. It is created fresh per walk and never persisted: after a crash the
// resume point is reconstructed from the album's processed count alone.
type walkCursor struct {
	logicalPosition  int
	lastSeenSourceID string
	repeatCount      int
}

// RecordStore is the slice of the record store the walker needs
type RecordStore interface {
	GetProgress(ctx context.Context, albumID int64) (declared, processed int, err error)
	SetProgress(ctx context.Context, albumID int64, processed int) error
	UpsertUser(ctx context.Context, name string) (int64, error)
	LinkUserAlbum(ctx context.Context, userID, albumID int64) error
	InsertPhoto(ctx context.Context, albumID, userID int64, sourceID, filename string, dateTaken *time.Time) (id int64, inserted bool, err error)
	RecordError(ctx context.Context, message string, albumID int64) error
}

// AlbumRegistry is the slice of the record store the collector needs
type AlbumRegistry interface {
	AlbumExists(ctx context.Context, title string) (bool, error)
	UpsertAlbum(ctx context.Context, title, url string, items int, shared bool) (int64, error)
}
