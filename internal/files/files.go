// Package files defines onelist's internal file model and the normalizer
// that converts upstream drive items into it, populating the response
// cache tiers as a side effect so later thumbnail and download lookups
// skip the upstream round trip.
package files

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Chikage0o0/onelist/internal/cache"
	"github.com/Chikage0o0/onelist/internal/graph"
)

// Kind classifies an entry for the front end.
type Kind string

const (
	KindFile   Kind = "File"
	KindFolder Kind = "Folder"
	KindVideo  Kind = "Video"
	KindAudio  Kind = "Audio"
)

// FileInfo is the normalized file record served by the API. Read-only
// after construction; cache tiers hand back copies, never shared mutable
// state. Timestamps are unix seconds, zero when the upstream omitted or
// mangled them.
type FileInfo struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Size                 int64  `json:"size"`
	CreatedDateTime      int64  `json:"created_date_time"`
	LastModifiedDateTime int64  `json:"last_modified_date_time"`
	FullPath             string `json:"full_path"`
	Kind                 Kind   `json:"type"`
}

// Thumbnails holds the sized thumbnail URLs for one item. Absent sizes are
// empty strings, not errors.
type Thumbnails struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
}

// URL returns the variant for size ("small", "medium", "large"), empty for
// an unknown size name.
func (t Thumbnails) URL(size string) string {
	switch size {
	case "small":
		return t.Small
	case "medium":
		return t.Medium
	case "large":
		return t.Large
	default:
		return ""
	}
}

// Caches bundles the four response cache tiers. Each tier is independent;
// there is no cross-tier transaction and no write path ever invalidates an
// entry. The system is read-only, entries simply age out.
type Caches struct {
	// DownloadURL maps item id to the signed download URL.
	DownloadURL *cache.Store[string, string]
	// Listing maps folder path to the normalized, ordered file list.
	Listing *cache.Store[string, []FileInfo]
	// Thumbnail maps item id to its thumbnail URL set.
	Thumbnail *cache.Store[string, Thumbnails]
	// Metadata maps item id to the normalized file record.
	Metadata *cache.Store[string, FileInfo]
}

// NewCaches builds the tiers. ttl covers the download-URL, thumbnail, and
// metadata tiers; listTTL covers folder listings, which may live longer.
func NewCaches(ttl, listTTL time.Duration) *Caches {
	return &Caches{
		DownloadURL: cache.New[string, string](ttl),
		Listing:     cache.New[string, []FileInfo](listTTL),
		Thumbnail:   cache.New[string, Thumbnails](ttl),
		Metadata:    cache.New[string, FileInfo](ttl),
	}
}

// RunSweepers sweeps every tier on the given interval until ctx is
// canceled, bounding memory for tiers whose keys are rarely re-read.
func (c *Caches) RunSweepers(ctx context.Context, interval time.Duration) {
	var wg sync.WaitGroup

	sweep := func(run func(context.Context, time.Duration)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx, interval)
		}()
	}

	sweep(c.DownloadURL.RunSweeper)
	sweep(c.Listing.RunSweeper)
	sweep(c.Thumbnail.RunSweeper)
	sweep(c.Metadata.RunSweeper)

	wg.Wait()
}

// parseTimestamp converts an RFC3339 timestamp to unix seconds, zero on
// absent or malformed input.
func parseTimestamp(raw string) int64 {
	if raw == "" {
		return 0
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0
	}

	return t.Unix()
}

// kindOf derives the entry kind. Media kinds win over the folder/file
// split so an audio file with a download URL still reports as Audio.
func kindOf(item *graph.Item) Kind {
	var mime string
	if item.File != nil {
		mime = item.File.MimeType
	}

	switch {
	case strings.HasPrefix(mime, "video"):
		return KindVideo
	case strings.HasPrefix(mime, "audio"):
		return KindAudio
	case item.DownloadURL == "":
		return KindFolder
	default:
		return KindFile
	}
}
