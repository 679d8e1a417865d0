package files

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/Chikage0o0/onelist/internal/graph"
)

// Normalization errors. An item without an id cannot be cached or
// addressed, so it is unusable; a thumbnail set whose first element is
// absent carries nothing to serve.
var (
	ErrMissingID      = errors.New("files: item has no id")
	ErrThumbnailParse = errors.New("files: thumbnail set unparseable")
)

// driveRootPrefix is what Graph prepends to every parentReference path.
const driveRootPrefix = "/drive/root:"

// Normalize converts one upstream item into a FileInfo and opportunistically
// populates the cache tiers: thumbnails and the download URL when the item
// carries them, the metadata record always, all keyed by item id. The side
// effects are idempotent, so re-normalizing the same item only refreshes
// the same entries.
func Normalize(item *graph.Item, caches *Caches, rootPath string) (FileInfo, error) {
	if item.ID == "" {
		return FileInfo{}, ErrMissingID
	}

	info := FileInfo{
		ID:                   item.ID,
		Name:                 item.Name,
		Size:                 item.Size,
		CreatedDateTime:      parseTimestamp(item.CreatedDateTime),
		LastModifiedDateTime: parseTimestamp(item.LastModifiedDateTime),
		FullPath:             fullPath(item, rootPath),
		Kind:                 kindOf(item),
	}

	// Best effort: a bad thumbnail set never fails the item itself.
	if len(item.Thumbnails) > 0 {
		if thumbs, err := ParseThumbnails(item.Thumbnails); err == nil {
			caches.Thumbnail.Put(item.ID, thumbs)
		}
	}

	if item.DownloadURL != "" {
		caches.DownloadURL.Put(item.ID, item.DownloadURL)
	}

	caches.Metadata.Put(item.ID, info)

	return info, nil
}

// NormalizeAll normalizes a listing, dropping items that fail instead of
// failing the whole list. A partial listing is more useful than none.
func NormalizeAll(items []graph.Item, caches *Caches, rootPath string, logger *slog.Logger) []FileInfo {
	if logger == nil {
		logger = slog.Default()
	}

	infos := make([]FileInfo, 0, len(items))

	for i := range items {
		info, err := Normalize(&items[i], caches, rootPath)
		if err != nil {
			logger.Warn("dropping unusable item from listing",
				slog.String("name", items[i].Name),
				slog.String("error", err.Error()),
			)

			continue
		}

		infos = append(infos, info)
	}

	return infos
}

// ParseThumbnails extracts the sized URLs from the upstream thumbnail
// collection. The first set must exist; within it each size defaults to
// the empty string when absent.
func ParseThumbnails(sets []graph.ThumbnailSet) (Thumbnails, error) {
	if len(sets) == 0 {
		return Thumbnails{}, ErrThumbnailParse
	}

	first := sets[0]

	return Thumbnails{
		Small:  variantURL(first.Small),
		Medium: variantURL(first.Medium),
		Large:  variantURL(first.Large),
	}, nil
}

func variantURL(v *graph.ThumbnailVariant) string {
	if v == nil {
		return ""
	}

	return v.URL
}

// fullPath joins the item's parent path and name, relative to the exposed
// root. The upstream path is reported under "/drive/root:"; that prefix
// and the configured root prefix are stripped when present, and an
// unexpected path shape is passed through unchanged rather than rejected.
func fullPath(item *graph.Item, rootPath string) string {
	var parent string
	if item.ParentReference != nil {
		parent = item.ParentReference.Path
	}

	parent = strings.TrimPrefix(parent, driveRootPrefix)

	if rootPath != "" && rootPath != "/" && strings.HasPrefix(parent, rootPath) {
		parent = strings.TrimPrefix(parent, rootPath)
	}

	return parent + "/" + item.Name
}
