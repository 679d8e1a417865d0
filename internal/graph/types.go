package graph

// Item mirrors the Graph driveItem JSON for the fields onelist consumes.
// It is deliberately a structurally-typed optional-field record: absent
// facets stay nil and absent strings stay empty, so every consumer decides
// its own default instead of trusting the upstream shape. Normalization
// into the internal FileInfo lives in the files package.
type Item struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Size                 int64          `json:"size"`
	CreatedDateTime      string         `json:"createdDateTime"`
	LastModifiedDateTime string         `json:"lastModifiedDateTime"`
	ParentReference      *ParentRef     `json:"parentReference"`
	File                 *FileFacet     `json:"file"`
	Folder               *FolderFacet   `json:"folder"`
	Thumbnails           []ThumbnailSet `json:"thumbnails"`
	DownloadURL          string         `json:"@microsoft.graph.downloadUrl"`
}

// ParentRef locates the item's parent. Path has the shape
// "/drive/root:/some/folder".
type ParentRef struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// FileFacet is present on files only.
type FileFacet struct {
	MimeType string `json:"mimeType"`
}

// FolderFacet is present on folders only.
type FolderFacet struct {
	ChildCount int `json:"childCount"`
}

// ThumbnailSet is one entry of the thumbnails collection. Each size
// variant may be absent.
type ThumbnailSet struct {
	Small  *ThumbnailVariant `json:"small"`
	Medium *ThumbnailVariant `json:"medium"`
	Large  *ThumbnailVariant `json:"large"`
}

// ThumbnailVariant is a single sized thumbnail.
type ThumbnailVariant struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}
