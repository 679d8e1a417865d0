package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Chikage0o0/onelist/internal/files"
)

// listResponse is the body of /api/list.
type listResponse struct {
	Files []files.FileInfo `json:"files"`
}

// infoResponse is the body of /api/info.
type infoResponse struct {
	File files.FileInfo `json:"file"`
}

// handleList returns the normalized children of a folder. Listings are
// cached per folder path; a hit never touches the upstream API.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	dir := s.drivePath(r)

	if listing, ok := s.caches.Listing.Get(dir); ok {
		s.respondJSON(w, http.StatusOK, listResponse{Files: listing})
		return
	}

	items, err := s.client.ListChildren(r.Context(), dir)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	listing := files.NormalizeAll(items, s.caches, s.opts.RootDir, s.logger)
	s.caches.Listing.Put(dir, listing)

	s.respondJSON(w, http.StatusOK, listResponse{Files: listing})
}

// handleInfo returns the metadata of a single item addressed by path.
// The metadata tier is keyed by item id, which a path-addressed request
// does not know yet, so this always resolves through the upstream API;
// normalization then populates the id-keyed tiers for later requests.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	item, err := s.client.GetItemByPath(r.Context(), s.drivePath(r), true)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	info, err := files.Normalize(item, s.caches, s.opts.RootDir)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, infoResponse{File: info})
}

// handleThumb resolves a thumbnail URL for an item id and either redirects
// the client to it or relays the bytes, depending on the proxy setting.
func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	itemID, size := vars["id"], vars["size"]

	thumbs, ok := s.caches.Thumbnail.Get(itemID)
	if !ok {
		item, err := s.client.GetItemByID(r.Context(), itemID)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		if _, err := files.Normalize(item, s.caches, s.opts.RootDir); err != nil {
			s.respondError(w, r, err)
			return
		}

		if thumbs, ok = s.caches.Thumbnail.Get(itemID); !ok {
			s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "no thumbnails for item"})
			return
		}
	}

	url := thumbs.URL(size)
	if url == "" {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "thumbnail size not available"})
		return
	}

	if s.opts.UseProxy {
		s.proxyStream(w, r, url)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// handleDownload redirects the client to the signed upstream download URL.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	url, err := s.downloadURL(r, mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// handleProxyDownload relays the file bytes through this server instead of
// redirecting, for deployments where the upstream host is unreachable or
// the signed URL must stay hidden.
func (s *Server) handleProxyDownload(w http.ResponseWriter, r *http.Request) {
	url, err := s.downloadURL(r, mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.proxyStream(w, r, url)
}

// downloadURL resolves an item id to its signed download URL, consulting
// the cache first. Signed URLs expire upstream well after the cache TTL,
// so a cached entry is always still usable.
func (s *Server) downloadURL(r *http.Request, itemID string) (string, error) {
	if url, ok := s.caches.DownloadURL.Get(itemID); ok {
		return url, nil
	}

	url, err := s.client.GetDownloadURL(r.Context(), itemID)
	if err != nil {
		return "", err
	}

	s.caches.DownloadURL.Put(itemID, url)

	return url, nil
}

// proxyHeaders are the upstream response headers passed through to the
// client when relaying bytes.
var proxyHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Content-Disposition",
	"Accept-Ranges",
	"Cache-Control",
	"ETag",
}

// proxyStream relays the resource at url to the client, forwarding range
// requests so seeking in media files works through the proxy. The body is
// streamed, never buffered.
func (s *Server) proxyStream(w http.ResponseWriter, r *http.Request, url string) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	for _, h := range []string{"Range", "If-Range", "Accept"} {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	resp, err := s.proxyClient.Do(req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer resp.Body.Close()

	for _, h := range proxyHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}

	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// The client likely went away mid-stream. Nothing to send back.
		s.logger.Debug("proxy stream interrupted",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
