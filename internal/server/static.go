package server

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"strings"
	"sync"
)

//go:embed web/dist
var webAssets embed.FS

// siteNamePlaceholder is replaced in index.html with the configured site
// name, so the page title matches the deployment without a rebuild.
const siteNamePlaceholder = "{{NAME}}"

// staticHandler serves the embedded front end. Unknown paths fall back to
// index.html so client-side routes resolve after a page reload.
func (s *Server) staticHandler() http.Handler {
	dist, err := fs.Sub(webAssets, "web/dist")
	if err != nil {
		panic(err)
	}

	fileServer := http.FileServer(http.FS(dist))

	var once sync.Once
	var index []byte

	serveIndex := func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			raw, err := fs.ReadFile(dist, "index.html")
			if err != nil {
				s.logger.Error("embedded index.html missing")
				return
			}
			index = bytes.ReplaceAll(raw, []byte(siteNamePlaceholder), []byte(s.opts.SiteName))
		})

		if index == nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(index)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(r.URL.Path, "/")
		if p == "" || p == "index.html" {
			serveIndex(w, r)
			return
		}

		if _, err := fs.Stat(dist, p); err != nil {
			serveIndex(w, r)
			return
		}

		fileServer.ServeHTTP(w, r)
	})
}
