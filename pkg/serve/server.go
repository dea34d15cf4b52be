/*
Copyright 2026 The Cohosted Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package serve is the local reconstruction server: it re-renders the
// archived content back to HTML and media, with every outbound URL
// rewritten to the local cache.
package serve // import "cohosted.org/pkg/serve"

import (
	"crypto/sha256"
	"embed"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"cohosted.org/internal/httputil"
	"cohosted.org/internal/magic"
	"cohosted.org/pkg/render"
	"cohosted.org/pkg/store"
)

//go:embed static/*
var staticFS embed.FS

// BuildCommit is stamped by the build and busts bundled-static ETags
// across versions.
var BuildCommit = "devel"

// Server serves the archived view over HTTP.
type Server struct {
	st        *store.Store
	root      string
	assembler *assembler
}

// New wires a server over the store, the on-disk file tree, and a
// renderer host.
func New(st *store.Store, root string, host *render.Host) (*Server, error) {
	a, err := newAssembler(st, host)
	if err != nil {
		return nil, err
	}
	return &Server{st: st, root: root, assembler: a}, nil
}

// ListenAndServe binds the local port and serves until the process
// exits. ready runs once the listener is up.
func (s *Server) ListenAndServe(port uint16, ready func()) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}
	log.Printf("serving: http://%s", addr)
	if ready != nil {
		ready()
	}
	return http.Serve(ln, s.Handler())
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /static/{file}", s.handleStatic)
	mux.HandleFunc("GET /api/post/{post}", s.handleAPIPost)
	mux.HandleFunc("GET /r", s.handleResourceByURL)
	mux.HandleFunc("GET /r/u", s.handleResourceByURL)
	mux.HandleFunc("GET /r/{proto}/{host}/{path...}", s.handleResource)
	mux.HandleFunc("GET /rc/tagged/{tag}", s.handleGlobalTagFeed)
	mux.HandleFunc("GET /{handle}", s.handleProjectProfile)
	mux.HandleFunc("GET /{handle}/tagged/{tag}", s.handleProjectTagFeed)
	mux.HandleFunc("GET /{handle}/liked-posts", s.handleLikedFeed)
	mux.HandleFunc("GET /{handle}/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /{handle}/post/{post}", s.handleSinglePost)
	return mux
}

// servePage writes a rendered page, mapping ErrNotFound to a 404 error
// page and anything else to a 500.
func (s *Server) servePage(w http.ResponseWriter, body string, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNotFound) {
			status = http.StatusNotFound
		} else {
			log.Printf("serve: %v", err)
		}
		s.serveErrorPage(w, status, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, body)
}

func (s *Server) serveErrorPage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, s.assembler.errorPage(message))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	body, err := s.assembler.indexPage()
	s.servePage(w, body, err)
}

func (s *Server) handleSinglePost(w http.ResponseWriter, r *http.Request) {
	body, err := s.assembler.singlePostPage(r.PathValue("handle"), r.PathValue("post"))
	s.servePage(w, body, err)
}

func (s *Server) handleProjectProfile(w http.ResponseWriter, r *http.Request) {
	q := parseProfileQuery(r.URL.Query())
	body, err := s.assembler.projectProfilePage(r.PathValue("handle"), q)
	s.servePage(w, body, err)
}

func (s *Server) handleGlobalTagFeed(w http.ResponseWriter, r *http.Request) {
	q := parseTagQuery(r.URL.Query())
	body, err := s.assembler.taggedFeedPage(r.PathValue("tag"), "", q)
	s.servePage(w, body, err)
}

func (s *Server) handleProjectTagFeed(w http.ResponseWriter, r *http.Request) {
	q := parseTagQuery(r.URL.Query())
	body, err := s.assembler.taggedFeedPage(r.PathValue("tag"), r.PathValue("handle"), q)
	s.servePage(w, body, err)
}

func (s *Server) handleLikedFeed(w http.ResponseWriter, r *http.Request) {
	q := parseTagQuery(r.URL.Query())
	body, err := s.assembler.likedFeedPage(r.PathValue("handle"), q)
	s.servePage(w, body, err)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := parseTagQuery(r.URL.Query())
	body, err := s.assembler.dashboardPage(r.PathValue("handle"), q)
	s.servePage(w, body, err)
}

func (s *Server) handleAPIPost(w http.ResponseWriter, r *http.Request) {
	postID, err := strconv.ParseUint(r.PathValue("post"), 10, 64)
	if err != nil {
		httputil.ServeJSONError(w, http.StatusBadRequest, fmt.Errorf("invalid post ID"))
		return
	}
	post, err := apiPost(s.st, 0, postID)
	if errors.Is(err, ErrNotFound) {
		httputil.ServeJSONError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		log.Printf("serve: api post %d: %v", postID, err)
		httputil.ServeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.ReturnJSON(w, post)
}

// handleResource serves /r/<proto>/<host>/<path>?q=&h=: the local copy
// of an external URL, looked up through the url_files map.
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	orig := r.PathValue("proto") + "://" + r.PathValue("host") + "/" + r.PathValue("path")
	if q := r.URL.Query().Get("q"); q != "" {
		orig += "?" + q
	}
	if h := r.URL.Query().Get("h"); h != "" {
		orig += "#" + h
	}
	s.serveMappedURL(w, r, orig)
}

// handleResourceByURL serves /r?url=<enc> for URLs whose shape did not
// survive the route encoding.
func (s *Server) handleResourceByURL(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		s.serveErrorPage(w, http.StatusBadRequest, "missing url parameter")
		return
	}
	if _, err := url.Parse(raw); err != nil {
		s.serveErrorPage(w, http.StatusBadRequest, err.Error())
		return
	}
	s.serveMappedURL(w, r, raw)
}

func (s *Server) serveMappedURL(w http.ResponseWriter, r *http.Request, orig string) {
	rel, ok, err := s.st.URLFile(orig)
	if err != nil {
		log.Printf("serve: failed to look up file for %q: %v", orig, err)
		s.serveErrorPage(w, http.StatusInternalServerError, "failed to look up file")
		return
	}
	if !ok {
		s.serveErrorPage(w, http.StatusNotFound, "no such downloaded file")
		return
	}
	s.serveFile(w, r, filepath.Join(s.root, rel))
}

// handleStatic serves the bundled static assets, falling back to
// static files captured from the site itself.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := path.Base(r.PathValue("file"))

	if body, err := fs.ReadFile(staticFS, "static/"+name); err == nil {
		etag := `"` + BuildCommit + "-" + name + `"`
		if etagMatches(r, etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "max-age=3600, must-revalidate")
		w.Header().Set("Content-Type", magic.ContentTypeForPath(name))
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
		return
	}

	s.serveFile(w, r, filepath.Join(s.root, "static", name))
}

// serveFile streams a file from the archive tree with the caching
// headers every file route shares.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, fsPath string) {
	fi, err := os.Stat(fsPath)
	if os.IsNotExist(err) {
		s.serveErrorPage(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil || fi.IsDir() {
		log.Printf("serve: could not read file metadata for %s: %v", fsPath, err)
		s.serveErrorPage(w, http.StatusInternalServerError, "could not read file metadata")
		return
	}

	etag := fileETag(fsPath, fi)
	if etagMatches(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	f, err := os.Open(fsPath)
	if err != nil {
		log.Printf("serve: could not read file at %s: %v", fsPath, err)
		s.serveErrorPage(w, http.StatusInternalServerError, "could not read file")
		return
	}
	defer f.Close()

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "max-age=3600, must-revalidate")
	w.Header().Set("Content-Type", magic.ContentTypeForPath(fsPath))
	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	if r.Method == "HEAD" {
		return
	}
	io.Copy(w, f)
}

// fileETag hashes the path and its mtime, so edits and re-downloads
// invalidate cached copies.
func fileETag(fsPath string, fi os.FileInfo) string {
	h := sha256.New()
	h.Write([]byte(fsPath))
	var nanos [8]byte
	binary.LittleEndian.PutUint64(nanos[:], uint64(fi.ModTime().UnixNano()))
	h.Write(nanos[:])
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`
}

func etagMatches(r *http.Request, etag string) bool {
	for _, value := range r.Header.Values("If-None-Match") {
		for _, candidate := range strings.Split(value, ",") {
			if strings.TrimSpace(candidate) == etag {
				return true
			}
		}
	}
	return false
}
