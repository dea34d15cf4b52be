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

// Package fetch downloads the resource files referenced by archived
// entities into the on-disk file tree, deriving a stable local path
// for every URL and recording the URL→file mapping.
package fetch // import "cohosted.org/pkg/fetch"

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"cohosted.org/internal/magic"
	"cohosted.org/pkg/store"
)

// A Downloader fetches an opaque file. *cohost.Client implements it
// with the shared retry ladder.
type Downloader interface {
	Download(ctx context.Context, url string) (*http.Response, error)
}

// FailedURLs memoizes external URLs whose fetch failed fatally, so
// progress advances instead of refetching them forever.
type FailedURLs interface {
	Contains(url string) bool
	Add(url string)
}

// Fetcher loads resources into the file tree under Root and records
// mappings in the store.
type Fetcher struct {
	dl   Downloader
	st   *store.Store
	root string
	deny map[string]bool
}

// New returns a Fetcher writing below root. denyDomains hosts are
// never fetched.
func New(dl Downloader, st *store.Store, root string, denyDomains []string) *Fetcher {
	deny := make(map[string]bool, len(denyDomains))
	for _, d := range denyDomains {
		deny[d] = true
	}
	return &Fetcher{dl: dl, st: st, root: root, deny: deny}
}

// addContentTypeExt appends (never replaces) the extension matching a
// content type to the final path segment.
func addContentTypeExt(segments []string, contentType string, shouldWarn bool) []string {
	ext, ok := magic.ExtensionForContentType(contentType)
	if !ok {
		if shouldWarn {
			log.Printf("fetch: did not add missing file extension for %s because of unknown content type %q",
				filepath.Join(segments...), contentType)
		}
		return segments
	}
	out := append([]string(nil), segments...)
	out[len(out)-1] += "." + ext
	return out
}

// LoadResourceToFile fetches one resource, streams it to a temp file,
// and renames it into place. It returns the root-relative path of the
// saved file ("" when the URL is skipped), and whether a network fetch
// actually happened.
func (f *Fetcher) LoadResourceToFile(ctx context.Context, rawurl string, failed FailedURLs) (rel string, loaded bool, err error) {
	if failed != nil && failed.Contains(rawurl) {
		return "", false, nil
	}

	// A recorded mapping is canonical; nothing to do.
	if rel, ok, err := f.st.URLFile(rawurl); err != nil {
		return "", false, err
	} else if ok {
		return rel, false, nil
	}

	u, err := url.Parse(rawurl)
	if err != nil {
		return "", false, fmt.Errorf("parsing resource URL %q: %w", rawurl, err)
	}
	props := f.propsForResourceURL(u)
	if props == nil {
		return "", false, nil
	}

	needsExt := !props.skipExtCheck && !magic.HasKnownExtension(props.segments[len(props.segments)-1])

	segments := props.segments
	if needsExt {
		if ct, ok, err := f.st.ResourceContentType(props.fetchURL); err != nil {
			return "", false, err
		} else if ok {
			segments = addContentTypeExt(props.segments, ct, false)
		}
	}

	if _, err := os.Stat(filepath.Join(append([]string{f.root}, segments...)...)); err == nil {
		rel := filepath.Join(segments...)
		if err := f.st.UpsertURLFile(rawurl, rel); err != nil {
			return "", false, err
		}
		return rel, false, nil
	}

	res, err := f.dl.Download(ctx, props.fetchURL)
	if err != nil {
		if props.canFail && failed != nil {
			failed.Add(rawurl)
		}
		return "", false, fmt.Errorf("loading resource at %s: %w", rawurl, err)
	}
	defer res.Body.Close()

	contentType := res.Header.Get("Content-Type")
	if err := f.st.UpsertResourceContentType(props.fetchURL, contentType); err != nil {
		return "", false, err
	}
	if needsExt {
		segments = addContentTypeExt(props.segments, contentType, true)
	}

	finalPath := filepath.Join(append([]string{f.root}, segments...)...)

	tmpDir := filepath.Join(f.root, "tmp")
	if err := os.MkdirAll(tmpDir, 0777); err != nil {
		return "", false, err
	}
	tmp, err := os.CreateTemp(tmpDir, "cohosted-res-")
	if err != nil {
		return "", false, fmt.Errorf("creating temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, res.Body); err != nil {
		tmp.Close()
		return "", false, fmt.Errorf("downloading %s: %w", rawurl, err)
	}
	if err := tmp.Close(); err != nil {
		return "", false, err
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0777); err != nil {
		return "", false, err
	}
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", false, fmt.Errorf("moving resource to %s: %w", finalPath, err)
	}

	rel = filepath.Join(segments...)
	if err := f.st.UpsertURLFile(rawurl, rel); err != nil {
		return "", false, err
	}
	return rel, true, nil
}

// IntendedPath returns where a URL's file would live below the root,
// consulting the cached content type, without fetching anything. ok is
// false for URLs that are not archived.
func (f *Fetcher) IntendedPath(rawurl string) (rel string, ok bool, err error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", false, err
	}
	props := f.propsForResourceURL(u)
	if props == nil {
		return "", false, nil
	}
	segments := props.segments
	if !props.skipExtCheck && !magic.HasKnownExtension(segments[len(segments)-1]) {
		if ct, ok, err := f.st.ResourceContentType(props.fetchURL); err != nil {
			return "", false, err
		} else if ok {
			segments = addContentTypeExt(segments, ct, false)
		}
	}
	return filepath.Join(segments...), true, nil
}

// Root returns the archive file-tree root.
func (f *Fetcher) Root() string { return f.root }
