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

package fetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cohosted.org/pkg/cohost"
	"cohosted.org/pkg/store"
)

type fakeResource struct {
	body        string
	contentType string
	err         error
}

type fakeDownloader struct {
	resources map[string]fakeResource
	calls     map[string]int
}

func (d *fakeDownloader) Download(ctx context.Context, url string) (*http.Response, error) {
	if d.calls == nil {
		d.calls = make(map[string]int)
	}
	d.calls[url]++
	r, ok := d.resources[url]
	if !ok {
		return nil, &cohost.StatusError{URL: url, Code: 404, Body: "no such resource"}
	}
	if r.err != nil {
		return nil, r.err
	}
	header := http.Header{}
	if r.contentType != "" {
		header.Set("Content-Type", r.contentType)
	}
	return &http.Response{
		StatusCode: 200,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(r.body)),
	}, nil
}

type failedSet map[string]bool

func (s failedSet) Contains(url string) bool { return s[url] }
func (s failedSet) Add(url string)           { s[url] = true }

func newTestFetcher(t *testing.T, dl *fakeDownloader) (*Fetcher, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "data.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	root := filepath.Join(dir, "out")
	return New(dl, st, root, nil), st, root
}

// Extension appending: a bare external path served as image/jpeg is
// stored with .jpeg appended and mapped in url_files.
func TestFetchAppendsExtension(t *testing.T) {
	const u = "https://external.test/picture"
	dl := &fakeDownloader{resources: map[string]fakeResource{
		u: {body: "jpeg bytes", contentType: "image/jpeg"},
	}}
	f, st, root := newTestFetcher(t, dl)

	rel, loaded, err := f.LoadResourceToFile(context.Background(), u, failedSet{})
	if err != nil {
		t.Fatal(err)
	}
	if !loaded {
		t.Error("first fetch should load")
	}
	want := filepath.Join("rc", "external", "external.test", "picture.jpeg")
	if rel != want {
		t.Errorf("rel = %q; want %q", rel, want)
	}
	data, err := os.ReadFile(filepath.Join(root, want))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "jpeg bytes" {
		t.Errorf("file contents = %q", data)
	}
	got, ok, err := st.URLFile(u)
	if err != nil || !ok || got != want {
		t.Errorf("URLFile = %q, %v, %v", got, ok, err)
	}
	ct, ok, _ := st.ResourceContentType(u)
	if !ok || ct != "image/jpeg" {
		t.Errorf("content type = %q, %v", ct, ok)
	}
}

// A file that already carries an unknown extension still gets the
// inferred one appended, not substituted.
func TestFetchAppendsExtensionAfterUnknownOne(t *testing.T) {
	const u = "https://external.test/files/archive.bin"
	dl := &fakeDownloader{resources: map[string]fakeResource{
		u: {body: "png bytes", contentType: "image/png"},
	}}
	f, _, _ := newTestFetcher(t, dl)

	rel, _, err := f.LoadResourceToFile(context.Background(), u, failedSet{})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(rel) != "archive.bin.png" {
		t.Errorf("rel = %q", rel)
	}
}

// Fetch idempotence: a second call returns the same path without a
// second network request.
func TestFetchIdempotent(t *testing.T) {
	const u = "https://external.test/twice.png"
	dl := &fakeDownloader{resources: map[string]fakeResource{
		u: {body: "x", contentType: "image/png"},
	}}
	f, _, _ := newTestFetcher(t, dl)

	first, loaded, err := f.LoadResourceToFile(context.Background(), u, failedSet{})
	if err != nil || !loaded {
		t.Fatal(err, loaded)
	}
	second, loaded, err := f.LoadResourceToFile(context.Background(), u, failedSet{})
	if err != nil {
		t.Fatal(err)
	}
	if loaded {
		t.Error("second fetch should not hit the network")
	}
	if first != second {
		t.Errorf("paths differ: %q vs %q", first, second)
	}
	if dl.calls[u] != 1 {
		t.Errorf("network calls = %d; want 1", dl.calls[u])
	}
}

// An existing file on disk is adopted: the mapping is registered and
// no fetch happens.
func TestFetchAdoptsExistingFile(t *testing.T) {
	const u = "https://external.test/already.png"
	dl := &fakeDownloader{resources: map[string]fakeResource{}}
	f, st, root := newTestFetcher(t, dl)

	path := filepath.Join(root, "rc", "external", "external.test", "already.png")
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("pre-existing"), 0666); err != nil {
		t.Fatal(err)
	}

	rel, loaded, err := f.LoadResourceToFile(context.Background(), u, failedSet{})
	if err != nil {
		t.Fatal(err)
	}
	if loaded {
		t.Error("adoption should not count as a load")
	}
	if filepath.Base(rel) != "already.png" {
		t.Errorf("rel = %q", rel)
	}
	if _, ok, _ := st.URLFile(u); !ok {
		t.Error("mapping should be registered for the adopted file")
	}
	if len(dl.calls) != 0 {
		t.Errorf("unexpected network calls: %v", dl.calls)
	}
}

// An unrecoverable failure on an external URL lands in the failed set
// and is skipped afterwards.
func TestFetchFailureMemoized(t *testing.T) {
	const u = "https://external.test/forbidden.png"
	dl := &fakeDownloader{resources: map[string]fakeResource{
		u: {err: &cohost.StatusError{URL: u, Code: 403, Body: "nope"}},
	}}
	f, _, _ := newTestFetcher(t, dl)
	failed := failedSet{}

	_, _, err := f.LoadResourceToFile(context.Background(), u, failed)
	if err == nil {
		t.Fatal("want error")
	}
	if !failed.Contains(u) {
		t.Error("URL should be memoized as failed")
	}

	_, loaded, err := f.LoadResourceToFile(context.Background(), u, failed)
	if err != nil || loaded {
		t.Errorf("skip after failure: loaded=%v err=%v", loaded, err)
	}
	if dl.calls[u] != 1 {
		t.Errorf("network calls = %d; want 1", dl.calls[u])
	}
}

// Skipped URL families resolve to no path and no error.
func TestFetchSkipsUnarchivedURLs(t *testing.T) {
	f, _, _ := newTestFetcher(t, &fakeDownloader{})
	for _, u := range []string{
		"http://insecure.example/a.png",
		"data:image/png;base64,AAAA",
	} {
		rel, loaded, err := f.LoadResourceToFile(context.Background(), u, failedSet{})
		if err != nil || loaded || rel != "" {
			t.Errorf("LoadResourceToFile(%q) = %q, %v, %v", u, rel, loaded, err)
		}
	}
}

// The cached content type is consulted before fetching, so the path of
// a previously seen URL does not depend on fetch order.
func TestFetchUsesCachedContentType(t *testing.T) {
	const u = "https://external.test/cached"
	dl := &fakeDownloader{resources: map[string]fakeResource{
		u: {body: "bytes", contentType: "image/webp"},
	}}
	f, st, root := newTestFetcher(t, dl)

	if err := st.UpsertResourceContentType(u, "image/webp"); err != nil {
		t.Fatal(err)
	}
	// Plant the file where the cached type says it belongs.
	path := filepath.Join(root, "rc", "external", "external.test", "cached.webp")
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("bytes"), 0666); err != nil {
		t.Fatal(err)
	}

	rel, loaded, err := f.LoadResourceToFile(context.Background(), u, failedSet{})
	if err != nil {
		t.Fatal(err)
	}
	if loaded || filepath.Base(rel) != "cached.webp" {
		t.Errorf("rel = %q loaded = %v", rel, loaded)
	}
}
