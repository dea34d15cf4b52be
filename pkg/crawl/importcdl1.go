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

package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"cohosted.org/internal/magic"
	"cohosted.org/pkg/cohost"
)

// CDL1ImportConfig configures an import of a cohost-dl 1 output
// directory.
type CDL1ImportConfig struct {
	Path string
	// AddOnly skips posts that are already archived and never
	// overwrites existing rows.
	AddOnly bool
	// Reload refetches each imported post from the site afterwards,
	// which only works while the site is still up.
	Reload bool
}

// ImportCDL1 walks a cohost-dl 1 output directory, re-ingests every
// saved post page's embedded data, and copies the resource files it
// already downloaded into the new layout.
func (d *Driver) ImportCDL1(ctx context.Context, cfg CDL1ImportConfig) error {
	pages, err := findCDL1PostPages(cfg.Path)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return nil
	}
	if cfg.AddOnly {
		log.Printf("crawl: found %d post files to maybe import from cohost-dl 1", len(pages))
	} else {
		log.Printf("crawl: found %d post files to import from cohost-dl 1", len(pages))
	}

	headersFile := filepath.Join(cfg.Path, "~headers.json")
	if _, err := os.Stat(headersFile); err == nil {
		if err := d.importCDL1Headers(headersFile); err != nil {
			return fmt.Errorf("importing data from ~headers.json: %w", err)
		}
	}

	var failures []string
	copied := map[string]bool{}
	for _, page := range pages {
		rel, relErr := filepath.Rel(cfg.Path, page)
		if relErr != nil {
			rel = page
		}

		resources := map[string]bool{}
		if err := d.importCDL1PostPage(ctx, page, cfg, resources); err != nil {
			log.Printf("crawl: error importing %s: %v", rel, err)
			failures = append(failures, rel)
		}
		for res := range resources {
			if copied[res] {
				continue
			}
			copied[res] = true
			if err := d.maybeCopyCDL1Resource(cfg.Path, res); err != nil {
				log.Printf("crawl: could not copy resource for %s: %v", res, err)
			}
		}
	}

	if len(failures) == 0 {
		log.Printf("crawl: finished importing cohost-dl 1 post data")
	} else {
		log.Printf("crawl: finished importing cohost-dl 1 post data, with %d failures:\n%s",
			len(failures), strings.Join(failures, "\n"))
	}
	return nil
}

// findCDL1PostPages lists the post data files of a cohost-dl 1 tree:
// <handle>/post/<id>-<slug>, skipping rendered .html files.
func findCDL1PostPages(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading the out directory: %w", err)
	}

	var pages []string
	for _, entry := range entries {
		handle := entry.Name()
		if strings.HasPrefix(handle, "~") || handle == "rc" || handle == "static" || handle == "api" {
			continue
		}
		postDir := filepath.Join(root, handle, "post")
		posts, err := os.ReadDir(postDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s/post: %w", handle, err)
		}
		for _, post := range posts {
			name := post.Name()
			if strings.HasSuffix(name, ".html") || !post.Type().IsRegular() {
				continue
			}
			if name == "" || name[0] < '0' || name[0] > '9' {
				continue
			}
			pages = append(pages, filepath.Join(postDir, name))
		}
	}
	sort.Strings(pages)
	return pages, nil
}

// dehydratedState is the trpc-dehydrated-state blob cohost pages
// carried: a list of cached queries with their inputs and results.
type dehydratedState struct {
	Queries []dehydratedQuery `json:"queries"`
}

type dehydratedQuery struct {
	QueryKey [2]json.RawMessage `json:"queryKey"`
	State    struct {
		Data json.RawMessage `json:"data"`
	} `json:"state"`
}

// get finds a cached query's result by ID and (optional) input.
func (s *dehydratedState) get(queryID string, input interface{}) (json.RawMessage, error) {
	wantInput := []byte("null")
	if input != nil {
		enc, err := json.Marshal(input)
		if err != nil {
			return nil, err
		}
		wantInput = enc
	}

	for _, q := range s.Queries {
		var one string
		var multi []string
		id := ""
		if err := json.Unmarshal(q.QueryKey[0], &one); err == nil {
			id = one
		} else if err := json.Unmarshal(q.QueryKey[0], &multi); err == nil {
			id = strings.Join(multi, ".")
		}
		if id != queryID {
			continue
		}

		var keyData struct {
			Input json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal(q.QueryKey[1], &keyData); err != nil {
			continue
		}
		gotInput := keyData.Input
		if gotInput == nil {
			gotInput = []byte("null")
		}
		if !jsonEqual(gotInput, wantInput) {
			continue
		}
		return q.State.Data, nil
	}
	return nil, fmt.Errorf("could not find query %s", queryID)
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	ja, _ := json.Marshal(av)
	jb, _ := json.Marshal(bv)
	return string(ja) == string(jb)
}

func (d *Driver) importCDL1PostPage(ctx context.Context, page string, cfg CDL1ImportConfig, resources map[string]bool) error {
	f, err := os.Open(page)
	if err != nil {
		return err
	}
	html, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return err
	}

	loaderJSON, err := cohost.ScriptJSON(string(html), "__COHOST_LOADER_STATE__")
	if err != nil {
		return fmt.Errorf("post page: %w", err)
	}
	var loaderState struct {
		SinglePostView struct {
			PostID  uint64         `json:"postId"`
			Project cohost.Project `json:"project"`
		} `json:"single-post-view"`
	}
	if err := json.Unmarshal([]byte(loaderJSON), &loaderState); err != nil {
		return fmt.Errorf("parsing __COHOST_LOADER_STATE__ on post page: %w", err)
	}
	spv := loaderState.SinglePostView

	trpcJSON, err := cohost.ScriptJSON(string(html), "trpc-dehydrated-state")
	if err != nil {
		return fmt.Errorf("post page: %w", err)
	}
	var trpcState dehydratedState
	if err := json.Unmarshal([]byte(trpcJSON), &trpcState); err != nil {
		return fmt.Errorf("parsing trpc-dehydrated-state on post page: %w", err)
	}

	loginRaw, err := trpcState.get("login.loggedIn", nil)
	if err != nil {
		return err
	}
	var login cohost.LoggedIn
	if err := json.Unmarshal(loginRaw, &login); err != nil {
		return fmt.Errorf("parsing login.loggedIn query: %w", err)
	}
	if d.login == nil {
		d.login = &login
	}

	if has, err := d.st.HasProjectID(login.ProjectID); err != nil {
		return err
	} else if !has {
		projectsRaw, err := trpcState.get("projects.listEditedProjects", nil)
		if err != nil {
			return err
		}
		var edited cohost.ListEditedProjects
		if err := json.Unmarshal(projectsRaw, &edited); err != nil {
			return fmt.Errorf("parsing projects.listEditedProjects: %w", err)
		}
		for i := range edited.Projects {
			if err := d.insertProject(&edited.Projects[i]); err != nil {
				return err
			}
		}
	}

	singleRaw, err := trpcState.get("posts.singlePost", map[string]interface{}{
		"handle": spv.Project.Handle,
		"postId": spv.PostID,
	})
	if err != nil {
		return err
	}
	var single cohost.SinglePost
	if err := json.Unmarshal(singleRaw, &single); err != nil {
		return fmt.Errorf("parsing posts.singlePost: %w", err)
	}

	alreadyHas, err := d.st.HasPost(single.Post.PostID)
	if err != nil {
		return err
	}

	if cfg.AddOnly && alreadyHas {
		// only add share posts and comments that might be new
		for i, sharePost := range single.Post.ShareTree {
			var prev *cohost.Post
			if i > 0 {
				prev = single.Post.ShareTree[i-1]
			}
			if has, err := d.st.HasPost(sharePost.PostID); err != nil {
				return err
			} else if !has {
				if err := d.insertPost(ctx, sharePost, true, prev); err != nil {
					return err
				}
			}
		}
		for _, comments := range single.Comments {
			for _, comment := range comments {
				if err := d.importNewComments(comment); err != nil {
					return err
				}
			}
		}
	} else {
		if err := d.insertSinglePost(ctx, &single); err != nil {
			return fmt.Errorf("inserting single post data: %w", err)
		}

		if cfg.Reload {
			reloaded, err := d.client.SinglePost(ctx, spv.Project.Handle, spv.PostID)
			if err != nil {
				return fmt.Errorf("reloading post from cohost.org (adding existing data succeeded!): %w", err)
			}
			if err := d.insertSinglePost(ctx, reloaded); err != nil {
				return fmt.Errorf("inserting updated single post data: %w", err)
			}
		}
	}

	return d.collectPostResources(spv.PostID, resources)
}

// importNewComments inserts only comments that are not archived yet.
func (d *Driver) importNewComments(root *cohost.Comment) error {
	queue := []*cohost.Comment{root}
	for len(queue) > 0 {
		comment := queue[0]
		queue = queue[1:]
		has, err := d.st.HasComment(comment.Comment.CommentID)
		if err != nil {
			return err
		}
		if !has {
			if err := d.insertCommentTree(comment.Comment.PostID, comment); err != nil {
				return err
			}
			continue
		}
		queue = append(queue, comment.Comment.Children...)
	}
	return nil
}

// collectPostResources gathers every resource URL reachable from a
// post: its own, its posting project's, its comments' and commenters',
// and everything up the share chain.
func (d *Driver) collectPostResources(postID uint64, resources map[string]bool) error {
	stack := []uint64{postID}
	seen := map[uint64]bool{}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true

		urls, err := d.st.SinglePostResourceURLs(id)
		if err != nil {
			return err
		}
		for _, u := range urls {
			resources[u] = true
		}

		post, err := d.st.Post(id)
		if err != nil {
			return err
		}
		projURLs, err := d.st.SingleProjectResourceURLs(post.PostingProjectID)
		if err != nil {
			return err
		}
		for _, u := range projURLs {
			resources[u] = true
		}

		comments, err := d.st.Comments(id)
		if err != nil {
			return err
		}
		for _, comment := range comments {
			if comment.PostingProjectID != nil {
				urls, err := d.st.SingleProjectResourceURLs(*comment.PostingProjectID)
				if err != nil {
					return err
				}
				for _, u := range urls {
					resources[u] = true
				}
			}
			urls, err := d.st.SingleCommentResourceURLs(comment.ID)
			if err != nil {
				return err
			}
			for _, u := range urls {
				resources[u] = true
			}
		}

		if post.ShareOfPostID != nil {
			stack = append(stack, *post.ShareOfPostID)
		}
	}
	return nil
}

func (d *Driver) importCDL1Headers(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	var headers map[string]struct {
		ContentType string `json:"content-type"`
	}
	if err := json.Unmarshal(raw, &headers); err != nil {
		return fmt.Errorf("parsing file: %w", err)
	}
	for rawurl, h := range headers {
		if _, err := url.Parse(rawurl); err != nil {
			continue
		}
		if err := d.st.UpsertResourceContentType(rawurl, h.ContentType); err != nil {
			return err
		}
	}
	return nil
}

// maybeCopyCDL1Resource copies a resource file out of the cohost-dl 1
// tree into this archive's layout and registers the mapping.
func (d *Driver) maybeCopyCDL1Resource(fromDir, rawurl string) error {
	if _, ok, err := d.st.URLFile(rawurl); err != nil {
		return err
	} else if ok {
		return nil
	}

	targetRel, ok, err := d.fetcher.IntendedPath(rawurl)
	if err != nil || !ok {
		return err
	}

	contentType := ""
	if ct, ok, err := d.st.ResourceContentType(rawurl); err != nil {
		return err
	} else if ok {
		contentType = ct
	}

	src, ok := cdl1ResourcePath(rawurl, contentType)
	if !ok {
		return nil
	}
	srcPath := filepath.Join(fromDir, filepath.FromSlash(src))
	if _, err := os.Stat(srcPath); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	targetPath := filepath.Join(d.fetcher.Root(), targetRel)
	if srcPath == targetPath {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0777); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}
	if err := copyFile(srcPath, targetPath); err != nil {
		return fmt.Errorf("copying resource: %w", err)
	}
	return d.st.UpsertURLFile(rawurl, targetRel)
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// cdl1ResourcePath reproduces where cohost-dl 1 would have saved a
// URL, relative to its output directory, with forward slashes.
func cdl1ResourcePath(rawurl, contentType string) (string, bool) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", false
	}
	decode := func(s string) string {
		if dec, err := url.PathUnescape(s); err == nil {
			return dec
		}
		return s
	}

	var p string
	switch {
	case u.Hostname() == "staging.cohostcdn.org" && cdl1PathMatchesRC(u.EscapedPath()):
		p = "rc" + decode(u.EscapedPath())
	case u.Hostname() == "cohost.org":
		p = decode(strings.TrimPrefix(u.EscapedPath(), "/"))
	case u.Scheme == "https" && u.Hostname() != "":
		search := ""
		if u.RawQuery != "" {
			search = "?" + u.RawQuery
		}
		p = cdl1SplitLongFileName("rc/external/" + u.Hostname() + u.EscapedPath() + search)
	default:
		return "", false
	}

	if !magic.HasKnownExtension(p) {
		if ext, ok := magic.ExtensionForContentType(contentType); ok {
			p += "." + ext
		}
	}
	return p, true
}

// cdl1PathMatchesRC reports whether p starts with a /<letters>/
// segment; ASCII letters of either case match.
func cdl1PathMatchesRC(p string) bool {
	rest, ok := strings.CutPrefix(p, "/")
	if !ok {
		return false
	}
	seg, _, found := strings.Cut(rest, "/")
	if !found || seg == "" {
		return false
	}
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// cdl1SplitLongFileName splits only the final path element, nesting it
// into directories of about 250 bytes, the way the original NodeJS
// implementation did. A chunk ends at the first character boundary at
// or past 250 bytes, so one ending in a multi-byte character can run
// up to three bytes longer.
func cdl1SplitLongFileName(p string) string {
	const max = 250
	parts := strings.Split(p, "/")
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return p
	}
	filename := parts[len(parts)-1]
	dirname := strings.Join(parts[:len(parts)-1], "/")
	for len(filename) > max {
		var first strings.Builder
		rest := filename
		for first.Len() < max && len(rest) > 0 {
			_, size := utf8.DecodeRuneInString(rest)
			first.WriteString(rest[:size])
			rest = rest[size:]
		}
		dirname = dirname + "/" + first.String()
		filename = rest
	}
	return dirname + "/" + filename
}
