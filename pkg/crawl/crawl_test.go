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
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cohosted.org/pkg/cohost"
	"cohosted.org/pkg/config"
	"cohosted.org/pkg/fetch"
	"cohosted.org/pkg/store"
)

// fakeSite serves canned trpc responses keyed by "<query>" or
// "<query>:<discriminator>".
type fakeSite struct {
	t *testing.T
	// singlePosts maps "handle/postID" to a response; missing entries
	// 404.
	singlePosts map[string]*cohost.SinglePost
	// profilePages maps "handle/page" to a post list.
	profilePages map[string][]*cohost.Post
	// taggedPages maps "tag/skipPosts" to a feed page.
	taggedPages map[string]*cohost.TaggedPostsFeed
}

func trpcResult(t *testing.T, w http.ResponseWriter, data interface{}) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintf(w, `{"result":{"data":%s}}`, payload)
}

func (f *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if tag, ok := strings.CutPrefix(r.URL.Path, "/rc/tagged/"); ok {
		skip := r.URL.Query().Get("skipPosts")
		if skip == "" {
			skip = "0"
		}
		feed, ok := f.taggedPages[tag+"/"+skip]
		if !ok {
			f.t.Errorf("unexpected tagged page %s skip %s", tag, skip)
			http.NotFound(w, r)
			return
		}
		payload, err := json.Marshal(map[string]*cohost.TaggedPostsFeed{"tagged-post-feed": feed})
		if err != nil {
			f.t.Fatal(err)
		}
		fmt.Fprintf(w, `<html><head><script id="__COHOST_LOADER_STATE__" type="application/json">%s</script></head><body></body></html>`, payload)
		return
	}

	query := strings.TrimPrefix(r.URL.Path, "/api/v1/trpc/")
	var input map[string]interface{}
	if raw := r.URL.Query().Get("input"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			f.t.Errorf("bad input for %s: %v", query, err)
		}
	}

	switch query {
	case "posts.singlePost":
		key := fmt.Sprintf("%v/%v", input["handle"], input["postId"])
		if sp, ok := f.singlePosts[key]; ok {
			trpcResult(f.t, w, sp)
			return
		}
		http.NotFound(w, r)
	case "posts.profilePosts":
		key := fmt.Sprintf("%v/%v", input["projectHandle"], input["page"])
		posts := f.profilePages[key]
		trpcResult(f.t, w, &cohost.ProfilePosts{Posts: posts})
	default:
		f.t.Errorf("unexpected trpc query %q", query)
		http.NotFound(w, r)
	}
}

func testDriver(t *testing.T, site http.Handler) (*Driver, *store.Store, *State) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "data.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	state, err := LoadState(filepath.Join(dir, StateFile))
	if err != nil {
		t.Fatal(err)
	}

	var client *cohost.Client
	if site != nil {
		ts := httptest.NewServer(site)
		t.Cleanup(ts.Close)
		client = cohost.NewClient("connect.sid=s%3Atest", 5*time.Second)
		client.Base = ts.URL
		client.SetRateLimit(time.Millisecond, 100)
	}

	fetcher := fetch.New(client, st, filepath.Join(dir, "out"), nil)
	cfg := &config.Config{Database: "data.db", RootDir: "out"}
	d := NewDriver(cfg, client, st, fetcher, state)
	d.login = &cohost.LoggedIn{ProjectID: 1, Email: "egg@bug.example"}
	return d, st, state
}

func project(id uint64, handle string) cohost.Project {
	return cohost.Project{
		ProjectID:               id,
		Handle:                  handle,
		AvatarURL:               "https://staging.cohostcdn.org/avatar/" + handle + ".png",
		AvatarPreviewURL:        "https://staging.cohostcdn.org/avatar/" + handle + "-prev.png",
		Privacy:                 cohost.ProjectPrivacyPublic,
		LoggedOutPostVisibility: cohost.LoggedOutVisibilityPublic,
	}
}

func post(id uint64, proj cohost.Project, body string) *cohost.Post {
	published := fmt.Sprintf("2024-09-%02dT00:00:00.000Z", id%28+1)
	p := &cohost.Post{
		PostID:            id,
		PostingProject:    proj,
		PublishedAt:       &published,
		Filename:          fmt.Sprintf("%d-post", id),
		State:             cohost.PostStatePublished,
		SinglePostPageURL: fmt.Sprintf("https://cohost.org/%s/post/%d-post", proj.Handle, id),
	}
	if body != "" {
		p.Blocks = []cohost.Block{{Type: cohost.BlockTypeMarkdown, Markdown: &cohost.Markdown{Content: body}}}
	}
	return p
}

func transparentShare(id uint64, proj cohost.Project, of *cohost.Post, tree ...*cohost.Post) *cohost.Post {
	p := post(id, proj, "")
	if of != nil {
		p.ShareOfPostID = &of.PostID
		p.TransparentShareOfPostID = &of.PostID
	} else {
		one := uint64(1)
		p.TransparentShareOfPostID = &one
	}
	p.ShareTree = tree
	return p
}

// Share-tree monotonicity: ingesting a chain inserts ancestors first
// and links every element to its parent, up to a null root.
func TestShareTreeIngest(t *testing.T) {
	d, st, _ := testDriver(t, nil)
	eggbug := project(10, "eggbug")

	p1 := post(1, eggbug, "original")
	p2 := transparentShare(2, eggbug, p1)
	p3 := transparentShare(3, eggbug, p2, p1, p2)

	if err := d.insertPost(context.Background(), p3, false, nil); err != nil {
		t.Fatal(err)
	}

	r1, err := st.Post(1)
	if err != nil {
		t.Fatal(err)
	}
	if r1.ShareOfPostID != nil {
		t.Errorf("root share_of = %v; want nil", *r1.ShareOfPostID)
	}
	r2, err := st.Post(2)
	if err != nil {
		t.Fatal(err)
	}
	if r2.ShareOfPostID == nil || *r2.ShareOfPostID != 1 {
		t.Errorf("p2 share_of = %v; want 1", r2.ShareOfPostID)
	}
	r3, err := st.Post(3)
	if err != nil {
		t.Fatal(err)
	}
	if r3.ShareOfPostID == nil || *r3.ShareOfPostID != 2 {
		t.Errorf("p3 share_of = %v; want 2", r3.ShareOfPostID)
	}
	if !r3.IsTransparentShare {
		t.Error("p3 should be a transparent share")
	}
}

// A missing ancestor on a top-level post falls back to the last
// element of the available share tree.
func TestShareTreeMissingAncestorFallsBack(t *testing.T) {
	d, st, _ := testDriver(t, nil)
	eggbug := project(10, "eggbug")

	p1 := post(1, eggbug, "original")
	p2 := transparentShare(2, eggbug, p1)
	p3 := transparentShare(3, eggbug, nil, p1, p2)
	gone := uint64(99)
	p3.ShareOfPostID = &gone

	if err := d.insertPost(context.Background(), p3, false, nil); err != nil {
		t.Fatal(err)
	}
	r3, err := st.Post(3)
	if err != nil {
		t.Fatal(err)
	}
	if r3.ShareOfPostID == nil || *r3.ShareOfPostID != 2 {
		t.Errorf("share_of = %v; want inferred 2", r3.ShareOfPostID)
	}
}

// A share-tree element whose own ancestor was elided triggers a
// single-post refetch that returns the fuller tree.
func TestShareTreeGapRecovery(t *testing.T) {
	eggbug := project(10, "eggbug")
	vampire := project(11, "vampire")

	w := post(5, vampire, "the original")
	x := transparentShare(6, eggbug, w) // ancestor 5 not in the outer tree

	site := &fakeSite{
		t: t,
		singlePosts: map[string]*cohost.SinglePost{
			"eggbug/6": {Post: *transparentShare(6, eggbug, w, w)},
		},
	}
	d, st, _ := testDriver(t, site)

	outer := transparentShare(7, eggbug, x, x)
	if err := d.insertPost(context.Background(), outer, false, nil); err != nil {
		t.Fatal(err)
	}

	for _, id := range []uint64{5, 6, 7} {
		if ok, err := st.HasPost(id); err != nil || !ok {
			t.Errorf("post %d missing (err %v)", id, err)
		}
	}
	r6, err := st.Post(6)
	if err != nil {
		t.Fatal(err)
	}
	if r6.ShareOfPostID == nil || *r6.ShareOfPostID != 5 {
		t.Errorf("recovered share_of = %v; want 5", r6.ShareOfPostID)
	}
}

// Comment redirection: when the post's own page is gone, its comments
// are recovered through a share and stored against the original post.
func TestCommentRedirection(t *testing.T) {
	eggbug := project(10, "eggbug")
	vampire := project(11, "vampire")

	p := post(1, eggbug, "original")
	q := transparentShare(2, vampire, p, p)

	comments := map[uint64][]*cohost.Comment{
		1: {{
			Poster: &vampire,
			Comment: cohost.InnerComment{
				Body:        "a comment on the original",
				CommentID:   "c-1",
				PostID:      1,
				PostedAtISO: "2024-09-05T00:00:00.000Z",
			},
		}},
	}

	site := &fakeSite{
		t: t,
		singlePosts: map[string]*cohost.SinglePost{
			// eggbug/1 is intentionally absent: it 404s.
			"vampire/2": {Post: *q, Comments: comments},
		},
	}
	d, st, state := testDriver(t, site)

	// The posts are already archived from an earlier feed crawl.
	if err := d.insertPost(context.Background(), q, false, nil); err != nil {
		t.Fatal(err)
	}

	if err := d.loadCommentsForPost(context.Background(), "eggbug", 1); err != nil {
		t.Fatal(err)
	}

	got, err := st.Comments(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "c-1" || got[0].PostID != 1 {
		t.Fatalf("comments on post 1 = %+v", got)
	}
	if !state.HasComments(10, 1) {
		t.Error("post 1 should be marked has_comments")
	}
	if state.CommentsLost(1) {
		t.Error("post 1 should not be lost to time")
	}
}

// A post whose shares all 404 is marked lost to time and not refetched.
func TestCommentsLostToTime(t *testing.T) {
	eggbug := project(10, "eggbug")
	vampire := project(11, "vampire")

	p := post(1, eggbug, "original")
	q := transparentShare(2, vampire, p, p)

	site := &fakeSite{t: t, singlePosts: map[string]*cohost.SinglePost{}}
	d, _, state := testDriver(t, site)

	if err := d.insertPost(context.Background(), q, false, nil); err != nil {
		t.Fatal(err)
	}
	if err := d.loadCommentsForPost(context.Background(), "eggbug", 1); err != nil {
		t.Fatal(err)
	}
	if !state.CommentsLost(1) {
		t.Error("post 1 should be marked lost to time")
	}

	// The sweep skips lost posts entirely.
	posts, err := d.postsWithoutComments()
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range posts {
		if id == 1 {
			t.Error("lost post should not be swept again")
		}
	}
}

// New-posts-only mode stops at the first known non-pinned post but
// keeps going past pinned ones.
func TestLoadNewPostsStopsAtKnownPost(t *testing.T) {
	eggbug := project(10, "eggbug")

	pinned := post(50, eggbug, "pinned announcement")
	pinned.Pinned = true
	fresh := post(60, eggbug, "brand new")
	known := post(40, eggbug, "already archived")
	older := post(30, eggbug, "should never be fetched")

	site := &fakeSite{
		t: t,
		profilePages: map[string][]*cohost.Post{
			"eggbug/0": {pinned, fresh, known, older},
		},
	}
	d, st, state := testDriver(t, site)

	if err := d.insertPost(context.Background(), known, false, nil); err != nil {
		t.Fatal(err)
	}
	state.SetHasAllPosts(10)
	d.cfg.LoadNewPosts = true

	if err := d.loadProfilePosts(context.Background(), 10); err != nil {
		t.Fatal(err)
	}

	if ok, _ := st.HasPost(50); !ok {
		t.Error("pinned post should be archived")
	}
	if ok, _ := st.HasPost(60); !ok {
		t.Error("new post should be archived")
	}
	if ok, _ := st.HasPost(30); ok {
		t.Error("posts past the stop point should not be archived")
	}
}

func TestParsePostURL(t *testing.T) {
	tests := []struct {
		in     string
		handle string
		id     uint64
		ok     bool
	}{
		{"https://cohost.org/eggbug/post/123-hello-world", "eggbug", 123, true},
		{"https://cohost.org/eggbug/post/123", "eggbug", 123, true},
		{"https://cohost.org/eggbug/post/123-hello/", "eggbug", 123, true},
		{"https://cohost.org/eggbug/123-hello", "", 0, false},
		{"https://elsewhere.example/eggbug/post/123", "", 0, false},
		{"https://cohost.org/eggbug/post/nope", "", 0, false},
	}
	for _, tt := range tests {
		handle, id, err := parsePostURL(tt.in)
		if tt.ok && (err != nil || handle != tt.handle || id != tt.id) {
			t.Errorf("parsePostURL(%q) = %q, %d, %v", tt.in, handle, id, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("parsePostURL(%q) should fail", tt.in)
		}
	}
}
