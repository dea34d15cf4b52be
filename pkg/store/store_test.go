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

package store

import (
	"path/filepath"
	"reflect"
	"testing"

	"cohosted.org/pkg/cohost"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func testProject(id uint64, handle string) *cohost.Project {
	return &cohost.Project{
		ProjectID:               id,
		Handle:                  handle,
		DisplayName:             handle + " display",
		AvatarURL:               "https://staging.cohostcdn.org/avatar/" + handle + ".png",
		AvatarPreviewURL:        "https://staging.cohostcdn.org/avatar/" + handle + "-preview.png",
		AvatarShape:             "squircle",
		Privacy:                 cohost.ProjectPrivacyPublic,
		LoggedOutPostVisibility: cohost.LoggedOutVisibilityPublic,
		Description:             "a page",
	}
}

func testPost(id uint64, proj *cohost.Project) *cohost.Post {
	published := "2024-09-01T12:00:00.000Z"
	return &cohost.Post{
		PostID:         id,
		PostingProject: *proj,
		PublishedAt:    &published,
		Filename:       "123-example",
		State:          cohost.PostStatePublished,
		Headline:       "hello",
		Blocks: []cohost.Block{
			{Type: cohost.BlockTypeMarkdown, Markdown: &cohost.Markdown{Content: "chost body"}},
		},
		PlainTextBody:     "chost body",
		SinglePostPageURL: "https://cohost.org/" + proj.Handle + "/post/123-example",
		Tags:              []string{"One", "two"},
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	s, path := newTestStore(t)
	if err := s.UpsertProject(testProject(1, "eggbug"), nil); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	ok, err := s2.HasProjectHandle("eggbug")
	if err != nil || !ok {
		t.Fatalf("HasProjectHandle = %v, %v", ok, err)
	}
}

func TestProjectRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	proj := testProject(4, "eggbug")
	pron := "bug/bugs"
	proj.Pronouns = &pron
	refs := []string{proj.AvatarURL, proj.AvatarPreviewURL}
	if err := s.UpsertProject(proj, refs); err != nil {
		t.Fatal(err)
	}

	got, err := s.Project(4)
	if err != nil {
		t.Fatal(err)
	}
	if got.Handle != "eggbug" || got.IsPrivate || got.RequiresLoggedIn {
		t.Errorf("row = %+v", got)
	}
	if got.Data.DisplayName != "eggbug display" || got.Data.Pronouns == nil || *got.Data.Pronouns != "bug/bugs" {
		t.Errorf("blob = %+v", got.Data)
	}

	urls, err := s.SingleProjectResourceURLs(4)
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 2 {
		t.Errorf("resource urls = %v", urls)
	}

	// Re-upserting replaces resource rows instead of accumulating.
	if err := s.UpsertProject(proj, refs[:1]); err != nil {
		t.Fatal(err)
	}
	urls, err = s.SingleProjectResourceURLs(4)
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 1 {
		t.Errorf("resource urls after re-upsert = %v", urls)
	}
}

func TestPostRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	proj := testProject(1, "eggbug")
	if err := s.UpsertProject(proj, nil); err != nil {
		t.Fatal(err)
	}
	post := testPost(100, proj)
	post.EffectiveAdultContent = true
	post.Pinned = true
	refs := []string{"https://staging.cohostcdn.org/attachment/a.png"}
	if err := s.UpsertPost(post, UpsertPostArgs{LikedBy: 1, Refs: refs}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Post(100)
	if err != nil {
		t.Fatal(err)
	}
	if got.PostingProjectID != 1 || got.Filename != "123-example" {
		t.Errorf("row = %+v", got)
	}
	if !got.IsAdultContent || !got.IsPinned {
		t.Error("adult/pinned flags should be promoted to columns")
	}
	if got.Data.Headline != "hello" || len(got.Data.Blocks) != 1 || got.Data.Blocks[0].Markdown.Content != "chost body" {
		t.Errorf("blob = %+v", got.Data)
	}

	tags, err := s.PostTags(100)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tags, []string{"One", "two"}) {
		t.Errorf("tags = %v", tags)
	}

	liked, err := s.IsLiked(1, 100)
	if err != nil || !liked {
		t.Errorf("IsLiked = %v, %v", liked, err)
	}

	handle, err := s.PostingProjectHandle(100)
	if err != nil || handle != "eggbug" {
		t.Errorf("PostingProjectHandle = %q, %v", handle, err)
	}
}

func TestShareChain(t *testing.T) {
	s, _ := newTestStore(t)
	proj := testProject(1, "eggbug")
	if err := s.UpsertProject(proj, nil); err != nil {
		t.Fatal(err)
	}

	root := testPost(1, proj)
	if err := s.UpsertPost(root, UpsertPostArgs{}); err != nil {
		t.Fatal(err)
	}
	shareOf := uint64(1)
	tsp := uint64(1)
	share := testPost(2, proj)
	share.ShareOfPostID = &shareOf
	share.TransparentShareOfPostID = &tsp
	share.Blocks = nil
	if err := s.UpsertPost(share, UpsertPostArgs{ShareOfPostID: &shareOf}); err != nil {
		t.Fatal(err)
	}

	shares, err := s.SharesOfPost(1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(shares, []uint64{2}) {
		t.Errorf("SharesOfPost = %v", shares)
	}

	// A transparent share without a resolvable ancestor is flagged for
	// later repair.
	bad := testPost(3, proj)
	bad.TransparentShareOfPostID = &tsp
	if err := s.UpsertPost(bad, UpsertPostArgs{}); err != nil {
		t.Fatal(err)
	}
	badIDs, err := s.BadTransparentShares()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(badIDs, []uint64{3}) {
		t.Errorf("BadTransparentShares = %v", badIDs)
	}

	if err := s.SetShareOfPostID(3, &shareOf); err != nil {
		t.Fatal(err)
	}
	badIDs, err = s.BadTransparentShares()
	if err != nil {
		t.Fatal(err)
	}
	if len(badIDs) != 0 {
		t.Errorf("BadTransparentShares after repair = %v", badIDs)
	}
}

func TestCommentsRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	proj := testProject(1, "eggbug")
	if err := s.UpsertProject(proj, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertPost(testPost(10, proj), UpsertPostArgs{}); err != nil {
		t.Fatal(err)
	}

	parentID := "c-parent"
	comment := &cohost.Comment{
		Poster: proj,
		Comment: cohost.InnerComment{
			Body:        "nice chost",
			CommentID:   parentID,
			PostID:      10,
			PostedAtISO: "2024-09-02T00:00:00.000Z",
		},
	}
	if err := s.UpsertComment(10, comment, []string{"https://ext.example/pic.png"}); err != nil {
		t.Fatal(err)
	}
	reply := &cohost.Comment{
		Comment: cohost.InnerComment{
			Body:        "anonymous reply",
			CommentID:   "c-reply",
			InReplyTo:   &parentID,
			PostID:      10,
			PostedAtISO: "2024-09-02T01:00:00.000Z",
		},
	}
	if err := s.UpsertComment(10, reply, nil); err != nil {
		t.Fatal(err)
	}

	comments, err := s.Comments(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 2 {
		t.Fatalf("comments = %d", len(comments))
	}
	if comments[0].ID != "c-parent" || comments[0].Data.Body != "nice chost" {
		t.Errorf("first = %+v", comments[0])
	}
	if comments[1].InReplyToID == nil || *comments[1].InReplyToID != "c-parent" {
		t.Errorf("reply = %+v", comments[1])
	}
	if comments[1].PostingProjectID != nil {
		t.Error("anonymous reply should have no posting project")
	}
}

func TestRelatedTags(t *testing.T) {
	s, _ := newTestStore(t)
	related := []cohost.RelatedTagEntry{
		{Content: "Eggbug", Relationship: cohost.TagRelationshipSynonym},
		{Content: "bugs", Relationship: cohost.TagRelationshipRelated},
	}
	if err := s.InsertRelatedTags("eggbug!", related); err != nil {
		t.Fatal(err)
	}
	// Observing the reversed edge later must not create a second row.
	if err := s.InsertRelatedTags("Eggbug", []cohost.RelatedTagEntry{
		{Content: "eggbug!", Relationship: cohost.TagRelationshipSynonym},
	}); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := s.queryRow("SELECT COUNT(*) FROM related_tags", nil, &n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("related_tags rows = %d; want 2", n)
	}

	syns, err := s.SynonymTags("eggbug!")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(syns, []string{"Eggbug"}) {
		t.Errorf("synonyms = %v", syns)
	}

	rel, err := s.RelatedTags("eggbug!", syns)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rel, []string{"bugs"}) {
		t.Errorf("related = %v", rel)
	}
}

func TestURLFiles(t *testing.T) {
	s, _ := newTestStore(t)
	const u = "https://staging.cohostcdn.org/attachment/x.png"
	if err := s.UpsertURLFile(u, filepath.Join("rc", "attachment", "x.png")); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.URLFile(u)
	if err != nil || !ok {
		t.Fatalf("URLFile = %v, %v", ok, err)
	}
	if got != filepath.Join("rc", "attachment", "x.png") {
		t.Errorf("path = %q", got)
	}

	// The stored form is portable: forward slashes behind the marker.
	var raw []byte
	if err := s.queryRow("SELECT file_path FROM url_files WHERE url = ?", []interface{}{u}, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw) != "@/rc/attachment/x.png" {
		t.Errorf("stored = %q", raw)
	}

	_, ok, err = s.URLFile("https://nowhere.example/missing")
	if err != nil || ok {
		t.Errorf("missing URLFile = %v, %v", ok, err)
	}
}

func TestContentTypes(t *testing.T) {
	s, _ := newTestStore(t)
	const u = "https://ext.example/picture"
	if err := s.UpsertResourceContentType(u, "image/jpeg"); err != nil {
		t.Fatal(err)
	}
	ct, ok, err := s.ResourceContentType(u)
	if err != nil || !ok || ct != "image/jpeg" {
		t.Fatalf("ResourceContentType = %q, %v, %v", ct, ok, err)
	}
	// An empty content type is recorded too, so re-fetches skip the
	// lookup request.
	if err := s.UpsertResourceContentType(u, ""); err != nil {
		t.Fatal(err)
	}
	ct, ok, _ = s.ResourceContentType(u)
	if !ok || ct != "" {
		t.Errorf("after clearing: %q, %v", ct, ok)
	}
}
