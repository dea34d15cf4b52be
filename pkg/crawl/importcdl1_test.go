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
	"os"
	"path/filepath"
	"testing"

	"cohosted.org/pkg/cohost"
)

const cdl1AttachmentURL = "https://staging.cohostcdn.org/attachment/pic.png"

// writeCDL1Tree lays out a minimal cohost-dl 1 output directory with
// one saved post page and one downloaded resource.
func writeCDL1Tree(t *testing.T, dir string) {
	t.Helper()
	eggbug := project(10, "eggbug")

	p := post(1, eggbug, "imported post")
	p.Blocks = append(p.Blocks, cohost.Block{
		Type: cohost.BlockTypeAttachment,
		Attachment: &cohost.Attachment{
			Kind:    cohost.AttachmentKindImage,
			FileURL: cdl1AttachmentURL,
		},
	})
	single := &cohost.SinglePost{
		Post: *p,
		Comments: map[uint64][]*cohost.Comment{
			1: {{
				Poster: &eggbug,
				Comment: cohost.InnerComment{
					Body:        "an imported comment",
					CommentID:   "c-imported",
					PostID:      1,
					PostedAtISO: "2024-09-02T00:00:00.000Z",
				},
			}},
		},
	}

	loaderState := map[string]interface{}{
		"single-post-view": map[string]interface{}{
			"postId":  1,
			"project": eggbug,
		},
	}
	dehydrated := map[string]interface{}{
		"queries": []interface{}{
			map[string]interface{}{
				"queryKey": []interface{}{"login.loggedIn", map[string]interface{}{"input": nil}},
				"state":    map[string]interface{}{"data": cohost.LoggedIn{ProjectID: 10, LoggedIn: true}},
			},
			map[string]interface{}{
				"queryKey": []interface{}{
					[]string{"projects", "listEditedProjects"},
					map[string]interface{}{"input": nil},
				},
				"state": map[string]interface{}{"data": cohost.ListEditedProjects{Projects: []cohost.Project{eggbug}}},
			},
			map[string]interface{}{
				"queryKey": []interface{}{
					[]string{"posts", "singlePost"},
					map[string]interface{}{"input": map[string]interface{}{"handle": "eggbug", "postId": 1}},
				},
				"state": map[string]interface{}{"data": single},
			},
		},
	}

	loaderJSON, err := json.Marshal(loaderState)
	if err != nil {
		t.Fatal(err)
	}
	trpcJSON, err := json.Marshal(dehydrated)
	if err != nil {
		t.Fatal(err)
	}
	page := fmt.Sprintf(`<!doctype html><html><head>
<script id="__COHOST_LOADER_STATE__" type="application/json">%s</script>
<script id="trpc-dehydrated-state" type="application/json">%s</script>
</head><body>rendered page</body></html>`, loaderJSON, trpcJSON)

	postDir := filepath.Join(dir, "eggbug", "post")
	if err := os.MkdirAll(postDir, 0777); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(postDir, "1-post"), []byte(page), 0666); err != nil {
		t.Fatal(err)
	}
	// The rendered page next to it must be ignored.
	if err := os.WriteFile(filepath.Join(postDir, "1-post.html"), []byte("<html>"), 0666); err != nil {
		t.Fatal(err)
	}

	resPath := filepath.Join(dir, "rc", "attachment", "pic.png")
	if err := os.MkdirAll(filepath.Dir(resPath), 0777); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(resPath, []byte("old archive bytes"), 0666); err != nil {
		t.Fatal(err)
	}
}

func TestImportCDL1(t *testing.T) {
	d, st, _ := testDriver(t, nil)
	d.login = nil

	cdl1Dir := t.TempDir()
	writeCDL1Tree(t, cdl1Dir)

	err := d.ImportCDL1(context.Background(), CDL1ImportConfig{Path: cdl1Dir})
	if err != nil {
		t.Fatal(err)
	}

	if ok, _ := st.HasPost(1); !ok {
		t.Fatal("imported post missing")
	}
	row, err := st.Post(1)
	if err != nil {
		t.Fatal(err)
	}
	if row.Data.PlainTextBody == "" && len(row.Data.Blocks) == 0 {
		t.Errorf("imported post blob = %+v", row.Data)
	}

	comments, err := st.Comments(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 1 || comments[0].ID != "c-imported" {
		t.Errorf("comments = %+v", comments)
	}

	// The previously downloaded file was copied into the new layout
	// and the mapping registered.
	rel, ok, err := st.URLFile(cdl1AttachmentURL)
	if err != nil || !ok {
		t.Fatalf("URLFile = %v, %v", ok, err)
	}
	data, err := os.ReadFile(filepath.Join(d.fetcher.Root(), rel))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "old archive bytes" {
		t.Errorf("copied file = %q", data)
	}
}

func TestImportCDL1AddOnlySkipsExisting(t *testing.T) {
	d, st, _ := testDriver(t, nil)

	eggbug := project(10, "eggbug")
	existing := post(1, eggbug, "the already-archived version")
	if err := d.insertPost(context.Background(), existing, false, nil); err != nil {
		t.Fatal(err)
	}

	cdl1Dir := t.TempDir()
	writeCDL1Tree(t, cdl1Dir)

	err := d.ImportCDL1(context.Background(), CDL1ImportConfig{Path: cdl1Dir, AddOnly: true})
	if err != nil {
		t.Fatal(err)
	}

	// The existing row is untouched, but the new comment was added.
	row, err := st.Post(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(row.Data.Blocks) != 1 || row.Data.Blocks[0].Markdown.Content != "the already-archived version" {
		t.Errorf("post should be unchanged: %+v", row.Data)
	}
	comments, err := st.Comments(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 1 || comments[0].ID != "c-imported" {
		t.Errorf("comments = %+v", comments)
	}
}

func TestCDL1ResourcePath(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		want        string
		ok          bool
	}{
		{"https://staging.cohostcdn.org/attachment/pic.png", "", "rc/attachment/pic.png", true},
		{"https://cohost.org/static/eggbug.svg", "", "static/eggbug.svg", true},
		{"https://ext.example/picture", "image/jpeg", "rc/external/ext.example/picture.jpeg", true},
		{"https://ext.example/a.png?x=1", "", "rc/external/ext.example/a.png?x=1", true},
		{"http://insecure.example/x.png", "", "", false},
	}
	for _, tt := range tests {
		got, ok := cdl1ResourcePath(tt.url, tt.contentType)
		if ok != tt.ok || got != tt.want {
			t.Errorf("cdl1ResourcePath(%q) = %q, %v; want %q, %v", tt.url, got, ok, tt.want, tt.ok)
		}
	}
}
