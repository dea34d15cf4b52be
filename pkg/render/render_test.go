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

package render

import (
	"strings"
	"sync"
	"testing"

	"cohosted.org/pkg/cohost"
)

func newTestHost(t *testing.T) *Host {
	t.Helper()
	h, err := NewHost(2)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Close)
	return h
}

func TestRenderMarkdown(t *testing.T) {
	h := newTestHost(t)
	res, err := h.RenderMarkdown(&MarkdownRenderRequest{
		Markdown:    "hello **world**",
		PublishedAt: "2024-09-01T00:00:00.000Z",
		Context:     MarkdownContextComment,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.HTML, "<strong>world</strong>") {
		t.Errorf("html = %q", res.HTML)
	}
	if !strings.Contains(res.HTML, "co-comment-body") {
		t.Errorf("missing context class: %q", res.HTML)
	}
}

func TestRenderPostRewritesResources(t *testing.T) {
	h := newTestHost(t)
	const saved = "https://staging.cohostcdn.org/attachment/pic.png?width=100"
	const unsaved = "https://gone.example/lost.png"
	res, err := h.RenderPost(&PostRenderRequest{
		PostID:      9,
		PublishedAt: "2024-09-01T00:00:00.000Z",
		Blocks: []cohost.Block{
			{Type: cohost.BlockTypeAttachment, Attachment: &cohost.Attachment{
				Kind:    cohost.AttachmentKindImage,
				FileURL: saved,
			}},
			{Type: cohost.BlockTypeAttachment, Attachment: &cohost.Attachment{
				Kind:    cohost.AttachmentKindImage,
				FileURL: unsaved,
			}},
		},
		Resources: []string{saved},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Preview, `/r/https/staging.cohostcdn.org/attachment/pic.png?q=width%3D100`) {
		t.Errorf("saved URL not rewritten to local route:\n%s", res.Preview)
	}
	if strings.Contains(res.Preview, `src="`+saved) {
		t.Error("original absolute URL leaked into output")
	}
	if !strings.Contains(res.Preview, unsaved) {
		t.Error("unsaved URL should stay as-is")
	}
	if res.ClassName == "" || res.ViewModel == "" {
		t.Errorf("hydration fields empty: %+v", res)
	}
}

func TestRenderPostAskBlock(t *testing.T) {
	h := newTestHost(t)
	res, err := h.RenderPost(&PostRenderRequest{
		PostID:      1,
		PublishedAt: "2024-09-01T00:00:00.000Z",
		Blocks: []cohost.Block{
			{Type: cohost.BlockTypeAsk, Ask: &cohost.Ask{
				AskID:   "a1",
				Anon:    true,
				Content: "what is an eggbug?",
			}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Preview, "Anonymous User") || !strings.Contains(res.Preview, "what is an eggbug?") {
		t.Errorf("ask block = %q", res.Preview)
	}
}

func TestRenderErrorDoesNotKillPool(t *testing.T) {
	h := newTestHost(t)
	// A markdown block without its payload throws inside the bundle.
	_, err := h.RenderPost(&PostRenderRequest{
		Blocks: []cohost.Block{{Type: cohost.BlockTypeMarkdown}},
	})
	if err == nil {
		t.Fatal("want error from broken block")
	}

	// The pool keeps serving afterwards.
	res, err := h.RenderMarkdown(&MarkdownRenderRequest{Markdown: "still alive"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.HTML, "still alive") {
		t.Errorf("html = %q", res.HTML)
	}
}

func TestRenderConcurrent(t *testing.T) {
	h := newTestHost(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.RenderMarkdown(&MarkdownRenderRequest{Markdown: "post body"})
			if err != nil {
				t.Error(err)
				return
			}
			if !strings.Contains(res.HTML, "post body") {
				t.Errorf("html = %q", res.HTML)
			}
		}(i)
	}
	wg.Wait()
}

func TestMakeResourceURLShape(t *testing.T) {
	h := newTestHost(t)
	res, err := h.RenderMarkdown(&MarkdownRenderRequest{
		Markdown:  "![x](https://a.example/p/q.png#part)",
		Resources: []string{"https://a.example/p/q.png#part"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.HTML, "/r/https/a.example/p/q.png?h=part") {
		t.Errorf("html = %q", res.HTML)
	}
}
