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

package resref

import (
	"net/url"
	"reflect"
	"testing"

	"cohosted.org/pkg/cohost"
)

func mustBase(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestFromMarkdownImages(t *testing.T) {
	base := mustBase(t, "https://cohost.org/eggbug/post/1-hi")
	md := `hello ![alt](https://staging.cohostcdn.org/attachment/pic.png)
and a relative one ![rel](/static/egg.svg)
and <img src="https://ext.example/direct.gif"> in raw HTML
and nothing from ![data](data:image/png;base64,AAAA)`

	got := FromMarkdown(md, base).Sorted()
	want := []string{
		"https://cohost.org/static/egg.svg",
		"https://ext.example/direct.gif",
		"https://staging.cohostcdn.org/attachment/pic.png",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("refs = %v; want %v", got, want)
	}
}

func TestFromMarkdownSrcsetAndStyle(t *testing.T) {
	base := mustBase(t, "https://cohost.org/eggbug")
	md := `<img srcset=" https://a.example/one.png 1x, /two.png 2x , https://c.example/three.png">
<div style="background: url(https://bg.example/tile.png) repeat, url('https://bg.example/quoted.png'); color: red"></div>
<div style="background-image: url(data:image/gif;base64,R0)"></div>`

	got := FromMarkdown(md, base).Sorted()
	want := []string{
		"https://a.example/one.png",
		"https://bg.example/quoted.png",
		"https://bg.example/tile.png",
		"https://c.example/three.png",
		"https://cohost.org/two.png",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("refs = %v; want %v", got, want)
	}
}

func TestURLsInSrcset(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{" https://example.com 3x, ", []string{"https://example.com"}},
		{
			" https://example.com 3x, https://a.com/?a=1 , https://b.com",
			[]string{"https://example.com", "https://a.com/?a=1", "https://b.com"},
		},
		{"a.png", []string{"a.png"}},
		{"a.png,b.png", []string{"a.png,b.png"}}, // no whitespace: one token per spec tokenization
		{"a.png, b.png", []string{"a.png", "b.png"}},
		{"", nil},
		{" , ,", nil},
	}
	for _, tt := range tests {
		got := urlsInSrcset(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("urlsInSrcset(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestURLsInCSS(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`background: url(https://x.example/a.png)`, []string{"https://x.example/a.png"}},
		{`background: URL( https://x.example/a.png )`, []string{"https://x.example/a.png"}},
		{`background: url("https://x.example/q.png")`, []string{"https://x.example/q.png"}},
		{`background: url('https://x.example/s.png')`, []string{"https://x.example/s.png"}},
		{`background: url("esc\"aped.png")`, []string{`esc"aped.png`}},
		{`background: url(data:image/png;base64,AA)`, nil},
		{`color: red`, nil},
		{`--my-url-thing: 4px`, nil},
		{
			`background: url(one.png), url("two.png")`,
			[]string{"one.png", "two.png"},
		},
	}
	for _, tt := range tests {
		got := urlsInCSS(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("urlsInCSS(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromBlocks(t *testing.T) {
	base := mustBase(t, "https://cohost.org/eggbug/post/9-hello")
	alt := "a picture"
	blocks := []cohost.Block{
		{Type: cohost.BlockTypeMarkdown, Markdown: &cohost.Markdown{
			Content: "![inline](https://staging.cohostcdn.org/attachment/inline.png)",
		}},
		{Type: cohost.BlockTypeAttachment, Attachment: &cohost.Attachment{
			Kind:       cohost.AttachmentKindImage,
			AltText:    &alt,
			FileURL:    "https://staging.cohostcdn.org/attachment/file.png",
			PreviewURL: "https://staging.cohostcdn.org/attachment/file-preview.png",
		}},
		{Type: cohost.BlockTypeAttachmentRow, Attachments: []cohost.AttachmentWrapper{
			{Attachment: cohost.Attachment{
				Kind:       cohost.AttachmentKindAudio,
				FileURL:    "https://staging.cohostcdn.org/attachment/track.mp3",
				PreviewURL: "",
			}},
		}},
		{Type: cohost.BlockTypeAsk, Ask: &cohost.Ask{
			AskID:   "ask-1",
			Content: "what about ![this](https://ext.example/ask.gif)?",
			AskingProject: &cohost.AskProject{
				Handle:           "vampire",
				AvatarURL:        "https://staging.cohostcdn.org/avatar/vampire.png",
				AvatarPreviewURL: "https://staging.cohostcdn.org/avatar/vampire-prev.png",
			},
		}},
	}

	got := FromBlocks(blocks, base).Sorted()
	want := []string{
		"https://ext.example/ask.gif",
		"https://staging.cohostcdn.org/attachment/file-preview.png",
		"https://staging.cohostcdn.org/attachment/file.png",
		"https://staging.cohostcdn.org/attachment/inline.png",
		"https://staging.cohostcdn.org/attachment/track.mp3",
		"https://staging.cohostcdn.org/avatar/vampire-prev.png",
		"https://staging.cohostcdn.org/avatar/vampire.png",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("refs = %v; want %v", got, want)
	}
}

func TestFromProject(t *testing.T) {
	header := "https://staging.cohostcdn.org/header/eggbug.png"
	p := &cohost.Project{
		Handle:           "eggbug",
		AvatarURL:        "https://staging.cohostcdn.org/avatar/eggbug.png",
		AvatarPreviewURL: "https://staging.cohostcdn.org/avatar/eggbug-prev.png",
		HeaderURL:        &header,
		Description:      "my page ![pic](https://ext.example/desc.png)",
	}
	got := FromProject(p, ProjectBase(p.Handle)).Sorted()
	want := []string{
		"https://ext.example/desc.png",
		"https://staging.cohostcdn.org/avatar/eggbug-prev.png",
		"https://staging.cohostcdn.org/avatar/eggbug.png",
		"https://staging.cohostcdn.org/header/eggbug.png",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("refs = %v; want %v", got, want)
	}
}
