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

// Package resref extracts the set of resource URLs referenced by
// archived entities: images and styles in markdown, attachment files,
// avatars and headers. Every returned URL is absolute, resolved
// against the entity's base URL.
package resref // import "cohosted.org/pkg/resref"

import (
	"bytes"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"

	"cohosted.org/pkg/cohost"
)

// Set is a set of absolute URLs.
type Set map[string]struct{}

func (s Set) add(u string) { s[u] = struct{}{} }

// addJoined resolves ref against base and adds it, skipping empty and
// data: URLs (before and after resolution).
func (s Set) addJoined(base *url.URL, ref string) {
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return
	}
	u, err := base.Parse(ref)
	if err != nil {
		return
	}
	if u.Scheme == "data" {
		return
	}
	s.add(u.String())
}

// Sorted returns the set as a sorted slice.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (s Set) merge(other Set) {
	for u := range other {
		s.add(u)
	}
}

// mdRenderer renders untrusted markdown to HTML for scanning only. It
// does not need to be faithful, just to surface img/source elements
// and style attributes the way the real renderer would.
var mdRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	// Raw HTML must pass through: posts embed <img> and style
	// attributes directly, and those are exactly what gets scanned.
	goldmark.WithRendererOptions(ghtml.WithUnsafe()),
)

// FromMarkdown returns the resources referenced by a markdown string:
// img[src] and source[src], srcset candidates, and url(...) values in
// style attributes.
func FromMarkdown(content string, base *url.URL) Set {
	refs := make(Set)

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(content), &buf); err != nil {
		return refs
	}

	node, err := html.Parse(&buf)
	if err != nil {
		return refs
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			isImgOrSource := n.Data == "img" || n.Data == "source"
			for _, a := range n.Attr {
				switch {
				case isImgOrSource && a.Key == "src":
					refs.addJoined(base, a.Val)
				case isImgOrSource && a.Key == "srcset":
					for _, u := range urlsInSrcset(a.Val) {
						refs.addJoined(base, u)
					}
				case a.Key == "style":
					for _, u := range urlsInCSS(a.Val) {
						refs.addJoined(base, u)
					}
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(node)

	return refs
}

// FromBlocks returns the resources referenced by a post's block list.
func FromBlocks(blocks []cohost.Block, base *url.URL) Set {
	refs := make(Set)
	for _, b := range blocks {
		switch b.Type {
		case cohost.BlockTypeMarkdown:
			if b.Markdown != nil {
				refs.merge(FromMarkdown(b.Markdown.Content, base))
			}
		case cohost.BlockTypeAttachment:
			if b.Attachment != nil {
				refs.fromAttachment(*b.Attachment, base)
			}
		case cohost.BlockTypeAttachmentRow:
			for _, w := range b.Attachments {
				refs.fromAttachment(w.Attachment, base)
			}
		case cohost.BlockTypeAsk:
			if b.Ask != nil {
				if ap := b.Ask.AskingProject; ap != nil {
					refs.addJoined(base, ap.AvatarURL)
					refs.addJoined(base, ap.AvatarPreviewURL)
				}
				refs.merge(FromMarkdown(b.Ask.Content, base))
			}
		}
	}
	return refs
}

func (s Set) fromAttachment(a cohost.Attachment, base *url.URL) {
	s.addJoined(base, a.FileURL)
	s.addJoined(base, a.PreviewURL)
}

// FromProject returns the resources referenced by a project: avatar
// and header images plus anything in the description markdown.
func FromProject(p *cohost.Project, base *url.URL) Set {
	refs := make(Set)
	refs.addJoined(base, p.AvatarURL)
	refs.addJoined(base, p.AvatarPreviewURL)
	if p.HeaderURL != nil {
		refs.addJoined(base, *p.HeaderURL)
	}
	if p.HeaderPreviewURL != nil {
		refs.addJoined(base, *p.HeaderPreviewURL)
	}
	refs.merge(FromMarkdown(p.Description, base))
	return refs
}

// FromComment returns the resources referenced by a comment body.
func FromComment(body string, base *url.URL) Set {
	return FromMarkdown(body, base)
}

// ProjectBase is the base URL project-relative references resolve
// against.
func ProjectBase(handle string) *url.URL {
	u, _ := url.Parse("https://cohost.org/" + handle)
	return u
}

// PostBase is the base URL for a post's references: its single-post
// page, falling back to the site root if it does not parse.
func PostBase(singlePostPageURL string) *url.URL {
	u, err := url.Parse(singlePostPageURL)
	if err != nil || !u.IsAbs() {
		u, _ = url.Parse("https://cohost.org/")
	}
	return u
}

// CommentBase is the base URL for a comment's references. The original
// page URL is not stored with comments, so a placeholder post URL with
// the right shape is used.
func CommentBase(postID uint64) *url.URL {
	u, _ := url.Parse("https://cohost.org/undefined/post/" + strconv.FormatUint(postID, 10) + "-undefined")
	return u
}
