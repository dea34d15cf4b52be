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

package serve

import (
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"time"

	"cohosted.org/pkg/cohost"
	"cohosted.org/pkg/render"
	"cohosted.org/pkg/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageSize is how many posts a feed page shows.
const pageSize = 20

// assembler composes archived entities and renderer output into HTML
// pages.
type assembler struct {
	st   *store.Store
	host *render.Host
	tmpl *template.Template
}

func newAssembler(st *store.Store, host *render.Host) (*assembler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &assembler{st: st, host: host, tmpl: tmpl}, nil
}

// renderedPost is one rendered post body plus the hydration fields
// the client script picks up.
type renderedPost struct {
	HTML      template.HTML
	ClassName string
	ViewModel string
}

// postEntry is one post thread ready for a template: the wire post
// plus rendered output for it and every share-tree ancestor.
type postEntry struct {
	Post     *cohost.Post
	Rendered map[uint64]renderedPost
}

// commentEntry is one rendered comment with its rendered subtree.
type commentEntry struct {
	Comment  *cohost.Comment
	HTML     template.HTML
	Children []*commentEntry
}

// renderPostEntry renders a post and its share tree and rewrites every
// project reference to local routes.
func (a *assembler) renderPostEntry(viewerID, postID uint64) (*postEntry, error) {
	post, err := apiPost(a.st, viewerID, postID)
	if err != nil {
		return nil, err
	}

	entry := &postEntry{Post: post, Rendered: make(map[uint64]renderedPost, len(post.ShareTree)+1)}
	for _, p := range append([]*cohost.Post{post}, post.ShareTree...) {
		resources, err := a.st.SavedResourceURLsForPost(p.PostID)
		if err != nil {
			return nil, err
		}
		res, err := a.host.RenderPost(&render.PostRenderRequest{
			PostID:        p.PostID,
			Blocks:        p.Blocks,
			PublishedAt:   publishedOrNow(p.PublishedAt),
			HasCohostPlus: p.HasCohostPlus,
			Resources:     resources,
		})
		if err != nil {
			return nil, fmt.Errorf("rendering post %d: %w", p.PostID, err)
		}
		entry.Rendered[p.PostID] = renderedPost{
			HTML:      template.HTML(res.Preview),
			ClassName: res.ClassName,
			ViewModel: res.ViewModel,
		}
	}

	if err := rewriteProjectsInPost(a.st, post); err != nil {
		return nil, err
	}
	return entry, nil
}

func publishedOrNow(publishedAt *string) string {
	if publishedAt != nil {
		return *publishedAt
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// renderMarkdownFragment renders profile descriptions and comment
// bodies.
func (a *assembler) renderMarkdownFragment(markdown, publishedAt string, ctx render.MarkdownRenderContext, hasPlus bool, resources []string) (template.HTML, error) {
	res, err := a.host.RenderMarkdown(&render.MarkdownRenderRequest{
		Markdown:      markdown,
		PublishedAt:   publishedAt,
		Context:       ctx,
		HasCohostPlus: hasPlus,
		Resources:     resources,
	})
	if err != nil {
		return "", err
	}
	return template.HTML(res.HTML), nil
}

// renderedFeed runs a post query and renders every hit.
func (a *assembler) renderedFeed(viewerID uint64, q *store.PostQuery) (entries []*postEntry, maxPage uint64, err error) {
	ids, err := q.Get(a.st)
	if err != nil {
		return nil, 0, err
	}
	total, err := q.Count(a.st)
	if err != nil {
		return nil, 0, err
	}
	if total > 0 {
		maxPage = (total - 1) / pageSize
	}

	for _, id := range ids {
		entry, err := a.renderPostEntry(viewerID, id)
		if err != nil {
			return nil, 0, fmt.Errorf("reading post %d: %w", id, err)
		}
		entries = append(entries, entry)
	}
	return entries, maxPage, nil
}

// renderComments renders a comment forest.
func (a *assembler) renderComments(comments []*cohost.Comment) ([]*commentEntry, error) {
	var out []*commentEntry
	for _, c := range comments {
		resources, err := a.st.SavedResourceURLsForComment(c.Comment.CommentID)
		if err != nil {
			return nil, err
		}
		html, err := a.renderMarkdownFragment(c.Comment.Body, c.Comment.PostedAtISO,
			render.MarkdownContextComment, c.Comment.HasCohostPlus, resources)
		if err != nil {
			return nil, fmt.Errorf("rendering comment %s: %w", c.Comment.CommentID, err)
		}
		children, err := a.renderComments(c.Comment.Children)
		if err != nil {
			return nil, err
		}
		out = append(out, &commentEntry{Comment: c, HTML: html, Children: children})
	}
	return out, nil
}

// projectDescription renders a project's bio with its saved resources.
func (a *assembler) projectDescription(project *cohost.Project) (template.HTML, error) {
	resources, err := a.st.SavedResourceURLsForProject(project.ProjectID)
	if err != nil {
		return "", err
	}
	return a.renderMarkdownFragment(project.Description, time.Now().UTC().Format(time.RFC3339),
		render.MarkdownContextProfile, false, resources)
}

// filterState carries a feed page's query plus the links that toggle
// each filter, precomputed for the template.
type filterState struct {
	Page            uint64
	HideShares      bool
	HideReplies     bool
	HideAsks        bool
	Show18PlusPosts bool

	PrevPage string
	NextPage string

	ToggleShares  string
	ToggleReplies string
	ToggleAsks    string
	ToggleAdult   string
}

// profileQuery is the filter query of a profile page. Parsing is
// total: unknown keys and bad values are ignored.
type profileQuery struct {
	Page        uint64
	HideShares  bool
	HideReplies bool
	HideAsks    bool
}

func parseProfileQuery(values url.Values) profileQuery {
	var q profileQuery
	q.Page, _ = strconv.ParseUint(values.Get("page"), 10, 64)
	q.HideShares = values.Get("hideShares") == "true"
	q.HideReplies = values.Get("hideReplies") == "true"
	q.HideAsks = values.Get("hideAsks") == "true"
	return q
}

func (q profileQuery) encode() string {
	var parts []string
	if q.Page > 0 {
		parts = append(parts, "page="+strconv.FormatUint(q.Page, 10))
	}
	if q.HideShares {
		parts = append(parts, "hideShares=true")
	}
	if q.HideReplies {
		parts = append(parts, "hideReplies=true")
	}
	if q.HideAsks {
		parts = append(parts, "hideAsks=true")
	}
	return joinQuery(parts)
}

func (q profileQuery) filterState(path string, maxPage uint64) filterState {
	fs := filterState{
		Page:        q.Page,
		HideShares:  q.HideShares,
		HideReplies: q.HideReplies,
		HideAsks:    q.HideAsks,
	}
	toggle := q
	toggle.HideShares = !q.HideShares
	fs.ToggleShares = path + toggle.encode()
	toggle = q
	toggle.HideReplies = !q.HideReplies
	fs.ToggleReplies = path + toggle.encode()
	toggle = q
	toggle.HideAsks = !q.HideAsks
	fs.ToggleAsks = path + toggle.encode()

	if q.Page > 0 {
		prev := q
		prev.Page--
		fs.PrevPage = path + prev.encode()
	}
	if q.Page < maxPage {
		next := q
		next.Page++
		fs.NextPage = path + next.encode()
	}
	return fs
}

// tagQuery is the filter query of tag, liked, and dashboard feeds.
type tagQuery struct {
	Page            uint64
	Show18PlusPosts bool
}

func parseTagQuery(values url.Values) tagQuery {
	q := tagQuery{Show18PlusPosts: true}
	q.Page, _ = strconv.ParseUint(values.Get("page"), 10, 64)
	if values.Get("show18PlusPosts") == "false" {
		q.Show18PlusPosts = false
	}
	return q
}

func (q tagQuery) encode() string {
	var parts []string
	if q.Page > 0 {
		parts = append(parts, "page="+strconv.FormatUint(q.Page, 10))
	}
	if !q.Show18PlusPosts {
		parts = append(parts, "show18PlusPosts=false")
	}
	return joinQuery(parts)
}

func (q tagQuery) filterState(path string, maxPage uint64) filterState {
	fs := filterState{Page: q.Page, Show18PlusPosts: q.Show18PlusPosts}

	toggle := q
	toggle.Show18PlusPosts = !q.Show18PlusPosts
	fs.ToggleAdult = path + toggle.encode()

	if q.Page > 0 {
		prev := q
		prev.Page--
		fs.PrevPage = path + prev.encode()
	}
	if q.Page < maxPage {
		next := q
		next.Page++
		fs.NextPage = path + next.encode()
	}
	return fs
}

func joinQuery(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "&" + p
	}
	return "?" + out
}
