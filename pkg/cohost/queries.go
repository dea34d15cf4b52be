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

package cohost

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// LoggedIn fetches the logged-in projection of the current session.
func (c *Client) LoggedIn(ctx context.Context) (*LoggedIn, error) {
	var out LoggedIn
	if err := c.TRPC(ctx, "login.loggedIn", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEditedProjects fetches the projects the session may edit.
func (c *Client) ListEditedProjects(ctx context.Context) (*ListEditedProjects, error) {
	var out ListEditedProjects
	if err := c.TRPC(ctx, "projects.listEditedProjects", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProjectByHandle fetches one project by handle.
func (c *Client) ProjectByHandle(ctx context.Context, handle string) (*Project, error) {
	var out Project
	if err := c.TRPC(ctx, "projects.byHandle", handle, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type profilePostsInput struct {
	ProjectHandle string              `json:"projectHandle"`
	Page          uint64              `json:"page"`
	Options       profilePostsOptions `json:"options"`
}

type profilePostsOptions struct {
	HideAsks             bool `json:"hideAsks"`
	HideReplies          bool `json:"hideReplies"`
	HideShares           bool `json:"hideShares"`
	PinnedPostsAtTop     bool `json:"pinnedPostsAtTop"`
	ViewingOnProjectPage bool `json:"viewingOnProjectPage"`
}

// ProfilePosts fetches one page of a project's posts, pinned posts
// first, with nothing hidden.
func (c *Client) ProfilePosts(ctx context.Context, handle string, page uint64) (*ProfilePosts, error) {
	input := profilePostsInput{
		ProjectHandle: handle,
		Page:          page,
		Options: profilePostsOptions{
			PinnedPostsAtTop:     true,
			ViewingOnProjectPage: true,
		},
	}
	var out ProfilePosts
	if err := c.TRPC(ctx, "posts.profilePosts", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type singlePostInput struct {
	Handle string `json:"handle"`
	PostID uint64 `json:"postId"`
}

// SinglePost fetches one post with its full share tree and the comment
// trees for every post in it.
func (c *Client) SinglePost(ctx context.Context, handle string, postID uint64) (*SinglePost, error) {
	var out SinglePost
	if err := c.TRPC(ctx, "posts.singlePost", singlePostInput{Handle: handle, PostID: postID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type followedFeedInput struct {
	Cursor          uint64 `json:"cursor"`
	Limit           uint64 `json:"limit"`
	BeforeTimestamp uint64 `json:"beforeTimestamp"`
	SortOrder       string `json:"sortOrder"`
}

// FollowedFeed fetches one page of the followed-projects feed.
func (c *Client) FollowedFeed(ctx context.Context, beforeTimestamp, cursor, limit uint64) (*FollowedFeedQuery, error) {
	input := followedFeedInput{
		Cursor:          cursor,
		Limit:           limit,
		BeforeTimestamp: beforeTimestamp,
		SortOrder:       "alpha-asc",
	}
	var out FollowedFeedQuery
	if err := c.TRPC(ctx, "projects.followedFeed.query", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FollowedFeedAll pages through the whole followed-projects feed.
func (c *Client) FollowedFeedAll(ctx context.Context) ([]FollowedFeedProject, error) {
	timestamp := uint64(time.Now().UnixMilli())

	var projects []FollowedFeedProject
	cursor := new(uint64)
	for cursor != nil {
		page, err := c.FollowedFeed(ctx, timestamp, *cursor, 20)
		if err != nil {
			return nil, err
		}
		cursor = page.NextCursor
		projects = append(projects, page.Projects...)
	}
	return projects, nil
}

// LikedPosts fetches one page of the liked-posts feed from its HTML
// page's embedded loader state.
func (c *Client) LikedPosts(ctx context.Context, refTimestamp uint64, skipPosts uint64) (*PostsFeed, error) {
	q := url.Values{}
	if refTimestamp > 0 {
		q.Set("refTimestamp", strconv.FormatUint(refTimestamp, 10))
	}
	if skipPosts > 0 {
		q.Set("skipPosts", strconv.FormatUint(skipPosts, 10))
	}
	u := c.resolve("/rc/liked-posts")
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	var state struct {
		LikedPostsFeed *PostsFeed `json:"liked-posts-feed"`
	}
	if err := c.loaderState(ctx, u, "liked posts page", &state); err != nil {
		return nil, err
	}
	if state.LikedPostsFeed == nil {
		return nil, fmt.Errorf("no liked-posts-feed state on liked posts page")
	}
	return state.LikedPostsFeed, nil
}

// TaggedPosts fetches one page of a tag feed, adult posts included.
func (c *Client) TaggedPosts(ctx context.Context, tag string, refTimestamp uint64, skipPosts uint64) (*TaggedPostsFeed, error) {
	q := url.Values{}
	q.Set("show18PlusPosts", "true")
	if refTimestamp > 0 {
		q.Set("refTimestamp", strconv.FormatUint(refTimestamp, 10))
	}
	if skipPosts > 0 {
		q.Set("skipPosts", strconv.FormatUint(skipPosts, 10))
	}
	u := c.resolve("/rc/tagged/"+url.PathEscape(tag)) + "?" + q.Encode()

	var state struct {
		TaggedPostFeed *TaggedPostsFeed `json:"tagged-post-feed"`
	}
	if err := c.loaderState(ctx, u, "tagged posts page", &state); err != nil {
		return nil, err
	}
	if state.TaggedPostFeed == nil {
		return nil, fmt.Errorf("no tagged-post-feed state on tagged posts page")
	}
	return state.TaggedPostFeed, nil
}

// loaderStateScriptID is the <script> element cohost pages embed their
// JSON state in.
const loaderStateScriptID = "__COHOST_LOADER_STATE__"

// loaderState fetches an HTML page and decodes its embedded loader
// state JSON into out.
func (c *Client) loaderState(ctx context.Context, rawurl, what string, out interface{}) error {
	page, err := c.GetText(ctx, rawurl)
	if err != nil {
		return fmt.Errorf("loading %s: %w", what, err)
	}
	text, err := ScriptJSON(page, loaderStateScriptID)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if err := decodeJSON(text, out); err != nil {
		return fmt.Errorf("parsing %s on %s: %w", loaderStateScriptID, what, err)
	}
	return nil
}

// ScriptJSON extracts the text contents of the <script> element with
// the given id from an HTML document.
func ScriptJSON(page, id string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "script" {
			for _, a := range n.Attr {
				if a.Key == "id" && a.Val == id {
					found = n
					return
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	if found == nil {
		return "", fmt.Errorf("could not find script#%s", id)
	}
	var sb strings.Builder
	for ch := found.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type == html.TextNode {
			sb.WriteString(ch.Data)
		}
	}
	return sb.String(), nil
}
