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
	"net/url"
	"strings"

	"cohosted.org/pkg/cohost"
	"cohosted.org/pkg/store"
)

// MakeResourceURL maps an absolute URL onto the local resource route:
// /r/<scheme>/<host>/<path>?q=<query>&h=<fragment>, or /r/u?url=<enc>
// for URLs that do not parse.
func MakeResourceURL(s string) string {
	u, err := url.Parse(s)
	if err == nil && u.Host != "" && u.Scheme != "" {
		var search []string
		if u.RawQuery != "" {
			search = append(search, "q="+url.QueryEscape(u.RawQuery))
		}
		if u.Fragment != "" {
			search = append(search, "h="+url.QueryEscape(u.Fragment))
		}
		path := u.EscapedPath()
		if path == "" {
			path = "/"
		}
		out := "/r/" + strings.ToLower(u.Scheme) + "/" + u.Host + path
		if len(search) > 0 {
			out += "?" + strings.Join(search, "&")
		}
		return out
	}
	return "/r/u?url=" + url.QueryEscape(s)
}

// rewriteProject replaces a project's avatar and header URLs with
// local routes for every URL that has a downloaded file.
func rewriteProject(st *store.Store, project *cohost.Project) error {
	saved, err := st.SavedResourceURLsForProject(project.ProjectID)
	if err != nil {
		return err
	}
	set := make(map[string]bool, len(saved))
	for _, u := range saved {
		set[u] = true
	}

	if set[project.AvatarURL] {
		project.AvatarURL = MakeResourceURL(project.AvatarURL)
	}
	if set[project.AvatarPreviewURL] {
		project.AvatarPreviewURL = MakeResourceURL(project.AvatarPreviewURL)
	}
	if project.HeaderURL != nil && set[*project.HeaderURL] {
		u := MakeResourceURL(*project.HeaderURL)
		project.HeaderURL = &u
	}
	if project.HeaderPreviewURL != nil && set[*project.HeaderPreviewURL] {
		u := MakeResourceURL(*project.HeaderPreviewURL)
		project.HeaderPreviewURL = &u
	}
	return nil
}

// rewriteProjectsInPost rewrites the posting project of a post and of
// every ancestor in its share tree.
func rewriteProjectsInPost(st *store.Store, post *cohost.Post) error {
	if err := rewriteProject(st, &post.PostingProject); err != nil {
		return err
	}
	for _, shared := range post.ShareTree {
		if err := rewriteProjectsInPost(st, shared); err != nil {
			return err
		}
	}
	return nil
}

// rewriteProjectsInComment rewrites the poster of a comment and of its
// whole reply subtree, iteratively.
func rewriteProjectsInComment(st *store.Store, comment *cohost.Comment) error {
	queue := []*cohost.Comment{comment}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c.Poster != nil {
			if err := rewriteProject(st, c.Poster); err != nil {
				return err
			}
		}
		queue = append(queue, c.Comment.Children...)
	}
	return nil
}
