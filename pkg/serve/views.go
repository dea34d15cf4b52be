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
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"cohosted.org/pkg/cohost"
	"cohosted.org/pkg/store"
)

type indexData struct {
	Title                  string
	Projects               []string
	ProjectsWithDashboards []string
	ProjectsWhoLikedPosts  []string
}

type feedData struct {
	Title              string
	Kind               string // "profile", "tag", "liked", "dashboard"
	Project            *cohost.Project
	ProjectDescription template.HTML
	Tag                string
	SynonymTags        []string
	RelatedTags        []string
	Posts              []*postEntry
	Filter             filterState
}

type singlePostData struct {
	Title              string
	Entry              *postEntry
	Comments           map[uint64][]*commentEntry
	Project            *cohost.Project
	ProjectDescription template.HTML
}

type errorData struct {
	Title   string
	Message string
}

func (a *assembler) execute(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := a.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

func (a *assembler) errorPage(message string) string {
	body, err := a.execute("error", &errorData{Title: "error", Message: message})
	if err != nil {
		return "failed to render error page"
	}
	return body
}

func (a *assembler) indexPage() (string, error) {
	projects, err := a.st.ProjectHandlesWithPosts()
	if err != nil {
		return "", err
	}
	dashboards, err := a.st.ProjectHandlesWithFollows()
	if err != nil {
		return "", err
	}
	liked, err := a.st.ProjectHandlesWhoLikedPosts()
	if err != nil {
		return "", err
	}
	return a.execute("index", &indexData{
		Title:                  "cohosted archive",
		Projects:               projects,
		ProjectsWithDashboards: dashboards,
		ProjectsWhoLikedPosts:  liked,
	})
}

// singlePostPage renders a post permalink. The slug only matters up to
// its leading post ID.
func (a *assembler) singlePostPage(handle, slug string) (string, error) {
	idPart, _, _ := strings.Cut(slug, "-")
	postID, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid post ID %q: %w", slug, ErrNotFound)
	}

	entry, err := a.renderPostEntry(0, postID)
	if err != nil {
		return "", err
	}
	if entry.Post.PostingProject.Handle != handle {
		return "", ErrNotFound
	}

	rawComments, err := apiCommentsForShareTree(a.st, 0, entry.Post)
	if err != nil {
		return "", fmt.Errorf("loading comments: %w", err)
	}
	comments := make(map[uint64][]*commentEntry, len(rawComments))
	for postID, forest := range rawComments {
		for _, c := range forest {
			if err := rewriteProjectsInComment(a.st, c); err != nil {
				return "", err
			}
		}
		rendered, err := a.renderComments(forest)
		if err != nil {
			return "", err
		}
		comments[postID] = rendered
	}

	project := &entry.Post.PostingProject
	description, err := a.projectDescription(project)
	if err != nil {
		return "", err
	}

	title := entry.Post.Headline
	if title == "" {
		title = "@" + handle
	}
	return a.execute("single_post", &singlePostData{
		Title:              title,
		Entry:              entry,
		Comments:           comments,
		Project:            project,
		ProjectDescription: description,
	})
}

func (a *assembler) projectProfilePage(handle string, q profileQuery) (string, error) {
	projectID, err := a.st.ProjectIDForHandle(handle)
	if err != nil {
		return "", notFoundOr(err)
	}
	project, err := apiProject(a.st, 0, projectID)
	if err != nil {
		return "", err
	}
	description, err := a.projectDescription(project)
	if err != nil {
		return "", err
	}
	if err := rewriteProject(a.st, project); err != nil {
		return "", err
	}

	query := &store.PostQuery{
		PostingProjectID: &projectID,
		Offset:           q.Page * pageSize,
		Limit:            pageSize,
	}
	if q.HideShares {
		query.IsShare = boolPtr(false)
	}
	if q.HideReplies {
		query.IsReply = boolPtr(false)
	}
	if q.HideAsks {
		query.IsAsk = boolPtr(false)
	}

	posts, maxPage, err := a.renderedFeed(0, query)
	if err != nil {
		return "", err
	}

	return a.execute("project_profile", &feedData{
		Title:              "@" + handle,
		Kind:               "profile",
		Project:            project,
		ProjectDescription: description,
		Posts:              posts,
		Filter:             q.filterState("/"+handle, maxPage),
	})
}

// taggedFeedPage renders /rc/tagged/<tag> (global) or
// /<handle>/tagged/<tag> (one project's posts under the tag).
func (a *assembler) taggedFeedPage(tag, handle string, q tagQuery) (string, error) {
	canon := tag
	if c, ok, err := a.st.CanonicalTagCapitalization(tag); err != nil {
		return "", err
	} else if ok {
		canon = c
	}

	synonyms, err := a.st.SynonymTags(canon)
	if err != nil {
		return "", err
	}
	related, err := a.st.RelatedTags(canon, synonyms)
	if err != nil {
		return "", err
	}

	query := &store.PostQuery{
		IncludeTags: []string{canon},
		Offset:      q.Page * pageSize,
		Limit:       pageSize,
	}
	if !q.Show18PlusPosts {
		query.IsAdult = boolPtr(false)
	}
	path := "/rc/tagged/" + tag
	var project *cohost.Project
	if handle != "" {
		projectID, err := a.st.ProjectIDForHandle(handle)
		if err != nil {
			return "", notFoundOr(err)
		}
		query.PostingProjectID = &projectID
		path = "/" + handle + "/tagged/" + tag
		if project, err = apiProject(a.st, 0, projectID); err != nil {
			return "", err
		}
		if err := rewriteProject(a.st, project); err != nil {
			return "", err
		}
	}

	posts, maxPage, err := a.renderedFeed(0, query)
	if err != nil {
		return "", err
	}

	return a.execute("feed", &feedData{
		Title:       "#" + canon,
		Kind:        "tag",
		Project:     project,
		Tag:         canon,
		SynonymTags: synonyms,
		RelatedTags: related,
		Posts:       posts,
		Filter:      q.filterState(path, maxPage),
	})
}

func (a *assembler) likedFeedPage(handle string, q tagQuery) (string, error) {
	projectID, err := a.st.ProjectIDForHandle(handle)
	if err != nil {
		return "", notFoundOr(err)
	}
	project, err := apiProject(a.st, projectID, projectID)
	if err != nil {
		return "", err
	}
	if err := rewriteProject(a.st, project); err != nil {
		return "", err
	}

	query := &store.PostQuery{
		LikedBy: &projectID,
		Offset:  q.Page * pageSize,
		Limit:   pageSize,
	}
	posts, maxPage, err := a.renderedFeed(projectID, query)
	if err != nil {
		return "", err
	}

	return a.execute("feed", &feedData{
		Title:   "@" + handle + ": liked posts",
		Kind:    "liked",
		Project: project,
		Posts:   posts,
		Filter:  q.filterState("/"+handle+"/liked-posts", maxPage),
	})
}

func (a *assembler) dashboardPage(handle string, q tagQuery) (string, error) {
	projectID, err := a.st.ProjectIDForHandle(handle)
	if err != nil {
		return "", notFoundOr(err)
	}
	project, err := apiProject(a.st, projectID, projectID)
	if err != nil {
		return "", err
	}
	if err := rewriteProject(a.st, project); err != nil {
		return "", err
	}

	query := &store.PostQuery{
		DashboardFor: &projectID,
		Offset:       q.Page * pageSize,
		Limit:        pageSize,
	}
	posts, maxPage, err := a.renderedFeed(projectID, query)
	if err != nil {
		return "", err
	}

	return a.execute("feed", &feedData{
		Title:   "@" + handle + ": dashboard",
		Kind:    "dashboard",
		Project: project,
		Posts:   posts,
		Filter:  q.filterState("/"+handle+"/dashboard", maxPage),
	})
}

func boolPtr(v bool) *bool { return &v }
