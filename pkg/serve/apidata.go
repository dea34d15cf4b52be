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
	"errors"
	"fmt"

	"cohosted.org/pkg/cohost"
	"cohosted.org/pkg/store"
)

// ErrNotFound is returned when an archived entity does not exist.
var ErrNotFound = errors.New("not found")

func notFoundOr(err error) error {
	if errors.Is(err, store.ErrNoRow) {
		return ErrNotFound
	}
	return err
}

// apiProject reconstructs the wire shape of a project from its row.
func apiProject(st *store.Store, viewerID, projectID uint64) (*cohost.Project, error) {
	row, err := st.Project(projectID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return projectFromRow(row, viewerID), nil
}

func projectFromRow(row *store.Project, viewerID uint64) *cohost.Project {
	d := row.Data
	isSelf := row.ID == viewerID
	return &cohost.Project{
		AskSettings:             d.AskSettings,
		AvatarPreviewURL:        d.AvatarPreviewURL,
		AvatarShape:             d.AvatarShape,
		AvatarURL:               d.AvatarURL,
		ContactCard:             d.ContactCard,
		Dek:                     d.Dek,
		DeleteAfter:             d.DeleteAfter,
		Description:             d.Description,
		DisplayName:             d.DisplayName,
		Flags:                   d.Flags,
		FrequentlyUsedTags:      d.FrequentlyUsedTags,
		Handle:                  row.Handle,
		HeaderPreviewURL:        d.HeaderPreviewURL,
		HeaderURL:               d.HeaderURL,
		IsSelfProject:           &isSelf,
		LoggedOutPostVisibility: d.LoggedOutPostVisibility,
		Privacy:                 d.Privacy,
		ProjectID:               row.ID,
		Pronouns:                d.Pronouns,
		URL:                     d.URL,
	}
}

// apiPost reconstructs a post with its full share tree, walking the
// share chain iteratively so long chains cannot exhaust the stack.
func apiPost(st *store.Store, viewerID, postID uint64) (*cohost.Post, error) {
	// Chain rows from the requested post up to the root.
	var rows []*store.Post
	seen := map[uint64]bool{}
	next := &postID
	for next != nil && !seen[*next] {
		seen[*next] = true
		row, err := st.Post(*next)
		if err != nil {
			if len(rows) > 0 && errors.Is(err, store.ErrNoRow) {
				// A repaired chain can still dangle; stop at the last
				// observable ancestor.
				break
			}
			return nil, notFoundOr(err)
		}
		rows = append(rows, row)
		next = row.ShareOfPostID
	}

	// Convert root-first so each post's ancestors already exist.
	wire := make([]*cohost.Post, len(rows))
	for i := range rows {
		j := len(rows) - 1 - i
		p, err := postFromRow(st, viewerID, rows[j])
		if err != nil {
			return nil, err
		}
		wire[i] = p
	}

	top := wire[len(wire)-1]
	top.ShareTree = wire[:len(wire)-1]
	if len(top.ShareTree) > 0 {
		last := top.ShareTree[len(top.ShareTree)-1].PostID
		top.ShareOfPostID = &last
	}

	if rows[0].IsTransparentShare {
		for i := len(top.ShareTree) - 1; i >= 0; i-- {
			if !treeRowIsTransparent(rows, top.ShareTree[i].PostID) {
				id := top.ShareTree[i].PostID
				top.TransparentShareOfPostID = &id
				break
			}
		}
	}

	return top, nil
}

func treeRowIsTransparent(rows []*store.Post, id uint64) bool {
	for _, r := range rows {
		if r.ID == id {
			return r.IsTransparentShare
		}
	}
	return false
}

// postFromRow reconstructs the wire shape of one post row, without a
// share tree.
func postFromRow(st *store.Store, viewerID uint64, row *store.Post) (*cohost.Post, error) {
	postingProject, err := apiProject(st, viewerID, row.PostingProjectID)
	if err != nil {
		return nil, fmt.Errorf("posting project of %d: %w", row.ID, err)
	}
	tags, err := st.PostTags(row.ID)
	if err != nil {
		return nil, err
	}
	isLiked := false
	if viewerID != 0 {
		isLiked, err = st.IsLiked(viewerID, row.ID)
		if err != nil {
			return nil, err
		}
	}

	d := row.Data
	return &cohost.Post{
		Blocks:                d.Blocks,
		CanShare:              !d.SharesLocked,
		CommentsLocked:        d.CommentsLocked,
		CWs:                   d.CWs,
		EffectiveAdultContent: row.IsAdultContent,
		Filename:              row.Filename,
		HasCohostPlus:         d.HasCohostPlus,
		Headline:              d.Headline,
		IsLiked:               isLiked,
		NumComments:           d.NumComments,
		NumSharedComments:     d.NumSharedComments,
		Pinned:                row.IsPinned,
		PlainTextBody:         d.PlainTextBody,
		PostEditURL:           d.PostEditURL,
		PostID:                row.ID,
		PostingProject:        *postingProject,
		PublishedAt:           row.PublishedAt,
		ResponseToAskID:       row.ResponseToAskID,
		ShareOfPostID:         row.ShareOfPostID,
		SharesLocked:          d.SharesLocked,
		SinglePostPageURL:     d.SinglePostPageURL,
		State:                 row.State,
		Tags:                  tags,
	}, nil
}

// apiComments reconstructs the comment tree of one post. Rows come
// back ordered by publish time, then ID, so siblings regrouped under
// their parent keep that order.
func apiComments(st *store.Store, viewerID, postID uint64, isEditor bool) ([]*cohost.Comment, error) {
	rows, err := st.Comments(postID)
	if err != nil {
		return nil, err
	}

	projects := map[uint64]*cohost.Project{}
	for _, row := range rows {
		if row.PostingProjectID == nil {
			continue
		}
		id := *row.PostingProjectID
		if _, ok := projects[id]; !ok {
			p, err := apiProject(st, viewerID, id)
			if err != nil {
				return nil, err
			}
			projects[id] = p
		}
	}

	byParent := map[string][]*cohost.Comment{}
	for _, row := range rows {
		isViewer := row.PostingProjectID != nil && *row.PostingProjectID == viewerID

		var poster *cohost.Project
		if row.PostingProjectID != nil {
			poster = projects[*row.PostingProjectID]
		}
		c := &cohost.Comment{
			Poster: poster,
			Comment: cohost.InnerComment{
				Body:          row.Data.Body,
				CommentID:     row.ID,
				Deleted:       row.Data.Deleted,
				HasCohostPlus: row.Data.HasCohostPlus,
				Hidden:        row.Data.Hidden,
				InReplyTo:     row.InReplyToID,
				PostID:        postID,
				PostedAtISO:   row.PublishedAt,
			},
			CanEdit:     permissionIf(isViewer),
			CanHide:     permissionIf(isEditor),
			CanInteract: cohost.PermissionAllowed,
		}
		parent := ""
		if row.InReplyToID != nil {
			parent = *row.InReplyToID
		}
		byParent[parent] = append(byParent[parent], c)
	}

	var collect func(parent string) []*cohost.Comment
	collect = func(parent string) []*cohost.Comment {
		items := byParent[parent]
		delete(byParent, parent)
		for _, item := range items {
			item.Comment.Children = collect(item.Comment.CommentID)
		}
		return items
	}
	comments := collect("")

	// comments whose parent is gone still show up, at the end
	for len(byParent) > 0 {
		for parent, items := range byParent {
			delete(byParent, parent)
			comments = append(comments, items...)
		}
	}

	return comments, nil
}

func permissionIf(allowed bool) string {
	if allowed {
		return cohost.PermissionAllowed
	}
	return cohost.PermissionNotAllowed
}

// apiCommentsForShareTree returns the comment trees for a post and
// every ancestor in its share tree, keyed by post ID.
func apiCommentsForShareTree(st *store.Store, viewerID uint64, post *cohost.Post) (map[uint64][]*cohost.Comment, error) {
	out := make(map[uint64][]*cohost.Comment, len(post.ShareTree)+1)
	comments, err := apiComments(st, viewerID, post.PostID, post.IsEditor)
	if err != nil {
		return nil, err
	}
	out[post.PostID] = comments

	for _, shared := range post.ShareTree {
		comments, err := apiComments(st, viewerID, shared.PostID, shared.IsEditor)
		if err != nil {
			return nil, err
		}
		out[shared.PostID] = comments
	}
	return out, nil
}
