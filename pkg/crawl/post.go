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
	"errors"
	"fmt"
	"log"

	"cohosted.org/pkg/cohost"
	"cohosted.org/pkg/resref"
	"cohosted.org/pkg/store"
)

// insertPost ingests one post and, first, its entire share tree in
// chain order. isSharePost marks posts reached through someone else's
// share tree; prevInTree is the previous chain element, used as a
// last-resort ancestor when the server omitted one.
func (d *Driver) insertPost(ctx context.Context, post *cohost.Post, isSharePost bool, prevInTree *cohost.Post) error {
	for i, sharePost := range post.ShareTree {
		var prev *cohost.Post
		if i > 0 {
			prev = post.ShareTree[i-1]
		}
		if err := d.insertPost(ctx, sharePost, true, prev); err != nil {
			return fmt.Errorf("inserting share tree post %s/%s for %s/%s: %w",
				sharePost.PostingProject.Handle, sharePost.Filename,
				post.PostingProject.Handle, post.Filename, err)
		}
	}

	if err := d.insertProject(&post.PostingProject); err != nil {
		return fmt.Errorf("inserting posting project: %w", err)
	}
	for i := range post.RelatedProjects {
		if err := d.insertProject(&post.RelatedProjects[i]); err != nil {
			return err
		}
	}

	inferShareFromTree := false
	if post.ShareOfPostID != nil {
		ok, err := d.hasUsableAncestor(*post.ShareOfPostID)
		if err != nil {
			return err
		}
		if !ok {
			if isSharePost {
				// The ancestor is missing from this share tree because
				// the server elides chains of transparent shares. There
				// is no endpoint for a bare post ID, but this post's
				// own single-post page returns a fuller tree.
				log.Printf("crawl: reloading %s/%s because of additionally required post %d",
					post.PostingProject.Handle, post.Filename, *post.ShareOfPostID)

				single, err := d.client.SinglePost(ctx, post.PostingProject.Handle, post.PostID)
				switch {
				case err == nil:
					return d.insertSinglePost(ctx, single)
				case errors.Is(err, cohost.ErrNotFound):
					log.Printf("crawl: could not load additional post due to 404, skipping: %v", err)
				default:
					return fmt.Errorf("additional data for share tree post %s/%s: %w",
						post.PostingProject.Handle, post.Filename, err)
				}
			}

			log.Printf("crawl: post %s/%s does not have its shared post %d in its share tree; replacing with last available post",
				post.PostingProject.Handle, post.Filename, *post.ShareOfPostID)
			inferShareFromTree = true
		}
	}

	return d.insertPostFinal(post, inferShareFromTree, prevInTree)
}

// hasUsableAncestor reports whether a share ancestor exists and is not
// itself a broken transparent share.
func (d *Driver) hasUsableAncestor(postID uint64) (bool, error) {
	ok, err := d.st.HasPost(postID)
	if err != nil || !ok {
		return false, err
	}
	row, err := d.st.Post(postID)
	if err != nil {
		return false, err
	}
	if row.IsTransparentShare && row.ShareOfPostID == nil {
		return false, nil
	}
	return true, nil
}

// insertPostFinal writes a post in its final form. All dependencies
// (projects, share ancestors) must already be inserted.
func (d *Driver) insertPostFinal(post *cohost.Post, inferShareFromTree bool, prevInTree *cohost.Post) error {
	shareOf := post.ShareOfPostID
	if inferShareFromTree {
		switch {
		case len(post.ShareTree) > 0:
			shareOf = &post.ShareTree[len(post.ShareTree)-1].PostID
		case prevInTree != nil:
			shareOf = &prevInTree.PostID
		default:
			log.Printf("crawl: no ancestor available for %s/%s; dropping share relation",
				post.PostingProject.Handle, post.Filename)
			shareOf = nil
		}
	}

	refs := resref.FromBlocks(post.Blocks, resref.PostBase(post.SinglePostPageURL)).Sorted()

	var likedBy uint64
	if post.IsLiked && d.login != nil {
		likedBy = d.login.ProjectID
	}

	if err := d.st.UpsertPost(post, store.UpsertPostArgs{
		ShareOfPostID: shareOf,
		LikedBy:       likedBy,
		Refs:          refs,
	}); err != nil {
		return fmt.Errorf("inserting post %s/%s: %w", post.PostingProject.Handle, post.Filename, err)
	}
	return nil
}

// insertSinglePost ingests a single-post response: the post, its share
// tree, and the comment trees for every post in it.
func (d *Driver) insertSinglePost(ctx context.Context, single *cohost.SinglePost) error {
	if err := d.insertPost(ctx, &single.Post, false, nil); err != nil {
		return fmt.Errorf("inserting single post %s/%s: %w",
			single.Post.PostingProject.Handle, single.Post.Filename, err)
	}

	for postID, comments := range single.Comments {
		for _, comment := range comments {
			if err := d.insertCommentTree(postID, comment); err != nil {
				return fmt.Errorf("inserting single post comment %s/%s/%s: %w",
					single.Post.PostingProject.Handle, single.Post.Filename,
					comment.Comment.CommentID, err)
			}
		}

		project, err := d.st.PostingProjectID(postID)
		if err != nil {
			return fmt.Errorf("finding posting project of %d: %w", postID, err)
		}
		d.state.SetHasComments(project, postID)
	}
	return nil
}

// insertCommentTree inserts a comment and its reply subtree in BFS
// order.
func (d *Driver) insertCommentTree(onPostID uint64, root *cohost.Comment) error {
	queue := []*cohost.Comment{root}
	for len(queue) > 0 {
		comment := queue[0]
		queue = queue[1:]

		if comment.Poster != nil {
			if err := d.insertProject(comment.Poster); err != nil {
				return err
			}
		}

		refs := resref.FromComment(comment.Comment.Body, resref.CommentBase(comment.Comment.PostID)).Sorted()
		if err := d.st.UpsertComment(onPostID, comment, refs); err != nil {
			return err
		}

		queue = append(queue, comment.Comment.Children...)
	}
	return nil
}
