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
	"log"

	"cohosted.org/pkg/cohost"
)

const commentScanPageSize = 1000

// loadComments sweeps every non-transparent-share post that has no
// recorded comments yet and fetches its comment tree.
func (d *Driver) loadComments(ctx context.Context) error {
	posts, err := d.postsWithoutComments()
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}
	log.Printf("crawl: loading comments for %d posts", len(posts))

	count := 0
	for _, postID := range posts {
		handle, err := d.st.PostingProjectHandle(postID)
		if err != nil {
			return err
		}
		if err := d.loadCommentsForPost(ctx, handle, postID); err != nil {
			return err
		}
		count++
	}
	log.Printf("crawl: loaded comments for %d posts", count)
	return nil
}

// postsWithoutComments scans the post table for comment-sweep
// candidates, skipping posts already marked done or lost to time.
func (d *Driver) postsWithoutComments() ([]uint64, error) {
	var out []uint64
	for offset := int64(0); ; offset += commentScanPageSize {
		projects, posts, err := d.st.PostIDsNonTransparent(offset, commentScanPageSize)
		if err != nil {
			return nil, err
		}
		if len(posts) == 0 {
			break
		}
		for i, postID := range posts {
			if d.state.HasComments(projects[i], postID) || d.state.CommentsLost(postID) {
				continue
			}
			out = append(out, postID)
		}
	}
	return out, nil
}

// loadCommentsForPost fetches one post's comments, falling back to the
// post's shares when the post itself is gone: comments retrieved via
// any share belong to the original post. Posts that exhaust every
// share are marked lost to time so they are not refetched.
func (d *Driver) loadCommentsForPost(ctx context.Context, handle string, postID uint64) error {
	single, err := d.client.SinglePost(ctx, handle, postID)
	if err == nil {
		return d.insertSinglePost(ctx, single)
	}
	if !errors.Is(err, cohost.ErrNotFound) {
		return err
	}
	log.Printf("crawl: could not load comments for %s/%d: %v", handle, postID, err)

	shares, err := d.st.SharesOfPost(postID)
	if err != nil {
		return err
	}
	for _, shareID := range shares {
		shareHandle, err := d.st.PostingProjectHandle(shareID)
		if err != nil {
			return err
		}
		single, err := d.client.SinglePost(ctx, shareHandle, shareID)
		if errors.Is(err, cohost.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		log.Printf("crawl: recovered comments for %s/%d via share %s/%d", handle, postID, shareHandle, shareID)
		return d.insertSinglePost(ctx, single)
	}

	log.Printf("crawl: comments for %s/%d are lost to time", handle, postID)
	d.state.SetCommentsLost(postID)
	return nil
}

// fixTransparentShares re-resolves posts flagged as transparent shares
// with no ancestor, by refetching through any of their descendants.
func (d *Driver) fixTransparentShares(ctx context.Context) error {
	broken, err := d.st.BadTransparentShares()
	if err != nil {
		return err
	}
	if len(broken) == 0 {
		return nil
	}
	log.Printf("crawl: trying to fix %d transparent shares", len(broken))

	fixed := 0
	for _, postID := range broken {
		ok, err := d.fixTransparentShare(ctx, postID)
		if err != nil {
			return err
		}
		if ok {
			fixed++
		}
	}
	log.Printf("crawl: fixed %d of %d transparent shares", fixed, len(broken))
	return nil
}

func (d *Driver) fixTransparentShare(ctx context.Context, postID uint64) (bool, error) {
	descendants, err := d.st.SharesOfPost(postID)
	if err != nil {
		return false, err
	}
	for _, descID := range descendants {
		descHandle, err := d.st.PostingProjectHandle(descID)
		if err != nil {
			return false, err
		}
		single, err := d.client.SinglePost(ctx, descHandle, descID)
		if errors.Is(err, cohost.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if err := d.insertSinglePost(ctx, single); err != nil {
			return false, err
		}

		post, err := d.st.Post(postID)
		if err != nil {
			return false, err
		}
		if post.ShareOfPostID != nil {
			return true, nil
		}
		// The descendant's tree can still pin down the ancestor: it is
		// the chain element just before this post.
		if shareOf := ancestorFromTree(&single.Post, postID); shareOf != nil {
			if has, err := d.st.HasPost(*shareOf); err != nil {
				return false, err
			} else if has {
				if err := d.st.SetShareOfPostID(postID, shareOf); err != nil {
					return false, err
				}
				return true, nil
			}
		}
	}

	handle, err := d.st.PostingProjectHandle(postID)
	if err != nil {
		return false, err
	}
	log.Printf("crawl: could not repair transparent share %s/%d", handle, postID)
	return false, nil
}

// ancestorFromTree finds the share-tree element directly preceding
// postID in a fetched post's chain.
func ancestorFromTree(post *cohost.Post, postID uint64) *uint64 {
	for i, p := range post.ShareTree {
		if p.PostID == postID && i > 0 {
			return &post.ShareTree[i-1].PostID
		}
	}
	return nil
}
