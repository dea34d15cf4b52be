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
	"fmt"
	"log"
	"strconv"
	"strings"
)

// loadLikes pages through the liked-posts feed and ingests every post.
func (d *Driver) loadLikes(ctx context.Context) error {
	log.Printf("crawl: loading liked posts for project %d", d.login.ProjectID)

	var refTimestamp, skipPosts uint64
	count := 0
	for page := 1; ; page++ {
		feed, err := d.client.LikedPosts(ctx, refTimestamp, skipPosts)
		if err != nil {
			return err
		}

		count += len(feed.Posts)
		log.Printf("crawl: liked posts page %d (%d posts)", page, count)

		skipPosts += feed.PaginationMode.IdealPageStride
		refTimestamp = feed.PaginationMode.RefTimestamp

		for _, post := range feed.Posts {
			if err := d.insertPost(ctx, post, false, nil); err != nil {
				return err
			}
		}

		if !feed.PaginationMode.MorePagesForward {
			break
		}
	}

	log.Printf("crawl: loaded liked posts: %d", count)
	d.state.SetHasLikes(d.login.ProjectID)
	return nil
}

// loadProfileByHandle resolves a handle (fetching the project if it is
// not archived yet) and crawls its posts.
func (d *Driver) loadProfileByHandle(ctx context.Context, handle string) error {
	var projectID uint64
	has, err := d.st.HasProjectHandle(handle)
	if err != nil {
		return err
	}
	if !has {
		project, err := d.client.ProjectByHandle(ctx, handle)
		if err != nil {
			return fmt.Errorf("loading data for @%s: %w", handle, err)
		}
		if err := d.insertProject(project); err != nil {
			return err
		}
		projectID = project.ProjectID
	} else {
		projectID, err = d.st.ProjectIDForHandle(handle)
		if err != nil {
			return err
		}
	}
	return d.loadProfilePosts(ctx, projectID)
}

// loadDashboard crawls every followed project, except those the
// configuration skips.
func (d *Driver) loadDashboard(ctx context.Context) error {
	followed, err := d.st.FollowedByAny()
	if err != nil {
		return err
	}
	skip := make(map[string]bool, len(d.cfg.SkipFollows))
	for _, h := range d.cfg.SkipFollows {
		skip[h] = true
	}
	for _, projectID := range followed {
		project, err := d.st.Project(projectID)
		if err != nil {
			return err
		}
		if skip[project.Handle] {
			continue
		}
		if err := d.loadProfilePosts(ctx, projectID); err != nil {
			return fmt.Errorf("loading posts from @%s: %w", project.Handle, err)
		}
	}
	return nil
}

// loadProfilePosts pages a project's profile feed from page 0 until it
// runs dry. In new-posts-only mode the crawl stops at the first
// already-archived non-pinned post; pinned posts float to the top
// regardless of age, so they never end the sweep.
func (d *Driver) loadProfilePosts(ctx context.Context, projectID uint64) error {
	newOnly := false
	if d.state.HasAllPosts(projectID) {
		if !d.cfg.LoadNewPosts {
			return nil
		}
		newOnly = true
	}

	project, err := d.st.Project(projectID)
	if err != nil {
		return err
	}
	if newOnly {
		log.Printf("crawl: checking @%s for new posts", project.Handle)
	} else {
		log.Printf("crawl: loading all posts from @%s", project.Handle)
	}

	count := 0
pages:
	for page := uint64(0); ; page++ {
		posts, err := d.client.ProfilePosts(ctx, project.Handle, page)
		if err != nil {
			return err
		}

		for _, post := range posts.Posts {
			if newOnly && !post.Pinned {
				known, err := d.st.HasPost(post.PostID)
				if err != nil {
					return err
				}
				if known {
					break pages
				}
			}
			if err := d.insertPost(ctx, post, false, nil); err != nil {
				return err
			}
			count++
		}

		if len(posts.Posts) == 0 {
			break
		}
		log.Printf("crawl: @%s page %d (%d posts)", project.Handle, page, count)
	}

	log.Printf("crawl: loaded posts from @%s: %d", project.Handle, count)
	d.state.SetHasAllPosts(projectID)

	if err := d.st.Vacuum(); err != nil {
		return err
	}
	return nil
}

// loadSpecificPost ingests one configured post URL via the single-post
// endpoint.
func (d *Driver) loadSpecificPost(ctx context.Context, postURL string) error {
	handle, postID, err := parsePostURL(postURL)
	if err != nil {
		return err
	}
	single, err := d.client.SinglePost(ctx, handle, postID)
	if err != nil {
		return err
	}
	return d.insertSinglePost(ctx, single)
}

// parsePostURL splits https://cohost.org/<handle>/post/<id>-<slug>
// into its handle and post ID.
func parsePostURL(postURL string) (handle string, postID uint64, err error) {
	rest, ok := strings.CutPrefix(postURL, "https://cohost.org/")
	if !ok {
		return "", 0, fmt.Errorf("%q is not a cohost post URL", postURL)
	}
	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	if len(parts) != 3 || parts[1] != "post" {
		return "", 0, fmt.Errorf("%q is not a cohost post URL", postURL)
	}
	idPart, _, _ := strings.Cut(parts[2], "-")
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%q has no post ID: %w", postURL, err)
	}
	return parts[0], id, nil
}
