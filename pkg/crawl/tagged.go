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
	"log"
)

// loadTaggedPosts pages a tag feed, checkpointing the cursor after
// every page so an interrupted crawl resumes at the last offset. The
// first page also yields the tag's canonical capitalization and its
// synonym/related tags.
func (d *Driver) loadTaggedPosts(ctx context.Context, tag string) error {
	progress := d.state.TagProgress(tag)
	if progress.HasAllPosts {
		return nil
	}

	var cursor TagCursor
	if progress.HasUpTo != nil {
		cursor = *progress.HasUpTo
		log.Printf("crawl: resuming #%s at %d skipped posts", tag, cursor.SkipPosts)
	} else {
		log.Printf("crawl: loading posts tagged #%s", tag)
	}

	count := 0
	for page := 1; ; page++ {
		feed, err := d.client.TaggedPosts(ctx, tag, cursor.RefTimestamp, cursor.SkipPosts)
		if err != nil {
			return err
		}

		if cursor.SkipPosts == 0 {
			canon := feed.TagName
			if canon == "" {
				canon = tag
			}
			if err := d.st.InsertRelatedTags(canon, feed.SynonymsAndRelatedTags); err != nil {
				return err
			}
		}

		for _, post := range feed.Posts {
			if err := d.insertPost(ctx, post, false, nil); err != nil {
				return err
			}
		}
		count += len(feed.Posts)
		log.Printf("crawl: #%s page %d (%d posts)", tag, page, count)

		cursor = TagCursor{
			RefTimestamp: feed.PaginationMode.RefTimestamp,
			SkipPosts:    cursor.SkipPosts + feed.PaginationMode.IdealPageStride,
		}
		d.state.SetTagCursor(tag, cursor)

		if !feed.PaginationMode.MorePagesForward {
			break
		}
	}

	log.Printf("crawl: loaded posts tagged #%s: %d", tag, count)
	d.state.SetTagDone(tag)
	return nil
}
