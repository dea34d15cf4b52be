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

package store

import (
	"errors"
	"fmt"
	"log"
)

const mergeScanPageSize = 1000

// Merge copies posts from another archive database into this one,
// wherever the other archive's copy is better: the post is missing
// here, or the other copy was published later (it was re-fetched after
// an edit). Share ancestors and posting projects come along.
func (s *Store) Merge(other *Store) (copied int, err error) {
	for offset := int64(0); ; offset += mergeScanPageSize {
		ids, err := other.PostIDs(offset, mergeScanPageSize)
		if err != nil {
			return copied, err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			better, err := s.isOtherPostBetter(other, id)
			if err != nil {
				return copied, err
			}
			if !better {
				continue
			}
			if err := s.copyPostFrom(other, id); err != nil {
				return copied, fmt.Errorf("copying post %d: %w", id, err)
			}
			copied++
		}
	}
	if copied > 0 {
		log.Printf("store: posts copied: %d", copied)
	}
	return copied, nil
}

// isOtherPostBetter reports whether the other archive's copy of a post
// should replace (or fill in) the local one.
func (s *Store) isOtherPostBetter(other *Store, id uint64) (bool, error) {
	has, err := s.HasPost(id)
	if err != nil {
		return false, err
	}
	if !has {
		return true, nil
	}
	mine, err := s.Post(id)
	if err != nil {
		return false, err
	}
	theirs, err := other.Post(id)
	if err != nil {
		return false, err
	}
	if mine.PublishedAt == nil && theirs.PublishedAt != nil {
		return true, nil
	}
	if mine.PublishedAt != nil && theirs.PublishedAt != nil {
		return *theirs.PublishedAt > *mine.PublishedAt
	}
	return false, nil
}

// copyPostFrom copies one post row and its dependencies, walking the
// share chain with an explicit stack so long chains stay cheap.
func (s *Store) copyPostFrom(other *Store, id uint64) error {
	// Build the chain of posts to copy, ancestors first.
	var chain []*Post
	seen := map[uint64]bool{}
	next := &id
	for next != nil && !seen[*next] {
		seen[*next] = true
		row, err := other.Post(*next)
		if errors.Is(err, ErrNoRow) {
			// dangling ancestor in the other archive; stop here
			break
		}
		if err != nil {
			return err
		}
		chain = append(chain, row)

		// A local ancestor that is at least as fresh wins; stop the
		// chain there.
		if row.ShareOfPostID != nil {
			if has, err := s.HasPost(*row.ShareOfPostID); err != nil {
				return err
			} else if has {
				better, err := s.isOtherPostBetter(other, *row.ShareOfPostID)
				if err != nil {
					return err
				}
				if !better {
					break
				}
			}
		}
		next = row.ShareOfPostID
	}

	for i := len(chain) - 1; i >= 0; i-- {
		if err := s.copyPostRow(other, chain[i]); err != nil {
			return err
		}
	}
	return nil
}

// copyPostRow copies a single post row plus its posting project, tags,
// and resource references.
func (s *Store) copyPostRow(other *Store, row *Post) error {
	if has, err := s.HasProjectID(row.PostingProjectID); err != nil {
		return err
	} else if !has {
		project, err := other.Project(row.PostingProjectID)
		if err != nil {
			return err
		}
		if err := s.copyProjectRow(other, project); err != nil {
			return err
		}
	}

	// If the ancestor did not make it over (dangling in the source),
	// do not carry a reference to a row that does not exist.
	shareOf := row.ShareOfPostID
	if shareOf != nil {
		if has, err := s.HasPost(*shareOf); err != nil {
			return err
		} else if !has {
			shareOf = nil
		}
	}

	data, err := encodeBlob(row.Data)
	if err != nil {
		return err
	}
	tags, err := other.PostTags(row.ID)
	if err != nil {
		return err
	}
	refs, err := other.SinglePostResourceURLs(row.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO posts
		(id, posting_project_id, published_at, response_to_ask_id, share_of_post_id,
		 is_transparent_share, filename, data, data_version, state, is_adult_content, is_pinned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			posting_project_id = excluded.posting_project_id,
			published_at = excluded.published_at,
			response_to_ask_id = excluded.response_to_ask_id,
			share_of_post_id = excluded.share_of_post_id,
			is_transparent_share = excluded.is_transparent_share,
			filename = excluded.filename,
			data = excluded.data,
			data_version = excluded.data_version,
			state = excluded.state,
			is_adult_content = excluded.is_adult_content,
			is_pinned = excluded.is_pinned`,
		row.ID, row.PostingProjectID, row.PublishedAt, row.ResponseToAskID, shareOf,
		row.IsTransparentShare, row.Filename, data, postDataVersionV2, int(row.State),
		row.IsAdultContent, row.IsPinned)
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM post_tags WHERE post_id = ?", row.ID); err != nil {
		return err
	}
	for i, tag := range tags {
		if _, err := tx.Exec("INSERT OR IGNORE INTO post_tags (post_id, tag, pos) VALUES (?, ?, ?)", row.ID, tag, i); err != nil {
			return err
		}
	}
	if _, err := tx.Exec("DELETE FROM post_resources WHERE post_id = ?", row.ID); err != nil {
		return err
	}
	for _, u := range refs {
		if _, err := tx.Exec("INSERT OR IGNORE INTO post_resources (post_id, url) VALUES (?, ?)", row.ID, u); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) copyProjectRow(other *Store, row *Project) error {
	data, err := encodeBlob(row.Data)
	if err != nil {
		return err
	}
	refs, err := other.SingleProjectResourceURLs(row.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO projects (id, handle, is_private, requires_logged_in, data, data_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		row.ID, row.Handle, row.IsPrivate, row.RequiresLoggedIn, data, projectDataVersion)
	if err != nil {
		return err
	}
	for _, u := range refs {
		if _, err := tx.Exec("INSERT OR IGNORE INTO project_resources (project_id, url) VALUES (?, ?)", row.ID, u); err != nil {
			return err
		}
	}
	return tx.Commit()
}
