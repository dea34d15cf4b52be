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
	"database/sql"

	"cohosted.org/pkg/cohost"
)

// Comment is one comments row with its decoded blob.
type Comment struct {
	ID               string
	PostID           uint64
	InReplyToID      *string
	PostingProjectID *uint64
	PublishedAt      string
	Data             *CommentData
}

// UpsertComment writes one comment (not its children) and replaces its
// resource references in a single transaction. onPostID is the post
// the comment tree belongs to, which for comments retrieved through a
// share may differ from the wire postId.
func (s *Store) UpsertComment(onPostID uint64, c *cohost.Comment, refs []string) error {
	data, err := encodeBlob(CommentDataFromComment(c))
	if err != nil {
		return err
	}
	var poster *uint64
	if c.Poster != nil {
		poster = &c.Poster.ProjectID
	}
	return s.inTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO comments (id, post_id, in_reply_to_id, posting_project_id, published_at, data, data_version)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				post_id = excluded.post_id,
				in_reply_to_id = excluded.in_reply_to_id,
				posting_project_id = excluded.posting_project_id,
				published_at = excluded.published_at,
				data = excluded.data,
				data_version = excluded.data_version`,
			c.Comment.CommentID, onPostID, c.Comment.InReplyTo, poster,
			c.Comment.PostedAtISO, data, commentDataVersion)
		if err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM comment_resources WHERE comment_id = ?", c.Comment.CommentID); err != nil {
			return err
		}
		for _, u := range refs {
			if _, err := tx.Exec("INSERT OR IGNORE INTO comment_resources (comment_id, url) VALUES (?, ?)", c.Comment.CommentID, u); err != nil {
				return err
			}
		}
		return nil
	})
}

// HasComment reports whether a comment exists.
func (s *Store) HasComment(id string) (bool, error) {
	var n int
	if err := s.queryRow("SELECT COUNT(*) FROM comments WHERE id = ?", []interface{}{id}, &n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Comments returns every comment on a post, oldest first. The reply
// tree is reassembled by the caller from InReplyToID.
func (s *Store) Comments(postID uint64) ([]*Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT id, post_id, in_reply_to_id, posting_project_id, published_at, data, data_version
		FROM comments WHERE post_id = ? ORDER BY published_at, id`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Comment
	for rows.Next() {
		var c Comment
		var data []byte
		var version int
		if err := rows.Scan(&c.ID, &c.PostID, &c.InReplyToID, &c.PostingProjectID, &c.PublishedAt, &data, &version); err != nil {
			return nil, err
		}
		cd, err := decodeCommentData(data, version)
		if err != nil {
			return nil, err
		}
		c.Data = cd
		out = append(out, &c)
	}
	return out, rows.Err()
}
