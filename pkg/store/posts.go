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

// Post is one posts row with its decoded blob.
type Post struct {
	ID                 uint64
	PostingProjectID   uint64
	PublishedAt        *string
	ResponseToAskID    *string
	ShareOfPostID      *uint64
	IsTransparentShare bool
	Filename           string
	State              cohost.PostState
	IsAdultContent     bool
	IsPinned           bool
	Data               *PostData
}

// UpsertPostArgs carries the relationship data written together with a
// post row. ShareOfPostID is the resolved ancestor (possibly inferred
// during share repair), not necessarily the wire value.
type UpsertPostArgs struct {
	ShareOfPostID *uint64
	// LikedBy, when nonzero, records a like edge from that project.
	LikedBy uint64
	Refs    []string
}

// UpsertPost writes a post in its final form: the row itself plus its
// like edge, tags, related projects, and resource references, all in
// one transaction. Requires that the posting project, related
// projects, and the share ancestor already exist.
func (s *Store) UpsertPost(p *cohost.Post, args UpsertPostArgs) error {
	data, err := encodeBlob(PostDataFromPost(p))
	if err != nil {
		return err
	}
	return s.inTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO posts
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
			p.PostID, p.PostingProject.ProjectID, p.PublishedAt, p.ResponseToAskID,
			args.ShareOfPostID, p.TransparentShareOfPostID != nil, p.Filename,
			data, postDataVersionV2, int(p.State), p.EffectiveAdultContent, p.Pinned)
		if err != nil {
			return err
		}

		if args.LikedBy != 0 {
			if _, err := tx.Exec("INSERT OR IGNORE INTO likes (from_project_id, to_post_id) VALUES (?, ?)", args.LikedBy, p.PostID); err != nil {
				return err
			}
		}

		if _, err := tx.Exec("DELETE FROM post_related_projects WHERE post_id = ?", p.PostID); err != nil {
			return err
		}
		for _, proj := range p.RelatedProjects {
			if _, err := tx.Exec("INSERT OR IGNORE INTO post_related_projects (post_id, project_id) VALUES (?, ?)", p.PostID, proj.ProjectID); err != nil {
				return err
			}
		}

		if _, err := tx.Exec("DELETE FROM post_tags WHERE post_id = ?", p.PostID); err != nil {
			return err
		}
		for i, tag := range p.Tags {
			if _, err := tx.Exec("INSERT OR IGNORE INTO post_tags (post_id, tag, pos) VALUES (?, ?, ?)", p.PostID, tag, i); err != nil {
				return err
			}
		}

		if _, err := tx.Exec("DELETE FROM post_resources WHERE post_id = ?", p.PostID); err != nil {
			return err
		}
		for _, u := range args.Refs {
			if _, err := tx.Exec("INSERT OR IGNORE INTO post_resources (post_id, url) VALUES (?, ?)", p.PostID, u); err != nil {
				return err
			}
		}
		return nil
	})
}

const postCols = `id, posting_project_id, published_at, response_to_ask_id, share_of_post_id,
	is_transparent_share, filename, data, data_version, state, is_adult_content, is_pinned`

func scanPost(row *sql.Row) (*Post, error) {
	var p Post
	var data []byte
	var version, state int
	err := row.Scan(&p.ID, &p.PostingProjectID, &p.PublishedAt, &p.ResponseToAskID,
		&p.ShareOfPostID, &p.IsTransparentShare, &p.Filename, &data, &version,
		&state, &p.IsAdultContent, &p.IsPinned)
	if err != nil {
		return nil, err
	}
	p.State = cohost.PostState(state)
	pd, v1Adult, v1Pinned, err := decodePostData(data, version)
	if err != nil {
		return nil, err
	}
	if version == postDataVersionV1 {
		// Rows the data migration has not touched yet still carry the
		// flags in the blob.
		p.IsAdultContent = v1Adult
		p.IsPinned = v1Pinned
	}
	p.Data = pd
	return &p, nil
}

// Post returns one post by ID.
func (s *Store) Post(id uint64) (*Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scanPost(s.db.QueryRow("SELECT "+postCols+" FROM posts WHERE id = ?", id))
}

// HasPost reports whether a post exists.
func (s *Store) HasPost(id uint64) (bool, error) {
	var n int
	if err := s.queryRow("SELECT COUNT(*) FROM posts WHERE id = ?", []interface{}{id}, &n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// TotalPostCount returns the number of archived posts.
func (s *Store) TotalPostCount() (uint64, error) {
	var n uint64
	err := s.queryRow("SELECT COUNT(*) FROM posts", nil, &n)
	return n, err
}

// PostIDs returns a page of post IDs in ID order.
func (s *Store) PostIDs(offset, limit int64) ([]uint64, error) {
	return s.idList("SELECT id FROM posts ORDER BY id LIMIT ? OFFSET ?", limit, offset)
}

// PostIDsNonTransparent returns (project, post) pairs for a page of
// posts that are not transparent shares, in ID order.
func (s *Store) PostIDsNonTransparent(offset, limit int64) (projects, posts []uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT posting_project_id, id FROM posts WHERE is_transparent_share = 0 ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var proj, post uint64
		if err := rows.Scan(&proj, &post); err != nil {
			return nil, nil, err
		}
		projects = append(projects, proj)
		posts = append(posts, post)
	}
	return projects, posts, rows.Err()
}

// PostingProjectID returns the project a post belongs to.
func (s *Store) PostingProjectID(postID uint64) (uint64, error) {
	var id uint64
	err := s.queryRow("SELECT posting_project_id FROM posts WHERE id = ?", []interface{}{postID}, &id)
	return id, err
}

// PostingProjectHandle returns the handle of the project a post
// belongs to.
func (s *Store) PostingProjectHandle(postID uint64) (string, error) {
	var handle string
	err := s.queryRow(`SELECT projects.handle FROM projects
		JOIN posts ON posts.posting_project_id = projects.id
		WHERE posts.id = ?`, []interface{}{postID}, &handle)
	return handle, err
}

// PostTags returns a post's tags in display order.
func (s *Store) PostTags(postID uint64) ([]string, error) {
	return s.stringList("SELECT tag FROM post_tags WHERE post_id = ? ORDER BY pos", postID)
}

// SharesOfPost returns the direct shares of a post, in ID order.
func (s *Store) SharesOfPost(postID uint64) ([]uint64, error) {
	return s.idList("SELECT id FROM posts WHERE share_of_post_id = ? ORDER BY id", postID)
}

// BadTransparentShares returns posts flagged as transparent shares
// whose ancestor is missing, eligible for share repair.
func (s *Store) BadTransparentShares() ([]uint64, error) {
	return s.idList("SELECT id FROM posts WHERE is_transparent_share = 1 AND share_of_post_id IS NULL ORDER BY id")
}

// SetShareOfPostID rewrites a post's share relation (share repair).
func (s *Store) SetShareOfPostID(postID uint64, shareOf *uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("UPDATE posts SET share_of_post_id = ? WHERE id = ?", shareOf, postID)
	return err
}

// IsLiked reports whether a project has liked a post.
func (s *Store) IsLiked(projectID, postID uint64) (bool, error) {
	var n int
	if err := s.queryRow("SELECT COUNT(*) FROM likes WHERE from_project_id = ? AND to_post_id = ?", []interface{}{projectID, postID}, &n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) idList(query string, args ...interface{}) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
