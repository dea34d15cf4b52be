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

import "strings"

// maxQueryLimit caps a PostQuery page.
const maxQueryLimit = 100

// PostQuery selects posts for the feed pages. Nil filters are skipped;
// results are ordered by published_at descending.
type PostQuery struct {
	PostingProjectID *uint64
	SharedPostID     *uint64
	LikedBy          *uint64
	// DashboardFor selects posts by every project the given project
	// follows.
	DashboardFor *uint64
	IncludeTags  []string
	ExcludeTags  []string
	// IsAsk selects posts that respond (or not) to an ask.
	IsAsk *bool
	// IsAdult filters on the adult-content flag.
	IsAdult *bool
	// IsReply selects shares with their own content.
	IsReply *bool
	// IsShare selects transparent shares.
	IsShare *bool
	// IsPinned filters on the pinned flag.
	IsPinned *bool

	Offset uint64
	Limit  uint64
}

func boolArg(b bool) interface{} {
	if b {
		return 1
	}
	return 0
}

// where builds the WHERE clause shared by Get and Count.
func (q *PostQuery) where() (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, condArgs ...interface{}) {
		conds = append(conds, cond)
		args = append(args, condArgs...)
	}

	if q.PostingProjectID != nil {
		add("posting_project_id = ?", *q.PostingProjectID)
	}
	if q.SharedPostID != nil {
		add("share_of_post_id = ?", *q.SharedPostID)
	}
	if q.LikedBy != nil {
		add("id IN (SELECT to_post_id FROM likes WHERE from_project_id = ?)", *q.LikedBy)
	}
	if q.DashboardFor != nil {
		add("posting_project_id IN (SELECT to_project_id FROM follows WHERE from_project_id = ?)", *q.DashboardFor)
	}
	for _, tag := range q.IncludeTags {
		add("id IN (SELECT post_id FROM post_tags WHERE tag = ? COLLATE NOCASE)", tag)
	}
	for _, tag := range q.ExcludeTags {
		add("id NOT IN (SELECT post_id FROM post_tags WHERE tag = ? COLLATE NOCASE)", tag)
	}
	if q.IsAsk != nil {
		if *q.IsAsk {
			add("response_to_ask_id IS NOT NULL")
		} else {
			add("response_to_ask_id IS NULL")
		}
	}
	if q.IsAdult != nil {
		add("is_adult_content = ?", boolArg(*q.IsAdult))
	}
	if q.IsReply != nil {
		if *q.IsReply {
			add("share_of_post_id IS NOT NULL AND is_transparent_share = 0")
		} else {
			add("(share_of_post_id IS NULL OR is_transparent_share = 1)")
		}
	}
	if q.IsShare != nil {
		add("is_transparent_share = ?", boolArg(*q.IsShare))
	}
	if q.IsPinned != nil {
		add("is_pinned = ?", boolArg(*q.IsPinned))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Get runs the query and returns matching post IDs, newest first.
func (q *PostQuery) Get(s *Store) ([]uint64, error) {
	where, args := q.where()
	limit := q.Limit
	if limit == 0 || limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	args = append(args, limit, q.Offset)
	return s.idList("SELECT id FROM posts"+where+
		" ORDER BY published_at DESC LIMIT ? OFFSET ?", args...)
}

// Count returns the number of posts matching the query, ignoring
// offset and limit.
func (q *PostQuery) Count(s *Store) (uint64, error) {
	where, args := q.where()
	var n uint64
	err := s.queryRow("SELECT COUNT(*) FROM posts"+where, args, &n)
	return n, err
}
