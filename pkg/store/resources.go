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

// OwnedURL is one resource-reference row: a URL together with a label
// for the entity that references it, used in error breadcrumbs.
type OwnedURL struct {
	Owner string
	URL   string
}

// TotalPostResourcesCount returns the number of post resource rows.
func (s *Store) TotalPostResourcesCount() (uint64, error) {
	var n uint64
	err := s.queryRow("SELECT COUNT(*) FROM post_resources", nil, &n)
	return n, err
}

// PostResources returns a page of post resource rows.
func (s *Store) PostResources(offset, limit int64) ([]OwnedURL, error) {
	return s.ownedURLs(`SELECT 'post ' || post_id, url FROM post_resources ORDER BY post_id, url LIMIT ? OFFSET ?`, limit, offset)
}

// TotalProjectResourcesCount returns the number of project resource rows.
func (s *Store) TotalProjectResourcesCount() (uint64, error) {
	var n uint64
	err := s.queryRow("SELECT COUNT(*) FROM project_resources", nil, &n)
	return n, err
}

// ProjectResources returns a page of project resource rows.
func (s *Store) ProjectResources(offset, limit int64) ([]OwnedURL, error) {
	return s.ownedURLs(`SELECT 'project ' || project_id, url FROM project_resources ORDER BY project_id, url LIMIT ? OFFSET ?`, limit, offset)
}

// TotalCommentResourcesCount returns the number of comment resource rows.
func (s *Store) TotalCommentResourcesCount() (uint64, error) {
	var n uint64
	err := s.queryRow("SELECT COUNT(*) FROM comment_resources", nil, &n)
	return n, err
}

// CommentResources returns a page of comment resource rows.
func (s *Store) CommentResources(offset, limit int64) ([]OwnedURL, error) {
	return s.ownedURLs(`SELECT 'comment ' || comment_id, url FROM comment_resources ORDER BY comment_id, url LIMIT ? OFFSET ?`, limit, offset)
}

// SinglePostResourceURLs returns the resource URLs referenced by one post.
func (s *Store) SinglePostResourceURLs(postID uint64) ([]string, error) {
	return s.stringList("SELECT url FROM post_resources WHERE post_id = ? ORDER BY url", postID)
}

// SingleProjectResourceURLs returns the resource URLs referenced by one project.
func (s *Store) SingleProjectResourceURLs(projectID uint64) ([]string, error) {
	return s.stringList("SELECT url FROM project_resources WHERE project_id = ? ORDER BY url", projectID)
}

// SingleCommentResourceURLs returns the resource URLs referenced by one comment.
func (s *Store) SingleCommentResourceURLs(commentID string) ([]string, error) {
	return s.stringList("SELECT url FROM comment_resources WHERE comment_id = ? ORDER BY url", commentID)
}

// SavedResourceURLsForPost returns the post's referenced URLs that have
// a downloaded file.
func (s *Store) SavedResourceURLsForPost(postID uint64) ([]string, error) {
	return s.stringList(`SELECT pr.url FROM post_resources pr
		JOIN url_files uf ON uf.url = pr.url
		WHERE pr.post_id = ? ORDER BY pr.url`, postID)
}

// SavedResourceURLsForProject returns the project's referenced URLs
// that have a downloaded file.
func (s *Store) SavedResourceURLsForProject(projectID uint64) ([]string, error) {
	return s.stringList(`SELECT pr.url FROM project_resources pr
		JOIN url_files uf ON uf.url = pr.url
		WHERE pr.project_id = ? ORDER BY pr.url`, projectID)
}

// SavedResourceURLsForComment returns the comment's referenced URLs
// that have a downloaded file.
func (s *Store) SavedResourceURLsForComment(commentID string) ([]string, error) {
	return s.stringList(`SELECT cr.url FROM comment_resources cr
		JOIN url_files uf ON uf.url = cr.url
		WHERE cr.comment_id = ? ORDER BY cr.url`, commentID)
}

func (s *Store) ownedURLs(query string, args ...interface{}) ([]OwnedURL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OwnedURL
	for rows.Next() {
		var o OwnedURL
		if err := rows.Scan(&o.Owner, &o.URL); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
