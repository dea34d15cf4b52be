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

// Project is one projects row with its decoded blob.
type Project struct {
	ID               uint64
	Handle           string
	IsPrivate        bool
	RequiresLoggedIn bool
	Data             *ProjectData
}

// UpsertProject writes a project and replaces its resource-reference
// rows in a single transaction.
func (s *Store) UpsertProject(p *cohost.Project, refs []string) error {
	data, err := encodeBlob(ProjectDataFromProject(p))
	if err != nil {
		return err
	}
	return s.inTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO projects (id, handle, is_private, requires_logged_in, data, data_version)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				handle = excluded.handle,
				is_private = excluded.is_private,
				requires_logged_in = excluded.requires_logged_in,
				data = excluded.data,
				data_version = excluded.data_version`,
			p.ProjectID, p.Handle,
			p.Privacy == cohost.ProjectPrivacyPrivate,
			p.LoggedOutPostVisibility == cohost.LoggedOutVisibilityNone,
			data, projectDataVersion)
		if err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM project_resources WHERE project_id = ?", p.ProjectID); err != nil {
			return err
		}
		for _, u := range refs {
			if _, err := tx.Exec("INSERT OR IGNORE INTO project_resources (project_id, url) VALUES (?, ?)", p.ProjectID, u); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanProject(row *sql.Row) (*Project, error) {
	var p Project
	var data []byte
	var version int
	if err := row.Scan(&p.ID, &p.Handle, &p.IsPrivate, &p.RequiresLoggedIn, &data, &version); err != nil {
		return nil, err
	}
	pd, err := decodeProjectData(data, version)
	if err != nil {
		return nil, err
	}
	p.Data = pd
	return &p, nil
}

const projectCols = "id, handle, is_private, requires_logged_in, data, data_version"

// Project returns one project by ID.
func (s *Store) Project(id uint64) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scanProject(s.db.QueryRow("SELECT "+projectCols+" FROM projects WHERE id = ?", id))
}

// ProjectForHandle returns one project by handle.
func (s *Store) ProjectForHandle(handle string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scanProject(s.db.QueryRow("SELECT "+projectCols+" FROM projects WHERE handle = ?", handle))
}

// ProjectIDForHandle returns a project's ID by handle.
func (s *Store) ProjectIDForHandle(handle string) (uint64, error) {
	var id uint64
	err := s.queryRow("SELECT id FROM projects WHERE handle = ?", []interface{}{handle}, &id)
	return id, err
}

// HasProjectHandle reports whether a project with the handle exists.
func (s *Store) HasProjectHandle(handle string) (bool, error) {
	var n int
	if err := s.queryRow("SELECT COUNT(*) FROM projects WHERE handle = ?", []interface{}{handle}, &n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasProjectID reports whether a project with the ID exists.
func (s *Store) HasProjectID(id uint64) (bool, error) {
	var n int
	if err := s.queryRow("SELECT COUNT(*) FROM projects WHERE id = ?", []interface{}{id}, &n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertFollow records a follow edge. Re-inserting is a no-op.
func (s *Store) InsertFollow(fromProject, toProject uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("INSERT OR IGNORE INTO follows (from_project_id, to_project_id) VALUES (?, ?)", fromProject, toProject)
	return err
}

// FollowedByAny returns every project that any archived account
// follows.
func (s *Store) FollowedByAny() ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT DISTINCT to_project_id FROM follows ORDER BY to_project_id")
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

// ProjectHandlesWithPosts returns the handles of projects that have at
// least one archived post, sorted.
func (s *Store) ProjectHandlesWithPosts() ([]string, error) {
	return s.stringList(`SELECT DISTINCT p.handle FROM projects p
		JOIN posts ON posts.posting_project_id = p.id ORDER BY p.handle`)
}

// ProjectHandlesWithFollows returns the handles of projects whose
// dashboard can be reconstructed (they follow someone), sorted.
func (s *Store) ProjectHandlesWithFollows() ([]string, error) {
	return s.stringList(`SELECT DISTINCT p.handle FROM projects p
		JOIN follows ON follows.from_project_id = p.id ORDER BY p.handle`)
}

// ProjectHandlesWhoLikedPosts returns the handles of projects with at
// least one archived like, sorted.
func (s *Store) ProjectHandlesWhoLikedPosts() ([]string, error) {
	return s.stringList(`SELECT DISTINCT p.handle FROM projects p
		JOIN likes ON likes.from_project_id = p.id ORDER BY p.handle`)
}

func (s *Store) stringList(query string, args ...interface{}) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
