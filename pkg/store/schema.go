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
	"fmt"
	"strings"
)

// schemaMigrations are applied in order; PRAGMA user_version records
// how many have run.
var schemaMigrations = []string{
	// 1: base schema
	`
CREATE TABLE projects (
	id INTEGER PRIMARY KEY,
	handle TEXT NOT NULL UNIQUE,
	is_private INTEGER NOT NULL,
	requires_logged_in INTEGER NOT NULL,
	data BLOB NOT NULL,
	data_version INTEGER NOT NULL
);

CREATE TABLE posts (
	id INTEGER PRIMARY KEY,
	posting_project_id INTEGER NOT NULL REFERENCES projects (id),
	published_at TEXT,
	response_to_ask_id TEXT,
	share_of_post_id INTEGER REFERENCES posts (id),
	is_transparent_share INTEGER NOT NULL,
	filename TEXT NOT NULL,
	data BLOB NOT NULL,
	data_version INTEGER NOT NULL,
	state INTEGER NOT NULL
);
CREATE INDEX posts_posting_project_id ON posts (posting_project_id);
CREATE INDEX posts_published_at ON posts (published_at);
CREATE INDEX posts_share_of_post_id ON posts (share_of_post_id);

CREATE TABLE comments (
	id TEXT PRIMARY KEY,
	post_id INTEGER NOT NULL REFERENCES posts (id),
	in_reply_to_id TEXT,
	posting_project_id INTEGER REFERENCES projects (id),
	published_at TEXT NOT NULL,
	data BLOB NOT NULL,
	data_version INTEGER NOT NULL
);
CREATE INDEX comments_post_id ON comments (post_id);

CREATE TABLE follows (
	from_project_id INTEGER NOT NULL,
	to_project_id INTEGER NOT NULL,
	PRIMARY KEY (from_project_id, to_project_id)
);

CREATE TABLE likes (
	from_project_id INTEGER NOT NULL,
	to_post_id INTEGER NOT NULL,
	PRIMARY KEY (from_project_id, to_post_id)
);

CREATE TABLE post_tags (
	post_id INTEGER NOT NULL REFERENCES posts (id),
	tag TEXT NOT NULL,
	pos INTEGER NOT NULL,
	PRIMARY KEY (post_id, tag)
);
CREATE INDEX post_tags_tag ON post_tags (tag);

CREATE TABLE related_tags (
	tag1 TEXT NOT NULL,
	tag2 TEXT NOT NULL,
	is_synonym INTEGER NOT NULL,
	PRIMARY KEY (tag1, tag2)
);

CREATE TABLE post_related_projects (
	post_id INTEGER NOT NULL REFERENCES posts (id),
	project_id INTEGER NOT NULL REFERENCES projects (id),
	PRIMARY KEY (post_id, project_id)
);

CREATE TABLE post_resources (
	post_id INTEGER NOT NULL REFERENCES posts (id),
	url TEXT NOT NULL,
	PRIMARY KEY (post_id, url)
);

CREATE TABLE project_resources (
	project_id INTEGER NOT NULL REFERENCES projects (id),
	url TEXT NOT NULL,
	PRIMARY KEY (project_id, url)
);

CREATE TABLE comment_resources (
	comment_id TEXT NOT NULL REFERENCES comments (id),
	url TEXT NOT NULL,
	PRIMARY KEY (comment_id, url)
);

CREATE TABLE resource_content_types (
	url TEXT PRIMARY KEY,
	content_type TEXT NOT NULL
);

CREATE TABLE url_files (
	url TEXT PRIMARY KEY,
	file_path BLOB NOT NULL
);

CREATE TABLE data_migration_states (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`,
	// 2: promote adult-content and pinned flags to columns
	`
ALTER TABLE posts ADD COLUMN is_adult_content INTEGER NOT NULL DEFAULT 0;
ALTER TABLE posts ADD COLUMN is_pinned INTEGER NOT NULL DEFAULT 0;
`,
}

func (s *Store) migrateSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	for ; version < len(schemaMigrations); version++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(schemaMigrations[version], ";\n") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("schema migration %d: %w", version+1, err)
			}
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", version+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("schema migration %d: %w", version+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
