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
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// urlFilePrefix marks the portable path form in url_files rows: UTF-8,
// forward-slash separators, regardless of host path semantics.
const urlFilePrefix = "@/"

// encodeURLFilePath converts a host-relative path to the stored
// portable form.
func encodeURLFilePath(rel string) []byte {
	return []byte(urlFilePrefix + filepath.ToSlash(rel))
}

// decodeURLFilePath converts a stored path back to host form.
// Legacy rows (written before the portable-path migration) are
// returned as-is after a best-effort conversion.
func decodeURLFilePath(raw []byte) string {
	s := string(raw)
	if p, ok := strings.CutPrefix(s, urlFilePrefix); ok {
		return filepath.FromSlash(p)
	}
	return filepath.FromSlash(s)
}

// UpsertURLFile records that url has been saved at the path rel,
// relative to the archive root.
func (s *Store) UpsertURLFile(url, rel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO url_files (url, file_path) VALUES (?, ?)
		ON CONFLICT (url) DO UPDATE SET file_path = excluded.file_path`,
		url, encodeURLFilePath(rel))
	return err
}

// URLFile returns the root-relative path a URL was saved at, if any.
func (s *Store) URLFile(url string) (string, bool, error) {
	var raw []byte
	err := s.queryRow("SELECT file_path FROM url_files WHERE url = ?", []interface{}{url}, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return decodeURLFilePath(raw), true, nil
}

// URLFileSet returns, out of the given URLs, the set that have a
// downloaded file.
func (s *Store) URLFileSet(urls []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, u := range urls {
		if _, ok, err := s.URLFile(u); err != nil {
			return nil, err
		} else if ok {
			out[u] = true
		}
	}
	return out, nil
}

// UpsertResourceContentType records the Content-Type observed for a
// URL; empty means the server sent none.
func (s *Store) UpsertResourceContentType(url, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO resource_content_types (url, content_type) VALUES (?, ?)
		ON CONFLICT (url) DO UPDATE SET content_type = excluded.content_type`,
		url, contentType)
	return err
}

// ResourceContentType returns the recorded Content-Type for a URL.
func (s *Store) ResourceContentType(url string) (string, bool, error) {
	var ct string
	err := s.queryRow("SELECT content_type FROM resource_content_types WHERE url = ?", []interface{}{url}, &ct)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ct, true, nil
}

// AllURLFiles iterates every URL→file mapping, for re-import tooling.
func (s *Store) AllURLFiles(fn func(url, rel string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT url, file_path FROM url_files ORDER BY url")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var url string
		var raw []byte
		if err := rows.Scan(&url, &raw); err != nil {
			return err
		}
		if err := fn(url, decodeURLFilePath(raw)); err != nil {
			return fmt.Errorf("url_files row %q: %w", url, err)
		}
	}
	return rows.Err()
}
