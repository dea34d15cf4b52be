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
	"strings"

	"cohosted.org/pkg/cohost"
)

// orderTagPair puts a related-tag pair into canonical order:
// ASCII-lowercase(tag1) < ASCII-lowercase(tag2).
func orderTagPair(a, b string) (string, string) {
	if strings.ToLower(a) > strings.ToLower(b) {
		return b, a
	}
	return a, b
}

// InsertRelatedTags records the synonym/related edges returned on a
// tag feed. The first observed edge for a pair wins; the canonical
// pair ordering makes re-observations collide instead of duplicating.
func (s *Store) InsertRelatedTags(tag string, related []cohost.RelatedTagEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range related {
		t1, t2 := orderTagPair(tag, r.Content)
		if t1 == t2 {
			continue
		}
		_, err := s.db.Exec("INSERT OR IGNORE INTO related_tags (tag1, tag2, is_synonym) VALUES (?, ?, ?)",
			t1, t2, r.Relationship == cohost.TagRelationshipSynonym)
		if err != nil {
			return err
		}
	}
	return nil
}

// CanonicalTagCapitalization returns the capitalization under which a
// tag was first archived, if any.
func (s *Store) CanonicalTagCapitalization(tag string) (string, bool, error) {
	var canon string
	err := s.queryRow(`SELECT tag FROM post_tags WHERE tag = ? COLLATE NOCASE LIMIT 1`, []interface{}{tag}, &canon)
	if err == ErrNoRow {
		// Related-tag edges may know the tag even if no archived post
		// carries it.
		err = s.queryRow(`SELECT tag1 FROM related_tags WHERE tag1 = ? COLLATE NOCASE LIMIT 1`, []interface{}{tag}, &canon)
		if err == ErrNoRow {
			err = s.queryRow(`SELECT tag2 FROM related_tags WHERE tag2 = ? COLLATE NOCASE LIMIT 1`, []interface{}{tag}, &canon)
		}
	}
	if err == ErrNoRow {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return canon, true, nil
}

// SynonymTags returns the tags recorded as synonyms of tag.
func (s *Store) SynonymTags(tag string) ([]string, error) {
	return s.tagNeighbors(tag, true)
}

// RelatedTags returns the tags related (not synonymous) to tag or any
// of the given synonyms.
func (s *Store) RelatedTags(tag string, synonyms []string) ([]string, error) {
	seen := map[string]bool{strings.ToLower(tag): true}
	for _, syn := range synonyms {
		seen[strings.ToLower(syn)] = true
	}
	var out []string
	for _, t := range append([]string{tag}, synonyms...) {
		neighbors, err := s.tagNeighbors(t, false)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if !seen[strings.ToLower(n)] {
				seen[strings.ToLower(n)] = true
				out = append(out, n)
			}
		}
	}
	return out, nil
}

func (s *Store) tagNeighbors(tag string, synonym bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT tag1, tag2 FROM related_tags
		WHERE is_synonym = ? AND (tag1 = ? COLLATE NOCASE OR tag2 = ? COLLATE NOCASE)
		ORDER BY tag1, tag2`, synonym, tag, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t1, t2 string
		if err := rows.Scan(&t1, &t2); err != nil {
			return nil, err
		}
		if strings.EqualFold(t1, tag) {
			out = append(out, t2)
		} else {
			out = append(out, t1)
		}
	}
	return out, rows.Err()
}
