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
	"fmt"
	"log"
	"strings"
	"unicode/utf8"
)

// Data-migration gate names in data_migration_states.
const (
	migrationURLFilesPortable = "url_files_portable"
	migrationPostsV2          = "posts_v2"
)

// migrateData runs the one-shot data migrations. Each is idempotent
// and gated by a data_migration_states row.
func (s *Store) migrateData() error {
	if _, done, err := s.migrationState(migrationURLFilesPortable); err != nil {
		return err
	} else if !done {
		if err := s.migrateURLFilesPortable(); err != nil {
			return fmt.Errorf("url_files portable-path migration: %w", err)
		}
	}
	if _, done, err := s.migrationState(migrationPostsV2); err != nil {
		return err
	} else if !done {
		if err := s.migratePostsV2(); err != nil {
			return fmt.Errorf("posts v2 migration: %w", err)
		}
	}
	return nil
}

// migrateURLFilesPortable rewrites url_files.file_path from
// host-encoded bytes to the portable "@/"-prefixed UTF-8 form.
func (s *Store) migrateURLFilesPortable() error {
	return s.inTx(func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT url, file_path FROM url_files")
		if err != nil {
			return err
		}
		type upd struct {
			url  string
			path []byte
		}
		var updates []upd
		n := 0
		for rows.Next() {
			var url string
			var raw []byte
			if err := rows.Scan(&url, &raw); err != nil {
				rows.Close()
				return err
			}
			if strings.HasPrefix(string(raw), urlFilePrefix) {
				continue
			}
			if !utf8.Valid(raw) {
				rows.Close()
				return fmt.Errorf("legacy path for %q is not valid UTF-8", url)
			}
			portable := urlFilePrefix + strings.ReplaceAll(string(raw), `\`, "/")
			updates = append(updates, upd{url, []byte(portable)})
			n++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, u := range updates {
			if _, err := tx.Exec("UPDATE url_files SET file_path = ? WHERE url = ?", u.path, u.url); err != nil {
				return err
			}
		}
		if n > 0 {
			log.Printf("store: rewrote %d url_files rows to portable paths", n)
		}
		return setMigrationState(tx, migrationURLFilesPortable, "1")
	})
}

// migratePostsV2 promotes the adult-content and pinned flags of every
// v1 post blob to columns and re-encodes the blob as v2.
func (s *Store) migratePostsV2() error {
	return s.inTx(func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT id, data FROM posts WHERE data_version = ?", postDataVersionV1)
		if err != nil {
			return err
		}
		type upd struct {
			id     uint64
			data   []byte
			adult  bool
			pinned bool
		}
		var updates []upd
		for rows.Next() {
			var id uint64
			var data []byte
			if err := rows.Scan(&id, &data); err != nil {
				rows.Close()
				return err
			}
			pd, adult, pinned, err := decodePostData(data, postDataVersionV1)
			if err != nil {
				rows.Close()
				return fmt.Errorf("post %d: %w", id, err)
			}
			enc, err := encodeBlob(pd)
			if err != nil {
				rows.Close()
				return fmt.Errorf("post %d: %w", id, err)
			}
			updates = append(updates, upd{id, enc, adult, pinned})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, u := range updates {
			_, err := tx.Exec(`UPDATE posts SET data = ?, data_version = ?, is_adult_content = ?, is_pinned = ?
				WHERE id = ?`, u.data, postDataVersionV2, u.adult, u.pinned, u.id)
			if err != nil {
				return err
			}
		}
		if len(updates) > 0 {
			log.Printf("store: upgraded %d post blobs to v2", len(updates))
		}
		return setMigrationState(tx, migrationPostsV2, "1")
	})
}
