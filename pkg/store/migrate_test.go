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
	"testing"

	"cohosted.org/pkg/cohost"
)

func TestMigrateURLFilesPortable(t *testing.T) {
	s, path := newTestStore(t)

	// Plant a legacy, host-encoded row and clear the migration gate as
	// if this database predated the portable-path format.
	if _, err := s.db.Exec("INSERT INTO url_files (url, file_path) VALUES (?, ?)",
		"https://ext.example/a.png", []byte(`rc\external\ext.example\a.png`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("DELETE FROM data_migration_states WHERE name = ?", migrationURLFilesPortable); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	var raw []byte
	if err := s2.queryRow("SELECT file_path FROM url_files WHERE url = ?",
		[]interface{}{"https://ext.example/a.png"}, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw) != "@/rc/external/ext.example/a.png" {
		t.Errorf("migrated path = %q", raw)
	}
}

func TestMigrateURLFilesInvalidUTF8Aborts(t *testing.T) {
	s, path := newTestStore(t)
	if _, err := s.db.Exec("INSERT INTO url_files (url, file_path) VALUES (?, ?)",
		"https://ext.example/bad", []byte{'r', 'c', 0xff, 0xfe}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("DELETE FROM data_migration_states WHERE name = ?", migrationURLFilesPortable); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("Open should abort on invalid UTF-8 legacy path")
	}
}

func TestMigratePostsV2(t *testing.T) {
	s, path := newTestStore(t)
	proj := testProject(1, "eggbug")
	if err := s.UpsertProject(proj, nil); err != nil {
		t.Fatal(err)
	}

	// Plant a v1-format post row whose flags still live in the blob.
	v1 := postDataV1{
		Blocks: []cohost.Block{
			{Type: cohost.BlockTypeMarkdown, Markdown: &cohost.Markdown{Content: "old chost"}},
		},
		EffectiveAdultContent: true,
		Headline:              "from the before times",
		NumComments:           3,
		Pinned:                true,
		PlainTextBody:         "old chost",
		SinglePostPageURL:     "https://cohost.org/eggbug/post/77-old",
	}
	blob, err := encodeBlob(&v1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`INSERT INTO posts
		(id, posting_project_id, published_at, is_transparent_share, filename, data, data_version, state)
		VALUES (77, 1, '2023-01-01T00:00:00.000Z', 0, '77-old', ?, ?, 1)`,
		blob, postDataVersionV1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("DELETE FROM data_migration_states WHERE name = ?", migrationPostsV2); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	got, err := s2.Post(77)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsAdultContent || !got.IsPinned {
		t.Error("flags should be promoted to columns")
	}
	if got.Data.Headline != "from the before times" || got.Data.NumComments != 3 {
		t.Errorf("blob after migration = %+v", got.Data)
	}

	var version int
	if err := s2.queryRow("SELECT data_version FROM posts WHERE id = 77", nil, &version); err != nil {
		t.Fatal(err)
	}
	if version != postDataVersionV2 {
		t.Errorf("data_version = %d; want %d", version, postDataVersionV2)
	}

	// Migration already ran; opening again must be a no-op.
	s2.Close()
	s3, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s3.Close()
}

func TestPostBlobRoundTripV1Decode(t *testing.T) {
	v1 := postDataV1{
		Headline:              "round trip",
		EffectiveAdultContent: true,
		Pinned:                false,
		NumSharedComments:     9,
	}
	blob, err := encodeBlob(&v1)
	if err != nil {
		t.Fatal(err)
	}
	pd, adult, pinned, err := decodePostData(blob, postDataVersionV1)
	if err != nil {
		t.Fatal(err)
	}
	if pd.Headline != "round trip" || pd.NumSharedComments != 9 {
		t.Errorf("decoded = %+v", pd)
	}
	if !adult || pinned {
		t.Errorf("flags = %v, %v", adult, pinned)
	}

	if _, _, _, err := decodePostData(blob, 3); err == nil {
		t.Error("unknown version should fail")
	}
}
