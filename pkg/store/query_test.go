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
	"reflect"
	"testing"

	"cohosted.org/pkg/cohost"
)

func uptr(v uint64) *uint64 { return &v }
func bptr(v bool) *bool     { return &v }

// queryFixture builds two projects with a mix of posts:
//
//	1: eggbug original, tags [cats]
//	2: eggbug reply (share of 1 with content)
//	3: eggbug transparent share of 1
//	4: vampire original, adult, tags [cats, Bats]
//	5: vampire ask response, pinned, liked by eggbug
func queryFixture(t *testing.T) *Store {
	t.Helper()
	s, _ := newTestStore(t)
	eggbug := testProject(1, "eggbug")
	vampire := testProject(2, "vampire")
	for _, p := range []*cohost.Project{eggbug, vampire} {
		if err := s.UpsertProject(p, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.InsertFollow(1, 2); err != nil {
		t.Fatal(err)
	}

	mk := func(id uint64, proj *cohost.Project, published string) *cohost.Post {
		p := testPost(id, proj)
		at := published
		p.PublishedAt = &at
		p.Tags = nil
		return p
	}

	p1 := mk(1, eggbug, "2024-09-01T00:00:00.000Z")
	p1.Tags = []string{"cats"}
	if err := s.UpsertPost(p1, UpsertPostArgs{}); err != nil {
		t.Fatal(err)
	}

	p2 := mk(2, eggbug, "2024-09-02T00:00:00.000Z")
	p2.ShareOfPostID = uptr(1)
	if err := s.UpsertPost(p2, UpsertPostArgs{ShareOfPostID: uptr(1)}); err != nil {
		t.Fatal(err)
	}

	p3 := mk(3, eggbug, "2024-09-03T00:00:00.000Z")
	p3.ShareOfPostID = uptr(1)
	p3.TransparentShareOfPostID = uptr(1)
	p3.Blocks = nil
	if err := s.UpsertPost(p3, UpsertPostArgs{ShareOfPostID: uptr(1)}); err != nil {
		t.Fatal(err)
	}

	p4 := mk(4, vampire, "2024-09-04T00:00:00.000Z")
	p4.EffectiveAdultContent = true
	p4.Tags = []string{"cats", "Bats"}
	if err := s.UpsertPost(p4, UpsertPostArgs{}); err != nil {
		t.Fatal(err)
	}

	p5 := mk(5, vampire, "2024-09-05T00:00:00.000Z")
	ask := "ask-1"
	p5.ResponseToAskID = &ask
	p5.Pinned = true
	p5.IsLiked = true
	if err := s.UpsertPost(p5, UpsertPostArgs{LikedBy: 1}); err != nil {
		t.Fatal(err)
	}

	return s
}

func TestPostQuery(t *testing.T) {
	s := queryFixture(t)

	tests := []struct {
		name  string
		query PostQuery
		want  []uint64
	}{
		{"all newest first", PostQuery{}, []uint64{5, 4, 3, 2, 1}},
		{"by poster", PostQuery{PostingProjectID: uptr(1)}, []uint64{3, 2, 1}},
		{"shares of post", PostQuery{SharedPostID: uptr(1)}, []uint64{3, 2}},
		{"liked by", PostQuery{LikedBy: uptr(1)}, []uint64{5}},
		{"dashboard", PostQuery{DashboardFor: uptr(1)}, []uint64{5, 4}},
		{"include tag case-insensitive", PostQuery{IncludeTags: []string{"CATS"}}, []uint64{4, 1}},
		{"exclude tag", PostQuery{ExcludeTags: []string{"bats"}}, []uint64{5, 3, 2, 1}},
		{"asks only", PostQuery{IsAsk: bptr(true)}, []uint64{5}},
		{"adult only", PostQuery{IsAdult: bptr(true)}, []uint64{4}},
		{"replies only", PostQuery{IsReply: bptr(true)}, []uint64{2}},
		{"hide replies", PostQuery{PostingProjectID: uptr(1), IsReply: bptr(false)}, []uint64{3, 1}},
		{"transparent shares only", PostQuery{IsShare: bptr(true)}, []uint64{3}},
		{"pinned only", PostQuery{IsPinned: bptr(true)}, []uint64{5}},
		{"offset and limit", PostQuery{Offset: 1, Limit: 2}, []uint64{4, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.query.Get(s)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Get = %v; want %v", got, tt.want)
			}
			n, err := tt.query.Count(s)
			if err != nil {
				t.Fatal(err)
			}
			wantCount := uint64(len(tt.want))
			if tt.name == "offset and limit" {
				wantCount = 5
			}
			if n != wantCount {
				t.Errorf("Count = %d; want %d", n, wantCount)
			}
		})
	}
}

func TestPostQueryLimitCap(t *testing.T) {
	s, _ := newTestStore(t)
	proj := testProject(1, "eggbug")
	if err := s.UpsertProject(proj, nil); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 120; i++ {
		p := testPost(uint64(i), proj)
		at := fmt.Sprintf("2024-01-01T00:00:%02d.%03dZ", i%60, i)
		p.PublishedAt = &at
		p.Tags = nil
		if err := s.UpsertPost(p, UpsertPostArgs{}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := (&PostQuery{Limit: 1000}).Get(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != maxQueryLimit {
		t.Errorf("len = %d; want cap %d", len(got), maxQueryLimit)
	}
}
