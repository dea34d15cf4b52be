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

package crawl

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// StateFile is the crawl-progress sidecar, written next to wherever
// the downloader runs.
const StateFile = "downloader-state.json"

// stateVersion gates sidecar format changes; a mismatch aborts.
const stateVersion = 1

// u64Set is a set of IDs serialized as a sorted JSON array.
type u64Set map[uint64]bool

func (s u64Set) MarshalJSON() ([]byte, error) {
	ids := make([]uint64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return json.Marshal(ids)
}

func (s *u64Set) UnmarshalJSON(data []byte) error {
	var ids []uint64
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = make(u64Set, len(ids))
	for _, id := range ids {
		(*s)[id] = true
	}
	return nil
}

// ProjectState tracks crawl progress for one project.
type ProjectState struct {
	HasAllPosts bool   `json:"has_all_posts"`
	HasComments u64Set `json:"has_comments"`
}

// TagCursor is a checkpoint into a tagged feed.
type TagCursor struct {
	RefTimestamp uint64 `json:"ref_timestamp"`
	SkipPosts    uint64 `json:"skip_posts"`
}

// TagState tracks crawl progress for one tag feed.
type TagState struct {
	HasAllPosts bool       `json:"has_all_posts"`
	HasUpTo     *TagCursor `json:"has_up_to"`
}

type stateData struct {
	HasLikes           u64Set                   `json:"has_likes"`
	HasFollows         u64Set                   `json:"has_follows"`
	Projects           map[uint64]*ProjectState `json:"projects"`
	FailedURLs         []string                 `json:"failed_urls"`
	TaggedPosts        map[string]*TagState     `json:"tagged_posts"`
	CommentsLostToTime u64Set                   `json:"comments_lost_to_time"`
}

type stateEnvelope struct {
	Version uint64          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// State is the resumable crawl progress, persisted to the JSON
// sidecar. All access is behind one mutex; the background flusher
// writes it out every second.
type State struct {
	mu        sync.Mutex
	path      string
	data      stateData
	failedSet map[string]bool
}

func newStateData() stateData {
	return stateData{
		HasLikes:           u64Set{},
		HasFollows:         u64Set{},
		Projects:           map[uint64]*ProjectState{},
		TaggedPosts:        map[string]*TagState{},
		CommentsLostToTime: u64Set{},
	}
}

// LoadState reads the sidecar at path, or returns a fresh state if it
// does not exist. A version mismatch is an error, not a reset.
func LoadState(path string) (*State, error) {
	st := &State{path: path, data: newStateData(), failedSet: map[string]bool{}}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	var env stateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if env.Version != stateVersion {
		return nil, fmt.Errorf("%s: unknown version %d", path, env.Version)
	}
	if err := json.Unmarshal(env.Data, &st.data); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if st.data.HasLikes == nil {
		st.data.HasLikes = u64Set{}
	}
	if st.data.HasFollows == nil {
		st.data.HasFollows = u64Set{}
	}
	if st.data.Projects == nil {
		st.data.Projects = map[uint64]*ProjectState{}
	}
	if st.data.TaggedPosts == nil {
		st.data.TaggedPosts = map[string]*TagState{}
	}
	if st.data.CommentsLostToTime == nil {
		st.data.CommentsLostToTime = u64Set{}
	}
	for _, u := range st.data.FailedURLs {
		st.failedSet[u] = true
	}
	return st, nil
}

// Store writes the sidecar out.
func (s *State) Store() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked()
}

func (s *State) storeLocked() error {
	data, err := json.Marshal(&s.data)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(&stateEnvelope{Version: stateVersion, Data: data}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, out, 0666)
}

// StartFlusher writes the sidecar every second until stop is closed,
// and once more on the way out.
func (s *State) StartFlusher(stop <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Store(); err != nil {
					log.Printf("crawl: could not save downloader state: %v", err)
				}
			case <-stop:
				if err := s.Store(); err != nil {
					log.Printf("crawl: could not save downloader state: %v", err)
					s.mu.Lock()
					log.Printf("crawl: here it is just for you:\n%+v", s.data)
					s.mu.Unlock()
				}
				return
			}
		}
	}()
	return done
}

func (s *State) HasLikes(project uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.HasLikes[project]
}

func (s *State) SetHasLikes(project uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.HasLikes[project] = true
}

func (s *State) HasFollows(project uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.HasFollows[project]
}

func (s *State) SetHasFollows(project uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.HasFollows[project] = true
}

func (s *State) project(id uint64) *ProjectState {
	ps := s.data.Projects[id]
	if ps == nil {
		ps = &ProjectState{HasComments: u64Set{}}
		s.data.Projects[id] = ps
	}
	if ps.HasComments == nil {
		ps.HasComments = u64Set{}
	}
	return ps
}

func (s *State) HasAllPosts(project uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project(project).HasAllPosts
}

func (s *State) SetHasAllPosts(project uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project(project).HasAllPosts = true
}

func (s *State) HasComments(project, post uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project(project).HasComments[post]
}

func (s *State) SetHasComments(project, post uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project(project).HasComments[post] = true
}

func (s *State) CommentsLost(post uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CommentsLostToTime[post]
}

func (s *State) SetCommentsLost(post uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.CommentsLostToTime[post] = true
}

// TagProgress returns the checkpoint for a tag feed.
func (s *State) TagProgress(tag string) TagState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts := s.data.TaggedPosts[tag]; ts != nil {
		return *ts
	}
	return TagState{}
}

// SetTagCursor advances a tag feed's checkpoint.
func (s *State) SetTagCursor(tag string, cur TagCursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.data.TaggedPosts[tag]
	if ts == nil {
		ts = &TagState{}
		s.data.TaggedPosts[tag] = ts
	}
	ts.HasUpTo = &cur
}

// SetTagDone marks a tag feed fully crawled.
func (s *State) SetTagDone(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.data.TaggedPosts[tag]
	if ts == nil {
		ts = &TagState{}
		s.data.TaggedPosts[tag] = ts
	}
	ts.HasAllPosts = true
}

// Contains reports whether a URL's fetch already failed fatally.
// Together with Add it implements fetch.FailedURLs.
func (s *State) Contains(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedSet[url]
}

// Add memoizes a fatally failed URL.
func (s *State) Add(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failedSet[url] {
		return
	}
	s.failedSet[url] = true
	s.data.FailedURLs = append(s.data.FailedURLs, url)
}
