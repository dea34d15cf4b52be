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

// Package crawl drives the incremental download of a user-scoped view
// of the source site: work units over feeds and posts, share-tree
// recovery, comment sweeps, and resource loading, with progress
// persisted to a resumable sidecar.
package crawl // import "cohosted.org/pkg/crawl"

import (
	"context"
	"fmt"
	"log"

	"cohosted.org/pkg/cohost"
	"cohosted.org/pkg/config"
	"cohosted.org/pkg/fetch"
	"cohosted.org/pkg/resref"
	"cohosted.org/pkg/store"
)

// Driver is the crawl orchestration engine.
type Driver struct {
	cfg     *config.Config
	client  *cohost.Client
	st      *store.Store
	fetcher *fetch.Fetcher
	state   *State

	login *cohost.LoggedIn
}

// NewDriver wires a driver from its collaborators.
func NewDriver(cfg *config.Config, client *cohost.Client, st *store.Store, fetcher *fetch.Fetcher, state *State) *Driver {
	return &Driver{cfg: cfg, client: client, st: st, fetcher: fetcher, state: state}
}

// Run executes every configured work unit in declared order. The
// state sidecar must be flushed by the caller (see State.StartFlusher).
func (d *Driver) Run(ctx context.Context) error {
	login, err := d.logIn(ctx)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	d.login = login

	if !d.state.HasFollows(login.ProjectID) {
		if err := d.loadFollows(ctx); err != nil {
			return fmt.Errorf("loading follows: %w", err)
		}
	}

	if d.cfg.LoadLikes && !d.state.HasLikes(login.ProjectID) {
		if err := d.loadLikes(ctx); err != nil {
			return fmt.Errorf("loading likes: %w", err)
		}
	}

	for _, handle := range d.cfg.LoadProfilePosts {
		if err := d.loadProfileByHandle(ctx, handle); err != nil {
			return fmt.Errorf("loading posts from @%s: %w", handle, err)
		}
	}

	if d.cfg.LoadDashboard {
		if err := d.loadDashboard(ctx); err != nil {
			return fmt.Errorf("loading dashboard: %w", err)
		}
	}

	for _, postURL := range d.cfg.LoadSpecificPosts {
		if err := d.loadSpecificPost(ctx, postURL); err != nil {
			return fmt.Errorf("loading post %s: %w", postURL, err)
		}
	}

	for _, tag := range d.cfg.LoadTaggedPosts {
		if err := d.loadTaggedPosts(ctx, tag); err != nil {
			return fmt.Errorf("loading posts tagged #%s: %w", tag, err)
		}
	}

	if d.cfg.LoadComments {
		if err := d.loadComments(ctx); err != nil {
			return fmt.Errorf("loading comments: %w", err)
		}
	}

	if d.cfg.TryFixTransparentShares {
		if err := d.fixTransparentShares(ctx); err != nil {
			return fmt.Errorf("fixing transparent shares: %w", err)
		}
	}

	if d.cfg.LoadPostResources {
		if err := d.loadPostResources(ctx); err != nil {
			return fmt.Errorf("loading post resources: %w", err)
		}
	}
	if d.cfg.LoadProjectResources {
		if err := d.loadProjectResources(ctx); err != nil {
			return fmt.Errorf("loading project resources: %w", err)
		}
	}
	if d.cfg.LoadCommentResources {
		if err := d.loadCommentResources(ctx); err != nil {
			return fmt.Errorf("loading comment resources: %w", err)
		}
	}

	log.Printf("crawl: done")
	return nil
}

// logIn fetches the session projection and records every project the
// account can edit.
func (d *Driver) logIn(ctx context.Context) (*cohost.LoggedIn, error) {
	log.Printf("crawl: logging in")
	login, err := d.client.LoggedIn(ctx)
	if err != nil {
		return nil, err
	}
	edited, err := d.client.ListEditedProjects(ctx)
	if err != nil {
		return nil, err
	}

	currentHandle := "(error)"
	for _, p := range edited.Projects {
		if p.ProjectID == login.ProjectID {
			currentHandle = "@" + p.Handle
		}
	}
	log.Printf("crawl: logged in as %s / %s", login.Email, currentHandle)
	log.Printf("crawl: please do not change your currently active page (%s) in the cohost web UI while loading data", currentHandle)

	for i := range edited.Projects {
		if err := d.insertProject(&edited.Projects[i]); err != nil {
			return nil, err
		}
	}
	return login, nil
}

func (d *Driver) loadFollows(ctx context.Context) error {
	log.Printf("crawl: loading follows for project %d", d.login.ProjectID)
	followed, err := d.client.FollowedFeedAll(ctx)
	if err != nil {
		return err
	}
	log.Printf("crawl: loaded follows: %d", len(followed))

	for i := range followed {
		if err := d.insertProject(&followed[i].Project); err != nil {
			return err
		}
		if err := d.st.InsertFollow(d.login.ProjectID, followed[i].Project.ProjectID); err != nil {
			return err
		}
	}
	d.state.SetHasFollows(d.login.ProjectID)
	return d.state.Store()
}

// insertProject writes a project with its extracted resource
// references.
func (d *Driver) insertProject(p *cohost.Project) error {
	refs := resref.FromProject(p, resref.ProjectBase(p.Handle)).Sorted()
	if err := d.st.UpsertProject(p, refs); err != nil {
		return fmt.Errorf("inserting project @%s: %w", p.Handle, err)
	}
	return nil
}
