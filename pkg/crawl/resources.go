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
	"context"
	"log"
	"sync/atomic"

	"go4.org/syncutil"

	"cohosted.org/pkg/store"
)

// resourceLoadBatchSize is how many resource URLs fetch in parallel.
const resourceLoadBatchSize = 5

func (d *Driver) loadPostResources(ctx context.Context) error {
	log.Printf("crawl: checking post resource files")
	total, err := d.st.TotalPostResourcesCount()
	if err != nil {
		return err
	}
	return d.loadResources(ctx, total, d.st.PostResources)
}

func (d *Driver) loadProjectResources(ctx context.Context) error {
	log.Printf("crawl: checking project resource files")
	total, err := d.st.TotalProjectResourcesCount()
	if err != nil {
		return err
	}
	return d.loadResources(ctx, total, d.st.ProjectResources)
}

func (d *Driver) loadCommentResources(ctx context.Context) error {
	log.Printf("crawl: checking comment resource files")
	total, err := d.st.TotalCommentResourcesCount()
	if err != nil {
		return err
	}
	return d.loadResources(ctx, total, d.st.CommentResources)
}

// loadResources pages a resource worklist and fetches each batch in
// parallel. The gate bounds concurrency; the group waits for every
// task in the batch before the next page, so no fetch outlives its
// batch.
func (d *Driver) loadResources(ctx context.Context, total uint64, page func(offset, limit int64) ([]store.OwnedURL, error)) error {
	var loaded atomic.Uint64

	pages := (total + resourceLoadBatchSize - 1) / resourceLoadBatchSize
	for i := uint64(0); i < pages; i++ {
		items, err := page(int64(i*resourceLoadBatchSize), resourceLoadBatchSize)
		if err != nil {
			return err
		}

		gate := syncutil.NewGate(resourceLoadBatchSize)
		var grp syncutil.Group
		for _, item := range items {
			gate.Start()
			grp.Go(func() error {
				defer gate.Done()
				_, didLoad, err := d.fetcher.LoadResourceToFile(ctx, item.URL, d.state)
				if err != nil {
					// Failed fetches are memoized; the batch goes on.
					log.Printf("crawl: resource for %s: %v", item.Owner, err)
					return nil
				}
				if didLoad {
					loaded.Add(1)
				}
				return nil
			})
		}
		if errs := grp.Errs(); len(errs) > 0 {
			return errs[0]
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if n := loaded.Load(); n == 1 {
		log.Printf("crawl: loaded 1 resource")
	} else if n > 0 {
		log.Printf("crawl: loaded %d resources", n)
	}
	return nil
}
