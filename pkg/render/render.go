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

// Package render hosts the JavaScript post renderer: a fixed pool of
// worker threads, each owning one embedded JS runtime loaded with the
// precompiled renderer bundle, reached through a job queue.
package render // import "cohosted.org/pkg/render"

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"runtime"

	"github.com/dop251/goja"

	"cohosted.org/pkg/cohost"
)

// serverRenderJS is the compiled renderer bundle. It assigns two
// functions to the global scope: renderPost(options) and
// renderMarkdown(options). Arguments and results are exchanged as
// JSON-serializable values; no other code runs in the VM.
//
//go:embed dist/server-render.js
var serverRenderJS string

// DefaultWorkers is the pool size used by the server.
const DefaultWorkers = 4

// PostRenderRequest asks for a post's block list rendered to HTML.
type PostRenderRequest struct {
	PostID        uint64         `json:"postId"`
	Blocks        []cohost.Block `json:"blocks"`
	PublishedAt   string         `json:"publishedAt"`
	HasCohostPlus bool           `json:"hasCohostPlus"`
	// Resources lists the referenced URLs that have a local file, so
	// the renderer can point at the archive instead of the dead site.
	Resources []string `json:"resources"`
}

// PostRenderResult is the rendered post. ClassName and ViewModel
// support interactive hydration on the served page.
type PostRenderResult struct {
	Preview   string  `json:"preview"`
	Full      *string `json:"full"`
	ClassName string  `json:"className"`
	ViewModel string  `json:"viewModel"`
}

// MarkdownRenderContext selects the rendering rules for a markdown
// fragment.
type MarkdownRenderContext string

const (
	MarkdownContextProfile MarkdownRenderContext = "profile"
	MarkdownContextComment MarkdownRenderContext = "comment"
)

// MarkdownRenderRequest asks for one markdown fragment rendered to
// HTML.
type MarkdownRenderRequest struct {
	Markdown      string                `json:"markdown"`
	PublishedAt   string                `json:"publishedAt"`
	Context       MarkdownRenderContext `json:"context"`
	HasCohostPlus bool                  `json:"hasCohostPlus"`
	Resources     []string              `json:"resources"`
}

// MarkdownRenderResult is the rendered fragment.
type MarkdownRenderResult struct {
	HTML string `json:"html"`
}

// errWorkerDied is surfaced when a worker exits with a job in flight.
var errWorkerDied = errors.New("render: worker died")

type job struct {
	fn      string // "renderPost" or "renderMarkdown"
	reqJSON []byte
	reply   chan jobResult
}

type jobResult struct {
	resJSON []byte
	err     error
}

// Host is the renderer pool. Jobs run to completion; there is no
// cancellation or timeout, the renderer is trusted CPU-bound code.
type Host struct {
	jobs chan job
}

// NewHost compiles the bundle once and starts n workers, each pinned
// to an OS thread with its own VM.
func NewHost(n int) (*Host, error) {
	if n <= 0 {
		n = DefaultWorkers
	}
	prog, err := goja.Compile("server-render.js", serverRenderJS, false)
	if err != nil {
		return nil, fmt.Errorf("render: compiling bundle: %w", err)
	}
	h := &Host{jobs: make(chan job)}
	for i := 0; i < n; i++ {
		go h.worker(i, prog)
	}
	return h, nil
}

// Close stops accepting jobs and lets the workers exit.
func (h *Host) Close() {
	close(h.jobs)
}

func (h *Host) worker(i int, prog *goja.Program) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var current job
	defer func() {
		if r := recover(); r != nil {
			log.Printf("render: worker %d died: %v", i, r)
			if current.reply != nil {
				close(current.reply)
			}
			// The pool degrades; remaining workers keep serving.
		}
	}()

	vm := goja.New()
	if _, err := vm.RunProgram(prog); err != nil {
		log.Printf("render: worker %d could not load bundle: %v", i, err)
		for j := range h.jobs {
			j.reply <- jobResult{err: fmt.Errorf("render: bundle failed to load: %w", err)}
		}
		return
	}
	// The exchange shim keeps everything crossing the boundary a
	// plain JSON string.
	if _, err := vm.RunString(`var __invoke = function (name, argJSON) {
		return JSON.stringify(globalThis[name](JSON.parse(argJSON)));
	};`); err != nil {
		log.Printf("render: worker %d could not install shim: %v", i, err)
		return
	}
	invoke, ok := goja.AssertFunction(vm.Get("__invoke"))
	if !ok {
		log.Printf("render: worker %d: shim is not a function", i)
		return
	}

	for j := range h.jobs {
		current = j
		res, err := invoke(goja.Undefined(), vm.ToValue(j.fn), vm.ToValue(string(j.reqJSON)))
		if err != nil {
			// A per-job exception does not tear the worker down.
			j.reply <- jobResult{err: fmt.Errorf("render: %s: %w", j.fn, err)}
			current = job{}
			continue
		}
		j.reply <- jobResult{resJSON: []byte(res.String())}
		current = job{}
	}
}

func (h *Host) do(fn string, req, out interface{}) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return err
	}
	reply := make(chan jobResult, 1)
	h.jobs <- job{fn: fn, reqJSON: reqJSON, reply: reply}

	res, ok := <-reply
	if !ok {
		return errWorkerDied
	}
	if res.err != nil {
		return res.err
	}
	return json.Unmarshal(res.resJSON, out)
}

// RenderPost renders a post's block list.
func (h *Host) RenderPost(req *PostRenderRequest) (*PostRenderResult, error) {
	var out PostRenderResult
	if err := h.do("renderPost", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenderMarkdown renders one markdown fragment.
func (h *Host) RenderMarkdown(req *MarkdownRenderRequest) (*MarkdownRenderResult, error) {
	var out MarkdownRenderResult
	if err := h.do("renderMarkdown", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
