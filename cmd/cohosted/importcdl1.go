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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"cohosted.org/pkg/cmdmain"
	"cohosted.org/pkg/crawl"
	"cohosted.org/pkg/fetch"
)

type importCDL1Cmd struct {
	addOnly bool
	reload  bool
}

func init() {
	cmdmain.RegisterMode("import-cdl1", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		cmd := new(importCDL1Cmd)
		flags.BoolVar(&cmd.addOnly, "add-only", false, "only add posts and comments that are missing")
		flags.BoolVar(&cmd.reload, "reload", false, "refetch each imported post from cohost.org afterwards")
		return cmd
	})
}

func (c *importCDL1Cmd) Describe() string {
	return "Import data from a cohost-dl 1 output directory."
}

func (c *importCDL1Cmd) Usage() {
	fmt.Fprintf(os.Stderr, "Usage: cohosted import-cdl1 [-add-only] [-reload] <directory>\n")
}

func (c *importCDL1Cmd) Examples() []string {
	return []string{"~/cohost-dl/out"}
}

func (c *importCDL1Cmd) RunCommand(args []string) error {
	if len(args) != 1 {
		return cmdmain.UsageError("import-cdl1 takes the cohost-dl 1 output directory")
	}
	conf, st, err := initConfig()
	if err != nil {
		return err
	}
	defer st.Close()

	state, err := crawl.LoadState(crawl.StateFile)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	client := newSiteClient(conf)
	fetcher := fetch.New(client, st, conf.RootDir, conf.DoNotFetchDomains)
	driver := crawl.NewDriver(conf, client, st, fetcher, state)

	stop := make(chan struct{})
	flusherDone := state.StartFlusher(stop)

	runErr := driver.ImportCDL1(context.Background(), crawl.CDL1ImportConfig{
		Path:    args[0],
		AddOnly: c.addOnly,
		Reload:  c.reload,
	})

	close(stop)
	<-flusherDone
	return runErr
}
