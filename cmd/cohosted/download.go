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

type downloadCmd struct{}

func init() {
	cmdmain.RegisterMode("download", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		return new(downloadCmd)
	})
}

func (c *downloadCmd) Describe() string {
	return "Download the configured posts, comments, and resources."
}

func (c *downloadCmd) Usage() {
	fmt.Fprintf(os.Stderr, "Usage: cohosted [globalopts] download\n")
}

func (c *downloadCmd) RunCommand(args []string) error {
	if len(args) != 0 {
		return cmdmain.UsageError("download takes no arguments")
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

	runErr := driver.Run(context.Background())

	close(stop)
	<-flusherDone

	return runErr
}
