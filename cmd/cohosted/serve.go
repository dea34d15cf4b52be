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
	"flag"
	"fmt"
	"os"

	"cohosted.org/pkg/cmdmain"
	"cohosted.org/pkg/render"
	"cohosted.org/pkg/serve"
)

type serveCmd struct {
	workers int
}

func init() {
	cmdmain.RegisterMode("serve", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		cmd := new(serveCmd)
		flags.IntVar(&cmd.workers, "render-workers", render.DefaultWorkers, "number of renderer worker threads")
		return cmd
	})
}

func (c *serveCmd) Describe() string {
	return "Serve the archived data in your web browser."
}

func (c *serveCmd) Usage() {
	fmt.Fprintf(os.Stderr, "Usage: cohosted [globalopts] serve\n")
}

func (c *serveCmd) RunCommand(args []string) error {
	if len(args) != 0 {
		return cmdmain.UsageError("serve takes no arguments")
	}
	return runServer(c.workers, nil)
}

func runServer(workers int, ready func()) error {
	conf, st, err := initConfig()
	if err != nil {
		return err
	}
	defer st.Close()

	host, err := render.NewHost(workers)
	if err != nil {
		return err
	}
	defer host.Close()

	srv, err := serve.New(st, conf.RootDir, host)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(conf.ServerPort, ready)
}
