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
	"cohosted.org/pkg/store"
)

type mergeCmd struct{}

func init() {
	cmdmain.RegisterMode("merge-data", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		return new(mergeCmd)
	})
}

func (c *mergeCmd) Describe() string {
	return "Merge posts from another archive database into this one."
}

func (c *mergeCmd) Usage() {
	fmt.Fprintf(os.Stderr, "Usage: cohosted merge-data <other.db>\n")
}

func (c *mergeCmd) Examples() []string {
	return []string{"~/other-archive/data.db"}
}

func (c *mergeCmd) RunCommand(args []string) error {
	if len(args) != 1 {
		return cmdmain.UsageError("merge-data takes the other database file")
	}
	_, st, err := initConfig()
	if err != nil {
		return err
	}
	defer st.Close()

	other, err := store.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer other.Close()

	copied, err := st.Merge(other)
	if err != nil {
		return err
	}
	printf("posts copied: %d\n", copied)
	return nil
}
