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
	"cohosted.org/pkg/config"
)

type genConfigCmd struct{}

func init() {
	cmdmain.RegisterMode("generate-config", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		return new(genConfigCmd)
	})
}

func (c *genConfigCmd) Describe() string {
	return "Write a template config.toml to the current directory."
}

func (c *genConfigCmd) Usage() {
	fmt.Fprintf(os.Stderr, "Usage: cohosted generate-config\n")
}

func (c *genConfigCmd) RunCommand(args []string) error {
	if len(args) != 0 {
		return cmdmain.UsageError("generate-config takes no arguments")
	}
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("refusing to overwrite existing %s", configFile)
	}
	if err := os.WriteFile(configFile, []byte(config.Example), 0666); err != nil {
		return err
	}
	printf("wrote %s\n", configFile)
	return nil
}
