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
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"cohosted.org/pkg/cmdmain"
	"cohosted.org/pkg/config"
	"cohosted.org/pkg/render"
)

// wizardCmd is the interactive mode that runs when no subcommand is
// given: it walks through creating a configuration, then hands off to
// the downloader or the server.
type wizardCmd struct {
	in *bufio.Reader
}

func init() {
	cmdmain.RegisterMode("wizard", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		return new(wizardCmd)
	})
}

func (c *wizardCmd) Describe() string {
	return "Interactive setup; runs when no mode is given."
}

func (c *wizardCmd) Usage() {
	fmt.Fprintf(os.Stderr, "Usage: cohosted\n")
}

func (c *wizardCmd) prompt(question string) (string, error) {
	printf("%s", question)
	line, err := c.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *wizardCmd) promptYN(question string) (bool, error) {
	for {
		answer, err := c.prompt(question + " [Y/N] ")
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "ye", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		printf("Enter 'yes' or 'no'.\n")
	}
}

func (c *wizardCmd) RunCommand(args []string) error {
	c.in = bufio.NewReader(cmdmain.Stdin)

	printf("-- cohosted interactive wizard --\n")
	printf("(run `cohosted -help` to see other commands)\n\n")
	printf("A wizard appears before you.\n\n")

	if _, err := os.Stat(configFile); err == nil {
		return c.runWithConfig()
	}

	printf("There does not appear to be a `%s` file here.\n", configFile)
	accept, err := c.promptYN("Have the wizard walk you through creating one?")
	if err != nil {
		return err
	}
	if !accept {
		printf("You can create a template file yourself with the `generate-config` subcommand.\n")
		return nil
	}
	return c.setup()
}

func (c *wizardCmd) runWithConfig() error {
	printf("A `%s` file is here.\n\n", configFile)
	printf("The wizard is offering you the following services:\n")
	printf("(1) downloading data according to configuration\n")
	printf("(2) looking at downloaded data in your web browser\n\n")

	for {
		choice, err := c.prompt("> ")
		if err != nil {
			return err
		}
		switch choice {
		case "1":
			printf("The wizard hands off to the downloader and leaves.\n\n")
			return new(downloadCmd).RunCommand(nil)
		case "2":
			printf("The wizard hands off to your web browser and leaves.\n")
			printf("You can press Ctrl + C to quit.\n\n")
			return runServer(render.DefaultWorkers, nil)
		case "exit", "quit", "leave", "bye":
			printf("Goodbye!\n")
			return nil
		default:
			printf("Enter 1, 2, or 'exit'\n")
		}
	}
}

// setup builds a fresh config.toml from the embedded template plus the
// user's answers.
func (c *wizardCmd) setup() error {
	printf("\n1. Where do you want to put the downloaded post data?\n")
	printf("   You can enter e.g. 'data.db' to use a file in the current directory.\n")
	database, err := c.prompt("file path: ")
	if err != nil {
		return err
	}
	if database == "" {
		database = "data.db"
	}

	printf("\n2. Where do you want to put downloaded image & audio data?\n")
	printf("   This could get quite large.\n")
	rootDir, err := c.prompt("folder path: ")
	if err != nil {
		return err
	}
	if rootDir == "" {
		rootDir = "out"
	}

	printf("\n3. The wizard can log you into cohost, or you can paste a session cookie.\n")
	var cookie string
	doLogin, err := c.promptYN("Have the wizard log you in?")
	if err != nil {
		return err
	}
	if doLogin {
		cookie, err = interactiveLogin(context.Background())
		if err != nil {
			return err
		}
	} else {
		for {
			cookie, err = c.prompt("session cookie: ")
			if err != nil {
				return err
			}
			if strings.HasPrefix(strings.ToLower(cookie), "connect.sid=s%3a") {
				break
			}
			printf("This does not appear to be a valid session cookie.\n")
			printf("It should look something like `connect.sid=s%%3AB8...<lots of base64>`\n")
		}
	}

	printf("\n4. What do you want to download?\n")
	loadLikes, err := c.promptYN("Download liked posts?")
	if err != nil {
		return err
	}
	loadDashboard, err := c.promptYN("Download your entire dashboard? (that's probably a lot of posts)")
	if err != nil {
		return err
	}
	loadComments, err := c.promptYN("Download comments on posts?")
	if err != nil {
		return err
	}

	conf := config.Example
	conf = strings.Replace(conf, `database = "data.db"`, fmt.Sprintf("database = %q", database), 1)
	conf = strings.Replace(conf, `root_dir = "out"`, fmt.Sprintf("root_dir = %q", rootDir), 1)
	conf = strings.Replace(conf, `cookie = ""`, fmt.Sprintf("cookie = %q", cookie), 1)
	if loadLikes {
		conf = strings.Replace(conf, "load_likes = false", "load_likes = true", 1)
	}
	if loadDashboard {
		conf = strings.Replace(conf, "load_dashboard = false", "load_dashboard = true", 1)
	}
	if loadComments {
		conf = strings.Replace(conf, "load_comments = false", "load_comments = true", 1)
	}

	if err := os.WriteFile(configFile, []byte(conf), 0666); err != nil {
		return fmt.Errorf("saving configuration: %w", err)
	}
	printf("\nSaved %s. You can configure additional options there,\n", configFile)
	printf("like loading posts from specific pages or tags.\n\n")

	start, err := c.promptYN("Start downloading now?")
	if err != nil {
		return err
	}
	if start {
		return new(downloadCmd).RunCommand(nil)
	}
	printf("You can run the program again later to start downloading.\n")
	return nil
}
