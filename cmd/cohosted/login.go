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

	"golang.org/x/term"

	"cohosted.org/pkg/cmdmain"
	"cohosted.org/pkg/cohost"
)

type loginCmd struct{}

func init() {
	cmdmain.RegisterMode("login", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		return new(loginCmd)
	})
}

func (c *loginCmd) Describe() string {
	return "Log into cohost and print a session cookie for config.toml."
}

func (c *loginCmd) Usage() {
	fmt.Fprintf(os.Stderr, "Usage: cohosted login\n")
}

func (c *loginCmd) RunCommand(args []string) error {
	if len(args) != 0 {
		return cmdmain.UsageError("login takes no arguments")
	}
	cookie, err := interactiveLogin(context.Background())
	if err != nil {
		return err
	}
	printf("your session cookie:\n\n    cookie = %q\n\nput that in config.toml.\n", cookie)
	return nil
}

// interactiveLogin prompts for credentials and runs the login flow,
// including a 2FA code if the account needs one.
func interactiveLogin(ctx context.Context) (string, error) {
	in := bufio.NewReader(cmdmain.Stdin)

	printf("email: ")
	email, err := in.ReadString('\n')
	if err != nil {
		return "", err
	}
	email = strings.TrimSpace(email)

	printf("password (input hidden): ")
	password, err := readPassword(in)
	if err != nil {
		return "", err
	}
	printf("\nlogging in...\n")

	cookie, needsOTP, err := cohost.Login(ctx, cohost.DefaultBase, email, string(password))
	if err != nil {
		return "", err
	}

	if needsOTP {
		printf("2FA code: ")
		code, err := in.ReadString('\n')
		if err != nil {
			return "", err
		}
		if err := cohost.LoginOTP(ctx, cohost.DefaultBase, cookie, strings.TrimSpace(code)); err != nil {
			return "", err
		}
	}

	return cookie, nil
}

func readPassword(in *bufio.Reader) ([]byte, error) {
	if f, ok := cmdmain.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return term.ReadPassword(int(f.Fd()))
	}
	// not a terminal (tests, pipes): read a line with echo
	line, err := in.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimSuffix(line, "\n")), nil
}
