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

// The cohosted command archives a personal view of cohost.org and
// serves a browsable, offline reconstruction of it from local storage.
package main // import "cohosted.org/cmd/cohosted"

import (
	"fmt"
	"time"

	"cohosted.org/pkg/cmdmain"
	"cohosted.org/pkg/cohost"
	"cohosted.org/pkg/config"
	"cohosted.org/pkg/store"
)

// configFile is read from the directory cohosted runs in.
const configFile = "config.toml"

func main() {
	cmdmain.DefaultMode = "wizard"
	cmdmain.Main()
}

// initConfig loads the configuration and opens the database, the
// shared setup of every data-touching mode.
func initConfig() (*config.Config, *store.Store, error) {
	conf, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(conf.Database)
	if err != nil {
		return nil, nil, err
	}
	return conf, st, nil
}

// newSiteClient builds the cohost client from the configuration.
func newSiteClient(conf *config.Config) *cohost.Client {
	cohost.SetVerbose(*cmdmain.FlagVerbose)
	return cohost.NewClient(conf.Cookie, time.Duration(conf.RequestTimeoutSecs)*time.Second)
}

func printf(format string, args ...interface{}) {
	fmt.Fprintf(cmdmain.Stdout, format, args...)
}
