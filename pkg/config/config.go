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

// Package config reads the cohosted configuration file.
package config // import "cohosted.org/pkg/config"

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Example is the template configuration written by generate-config.
//
//go:embed config.example.toml
var Example string

// DefaultRequestTimeoutSecs is used when request_timeout_secs is unset.
const DefaultRequestTimeoutSecs = 120

// Config holds every recognized key of config.toml. Unknown keys are
// ignored so that configs written by newer versions still load.
type Config struct {
	Database           string `toml:"database"`
	Cookie             string `toml:"cookie"`
	RequestTimeoutSecs uint64 `toml:"request_timeout_secs"`
	RootDir            string `toml:"root_dir"`

	DoNotFetchDomains []string `toml:"do_not_fetch_domains"`

	LoadDashboard     bool     `toml:"load_dashboard"`
	LoadLikes         bool     `toml:"load_likes"`
	LoadProfilePosts  []string `toml:"load_profile_posts"`
	LoadTaggedPosts   []string `toml:"load_tagged_posts"`
	LoadSpecificPosts []string `toml:"load_specific_posts"`
	SkipFollows       []string `toml:"skip_follows"`
	LoadNewPosts      bool     `toml:"load_new_posts"`
	LoadComments      bool     `toml:"load_comments"`

	TryFixTransparentShares bool `toml:"try_fix_transparent_shares"`

	LoadPostResources    bool `toml:"load_post_resources"`
	LoadProjectResources bool `toml:"load_project_resources"`
	LoadCommentResources bool `toml:"load_comment_resources"`

	ServerPort uint16 `toml:"server_port"`
}

// Load reads and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	var conf Config
	if err := toml.Unmarshal(raw, &conf); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}
	if conf.Database == "" {
		return nil, fmt.Errorf("%s: missing required key %q", path, "database")
	}
	if conf.RootDir == "" {
		return nil, fmt.Errorf("%s: missing required key %q", path, "root_dir")
	}
	if conf.RequestTimeoutSecs == 0 {
		conf.RequestTimeoutSecs = DefaultRequestTimeoutSecs
	}
	return &conf, nil
}
