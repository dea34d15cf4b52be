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

package magic

import "testing"

func TestExtensionForContentType(t *testing.T) {
	tests := []struct {
		ct   string
		want string
		ok   bool
	}{
		{"image/jpeg", "jpeg", true},
		{"image/jpeg; charset=binary", "jpeg", true},
		{"image/svg", "svg", true},
		{"image/svg+xml", "svg", true},
		{"audio/vnd.wave", "wav", true},
		{"audio/mp4", "mp4", true},
		{"application/javascript", "js", true},
		{"text/json", "json", true},
		{"font/woff2", "woff2", true},
		{"application/x-mystery", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtensionForContentType(tt.ct)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExtensionForContentType(%q) = %q, %v; want %q, %v", tt.ct, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHasKnownExtension(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"photo.png", true},
		{"photo.PNG", true},
		{"bundle.js.map", true},
		{"archive.tar.gz", false},
		{"noext", false},
		{"dir.d/noext", false},
		{"track.opus", true},
	}
	for _, tt := range tests {
		if got := HasKnownExtension(tt.name); got != tt.want {
			t.Errorf("HasKnownExtension(%q) = %v; want %v", tt.name, got, tt.want)
		}
	}
}

func TestContentTypeForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a/b/c.jpeg", "image/jpeg"},
		{"style.css", "text/css; charset=utf-8"},
		{"podcast.mp3", "audio/mp3"},
		{"mystery.bin", "application/octet-stream"},
		{"noext", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := ContentTypeForPath(tt.path); got != tt.want {
			t.Errorf("ContentTypeForPath(%q) = %q; want %q", tt.path, got, tt.want)
		}
	}
}
