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

// Package magic maps between file extensions and MIME types for the
// resource files kept in a cohost archive.
package magic // import "cohosted.org/internal/magic"

import (
	"path"
	"strings"
)

// An extEntry associates a file extension with the MIME types a server
// may have reported for files of that kind. Some extensions (".map")
// have no registered type but are still considered known so that path
// derivation leaves them alone.
type extEntry struct {
	ext   string
	types []string
}

// knownExtensions lists every file extension the archive recognizes.
// The first extension matching a content type wins, so the preferred
// spelling for a type ("jpeg", not "jfif") comes first.
var knownExtensions = []extEntry{
	// image formats
	{"apng", []string{"image/apng"}},
	{"avif", []string{"image/avif"}},
	{"bmp", []string{"image/bmp"}},
	{"gif", []string{"image/gif"}},
	{"heic", []string{"image/heic"}},
	{"heif", []string{"image/heif"}},
	{"ico", []string{"image/x-icon"}},
	{"jpeg", []string{"image/jpeg"}},
	{"jpg", []string{"image/jpeg"}},
	{"jfif", []string{"image/jpeg"}},
	{"jxl", []string{"image/jxl"}},
	{"png", []string{"image/png"}},
	{"svg", []string{"image/svg+xml", "image/svg"}},
	{"tif", []string{"image/tiff"}},
	{"tiff", []string{"image/tiff"}},
	{"webp", []string{"image/webp"}},
	// av formats
	{"flac", []string{"audio/flac"}},
	{"ogg", []string{"audio/ogg", "video/ogg", "application/ogg"}},
	{"opus", []string{"audio/opus"}},
	{"mp3", []string{"audio/mpeg"}},
	{"mp4", []string{"audio/mp4", "video/mp4"}},
	{"m4a", []string{"audio/mp4", "video/mp4"}},
	{"wav", []string{"audio/wav", "audio/vnd.wave", "audio/wave", "audio/x-wav"}},
	// other resources
	{"css", []string{"text/css"}},
	{"js", []string{"application/javascript", "text/javascript"}},
	{"mjs", []string{"application/javascript", "text/javascript"}},
	{"json", []string{"application/json", "text/json"}},
	{"map", nil},
	{"woff", []string{"font/woff"}},
	{"woff2", []string{"font/woff2"}},
}

// ExtensionForContentType returns the preferred file extension for the
// given Content-Type header value, ignoring any parameters after ";".
func ExtensionForContentType(contentType string) (ext string, ok bool) {
	base, _, _ := strings.Cut(contentType, ";")
	base = strings.TrimSpace(base)
	if base == "" {
		return "", false
	}
	for _, e := range knownExtensions {
		for _, t := range e.types {
			if t == base {
				return e.ext, true
			}
		}
	}
	return "", false
}

// HasKnownExtension reports whether the final path element of name ends
// in a recognized file extension.
func HasKnownExtension(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(path.Base(name))), ".")
	if ext == "" {
		return false
	}
	for _, e := range knownExtensions {
		if e.ext == ext {
			return true
		}
	}
	return false
}

// servedTypes maps extensions to the Content-Type header used when
// serving archived files back out. Text formats carry an explicit
// charset, matching what cohost itself served.
var servedTypes = map[string]string{
	"avif":  "image/avif",
	"css":   "text/css; charset=utf-8",
	"gif":   "image/gif",
	"html":  "text/html; charset=utf-8",
	"jpg":   "image/jpeg",
	"jpeg":  "image/jpeg",
	"js":    "application/javascript; charset=utf-8",
	"jxl":   "image/jxl",
	"m4a":   "audio/mp4",
	"mp3":   "audio/mp3",
	"png":   "image/png",
	"svg":   "image/svg+xml",
	"wav":   "audio/wav",
	"webp":  "image/webp",
	"woff":  "font/woff",
	"woff2": "font/woff2",
}

// ContentTypeForPath returns the Content-Type to serve for a file path,
// chosen by extension, or application/octet-stream if unknown.
func ContentTypeForPath(p string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(path.Base(p))), ".")
	if t, ok := servedTypes[ext]; ok {
		return t
	}
	return "application/octet-stream"
}
