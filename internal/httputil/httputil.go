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

// Package httputil contains HTTP utility code shared by the archive
// server handlers.
package httputil // import "cohosted.org/internal/httputil"

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// IsGet reports whether r.Method is a GET or HEAD request.
func IsGet(r *http.Request) bool {
	return r.Method == "GET" || r.Method == "HEAD"
}

// ReturnJSON writes data as a JSON response with status 200.
func ReturnJSON(rw http.ResponseWriter, data interface{}) {
	ReturnJSONCode(rw, 200, data)
}

// ReturnJSONCode writes data as a JSON response with the given status.
func ReturnJSONCode(rw http.ResponseWriter, code int, data interface{}) {
	js, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		http.Error(rw, "JSON serialization error", http.StatusInternalServerError)
		log.Printf("httputil: JSON serialization error: %v", err)
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.Header().Set("Content-Length", fmt.Sprint(len(js)+1))
	rw.WriteHeader(code)
	rw.Write(js)
	rw.Write([]byte("\n"))
}

// ServeJSONError writes err as a JSON error response.
func ServeJSONError(rw http.ResponseWriter, code int, err error) {
	ReturnJSONCode(rw, code, map[string]string{"message": err.Error()})
}
