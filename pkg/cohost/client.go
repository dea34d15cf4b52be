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

package cohost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// UserAgent is sent on every request, identifying the archiver.
	UserAgent = "cohost-dl/2.0 (cohosted)"

	// DefaultBase is the origin of the source site.
	DefaultBase = "https://cohost.org"

	maxAttempts = 10
)

// ErrNotFound reports an HTTP 404 or a missing entity. Use
// errors.Is(err, ErrNotFound) to test for it.
var ErrNotFound = errors.New("not found")

// A StatusError is returned for non-2xx HTTP responses. It matches
// ErrNotFound under errors.Is when the status is 404.
type StatusError struct {
	URL  string
	Code int
	Body string // truncated response body
}

func (e *StatusError) Error() string {
	if e.Code == http.StatusNotFound {
		return fmt.Sprintf("%s not found: %s", e.URL, e.Body)
	}
	return fmt.Sprintf("%s %d: %s", e.URL, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// unrecoverable reports whether a status code should not be retried.
func unrecoverable(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound,
		http.StatusMethodNotAllowed, http.StatusGone:
		return true
	}
	return false
}

// retryDelay is the politeness ladder: 1.8^k − 1 seconds before
// attempt k+1.
func retryDelay(k int) time.Duration {
	return time.Duration((math.Pow(1.8, float64(k)) - 1) * float64(time.Second))
}

// Client is a thin semantic wrapper over HTTP for the source site:
// authenticated trpc queries, HTML pages with embedded JSON state, and
// opaque file downloads.
type Client struct {
	// Base is the site origin. It is a variable for tests only.
	Base string

	cookie  string
	hc      *http.Client
	limiter *rate.Limiter
}

// NewClient returns a client using the given session cookie and
// per-request timeout. The cookie is only sent to the site origin.
func NewClient(cookie string, timeout time.Duration) *Client {
	return &Client{
		Base:   DefaultBase,
		cookie: cookie,
		hc: &http.Client{
			Timeout: timeout,
		},
		// Shared politeness pacing across every outbound request.
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
	}
}

// SetRateLimit replaces the politeness limiter, for callers (and
// tests) that know better.
func (c *Client) SetRateLimit(every time.Duration, burst int) {
	c.limiter = rate.NewLimiter(rate.Every(every), burst)
}

func (c *Client) baseHost() string {
	u, err := url.Parse(c.Base)
	if err != nil {
		return "cohost.org"
	}
	return u.Host
}

// verboseLog is set by the cmd layer to enable per-request traces.
var verboseLog bool

// SetVerbose enables trace logging of every outbound request.
func SetVerbose(v bool) { verboseLog = v }

// get performs one GET with the cookie attached for same-origin
// requests, returning the response without status handling.
func (c *Client) get(ctx context.Context, rawurl string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if verboseLog {
		log.Printf("GET %s", rawurl)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", rawurl, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	if u, err := url.Parse(rawurl); err == nil && u.Host == c.baseHost() && c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	return c.hc.Do(req)
}

// getRetry performs a GET with the retry ladder: transport errors and
// retryable statuses are attempted up to 10 times. Unrecoverable
// statuses (401, 403, 404, 405, 410) fail immediately.
func (c *Client) getRetry(ctx context.Context, rawurl string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if verboseLog {
				log.Printf("retrying GET %s (attempt %d)", rawurl, attempt+1)
			}
			select {
			case <-time.After(retryDelay(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		res, err := c.get(ctx, rawurl)
		if err != nil {
			lastErr = fmt.Errorf("GET %s: %w", rawurl, err)
			continue
		}
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return res, nil
		}
		body, _ := io.ReadAll(io.LimitReader(res.Body, 500))
		res.Body.Close()
		serr := &StatusError{URL: rawurl, Code: res.StatusCode, Body: string(body)}
		if unrecoverable(res.StatusCode) {
			return nil, serr
		}
		lastErr = serr
	}
	return nil, lastErr
}

// GetText fetches a URL and returns the response body as a string.
func (c *Client) GetText(ctx context.Context, rawurl string) (string, error) {
	res, err := c.getRetry(ctx, rawurl)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", rawurl, err)
	}
	return string(body), nil
}

// GetJSON fetches a URL and decodes the response body into out. Decode
// failures include a text excerpt around the error position.
func (c *Client) GetJSON(ctx context.Context, rawurl string, out interface{}) error {
	text, err := c.GetText(ctx, rawurl)
	if err != nil {
		return err
	}
	return decodeJSON(text, out)
}

// decodeJSON decodes text into out, attaching a ±300-byte excerpt
// around the source position on failure.
func decodeJSON(text string, out interface{}) error {
	err := json.Unmarshal([]byte(text), out)
	if err == nil {
		return nil
	}
	var offset int64 = -1
	var synErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &synErr) {
		offset = synErr.Offset
	} else if errors.As(err, &typeErr) {
		offset = typeErr.Offset
	}
	if offset < 0 {
		return err
	}
	return fmt.Errorf("%w; excerpt: %s", err, excerptAround(text, int(offset), 300))
}

// excerptAround returns the slice of text within radius bytes of pos,
// adjusted outward to UTF-8 boundaries.
func excerptAround(text string, pos, radius int) string {
	start := pos - radius
	if start < 0 {
		start = 0
	}
	end := pos + radius
	if end > len(text) {
		end = len(text)
	}
	for start > 0 && start < len(text) && !utf8BoundaryAt(text, start) {
		start--
	}
	for end < len(text) && !utf8BoundaryAt(text, end) {
		end++
	}
	return text[start:end]
}

func utf8BoundaryAt(s string, i int) bool {
	return i == 0 || i == len(s) || (s[i]&0xC0) != 0x80
}

// trpcEnvelope is the wrapper around every trpc query result.
type trpcEnvelope struct {
	Result *struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
	Error *struct {
		Code    int64           `json:"code"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	} `json:"error"`
}

// TRPC runs a trpc query against the site API, serializing input (when
// non-nil) into the input query parameter, and decodes the result
// payload into out.
func (c *Client) TRPC(ctx context.Context, query string, input interface{}, out interface{}) error {
	u := c.Base + "/api/v1/trpc/" + query
	if input != nil {
		enc, err := json.Marshal(input)
		if err != nil {
			return err
		}
		u += "?input=" + url.QueryEscape(string(enc))
	}

	text, err := c.GetText(ctx, u)
	if err != nil {
		return err
	}
	var env trpcEnvelope
	if err := decodeJSON(text, &env); err != nil {
		return fmt.Errorf("trpc %s: %w", query, err)
	}
	if env.Error != nil {
		return fmt.Errorf("trpc error %d / %s: %s", env.Error.Code, env.Error.Data, env.Error.Message)
	}
	if env.Result == nil {
		return fmt.Errorf("trpc %s: response has neither result nor error", query)
	}
	if err := json.Unmarshal(env.Result.Data, out); err != nil {
		return fmt.Errorf("trpc %s: %w", query, err)
	}
	return nil
}

// Download fetches an opaque file, returning the open response. The
// caller owns the body. The retry ladder applies; unrecoverable
// statuses fail immediately with a StatusError.
func (c *Client) Download(ctx context.Context, rawurl string) (*http.Response, error) {
	return c.getRetry(ctx, rawurl)
}

// resolve joins a site path like /rc/liked-posts onto the base origin.
func (c *Client) resolve(p string) string {
	return strings.TrimSuffix(c.Base, "/") + p
}
