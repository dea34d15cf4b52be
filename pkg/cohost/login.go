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
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Login performs the password login flow and returns the session
// cookie plus whether a 2FA code is still required. The credential
// derivation matches the cohost web client: PBKDF2-HMAC-SHA384 over
// the password with the server-provided salt.
func Login(ctx context.Context, base, email, password string) (cookie string, needsOTP bool, err error) {
	hc := &http.Client{}

	cookie, err = fetchSessionCookie(ctx, hc, base)
	if err != nil {
		return "", false, err
	}

	salt, err := fetchSalt(ctx, hc, base, cookie, email)
	if err != nil {
		return "", false, fmt.Errorf("getting salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, 200000, 128, sha512.New384)
	clientHash := base64.StdEncoding.EncodeToString(key)

	type loginInput struct {
		ClientHash string `json:"clientHash"`
		Email      string `json:"email"`
	}
	var loginResult struct {
		State string `json:"state"` // "need-otp" or "done"
	}
	err = trpcPost(ctx, hc, base, cookie, "login.login", loginInput{ClientHash: clientHash, Email: email}, &loginResult)
	if err != nil {
		return "", false, fmt.Errorf("logging in: %w", err)
	}

	return cookie, loginResult.State == "need-otp", nil
}

// LoginOTP completes a login that required a 2FA code.
func LoginOTP(ctx context.Context, base, cookie, code string) error {
	hc := &http.Client{}
	var result struct {
		Reset bool `json:"reset"`
	}
	err := trpcPost(ctx, hc, base, cookie, "login.send2FAToken", map[string]string{"token": code}, &result)
	if err != nil {
		return fmt.Errorf("error in 2FA: %w", err)
	}
	if result.Reset {
		return fmt.Errorf("unexpected response: reset")
	}
	return nil
}

// fetchSessionCookie gets an anonymous session cookie from the login
// page's Set-Cookie header.
func fetchSessionCookie(ctx context.Context, hc *http.Client, base string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", base+"/rc/login", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", UserAgent)
	res, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("could not get login page: status %d", res.StatusCode)
	}
	header := res.Header.Get("Set-Cookie")
	if header == "" {
		return "", fmt.Errorf("no set-cookie header")
	}
	cookie, _, _ := strings.Cut(header, ";")
	if cookie == "" {
		return "", fmt.Errorf("bad cookie header")
	}
	return cookie, nil
}

func fetchSalt(ctx context.Context, hc *http.Client, base, cookie, email string) ([]byte, error) {
	input, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "GET", base+"/api/v1/trpc/login.getSalt?input="+url.QueryEscape(string(input)), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Cookie", cookie)
	res, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected: %d\n%s", res.StatusCode, body)
	}
	var env trpcEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.Error != nil {
		return nil, fmt.Errorf("%d: %s", env.Error.Code, env.Error.Message)
	}
	if env.Result == nil {
		return nil, fmt.Errorf("response has neither result nor error")
	}
	var salt struct {
		Salt string `json:"salt"`
	}
	if err := json.Unmarshal(env.Result.Data, &salt); err != nil {
		return nil, err
	}
	return base64.RawStdEncoding.DecodeString(salt.Salt)
}

// trpcPost performs a POST trpc mutation with a JSON body.
func trpcPost(ctx context.Context, hc *http.Client, base, cookie, id string, input, out interface{}) error {
	body, err := json.Marshal(input)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", base+"/api/v1/trpc/"+id, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Cookie", cookie)
	req.Header.Set("Content-Type", "application/json")
	res, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("unexpected: %d\n%s", res.StatusCode, resBody)
	}
	var env trpcEnvelope
	if err := json.Unmarshal(resBody, &env); err != nil {
		return err
	}
	if env.Error != nil {
		return fmt.Errorf("%d: %s", env.Error.Code, env.Error.Message)
	}
	if env.Result == nil {
		return fmt.Errorf("response has neither result nor error")
	}
	return json.Unmarshal(env.Result.Data, out)
}
