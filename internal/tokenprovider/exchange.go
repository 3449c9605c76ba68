// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

package tokenprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudgate/upload-gateway/internal/jwtsigner"
	"github.com/cloudgate/upload-gateway/internal/serviceaccount"
)

const grantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// requestToken signs a fresh assertion and exchanges it for an access
// token at sa.TokenURI, per spec.md §4.2's wire contract: POST, form body
// with exactly grant_type and assertion, Accept: application/json.
func requestToken(ctx context.Context, client *http.Client, sa *serviceaccount.ServiceAccount, scope string) (tokenData, time.Time, error) {
	acquireInstant := time.Now()

	assertion, err := jwtsigner.Sign(sa, scope, requestedValidity)
	if err != nil {
		return tokenData{}, time.Time{}, fmt.Errorf("error signing jwt assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {grantType},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sa.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenData{}, time.Time{}, fmt.Errorf("error building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return tokenData{}, time.Time{}, fmt.Errorf("error performing token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenData{}, time.Time{}, fmt.Errorf("error reading token response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return tokenData{}, time.Time{}, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return tokenData{}, time.Time{}, fmt.Errorf("token endpoint returned unexpected content-type %q", ct)
		}
	}

	var data tokenData
	if err := json.Unmarshal(body, &data); err != nil {
		return tokenData{}, time.Time{}, fmt.Errorf("error decoding token response: %w", err)
	}
	if data.AccessToken == "" {
		return tokenData{}, time.Time{}, fmt.Errorf("token endpoint returned an empty access_token")
	}

	return data, acquireInstant, nil
}
