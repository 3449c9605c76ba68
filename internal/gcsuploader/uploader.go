// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

// Package gcsuploader streams an upload's body to the GCS JSON API's
// resumable-media upload endpoint (spec.md §4.5).
package gcsuploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"unicode/utf8"

	"github.com/cloudgate/upload-gateway/internal/apperror"
	"github.com/cloudgate/upload-gateway/internal/metrics"
	"github.com/cloudgate/upload-gateway/internal/tokenprovider"
)

const userAgent = "upload-gateway/1.0"

const fieldsParam = "id,name,bucket,selfLink,md5Hash,mediaLink"

const defaultBaseURL = "https://storage.googleapis.com"

// Uploader streams a named body to a single tenant's GCS bucket.
type Uploader struct {
	client  *http.Client
	tokens  tokenprovider.Provider
	bucket  string
	metrics *metrics.Registry
	baseURL string
}

// Option customizes an Uploader at construction.
type Option func(*Uploader)

// WithBaseURL overrides the GCS JSON API's scheme and host, for pointing an
// Uploader at a test double instead of the real storage.googleapis.com.
func WithBaseURL(baseURL string) Option {
	return func(u *Uploader) { u.baseURL = baseURL }
}

func New(client *http.Client, tokens tokenprovider.Provider, bucket string, m *metrics.Registry, opts ...Option) *Uploader {
	u := &Uploader{client: client, tokens: tokens, bucket: bucket, metrics: m, baseURL: defaultBaseURL}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// uploadResult is the subset of the GCS object resource this gateway
// needs; every other field in the JSON API response is ignored.
type uploadResult struct {
	Name   string `json:"name"`
	Bucket string `json:"bucket"`
}

// countingReader tallies every byte read from it into an atomic counter,
// post-compression, as bytes leave the body pipeline toward the socket.
type countingReader struct {
	src io.Reader
	n   *int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.src.Read(p)
	if n > 0 {
		atomic.AddInt64(c.n, int64(n))
	}
	return n, err
}

// Upload streams body to GCS under the given object name and returns the
// deterministic download link.
func (u *Uploader) Upload(ctx context.Context, name string, body io.Reader) (link string, err error) {
	var byteCount int64
	counted := &countingReader{src: body, n: &byteCount}

	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		u.metrics.UploadSizeBytes.WithLabelValues(outcome).Observe(float64(atomic.LoadInt64(&byteCount)))
	}()

	token, err := u.tokens.GetToken(ctx)
	if err != nil {
		return "", err
	}

	uploadURL := fmt.Sprintf(
		"%s/upload/storage/v1/b/%s/o?name=%s&uploadType=media&fields=%s",
		u.baseURL, url.QueryEscape(u.bucket), url.QueryEscape(name), url.QueryEscape(fieldsParam),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, counted)
	if err != nil {
		return "", apperror.InternalErrorWrap(err, "error building gcs upload request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", apperror.UpstreamErrorWrap(err, "error performing gcs upload request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperror.UpstreamErrorWrap(err, "error reading gcs upload response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apperror.UpstreamError("gcs upload failed with status %d: %s", resp.StatusCode, minifyIfUTF8(respBody))
	}

	var result uploadResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", apperror.UpstreamErrorWrap(err, "error decoding gcs upload response")
	}

	return fmt.Sprintf("https://storage.cloud.google.com/%s/%s", result.Bucket, result.Name), nil
}

// minifyIfUTF8 collapses whitespace in b for a log-friendly single-line
// error excerpt, if b is valid UTF-8. Otherwise a placeholder is returned.
func minifyIfUTF8(b []byte) string {
	if !utf8.Valid(b) {
		return "<non-utf8 response body>"
	}

	var buf bytes.Buffer
	inSpace := false
	for _, r := range string(b) {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			if !inSpace && buf.Len() > 0 {
				buf.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		buf.WriteRune(r)
	}
	return buf.String()
}
