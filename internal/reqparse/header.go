// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

// Package reqparse extracts typed values from HTTP headers and query
// strings (spec.md §4.3).
package reqparse

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"
)

// ContentLength parses the Content-Length header. A missing header yields
// (0, false, nil); a non-numeric value is an error.
func ContentLength(h http.Header) (int64, bool, error) {
	v := h.Get("Content-Length")
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("error parsing Content-Length header %q: %w", v, err)
	}
	return n, true, nil
}

// ContentType parses the Content-Type header's media type, ignoring
// parameters. A missing header yields ("", false, nil).
func ContentType(h http.Header) (string, bool, error) {
	v := h.Get("Content-Type")
	if v == "" {
		return "", false, nil
	}
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return "", false, fmt.Errorf("error parsing Content-Type header %q: %w", v, err)
	}
	return mediaType, true, nil
}

// StrHeader returns the header's value if present. HTTP headers are
// already decoded into Go strings by net/http, so there is no separate
// non-UTF-8 failure mode to model here; a header containing malformed
// bytes would have failed request parsing itself.
func StrHeader(h http.Header, key string) (string, bool) {
	v := h.Get(key)
	if v == "" {
		return "", false
	}
	return v, true
}

// RequiredStrHeader returns the header's value, or an error if missing.
// Callers decide what HTTP status a missing header maps to.
func RequiredStrHeader(h http.Header, key string) (string, error) {
	v, ok := StrHeader(h, key)
	if !ok {
		return "", fmt.Errorf("%s header is missing", key)
	}
	return v, nil
}
