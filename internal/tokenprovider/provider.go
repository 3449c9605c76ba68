// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

// Package tokenprovider implements the OAuth2 JWT-bearer token exchange
// against Google's token endpoint (spec.md §4.2), with two interchangeable
// caching strategies.
package tokenprovider

import (
	"context"
	"time"
)

// Provider exposes the single operation the GCS uploader needs: an
// unexpired bearer access token, with at most one in-flight token request
// per provider instance at any time.
type Provider interface {
	GetToken(ctx context.Context) (string, error)
}

// Scope is the fixed OAuth2 scope requested for every tenant's uploader.
const Scope = "https://www.googleapis.com/auth/devstorage.read_write"

// requestedValidity is the lifetime requested from Google on every
// assertion; expires_in in the response is authoritative.
const requestedValidity = 60 * time.Minute

// maxRefreshAttempts bounds the retry loop in both provider variants.
const maxRefreshAttempts = 10

// minLifeLeft is the cache-hit threshold shared by the eager variant: below
// this, a cached token is treated as needing refresh.
const minLifeLeft = 30 * time.Second

// tokenData is the shape returned by Google's token endpoint.
type tokenData struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// cachedToken pairs a tokenData with the monotonic instant it expires at.
// It is replaced wholesale on refresh, never mutated in place.
type cachedToken struct {
	data          tokenData
	expireInstant time.Time
}

func newCachedToken(data tokenData, acquireInstant time.Time) *cachedToken {
	return &cachedToken{
		data:          data,
		expireInstant: acquireInstant.Add(time.Duration(data.ExpiresIn) * time.Second),
	}
}

func (c *cachedToken) lifeLeft() time.Duration {
	return time.Until(c.expireInstant)
}
