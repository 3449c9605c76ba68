// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

// Package httpclient builds the single, shared HTTP client used for every
// outbound call this gateway makes (Google's token endpoint, the GCS JSON
// API, and — indirectly, via slack-go — the Slack Web API).
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// New returns an HTTPS client shared across every tenant, with HTTP/2 and
// connection reuse against Google's and Slack's endpoints.
func New() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       180 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport}
}
