// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

// Package tenant bundles a GCS uploader with an optional Slack notifier
// and orchestrates a single upload request (spec.md §4.7).
package tenant

import (
	"context"
	"io"

	"github.com/cloudgate/upload-gateway/internal/apperror"
)

// Uploader is the subset of gcsuploader.Uploader this package depends on.
type Uploader interface {
	Upload(ctx context.Context, name string, body io.Reader) (link string, err error)
}

// Notifier is the subset of slacknotifier.Notifier this package depends on.
type Notifier interface {
	PostLink(ctx context.Context, link, textPrefixOverride string) error
}

// Tenant is the configured {api_token, GCS target, optional Slack target}
// triple that a request is dispatched to once its token matches.
type Tenant struct {
	APIToken string
	Uploader Uploader
	Notifier Notifier // nil if this tenant has no Slack config
}

// Result is the success shape an upload produces.
type Result struct {
	Link      string
	SlackSent bool
}

// Upload runs the upload+mirror pipeline: a Slack request against a
// tenant with no notifier is rejected before the body is ever read, the
// GCS upload runs, and — only on success — the optional Slack fan-out
// runs.
func (t *Tenant) Upload(ctx context.Context, name string, body io.Reader, linkToSlack bool, slackPrefix string) (*Result, error) {
	if linkToSlack && t.Notifier == nil {
		return nil, apperror.BadRequest("Slack posting is not configured for this application")
	}

	link, err := t.Uploader.Upload(ctx, name, body)
	if err != nil {
		return nil, err
	}

	if linkToSlack {
		if err := t.Notifier.PostLink(ctx, link, slackPrefix); err != nil {
			return nil, err
		}
	}

	return &Result{Link: link, SlackSent: linkToSlack}, nil
}
