// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

package reqparse

import (
	"fmt"
	"net/url"
	"strconv"
)

// UploadQuery holds the optional recognized query parameters for
// POST /upload_file (spec.md §4.3, §6). Unknown keys are ignored.
type UploadQuery struct {
	Filename        string
	SlackSend       bool
	SlackTextPrefix string
}

// ParseUploadQuery parses rawQuery using the standard
// application/x-www-form-urlencoded grammar.
func ParseUploadQuery(rawQuery string) (*UploadQuery, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("error parsing query string: %w", err)
	}

	q := &UploadQuery{
		Filename:        values.Get("filename"),
		SlackTextPrefix: values.Get("slack_text_prefix"),
	}

	if raw := values.Get("slack_send"); raw != "" {
		send, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("error parsing slack_send query parameter %q: %w", raw, err)
		}
		q.SlackSend = send
	}

	return q, nil
}
