// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

// Package bodytransform picks the GCS object name and optionally wraps the
// request body in a streaming gzip encoder (spec.md §4.4).
package bodytransform

import (
	"compress/gzip"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Result is the outcome of transforming an upload request body.
type Result struct {
	Name string
	Body io.Reader
}

// Choose picks the final object name and body stream for an upload.
//
// If explicitFilename is non-empty, the caller is trusted to have picked
// the right name and encoding: the body passes through untouched. Else the
// name and compression are derived from contentType per the table in
// spec.md §4.4, and compression — when applicable — streams the body
// through gzip rather than buffering it.
func Choose(explicitFilename, contentType string, body io.Reader) Result {
	if explicitFilename != "" {
		return Result{Name: explicitFilename, Body: body}
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	topType, _, _ := strings.Cut(contentType, "/")

	switch {
	case topType == "text":
		return gzipResult(id+".txt.gz", body)
	case contentType == "application/json":
		return gzipResult(id+".json.gz", body)
	case contentType == "application/zip":
		return Result{Name: id + ".zip", Body: body}
	case contentType == "application/gz":
		return Result{Name: id + ".gz", Body: body}
	default:
		// other application/* and all other top-types, or missing
		// content-type.
		return gzipResult(id+".bin.gz", body)
	}
}

// gzipResult wraps an io.Reader with a streaming gzip encoder: it is a
// pipe fed by a goroutine that copies from the source into a gzip.Writer,
// so the body is never buffered in full and back-pressure from the
// downstream reader propagates all the way to the source.
func gzipResult(name string, src io.Reader) Result {
	pr, pw := io.Pipe()
	gzw := gzip.NewWriter(pw)

	go func() {
		_, err := io.Copy(gzw, src)
		if err != nil {
			gzw.Close()
			pw.CloseWithError(err)
			return
		}
		if err := gzw.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	return Result{Name: name, Body: pr}
}
