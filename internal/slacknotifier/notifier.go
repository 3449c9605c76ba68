// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

// Package slacknotifier mirrors an upload's download link into Slack,
// optionally posting a QR-code image in-thread (spec.md §4.6).
package slacknotifier

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/cloudgate/upload-gateway/internal/apperror"

	"github.com/skip2/go-qrcode"
	"github.com/slack-go/slack"
	"golang.org/x/sync/errgroup"
)

const qrCodeSize = 256

const defaultTextPrefix = "Download file url: "

// Notifier posts a tenant's upload links into its configured Slack
// channels.
type Notifier struct {
	client            *slack.Client
	targets           []string
	qrCode            bool
	defaultTextBefore string
}

// Option customizes a Notifier's underlying slack.Client at construction.
type Option func(*[]slack.Option)

// WithAPIURL overrides the Slack API base URL, for pointing a Notifier at
// a test double instead of Slack's real API.
func WithAPIURL(apiURL string) Option {
	return func(opts *[]slack.Option) {
		*opts = append(*opts, slack.OptionAPIURL(apiURL))
	}
}

func New(token string, targets []string, qrCode bool, defaultTextBefore string, opts ...Option) *Notifier {
	var slackOpts []slack.Option
	for _, opt := range opts {
		opt(&slackOpts)
	}
	return &Notifier{
		client:            slack.New(token, slackOpts...),
		targets:           targets,
		qrCode:            qrCode,
		defaultTextBefore: defaultTextBefore,
	}
}

// PostLink composes the link message and fans it out, concurrently and
// fail-fast, to every configured target channel. If qrCode is configured,
// every channel that successfully received the message also gets a
// threaded QR-code PNG of the link.
func (n *Notifier) PostLink(ctx context.Context, link, textPrefixOverride string) error {
	prefix := n.defaultTextBefore
	if prefix == "" {
		prefix = defaultTextPrefix
	}
	if textPrefixOverride != "" {
		prefix = textPrefixOverride
	}
	text := fmt.Sprintf("%s<%s|link>", prefix, link)

	type posted struct {
		channel string
		ts      string
	}

	group, groupCtx := errgroup.WithContext(ctx)
	results := make([]posted, len(n.targets))
	for i, channel := range n.targets {
		i, channel := i, channel
		group.Go(func() error {
			_, ts, err := n.client.PostMessageContext(groupCtx, channel, slack.MsgOptionText(text, false))
			if err != nil {
				return fmt.Errorf("error posting slack message to channel %s: %w", channel, err)
			}
			results[i] = posted{channel: channel, ts: ts}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return apperror.UpstreamErrorWrap(err, "slack error")
	}

	if !n.qrCode {
		return nil
	}

	qrPNG, err := encodeQRCode(link)
	if err != nil {
		return apperror.UpstreamErrorWrap(err, "slack error: error generating qr code")
	}

	qrGroup, qrGroupCtx := errgroup.WithContext(ctx)
	for _, p := range results {
		p := p
		qrGroup.Go(func() error {
			_, err := n.client.UploadFileV2Context(qrGroupCtx, slack.UploadFileV2Parameters{
				Reader:          bytes.NewReader(qrPNG),
				Filename:        "qr.png",
				FileSize:        len(qrPNG),
				Channel:         p.channel,
				ThreadTimestamp: p.ts,
			})
			if err != nil {
				return fmt.Errorf("error posting qr code to channel %s: %w", p.channel, err)
			}
			return nil
		})
	}
	if err := qrGroup.Wait(); err != nil {
		return apperror.UpstreamErrorWrap(err, "slack error")
	}

	return nil
}

// encodeQRCode renders link as a QR code and PNG-encodes it as true 8-bit
// grayscale (luma8), not go-qrcode's default paletted image, matching the
// wire format spec.md §4.6 requires.
func encodeQRCode(link string) ([]byte, error) {
	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return nil, err
	}

	src := qr.Image(qrCodeSize)
	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(src.At(x, y)))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
