// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

package tokenprovider

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cloudgate/upload-gateway/internal/apperror"
	"github.com/cloudgate/upload-gateway/internal/logging"
	"github.com/cloudgate/upload-gateway/internal/metrics"
	"github.com/cloudgate/upload-gateway/internal/serviceaccount"

	"github.com/sirupsen/logrus"
)

const (
	// freshThreshold: above this life left, the cached token is served
	// with no background work needed.
	freshThreshold = 60 * time.Second
	// staleThreshold: below freshThreshold but at/above this, the cached
	// token is still served, but a background refresh is kicked off if
	// one isn't already in flight.
	staleThreshold = 10 * time.Second
)

type refreshResult struct {
	data           tokenData
	acquireInstant time.Time
	err            error
}

// inFlightRefresh is the shared handle joined followers wait on. result is
// written exactly once by the refresher before done is closed, so the
// close's happens-before guarantee makes the read in every follower safe
// regardless of how many of them there are — unlike a result sent over a
// channel, which only the first receiver would get.
type inFlightRefresh struct {
	done   chan struct{}
	result refreshResult
}

// PreloadingProvider additionally pre-refreshes the token in the
// background before it expires, per spec.md §4.2's "preloading variant".
// Two mutexes guard disjoint state: cacheMu over the cached token slot,
// refreshMu over the in-flight background-refresh handle. Acquisition
// order when both are needed is always cacheMu first, refreshMu second,
// so the two can never deadlock against each other.
type PreloadingProvider struct {
	client  *http.Client
	sa      *serviceaccount.ServiceAccount
	scope   string
	metrics *metrics.Registry
	bucket  string

	cacheMu sync.Mutex
	token   *cachedToken

	refreshMu sync.Mutex
	inFlight  *inFlightRefresh
}

func NewPreloadingProvider(client *http.Client, sa *serviceaccount.ServiceAccount, scope string, m *metrics.Registry, bucket string) *PreloadingProvider {
	return &PreloadingProvider{client: client, sa: sa, scope: scope, metrics: m, bucket: bucket}
}

func (p *PreloadingProvider) recordCacheMiss() {
	p.metrics.TokenCacheMisses.WithLabelValues(p.bucket).Inc()
}

func (p *PreloadingProvider) GetToken(ctx context.Context) (string, error) {
	l := logging.FromContext(ctx)

	for attempt := 0; attempt < maxRefreshAttempts; attempt++ {
		p.cacheMu.Lock()
		token := p.token
		p.cacheMu.Unlock()

		switch {
		case token == nil:
			// No cache at all: join an in-flight refresh or start one,
			// same single-flight path as an about-to-expire token.
			if err := p.refreshSynchronized(ctx, l, attempt, token); err != nil {
				continue
			}
			continue

		case token.lifeLeft() >= freshThreshold:
			// Plenty of life left: serve as-is, no background work.
			return token.data.AccessToken, nil

		case token.lifeLeft() >= staleThreshold:
			// Getting stale: serve the current token, but make sure a
			// background refresh is in flight so the next call sees fresh
			// data.
			p.ensureBackgroundRefresh(l)
			return token.data.AccessToken, nil

		default:
			// About to expire: join the in-flight refresh if there is
			// one, else refresh synchronously.
			if err := p.refreshSynchronized(ctx, l, attempt, token); err != nil {
				continue
			}
			continue
		}
	}

	p.cacheMu.Lock()
	p.token = nil
	p.cacheMu.Unlock()
	return "", apperror.UnauthorizedWrap(fmt.Errorf("exhausted %d attempts", maxRefreshAttempts),
		"failed to acquire an oauth2 access token for %s", p.sa.ClientEmail)
}

// refreshSynchronized joins an in-flight background/foreground refresh if
// one exists, else becomes the single refresher itself. Every caller that
// observes a missing or about-to-expire cache funnels through here, so at
// most one token-endpoint request is issued across however many goroutines
// call GetToken concurrently.
func (p *PreloadingProvider) refreshSynchronized(ctx context.Context, l logrus.FieldLogger, attempt int, observed *cachedToken) error {
	// refreshMu is taken while cacheMu is still held. A refresher publishes
	// before it clears inFlight, so either the cache has already moved on
	// from what the caller observed, or that refresh is still joinable.
	p.cacheMu.Lock()
	current := p.token
	p.refreshMu.Lock()
	p.cacheMu.Unlock()
	if current != observed {
		p.refreshMu.Unlock()
		return nil
	}
	if inFlight := p.inFlight; inFlight != nil {
		p.refreshMu.Unlock()
		<-inFlight.done
		result := inFlight.result
		if result.err != nil {
			l.WithError(result.err).Warnf("error joining in-flight oauth2 token refresh (attempt %d/%d)", attempt+1, maxRefreshAttempts)
			return result.err
		}
		p.publish(result.data, result.acquireInstant)
		return nil
	}

	inFlight := &inFlightRefresh{done: make(chan struct{})}
	p.inFlight = inFlight
	p.refreshMu.Unlock()
	p.recordCacheMiss()

	data, acquireInstant, err := requestToken(ctx, p.client, p.sa, p.scope)
	if err == nil {
		p.publish(data, acquireInstant)
	}

	p.refreshMu.Lock()
	p.inFlight = nil
	p.refreshMu.Unlock()

	inFlight.result = refreshResult{data: data, acquireInstant: acquireInstant, err: err}
	close(inFlight.done)

	if err != nil {
		l.WithError(err).Warnf("error refreshing oauth2 token (attempt %d/%d)", attempt+1, maxRefreshAttempts)
		return err
	}
	return nil
}

func (p *PreloadingProvider) publish(data tokenData, acquireInstant time.Time) {
	p.cacheMu.Lock()
	p.token = newCachedToken(data, acquireInstant)
	p.cacheMu.Unlock()
}

// ensureBackgroundRefresh spawns a single background refresh goroutine if
// none is currently in flight for this provider.
func (p *PreloadingProvider) ensureBackgroundRefresh(l logrus.FieldLogger) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	if p.inFlight != nil {
		return
	}

	inFlight := &inFlightRefresh{done: make(chan struct{})}
	p.inFlight = inFlight
	p.recordCacheMiss()

	// Detach from the caller's context: a background refresh must outlive
	// the request that happened to trigger it.
	bgCtx := context.Background()

	go func() {
		data, acquireInstant, err := requestToken(bgCtx, p.client, p.sa, p.scope)
		if err == nil {
			p.publish(data, acquireInstant)
		} else {
			l.WithError(err).Warn("error in background oauth2 token pre-refresh")
		}

		p.refreshMu.Lock()
		p.inFlight = nil
		p.refreshMu.Unlock()

		inFlight.result = refreshResult{data: data, acquireInstant: acquireInstant, err: err}
		close(inFlight.done)
	}()
}
