// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

package tokenprovider

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/cloudgate/upload-gateway/internal/apperror"
	"github.com/cloudgate/upload-gateway/internal/logging"
	"github.com/cloudgate/upload-gateway/internal/metrics"
	"github.com/cloudgate/upload-gateway/internal/serviceaccount"
)

// EagerProvider is the "simple" variant from spec.md §4.2: one mutex
// guards an optional cached token. GetToken synchronously refreshes
// whenever the cache is missing or within minLifeLeft of expiring, and
// retries up to maxRefreshAttempts times before giving up.
type EagerProvider struct {
	client  *http.Client
	sa      *serviceaccount.ServiceAccount
	scope   string
	metrics *metrics.Registry
	bucket  string

	mu    sync.Mutex
	token *cachedToken
}

func NewEagerProvider(client *http.Client, sa *serviceaccount.ServiceAccount, scope string, m *metrics.Registry, bucket string) *EagerProvider {
	return &EagerProvider{client: client, sa: sa, scope: scope, metrics: m, bucket: bucket}
}

func (p *EagerProvider) GetToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := logging.FromContext(ctx)

	for attempt := 0; attempt < maxRefreshAttempts; attempt++ {
		if p.token != nil && p.token.lifeLeft() >= minLifeLeft {
			return p.token.data.AccessToken, nil
		}

		p.metrics.TokenCacheMisses.WithLabelValues(p.bucket).Inc()
		data, acquireInstant, err := requestToken(ctx, p.client, p.sa, p.scope)
		if err != nil {
			l.WithError(err).Warnf("error refreshing oauth2 token (attempt %d/%d)", attempt+1, maxRefreshAttempts)
			continue
		}
		p.token = newCachedToken(data, acquireInstant)
		return p.token.data.AccessToken, nil
	}

	p.token = nil
	return "", apperror.UnauthorizedWrap(fmt.Errorf("exhausted %d attempts", maxRefreshAttempts),
		"failed to acquire an oauth2 access token for %s", p.sa.ClientEmail)
}
