// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

package tokenprovider_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudgate/upload-gateway/internal/metrics"
	"github.com/cloudgate/upload-gateway/internal/serviceaccount"
	"github.com/cloudgate/upload-gateway/internal/tokenprovider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenEndpoint is a stand-in for Google's token endpoint: it counts
// requests and returns a fresh, numbered access_token with the configured
// expires_in on every call, or a fixed error response when failCount > 0.
type tokenEndpoint struct {
	server    *httptest.Server
	hits      int64
	expiresIn int64

	mu        sync.Mutex
	failCount int
}

func newTokenEndpoint(t *testing.T, expiresIn int64) *tokenEndpoint {
	t.Helper()
	e := &tokenEndpoint{expiresIn: expiresIn}
	e.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&e.hits, 1)

		e.mu.Lock()
		shouldFail := e.failCount > 0
		if shouldFail {
			e.failCount--
		}
		e.mu.Unlock()

		if shouldFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("token-%d", n),
			"expires_in":   e.expiresIn,
		})
	}))
	t.Cleanup(e.server.Close)
	return e
}

func (e *tokenEndpoint) failNextRequests(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failCount = n
}

func (e *tokenEndpoint) Hits() int64 {
	return atomic.LoadInt64(&e.hits)
}

func testServiceAccount(t *testing.T, tokenURI string) *serviceaccount.ServiceAccount {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &serviceaccount.ServiceAccount{
		ClientEmail: "sa@project.iam.gserviceaccount.com",
		TokenURI:    tokenURI,
		PrivateKey:  key,
	}
}

func TestEagerProviderServesCachedTokenWithoutRefetch(t *testing.T) {
	endpoint := newTokenEndpoint(t, 3600)
	sa := testServiceAccount(t, endpoint.server.URL)
	p := tokenprovider.NewEagerProvider(endpoint.server.Client(), sa, tokenprovider.Scope, metrics.NewRegistry(), "bucket1")

	first, err := p.GetToken(context.Background())
	require.NoError(t, err)

	second, err := p.GetToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, endpoint.Hits())
}

func TestEagerProviderSingleFlightUnderConcurrency(t *testing.T) {
	endpoint := newTokenEndpoint(t, 3600)
	sa := testServiceAccount(t, endpoint.server.URL)
	p := tokenprovider.NewEagerProvider(endpoint.server.Client(), sa, tokenprovider.Scope, metrics.NewRegistry(), "bucket1")

	const n = 20
	var wg sync.WaitGroup
	tokens := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := p.GetToken(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, endpoint.Hits())
	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
	}
}

func TestEagerProviderRetriesThenSucceeds(t *testing.T) {
	endpoint := newTokenEndpoint(t, 3600)
	endpoint.failNextRequests(2)
	sa := testServiceAccount(t, endpoint.server.URL)
	p := tokenprovider.NewEagerProvider(endpoint.server.Client(), sa, tokenprovider.Scope, metrics.NewRegistry(), "bucket1")

	tok, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.EqualValues(t, 3, endpoint.Hits())
}

func TestEagerProviderExhaustsAndFails(t *testing.T) {
	endpoint := newTokenEndpoint(t, 3600)
	endpoint.failNextRequests(100)
	sa := testServiceAccount(t, endpoint.server.URL)
	p := tokenprovider.NewEagerProvider(endpoint.server.Client(), sa, tokenprovider.Scope, metrics.NewRegistry(), "bucket1")

	_, err := p.GetToken(context.Background())
	assert.Error(t, err)
}

func TestPreloadingProviderServesFreshTokenWithoutRefetch(t *testing.T) {
	endpoint := newTokenEndpoint(t, 3600)
	sa := testServiceAccount(t, endpoint.server.URL)
	p := tokenprovider.NewPreloadingProvider(endpoint.server.Client(), sa, tokenprovider.Scope, metrics.NewRegistry(), "bucket1")

	first, err := p.GetToken(context.Background())
	require.NoError(t, err)
	second, err := p.GetToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, endpoint.Hits())
}

func TestPreloadingProviderSingleFlightOnColdStart(t *testing.T) {
	endpoint := newTokenEndpoint(t, 3600)
	sa := testServiceAccount(t, endpoint.server.URL)
	p := tokenprovider.NewPreloadingProvider(endpoint.server.Client(), sa, tokenprovider.Scope, metrics.NewRegistry(), "bucket1")

	const n = 20
	var wg sync.WaitGroup
	tokens := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := p.GetToken(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, endpoint.Hits())
	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
		assert.NotEmpty(t, tok)
	}
}

func TestPreloadingProviderTriggersBackgroundRefreshWhenStale(t *testing.T) {
	// expires_in just above the stale threshold, so the first call caches
	// a token that is immediately in the "stale but serveable" window.
	endpoint := newTokenEndpoint(t, 11)
	sa := testServiceAccount(t, endpoint.server.URL)
	p := tokenprovider.NewPreloadingProvider(endpoint.server.Client(), sa, tokenprovider.Scope, metrics.NewRegistry(), "bucket1")

	_, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, endpoint.Hits())

	assert.Eventually(t, func() bool {
		return endpoint.Hits() >= 2
	}, time.Second, 10*time.Millisecond, "expected a background refresh to fire")
}

func TestPreloadingProviderExhaustsAndFails(t *testing.T) {
	endpoint := newTokenEndpoint(t, 3600)
	endpoint.failNextRequests(100)
	sa := testServiceAccount(t, endpoint.server.URL)
	p := tokenprovider.NewPreloadingProvider(endpoint.server.Client(), sa, tokenprovider.Scope, metrics.NewRegistry(), "bucket1")

	_, err := p.GetToken(context.Background())
	assert.Error(t, err)
}
