// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

package slacknotifier_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cloudgate/upload-gateway/internal/slacknotifier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSlack emulates the chat.postMessage endpoint used by PostLink's
// message fan-out. Tests below all configure qrCode=false, so the
// external file-upload endpoints PostLink would otherwise call are never
// exercised.
type fakeSlack struct {
	mu       sync.Mutex
	posted   []string
	texts    []string
	failChat bool
}

func newFakeSlack(t *testing.T) (*fakeSlack, *httptest.Server) {
	t.Helper()
	f := &fakeSlack{}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if f.failChat {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
			return
		}
		f.posted = append(f.posted, r.FormValue("channel"))
		f.texts = append(f.texts, r.FormValue("text"))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.FormValue("channel"), "ts": "1234.5678"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeSlack) PostedChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.posted))
	copy(out, f.posted)
	return out
}

func (f *fakeSlack) PostedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

func TestPostLinkUsesDefaultPrefixWhenNoneConfigured(t *testing.T) {
	fake, server := newFakeSlack(t)
	n := slacknotifier.New("xoxb-test", []string{"C1"}, false, "", slacknotifier.WithAPIURL(server.URL+"/"))

	err := n.PostLink(context.Background(), "https://storage.cloud.google.com/b/o", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"C1"}, fake.PostedChannels())
	assert.Equal(t, []string{"Download file url: <https://storage.cloud.google.com/b/o|link>"}, fake.PostedTexts())
}

func TestPostLinkFansOutToEveryTarget(t *testing.T) {
	fake, server := newFakeSlack(t)
	n := slacknotifier.New("xoxb-test", []string{"C1", "C2", "C3"}, false, "", slacknotifier.WithAPIURL(server.URL+"/"))

	err := n.PostLink(context.Background(), "https://storage.cloud.google.com/b/o", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"C1", "C2", "C3"}, fake.PostedChannels())
}

func TestPostLinkFailsFastWhenAnyChannelRejectsTheMessage(t *testing.T) {
	fake, server := newFakeSlack(t)
	fake.failChat = true
	n := slacknotifier.New("xoxb-test", []string{"C1"}, false, "", slacknotifier.WithAPIURL(server.URL+"/"))

	err := n.PostLink(context.Background(), "https://storage.cloud.google.com/b/o", "")
	assert.Error(t, err)
}

// TestPostLinkOverridePrefixWinsOverDefault covers the per-request
// slack_text_prefix query parameter taking precedence over the tenant's
// configured default_text_before.
func TestPostLinkOverridePrefixWinsOverDefault(t *testing.T) {
	var gotText string
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "C1", "ts": "1.1"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	n := slacknotifier.New("xoxb-test", []string{"C1"}, false, "configured default: ", slacknotifier.WithAPIURL(server.URL+"/"))

	err := n.PostLink(context.Background(), "https://storage.cloud.google.com/b/o", "per-request override: ")
	require.NoError(t, err)
	assert.Contains(t, gotText, "per-request override: ")
	assert.NotContains(t, gotText, "configured default: ")
}

// TestPostLinkFallsBackToConfiguredDefaultPrefix covers the case where no
// per-request override is given but a tenant default is configured.
func TestPostLinkFallsBackToConfiguredDefaultPrefix(t *testing.T) {
	var gotText string
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": "C1", "ts": "1.1"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	n := slacknotifier.New("xoxb-test", []string{"C1"}, false, "configured default: ", slacknotifier.WithAPIURL(server.URL+"/"))

	err := n.PostLink(context.Background(), "https://storage.cloud.google.com/b/o", "")
	require.NoError(t, err)
	assert.Contains(t, gotText, "configured default: ")
}
