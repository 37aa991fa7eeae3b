package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsletter/internal/infra"
)

type memorySecretStore struct {
	bundles     map[string]map[string]string
	invalidated atomic.Int32
}

func (m *memorySecretStore) Get(_ context.Context, name string) (map[string]string, error) {
	return m.bundles[name], nil
}

func (m *memorySecretStore) Invalidate(string) {
	m.invalidated.Add(1)
}

var _ infra.SecretStore = (*memorySecretStore)(nil)

func smtpBundle() map[string]map[string]string {
	return map[string]map[string]string{
		"newsletter/smtp": {
			"OUTLOOK_TENANT_ID":     "tenant",
			"OUTLOOK_CLIENT_ID":     "cid",
			"OUTLOOK_CLIENT_SECRET": "cs",
			"OUTLOOK_REFRESH_TOKEN": "rt",
		},
	}
}

func TestAccessTokenSource_FetchesAndCaches(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "rt", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1"}`))
	}))
	defer server.Close()

	source := &AccessTokenSource{
		secrets:    &memorySecretStore{bundles: smtpBundle()},
		secretName: "newsletter/smtp",
		httpClient: server.Client(),
		endpoint:   server.URL,
	}

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", token)

	// Second call is served from cache.
	token, err = source.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", token)
	require.EqualValues(t, 1, calls.Load())
}

func TestAccessTokenSource_ForceRefreshDropsCacheAndBundle(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if calls.Load() == 1 {
			w.Write([]byte(`{"access_token":"tok-1"}`))
			return
		}
		w.Write([]byte(`{"access_token":"tok-2"}`))
	}))
	defer server.Close()

	secrets := &memorySecretStore{bundles: smtpBundle()}
	source := &AccessTokenSource{
		secrets:    secrets,
		secretName: "newsletter/smtp",
		httpClient: server.Client(),
		endpoint:   server.URL,
	}

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", token)

	source.ForceRefresh()
	require.EqualValues(t, 1, secrets.invalidated.Load())

	token, err = source.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-2", token)
}

func TestAccessTokenSource_StaleTokenRefetched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh"}`))
	}))
	defer server.Close()

	source := &AccessTokenSource{
		secrets:    &memorySecretStore{bundles: smtpBundle()},
		secretName: "newsletter/smtp",
		httpClient: server.Client(),
		endpoint:   server.URL,
		token:      "stale",
		fetchedAt:  time.Now().Add(-2 * accessTokenLifetime),
	}

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh", token)
}
