package encapsia

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient builds a client against an httptest server with fast retry
// delays so tests spend no real time backing off.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{
		BaseURL:       srv.URL,
		Token:         "test-token",
		MinRetryDelay: time.Millisecond,
		MaxRetryDelay: 2 * time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

// writeResult wraps a value in the standard JSON envelope.
func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"result": result,
	})
}

func TestConfigNormalize(t *testing.T) {
	t.Run("bare host gets https scheme", func(t *testing.T) {
		cfg := Config{BaseURL: "myserver.encapsia.com", Token: "x"}
		cfg.normalize()

		assert.Equal(t, "https://myserver.encapsia.com", cfg.BaseURL)
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		cfg := Config{BaseURL: "https://myserver.encapsia.com/", Token: "x"}
		cfg.normalize()

		assert.Equal(t, "https://myserver.encapsia.com", cfg.BaseURL)
	})

	t.Run("defaults applied", func(t *testing.T) {
		cfg := Config{BaseURL: "https://myserver.encapsia.com", Token: "x"}
		cfg.normalize()

		assert.Equal(t, "v1", cfg.Version)
		assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
		assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout)
		assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
		assert.Equal(t, DefaultMinRetryDelay, cfg.MinRetryDelay)
		assert.Equal(t, DefaultMaxRetryDelay, cfg.MaxRetryDelay)
		require.NotNil(t, cfg.TLSVerify)
		assert.True(t, *cfg.TLSVerify)
		assert.Contains(t, cfg.UserAgent, "encapsia-go/")
		assert.NotNil(t, cfg.Logger)
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{BaseURL: "https://myserver.encapsia.com", Token: "x"}
		cfg.normalize()
		return cfg
	}

	t.Run("valid config", func(t *testing.T) {
		cfg := valid()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing base URL", func(t *testing.T) {
		cfg := valid()
		cfg.BaseURL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing token", func(t *testing.T) {
		cfg := valid()
		cfg.Token = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad scheme", func(t *testing.T) {
		cfg := valid()
		cfg.BaseURL = "ftp://myserver.encapsia.com"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad retry bounds", func(t *testing.T) {
		cfg := valid()
		cfg.MinRetryDelay = time.Minute
		cfg.MaxRetryDelay = time.Second
		assert.Error(t, cfg.Validate())
	})
}

func TestConfigTokenNotMarshalled(t *testing.T) {
	data, err := json.Marshal(Config{BaseURL: "https://x.encapsia.com", Token: "secret"})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret")
}

func TestClientRequestHeaders(t *testing.T) {
	var got *http.Request
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(r.Context())
		writeResult(w, map[string]any{"email": "someone@example.com"})
	}))

	_, err := client.WhoAmI(context.Background())
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "/v1/whoami", got.URL.Path)
	assert.Equal(t, "Bearer test-token", got.Header.Get("Authorization"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.Contains(t, got.Header.Get("User-Agent"), "encapsia-go/")
}

func TestClientHost(t *testing.T) {
	client, err := New(Config{BaseURL: "myserver.encapsia.com", Token: "x"})
	require.NoError(t, err)

	assert.Equal(t, "https://myserver.encapsia.com", client.URL())
	assert.Equal(t, "myserver.encapsia.com", client.Host())
}

func TestClientEnvelopeErrorStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "error",
			"result": map[string]any{"message": "nope"},
		})
	}))

	_, err := client.WhoAmI(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Body, "nope")
}

func TestClientUnexpectedStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))

	_, err := client.WhoAmI(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "forbidden")
}

func TestClientTransportErrorKeepsCause(t *testing.T) {
	// Nothing listens on this port; the dial error must surface as-is
	// once retries are spent, never masked as an API error.
	client, err := New(Config{
		BaseURL:       "http://127.0.0.1:1",
		Token:         "x",
		MaxRetries:    1,
		MinRetryDelay: time.Millisecond,
		MaxRetryDelay: 2 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = client.WhoAmI(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestClientClonesDoNotMutate(t *testing.T) {
	client, err := New(Config{BaseURL: "https://x.encapsia.com", Token: "x"})
	require.NoError(t, err)

	clone := client.WithRetries(1).WithToken("other")
	assert.Equal(t, DefaultMaxRetries, client.cfg.MaxRetries)
	assert.Equal(t, "x", client.cfg.Token)
	assert.Equal(t, 1, clone.cfg.MaxRetries)
	assert.Equal(t, "other", clone.cfg.Token)
}
