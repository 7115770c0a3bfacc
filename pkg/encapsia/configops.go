package encapsia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// AllConfig returns all server configuration as a key-value map.
func (c *Client) AllConfig(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, []string{"config"}, &out); err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return out, nil
}

// GetConfig returns the server configuration value for the given key.
//
// A missing key yields a *KeyNotFoundError. Every other failure keeps its
// true cause: a network error stays a network error, a 401/403 stays an
// *APIError with that status, never a generic "key not found".
func (c *Client) GetConfig(ctx context.Context, key string) (any, error) {
	resp, err := c.call(ctx, http.MethodGet, []string{"config", url.PathEscape(key)},
		withExpected(http.StatusOK, http.StatusCreated, http.StatusNotFound))
	if err != nil {
		return nil, fmt.Errorf("failed to get config %q: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &KeyNotFoundError{Key: key}
	}

	var result map[string]json.RawMessage
	if err := decodeResult(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to get config %q: %w", key, err)
	}
	raw, ok := result[key]
	if !ok {
		return nil, &KeyNotFoundError{Key: key}
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("failed to decode config %q: %w", key, err)
	}
	return value, nil
}

// SetConfig sets the server configuration value for the given key.
// Setting a key is idempotent, so transient failures are retried.
func (c *Client) SetConfig(ctx context.Context, key string, value any) error {
	if err := c.put(ctx, []string{"config", url.PathEscape(key)}, value, nil, withIdempotent(true)); err != nil {
		return fmt.Errorf("failed to set config %q: %w", key, err)
	}
	return nil
}

// SetConfigMulti sets multiple server configuration values at once.
func (c *Client) SetConfigMulti(ctx context.Context, values map[string]any) error {
	if err := c.post(ctx, []string{"config"}, values, nil, withIdempotent(true)); err != nil {
		return fmt.Errorf("failed to set config values: %w", err)
	}
	return nil
}

// DeleteConfig deletes the server configuration value for the given key.
func (c *Client) DeleteConfig(ctx context.Context, key string) error {
	if err := c.delete(ctx, []string{"config", url.PathEscape(key)}, nil, withIdempotent(true)); err != nil {
		return fmt.Errorf("failed to delete config %q: %w", key, err)
	}
	return nil
}
