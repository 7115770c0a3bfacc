package encapsia

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// syncOut is the reply shape of the sync/out endpoint. The high water mark
// and assertions are opaque to the client.
type syncOut struct {
	Hwm        json.RawMessage   `json:"hwm"`
	Assertions []json.RawMessage `json:"assertions"`
}

// Hwm fetches the server's current replication high water mark.
func (c *Client) Hwm(ctx context.Context) (json.RawMessage, error) {
	var out syncOut
	err := c.post(ctx, []string{"sync", "out"}, []any{}, &out,
		withParam("all_zones", "true"),
		withParam("limit", "0"),
		withIdempotent(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get hwm: %w", err)
	}
	return out.Hwm, nil
}

// Assertions fetches up to blocksize assertions past the given high water
// mark, returning them with the new mark.
func (c *Client) Assertions(ctx context.Context, hwm json.RawMessage, blocksize int) ([]json.RawMessage, json.RawMessage, error) {
	var out syncOut
	err := c.post(ctx, []string{"sync", "out"}, hwm, &out,
		withParam("all_zones", "true"),
		withParam("limit", strconv.Itoa(blocksize)),
		withIdempotent(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get assertions: %w", err)
	}
	return out.Assertions, out.Hwm, nil
}

// PostAssertions replicates assertions into the server.
func (c *Client) PostAssertions(ctx context.Context, assertions []json.RawMessage) error {
	if err := c.post(ctx, []string{"sync", "in"}, assertions, nil); err != nil {
		return fmt.Errorf("failed to post assertions: %w", err)
	}
	return nil
}
