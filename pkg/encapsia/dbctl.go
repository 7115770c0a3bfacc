package encapsia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
)

// DbCtlAction requests a database control action and returns a Poll for its
// outcome.
func (c *Client) DbCtlAction(ctx context.Context, name string, params map[string]string, idempotent bool) (Poll, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	opts := []callOption{withParams(values)}
	if idempotent {
		opts = append(opts, withIdempotent(true))
	}

	var out struct {
		ActionID string `json:"action_id"`
	}
	if err := c.post(ctx, []string{"dbctl", "action", url.PathEscape(name)}, nil, &out, opts...); err != nil {
		return nil, fmt.Errorf("failed to request dbctl action %s: %w", name, err)
	}

	actionID := out.ActionID
	return func(ctx context.Context) (any, bool, error) {
		var status taskStatus
		if err := c.get(ctx, []string{"dbctl", "action", url.PathEscape(name), url.PathEscape(actionID)}, &status); err != nil {
			return nil, false, err
		}
		switch status.Status {
		case "finished":
			var result any
			if err := json.Unmarshal(status.Result, &result); err != nil {
				return nil, false, fmt.Errorf("failed to decode dbctl result: %w", err)
			}
			return result, true, nil
		case "failed":
			payload, _ := json.Marshal(status)
			return nil, false, &TaskFailedError{What: "dbctl action", Payload: payload}
		default:
			return nil, false, nil
		}
	}, nil
}

// DbCtlDownloadData downloads exported data for the given handle and returns
// the filename written. An empty filename means a temporary file.
func (c *Client) DbCtlDownloadData(ctx context.Context, handle, filename string) (string, error) {
	urlPath := c.cfg.Version + "/dbctl/data/" + url.PathEscape(handle)
	return c.downloadToFile(ctx, urlPath, filename)
}

// DbCtlUploadData uploads data from the given filename, returning a handle
// usable for future downloads. The upload streams and retries with rewind.
func (c *Client) DbCtlUploadData(ctx context.Context, filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer f.Close()

	var out struct {
		Handle string `json:"handle"`
	}
	err = c.post(ctx, []string{"dbctl", "data"}, nil, &out,
		withBody(f, "application/octet-stream"),
		withIdempotent(true),
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload dbctl data: %w", err)
	}
	return out.Handle, nil
}
