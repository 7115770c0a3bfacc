package encapsia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// FileDownload reports a task, job, or view result that was streamed to a
// local file instead of being returned inline.
type FileDownload struct {
	Filename string
	MimeType string
}

// TaskRequest describes a task invocation.
type TaskRequest struct {
	Namespace string
	Function  string

	// Params become query string arguments.
	Params map[string]string

	// Upload is an optional request body. Large bodies are fine: the data
	// is streamed. UploadContentType is guessed from Upload when empty.
	Upload            io.Reader
	UploadContentType string

	// Download, when set, streams the eventual result to this file and
	// makes the poll return a *FileDownload.
	Download string

	// Idempotent marks the triggering POST as safe to retry.
	Idempotent bool

	// OnRetry observes retries of the triggering POST.
	OnRetry RetryHook
}

// Poll fetches a pending result. done stays false while the server is still
// working; once true, result holds the outcome (a *FileDownload when the
// request asked for a download, decoded JSON or response text otherwise).
type Poll func(ctx context.Context) (result any, done bool, err error)

// PollOptions bound a polling loop.
type PollOptions struct {
	Every    time.Duration // default 200ms
	MaxTries int           // default 100
}

func (o *PollOptions) normalize() PollOptions {
	out := PollOptions{Every: 200 * time.Millisecond, MaxTries: 100}
	if o != nil {
		if o.Every > 0 {
			out.Every = o.Every
		}
		if o.MaxTries > 0 {
			out.MaxTries = o.MaxTries
		}
	}
	return out
}

// taskStatus is the inner result object of the task status endpoint.
type taskStatus struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

func (req *TaskRequest) callOptions() []callOption {
	contentType := req.UploadContentType
	if contentType == "" {
		contentType = UploadContentType(req.Upload)
	}

	params := url.Values{}
	for k, v := range req.Params {
		params.Set(k, v)
	}

	opts := []callOption{withParams(params)}
	if req.Upload != nil {
		opts = append(opts, withBody(req.Upload, contentType))
	}
	if req.Idempotent {
		opts = append(opts, withIdempotent(true))
	}
	if req.OnRetry != nil {
		opts = append(opts, withOnRetry(req.OnRetry))
	}
	return opts
}

// RunTask starts a task and returns a Poll for its result.
func (c *Client) RunTask(ctx context.Context, req TaskRequest) (Poll, error) {
	var out struct {
		TaskID string `json:"task_id"`
	}
	segments := []string{"tasks", url.PathEscape(req.Namespace), url.PathEscape(req.Function)}
	if err := c.post(ctx, segments, nil, &out, req.callOptions()...); err != nil {
		return nil, fmt.Errorf("failed to run task %s.%s: %w", req.Namespace, req.Function, err)
	}

	taskID := out.TaskID
	return func(ctx context.Context) (any, bool, error) {
		return c.pollTask(ctx, req.Namespace, taskID, req.Download)
	}, nil
}

func (c *Client) pollTask(ctx context.Context, namespace, taskID, download string) (any, bool, error) {
	resp, err := c.call(ctx, http.MethodGet, []string{"tasks", url.PathEscape(namespace), url.PathEscape(taskID)})
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		// The task responded with a raw payload (CSV, binary, ...).
		if download != "" {
			if err := streamToFile(resp.Body, download); err != nil {
				return nil, false, err
			}
			return &FileDownload{Filename: download, MimeType: resp.Header.Get("Content-Type")}, true, nil
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read task response: %w", err)
		}
		return string(body), true, nil
	}

	var status taskStatus
	if err := decodeResult(resp, &status); err != nil {
		return nil, false, err
	}

	switch status.Status {
	case "finished":
		if download != "" {
			if err := writeIndentedJSON(download, status.Result); err != nil {
				return nil, false, err
			}
			return &FileDownload{Filename: download, MimeType: "application/json"}, true, nil
		}
		var result any
		if err := json.Unmarshal(status.Result, &result); err != nil {
			return nil, false, fmt.Errorf("failed to decode task result: %w", err)
		}
		return result, true, nil
	case "failed":
		payload, _ := json.Marshal(status)
		return nil, false, &TaskFailedError{What: "task", Payload: payload}
	default:
		return nil, false, nil
	}
}

// RunTaskAndPoll runs a task and polls until the result arrives or the try
// budget is spent, in which case a *PollTimeoutError is returned.
func (c *Client) RunTaskAndPoll(ctx context.Context, req TaskRequest, opts *PollOptions) (any, error) {
	poll, err := c.RunTask(ctx, req)
	if err != nil {
		return nil, err
	}
	return pollUntilDone(ctx, poll, opts)
}

func pollUntilDone(ctx context.Context, poll Poll, opts *PollOptions) (any, error) {
	o := opts.normalize()

	result, done, err := poll(ctx)
	if err != nil {
		return nil, err
	}
	for try := 0; !done && try < o.MaxTries; try++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.Every):
		}
		result, done, err = poll(ctx)
		if err != nil {
			return nil, err
		}
	}
	if !done {
		return nil, &PollTimeoutError{Waited: (o.Every * time.Duration(o.MaxTries)).String()}
	}
	return result, nil
}

// RunPluginsTask is a convenience for calling pluginsmanager tasks.
func (c *Client) RunPluginsTask(ctx context.Context, name string, params map[string]string, data io.Reader) (string, error) {
	reply, err := c.RunTaskAndPoll(ctx, TaskRequest{
		Namespace: "pluginsmanager",
		Function:  "icepluginsmanager." + name,
		Params:    params,
		Upload:    data,
	}, nil)
	if err != nil {
		return "", err
	}

	var out struct {
		Status string `json:"status"`
		Output string `json:"output"`
	}
	if err := Decode(reply, &out); err != nil {
		return "", fmt.Errorf("unexpected pluginsmanager reply: %w", err)
	}
	if out.Status != "ok" {
		return "", fmt.Errorf("pluginsmanager task %s failed: %v", name, reply)
	}
	return strings.TrimSpace(out.Output), nil
}

func streamToFile(r io.Reader, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to stream to %s: %w", filename, err)
	}
	return nil
}

func writeIndentedJSON(filename string, raw json.RawMessage) error {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	data, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}
