package encapsia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// RunJob starts a job and returns a Poll for its result.
//
// A job is tracked by the task that backs it: the poll watches the task, and
// once it finishes resolves the result from the job's log output.
func (c *Client) RunJob(ctx context.Context, req TaskRequest) (Poll, error) {
	var out struct {
		TaskID string `json:"task_id"`
		JobID  string `json:"job_id"`
	}
	segments := []string{"jobs", url.PathEscape(req.Namespace), url.PathEscape(req.Function)}
	if err := c.post(ctx, segments, nil, &out, req.callOptions()...); err != nil {
		return nil, fmt.Errorf("failed to run job %s.%s: %w", req.Namespace, req.Function, err)
	}

	taskID, jobID := out.TaskID, out.JobID
	return func(ctx context.Context) (any, bool, error) {
		return c.pollJob(ctx, req.Namespace, taskID, jobID, req.Download)
	}, nil
}

func (c *Client) pollJob(ctx context.Context, namespace, taskID, jobID, download string) (any, bool, error) {
	resp, err := c.call(ctx, http.MethodGet, []string{"tasks", url.PathEscape(namespace), url.PathEscape(taskID)})
	if err != nil {
		return nil, false, err
	}
	var status taskStatus
	decodeErr := decodeResult(resp, &status)
	resp.Body.Close()
	if decodeErr != nil {
		return nil, false, decodeErr
	}

	switch status.Status {
	case "finished":
		result, err := c.jobOutput(ctx, namespace, jobID)
		if err != nil {
			return nil, false, err
		}
		if download != "" {
			if err := writeIndentedJSON(download, result); err != nil {
				return nil, false, err
			}
			return &FileDownload{Filename: download, MimeType: "application/json"}, true, nil
		}
		var value any
		if err := json.Unmarshal(result, &value); err != nil {
			return nil, false, fmt.Errorf("failed to decode job result: %w", err)
		}
		return value, true, nil
	case "failed":
		payload, _ := json.Marshal(status)
		return nil, false, &TaskFailedError{What: "job", Payload: payload}
	default:
		return nil, false, nil
	}
}

// jobOutput fetches the output of the job's most recent log entry.
func (c *Client) jobOutput(ctx context.Context, namespace, jobID string) (json.RawMessage, error) {
	var out struct {
		Logs []struct {
			Status string          `json:"status"`
			Output json.RawMessage `json:"output"`
		} `json:"logs"`
	}
	if err := c.get(ctx, []string{"jobs", url.PathEscape(namespace), url.PathEscape(jobID)}, &out); err != nil {
		return nil, err
	}
	if len(out.Logs) == 0 {
		return nil, fmt.Errorf("job %s has no log entries", jobID)
	}
	log := out.Logs[0]
	if log.Status != "success" {
		return nil, fmt.Errorf("job %s finished with log status %q", jobID, log.Status)
	}
	return log.Output, nil
}

// RunJobAndPoll runs a job and polls until its result arrives or the try
// budget is spent.
func (c *Client) RunJobAndPoll(ctx context.Context, req TaskRequest, opts *PollOptions) (any, error) {
	poll, err := c.RunJob(ctx, req)
	if err != nil {
		return nil, err
	}
	return pollUntilDone(ctx, poll, opts)
}
