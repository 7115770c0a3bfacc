package encapsia

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPoll() *PollOptions {
	return &PollOptions{Every: time.Millisecond, MaxTries: 10}
}

func TestRunTaskAndPoll(t *testing.T) {
	t.Run("polls until finished", func(t *testing.T) {
		var polls atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				assert.Equal(t, "/v1/tasks/myns/do_something", r.URL.Path)
				writeResult(w, map[string]any{"task_id": "t1"})
				return
			}

			assert.Equal(t, "/v1/tasks/myns/t1", r.URL.Path)
			if polls.Add(1) < 3 {
				writeResult(w, map[string]any{"status": "running"})
				return
			}
			writeResult(w, map[string]any{
				"status": "finished",
				"result": map[string]any{"answer": float64(42)},
			})
		}))

		result, err := client.RunTaskAndPoll(context.Background(), TaskRequest{
			Namespace: "myns",
			Function:  "do_something",
			Params:    map[string]string{"arg": "value"},
		}, fastPoll())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"answer": float64(42)}, result)
		assert.Equal(t, int32(3), polls.Load())
	})

	t.Run("failed task yields TaskFailedError", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				writeResult(w, map[string]any{"task_id": "t1"})
				return
			}
			writeResult(w, map[string]any{
				"status": "failed",
				"result": map[string]any{"traceback": "boom"},
			})
		}))

		_, err := client.RunTaskAndPoll(context.Background(), TaskRequest{
			Namespace: "myns",
			Function:  "do_something",
		}, fastPoll())
		require.Error(t, err)

		var failed *TaskFailedError
		require.ErrorAs(t, err, &failed)
		assert.Contains(t, string(failed.Payload), "boom")
	})

	t.Run("poll budget exhausted yields PollTimeoutError", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				writeResult(w, map[string]any{"task_id": "t1"})
				return
			}
			writeResult(w, map[string]any{"status": "running"})
		}))

		_, err := client.RunTaskAndPoll(context.Background(), TaskRequest{
			Namespace: "myns",
			Function:  "do_something",
		}, &PollOptions{Every: time.Millisecond, MaxTries: 2})
		require.Error(t, err)

		var timeout *PollTimeoutError
		assert.ErrorAs(t, err, &timeout)
	})

	t.Run("non-JSON reply returned as text", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				writeResult(w, map[string]any{"task_id": "t1"})
				return
			}
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("raw payload"))
		}))

		result, err := client.RunTaskAndPoll(context.Background(), TaskRequest{
			Namespace: "myns",
			Function:  "do_something",
		}, fastPoll())
		require.NoError(t, err)
		assert.Equal(t, "raw payload", result)
	})

	t.Run("non-JSON reply streamed to download file", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				writeResult(w, map[string]any{"task_id": "t1"})
				return
			}
			w.Header().Set("Content-Type", "text/csv")
			w.Write([]byte("a,b\n1,2\n"))
		}))

		target := filepath.Join(t.TempDir(), "out.csv")
		result, err := client.RunTaskAndPoll(context.Background(), TaskRequest{
			Namespace: "myns",
			Function:  "do_something",
			Download:  target,
		}, fastPoll())
		require.NoError(t, err)

		download, ok := result.(*FileDownload)
		require.True(t, ok)
		assert.Equal(t, target, download.Filename)

		data, err := os.ReadFile(target)
		require.NoError(t, err)
		assert.Equal(t, "a,b\n1,2\n", string(data))
	})
}

func TestRunTaskParams(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeResult(w, map[string]any{"task_id": "t1"})
	}))

	_, err := client.RunTask(context.Background(), TaskRequest{
		Namespace: "myns",
		Function:  "do_something",
		Params:    map[string]string{"colour": "red"},
	})
	require.NoError(t, err)
	assert.Equal(t, "colour=red", gotQuery)
}

func TestRunPluginsTask(t *testing.T) {
	t.Run("ok reply returns trimmed output", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				assert.Equal(t, "/v1/tasks/pluginsmanager/icepluginsmanager.dev_destroy_namespace", r.URL.Path)
				writeResult(w, map[string]any{"task_id": "t1"})
				return
			}
			writeResult(w, map[string]any{
				"status": "finished",
				"result": map[string]any{"status": "ok", "output": "  destroyed\n"},
			})
		}))

		output, err := client.RunPluginsTask(context.Background(), "dev_destroy_namespace",
			map[string]string{"namespace": "myns"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "destroyed", output)
	})

	t.Run("non-ok reply is an error", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				writeResult(w, map[string]any{"task_id": "t1"})
				return
			}
			writeResult(w, map[string]any{
				"status": "finished",
				"result": map[string]any{"status": "error", "output": "no such plugin"},
			})
		}))

		_, err := client.RunPluginsTask(context.Background(), "dev_destroy_namespace",
			map[string]string{"namespace": "myns"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dev_destroy_namespace")
	})
}
