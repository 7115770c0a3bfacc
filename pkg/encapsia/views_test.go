package encapsia

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encapsia/encapsia-go/pkg/typedcsv"
)

func TestRunView(t *testing.T) {
	t.Run("JSON response decoded", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/v1/views/myns/todays_numbers/red", r.URL.Path)
			assert.Equal(t, "limit=5", r.URL.RawQuery)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"n": 1}, {"n": 2}]`))
		}))

		result, err := client.RunView(context.Background(), ViewRequest{
			Namespace: "myns",
			Function:  "todays_numbers",
			Args:      []string{"red"},
			Options:   map[string]string{"limit": "5"},
		})
		require.NoError(t, err)
		assert.Equal(t, []any{
			map[string]any{"n": float64(1)},
			map[string]any{"n": float64(2)},
		}, result)
	})

	t.Run("POST when requested", func(t *testing.T) {
		var gotMethod string
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		}))

		_, err := client.RunView(context.Background(), ViewRequest{
			Namespace: "myns",
			Function:  "make_temp_table",
			UsePost:   true,
		})
		require.NoError(t, err)
		assert.Equal(t, http.MethodPost, gotMethod)
	})

	t.Run("typed CSV streamed", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/csv")
			w.Write([]byte("name,count__integer,active__boolean\nalpha,3,yes\nbeta,oops,no\n"))
		}))

		result, err := client.RunView(context.Background(), ViewRequest{
			Namespace: "myns",
			Function:  "export",
			TypedCSV:  true,
		})
		require.NoError(t, err)

		reader, ok := result.(*typedcsv.Reader)
		require.True(t, ok)
		defer reader.Close()

		rows, err := reader.ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, typedcsv.Row{"name": "alpha", "count": 3, "active": true}, rows[0])
		// A value that fails its cast becomes nil, never an error.
		assert.Equal(t, typedcsv.Row{"name": "beta", "count": nil, "active": false}, rows[1])
	})

	t.Run("CSV with charset parameter rejected", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Write([]byte("a\n1\n"))
		}))

		_, err := client.RunView(context.Background(), ViewRequest{
			Namespace: "myns",
			Function:  "export",
			TypedCSV:  true,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "charset")
	})

	t.Run("other content returned as text", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("plain text reply"))
		}))

		result, err := client.RunView(context.Background(), ViewRequest{
			Namespace: "myns",
			Function:  "export",
		})
		require.NoError(t, err)
		assert.Equal(t, "plain text reply", result)
	})

	t.Run("download streams to file", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/csv")
			w.Write([]byte("a,b\n1,2\n"))
		}))

		target := filepath.Join(t.TempDir(), "view.csv")
		result, err := client.RunView(context.Background(), ViewRequest{
			Namespace: "myns",
			Function:  "export",
			Download:  target,
		})
		require.NoError(t, err)

		download, ok := result.(*FileDownload)
		require.True(t, ok)
		assert.Equal(t, target, download.Filename)

		data, err := os.ReadFile(target)
		require.NoError(t, err)
		assert.Equal(t, "a,b\n1,2\n", string(data))
	})

	t.Run("upload body forwarded", func(t *testing.T) {
		var gotBody []byte
		var gotContentType string
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			gotContentType = r.Header.Get("Content-Type")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		}))

		_, err := client.RunView(context.Background(), ViewRequest{
			Namespace: "myns",
			Function:  "import",
			UsePost:   true,
			Upload:    strings.NewReader("uploaded"),
		})
		require.NoError(t, err)
		assert.Equal(t, "uploaded", string(gotBody))
		assert.Equal(t, "text/plain; charset=utf-8", gotContentType)
	})
}
