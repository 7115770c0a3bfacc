package encapsia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/encapsia/encapsia-go/pkg/typedcsv"
)

// ViewRequest describes a view function invocation.
type ViewRequest struct {
	Namespace string
	Function  string

	// Args become path segments in the view URL.
	Args []string

	// Options become query string arguments.
	Options map[string]string

	// UsePost runs the view with POST, for views which modify the
	// database in some way (e.g. create a temporary table).
	UsePost bool

	// Upload is an optional streamed request body.
	Upload            io.Reader
	UploadContentType string

	// Download, when set, streams the response to this file and makes
	// RunView return a *FileDownload.
	Download string

	// TypedCSV asks for CSV responses to be decoded with the typed column
	// convention; see package typedcsv. The returned *typedcsv.Reader
	// streams from the response and must be closed by the caller.
	TypedCSV bool

	// Idempotent overrides the verb's default retry classification.
	Idempotent *bool

	// OnRetry observes retries.
	OnRetry RetryHook
}

// RunView runs a view function and returns its result.
//
// The result is a *FileDownload when Download is set; decoded JSON for JSON
// responses; a *typedcsv.Reader for CSV responses when TypedCSV is set;
// otherwise the response text.
func (c *Client) RunView(ctx context.Context, req ViewRequest) (any, error) {
	contentType := req.UploadContentType
	if contentType == "" {
		contentType = UploadContentType(req.Upload)
	}

	params := url.Values{}
	for k, v := range req.Options {
		params.Set(k, v)
	}

	opts := []callOption{withParams(params)}
	if req.Upload != nil {
		opts = append(opts, withBody(req.Upload, contentType))
	}
	if req.Idempotent != nil {
		opts = append(opts, withIdempotent(*req.Idempotent))
	}
	if req.OnRetry != nil {
		opts = append(opts, withOnRetry(req.OnRetry))
	}

	method := http.MethodGet
	if req.UsePost {
		method = http.MethodPost
	}

	segments := []string{"views", url.PathEscape(req.Namespace), url.PathEscape(req.Function)}
	for _, arg := range req.Args {
		segments = append(segments, url.PathEscape(arg))
	}

	resp, err := c.call(ctx, method, segments, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to run view %s.%s: %w", req.Namespace, req.Function, err)
	}

	if req.Download != "" {
		defer resp.Body.Close()
		if err := streamToFile(resp.Body, req.Download); err != nil {
			return nil, err
		}
		return &FileDownload{Filename: req.Download, MimeType: resp.Header.Get("Content-Type")}, nil
	}

	mediaType, mediaParams, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json":
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read view response: %w", err)
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("failed to decode view response: %w", err)
		}
		return value, nil

	case mediaType == "text/csv" && req.TypedCSV:
		// The CSV contract is a bare text/csv media type; a charset
		// parameter means the server endpoint is misbehaving.
		if _, ok := mediaParams["charset"]; ok {
			resp.Body.Close()
			return nil, fmt.Errorf("CSV response declared a charset parameter: %s", resp.Header.Get("Content-Type"))
		}
		return typedcsv.NewReader(resp.Body), nil

	default:
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read view response: %w", err)
		}
		return string(raw), nil
	}
}
