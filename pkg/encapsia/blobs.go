package encapsia

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// NewBlobID generates a fresh blob id in the form the server expects:
// a uuid4 rendered as 32 hex characters.
func NewBlobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Bool is a convenience for taking the address of a bool literal in option
// structs with tri-state flags.
func Bool(v bool) *bool {
	return &v
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// UploadOptions adjust blob uploads.
type UploadOptions struct {
	// Zone is an optional storage zone for the blob.
	Zone string

	// Idempotent marks the upload safe to retry on transient failures.
	// The body must be rewindable (an *os.File or bytes.Reader qualifies).
	Idempotent bool

	// OnRetry observes upload retries.
	OnRetry RetryHook
}

// UploadFileAsBlob uploads the given file as a new blob and returns its id.
// The MIME type is guessed from the filename when mimeType is empty. The
// upload streams from disk and is retried on transient failures, rewinding
// the file between attempts.
func (c *Client) UploadFileAsBlob(ctx context.Context, filename, mimeType string, opts *UploadOptions) (string, error) {
	if mimeType == "" {
		mimeType = GuessMimeType(filename)
	}
	f, err := os.Open(filename)
	if err != nil {
		return "", fmt.Errorf("failed to open blob file: %w", err)
	}
	defer f.Close()

	uploadOpts := UploadOptions{Idempotent: true}
	if opts != nil {
		uploadOpts = *opts
		uploadOpts.Idempotent = true
	}

	blobID := NewBlobID()
	if _, err := c.UploadBlob(ctx, blobID, mimeType, f, &uploadOpts); err != nil {
		return "", err
	}
	return blobID, nil
}

// UploadBlob uploads blob data under the given id and returns the blob's
// URL as reported by the server. The data is streamed, not buffered,
// regardless of size.
func (c *Client) UploadBlob(ctx context.Context, blobID, mimeType string, data io.Reader, opts *UploadOptions) (string, error) {
	callOpts := []callOption{withBody(data, mimeType)}
	if opts != nil {
		if opts.Zone != "" {
			callOpts = append(callOpts, withParam("zone", opts.Zone))
		}
		if opts.Idempotent {
			callOpts = append(callOpts, withIdempotent(true))
		}
		if opts.OnRetry != nil {
			callOpts = append(callOpts, withOnRetry(opts.OnRetry))
		}
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := c.put(ctx, []string{"blobs", url.PathEscape(blobID)}, nil, &out, callOpts...); err != nil {
		return "", fmt.Errorf("failed to upload blob %s: %w", blobID, err)
	}
	return out.URL, nil
}

// DownloadBlobToFile downloads a blob to the given filename, reporting
// whether the blob exists.
func (c *Client) DownloadBlobToFile(ctx context.Context, blobID, filename string) (bool, error) {
	f, err := os.Create(filename)
	if err != nil {
		return false, fmt.Errorf("failed to create blob file: %w", err)
	}
	defer f.Close()

	return c.DownloadBlob(ctx, blobID, f)
}

// DownloadBlob streams a blob's data to w. It returns false with a nil error
// when the server reports the blob as missing (404, or the 302 it answers
// for deleted blobs).
func (c *Client) DownloadBlob(ctx context.Context, blobID string, w io.Writer) (bool, error) {
	resp, err := c.call(ctx, http.MethodGet, []string{"blobs", url.PathEscape(blobID)},
		withHeader("Accept", "*/*"),
		withExpected(http.StatusOK, http.StatusFound, http.StatusNotFound))
	if err != nil {
		return false, fmt.Errorf("failed to download blob %s: %w", blobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return false, fmt.Errorf("failed to stream blob %s: %w", blobID, err)
	}
	return true, nil
}

// BlobData downloads a blob into memory. Prefer DownloadBlob for payloads of
// unknown size.
func (c *Client) BlobData(ctx context.Context, blobID string) ([]byte, bool, error) {
	var buf bytes.Buffer
	found, err := c.DownloadBlob(ctx, blobID, &buf)
	if err != nil || !found {
		return nil, found, err
	}
	return buf.Bytes(), true, nil
}

// ListBlobsOptions filter ListBlobs. Nil fields leave the server default.
type ListBlobsOptions struct {
	IncludeDeleted  *bool
	IncludeMetadata *bool
}

// ListBlobs returns the server's blob listing.
func (c *Client) ListBlobs(ctx context.Context, opts *ListBlobsOptions) ([]map[string]any, error) {
	params := url.Values{}
	if opts != nil {
		if opts.IncludeDeleted != nil {
			params.Set("include_deleted", yesNo(*opts.IncludeDeleted))
		}
		if opts.IncludeMetadata != nil {
			params.Set("include_metadata", yesNo(*opts.IncludeMetadata))
		}
	}

	var out struct {
		Blobs []map[string]any `json:"blobs"`
	}
	if err := c.get(ctx, []string{"blobs"}, &out, withParams(params)); err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	return out.Blobs, nil
}

// TagBlobs applies the given tag to all the given blobs.
func (c *Client) TagBlobs(ctx context.Context, blobIDs []string, tag string) error {
	body := make([]map[string]string, 0, len(blobIDs))
	for _, id := range blobIDs {
		body = append(body, map[string]string{"blob_id": id, "tag": tag})
	}
	if err := c.post(ctx, []string{"blobtags"}, body, nil); err != nil {
		return fmt.Errorf("failed to tag blobs: %w", err)
	}
	return nil
}

// DeleteBlobTag removes a tag from a blob.
func (c *Client) DeleteBlobTag(ctx context.Context, blobID, tag string) error {
	if err := c.delete(ctx, []string{"blobtags", url.PathEscape(blobID), url.PathEscape(tag)}, nil); err != nil {
		return fmt.Errorf("failed to delete tag %q from blob %s: %w", tag, blobID, err)
	}
	return nil
}

// BlobIDsWithTag returns the ids of all blobs carrying the given tag.
func (c *Client) BlobIDsWithTag(ctx context.Context, tag string) ([]string, error) {
	var out struct {
		BlobIDs []string `json:"blob_ids"`
	}
	// The lookup-by-tag endpoint keeps an empty blob id segment.
	if err := c.get(ctx, []string{"blobtags", "", url.PathEscape(tag)}, &out); err != nil {
		return nil, fmt.Errorf("failed to list blobs with tag %q: %w", tag, err)
	}
	return out.BlobIDs, nil
}

// TrimBlobTags ensures only the given blobs carry the given tag, removing it
// from any others. Individual removal failures are aggregated.
func (c *Client) TrimBlobTags(ctx context.Context, blobIDs []string, tag string) error {
	serverIDs, err := c.BlobIDsWithTag(ctx, tag)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(blobIDs))
	for _, id := range blobIDs {
		wanted[id] = true
	}

	var merr *multierror.Error
	for _, id := range serverIDs {
		if wanted[id] {
			continue
		}
		if err := c.DeleteBlobTag(ctx, id, tag); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}
