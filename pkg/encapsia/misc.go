package encapsia

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GuessMimeType guesses a MIME type from a filename, defaulting to
// application/octet-stream.
func GuessMimeType(filename string) string {
	mimeType := mime.TypeByExtension(filepath.Ext(filename))
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

// UploadContentType picks a Content-Type for an upload body: named files get
// a type guessed from their name, everything else is an opaque byte stream.
// Strings should be sent as "text/plain; charset=utf-8" by the caller.
func UploadContentType(body io.Reader) string {
	if body == nil {
		return ""
	}
	type named interface {
		Name() string
	}
	if n, ok := body.(named); ok {
		return GuessMimeType(n.Name())
	}
	if _, ok := body.(*strings.Reader); ok {
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

// rawEndpoint joins the base URL with an unversioned path, used by the
// static-file endpoints that live outside /v1.
func (c *Client) rawEndpoint(urlPath string) string {
	return c.cfg.BaseURL + "/" + strings.TrimLeft(urlPath, "/")
}

// downloadToFile streams the given unversioned URL path into filename,
// creating a temporary file when filename is empty. Returns the path written.
func (c *Client) downloadToFile(ctx context.Context, urlPath, filename string) (string, error) {
	if filename == "" {
		tmp, err := os.CreateTemp("", "encapsia-download-")
		if err != nil {
			return "", fmt.Errorf("failed to create temp file: %w", err)
		}
		filename = tmp.Name()
		tmp.Close()
	}

	resp, err := c.request(ctx, http.MethodGet, c.rawEndpoint(urlPath), requestOptions{
		headers:  map[string]string{"Accept": "*/*"},
		expected: []int{http.StatusOK},
	})
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", urlPath, err)
	}
	defer resp.Body.Close()

	f, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filename, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", fmt.Errorf("failed to stream download to %s: %w", filename, err)
	}
	return filename, nil
}

// DownloadFile downloads a static (unversioned) file from the server.
//
// With untargz false the payload is written to the target file; with untargz
// true the payload is treated as a .tar.gz and extracted into the target
// directory. An empty target means a temporary file or directory, whose path
// is returned; cleanup is then the caller's job.
func (c *Client) DownloadFile(ctx context.Context, urlPath, target string, untargz bool) (string, error) {
	if !untargz {
		return c.downloadToFile(ctx, urlPath, target)
	}

	tmpFile, err := c.downloadToFile(ctx, urlPath, "")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmpFile)

	if target == "" {
		target, err = os.MkdirTemp("", "encapsia-untar-")
		if err != nil {
			return "", fmt.Errorf("failed to create temp dir: %w", err)
		}
	}
	if err := untarToDir(tmpFile, target); err != nil {
		return "", err
	}
	return target, nil
}

// PipInstallFromPlugin downloads the Python wheelhouse published by the
// given plugin namespace and pip-installs it. The server-side artifact is a
// wheelhouse tarball regardless of the client language, so this shells out
// to pip; its combined output goes to stdout.
func (c *Client) PipInstallFromPlugin(ctx context.Context, namespace, wheelhouse string) error {
	if wheelhouse == "" {
		wheelhouse = "python/wheelhouse.tar.gz"
	}

	dir, err := c.DownloadFile(ctx, namespace+"/"+wheelhouse, "", true)
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	cmd := exec.CommandContext(ctx,
		"python3", "-m", "pip", "install",
		"--force",
		"--find-links", dir,
		"--requirement", filepath.Join(dir, "requirements.txt"),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stdout
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pip install from plugin %s failed: %w", namespace, err)
	}
	return nil
}
