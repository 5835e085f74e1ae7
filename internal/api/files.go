package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
)

// Category selects which file family an operation targets. Its value is
// the route segment as well as the query/form parameter name the service
// expects.
type Category string

const (
	CategoryROM  Category = "rom"
	CategorySave Category = "save"
)

// List returns the caller's file names in the given category.
func (c *Client) List(ctx context.Context, cat Category) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/%s/list", cat), "", http.NoBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, fmt.Errorf("api: decoding list response: %w", err)
	}

	return names, nil
}

// Download streams the named file to w and returns the bytes written.
func (c *Client) Download(ctx context.Context, cat Category, name string, w io.Writer) (int64, error) {
	path := fmt.Sprintf("/api/%s/download?%s=%s", cat, cat, url.QueryEscape(name))

	resp, err := c.do(ctx, http.MethodGet, path, "", http.NoBody)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("api: downloading %s: %w", name, err)
	}

	c.logger.Debug("download complete",
		slog.String("category", string(cat)),
		slog.String("name", name),
		slog.Int64("bytes", n),
	)

	return n, nil
}

// Upload sends a file as the category's multipart form field. The body is
// streamed through a pipe so large files are never buffered in full.
func (c *Client) Upload(ctx context.Context, cat Category, name string, r io.Reader) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile(string(cat), name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}

		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}

		pw.CloseWithError(mw.Close())
	}()

	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/%s/upload", cat), mw.FormDataContentType(), pr)
	if err != nil {
		return fmt.Errorf("api: uploading %s: %w", name, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("upload complete",
		slog.String("category", string(cat)),
		slog.String("name", name),
	)

	return nil
}
