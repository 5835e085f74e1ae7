package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticToken is a TokenSource returning a fixed token or error.
type staticToken struct {
	token string
	err   error
}

func (s staticToken) Token() (string, error) { return s.token, s.err }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(srv.URL, srv.Client(), staticToken{token: "test-token"}, nil)
}

func TestList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/rom/list", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`["a.gba","b.gba"]`))
	})

	names, err := c.List(context.Background(), CategoryROM)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.gba", "b.gba"}, names)
}

func TestDownload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/save/download", r.URL.Path)
		assert.Equal(t, "game.sav", r.URL.Query().Get("save"))

		w.Write([]byte("save bytes"))
	})

	var buf bytes.Buffer

	n, err := c.Download(context.Background(), CategorySave, "game.sav", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("save bytes")), n)
	assert.Equal(t, "save bytes", buf.String())
}

func TestUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/rom/upload", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		file, handler, err := r.FormFile("rom")
		require.NoError(t, err)
		defer file.Close()

		assert.Equal(t, "game.gba", handler.Filename)

		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "rom content", string(content))
	})

	err := c.Upload(context.Background(), CategoryROM, "game.gba", strings.NewReader("rom content"))
	require.NoError(t, err)
}

func TestDo_TokenSourceError(t *testing.T) {
	var called atomic.Bool

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called.Store(true)
	}))
	defer srv.Close()

	tokenErr := errors.New("not authenticated")
	c := NewClient(srv.URL, srv.Client(), staticToken{err: tokenErr}, nil)

	_, err := c.List(context.Background(), CategoryROM)
	assert.ErrorIs(t, err, tokenErr)
	assert.False(t, called.Load(), "no request may be sent without a token")
}

func TestDo_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"bad request", http.StatusBadRequest, "File not in gba format", ErrBadRequest},
		{"unauthorized-ish", http.StatusUnauthorized, "", ErrBadRequest},
		{"not found", http.StatusNotFound, "", ErrNotFound},
		{"server error", http.StatusInternalServerError, "", ErrServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.List(context.Background(), CategoryROM)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)

			if tt.body != "" {
				assert.Contains(t, apiErr.Message, tt.body)
			}
		})
	}
}
