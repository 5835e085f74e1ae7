package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EvanUsesRust/gb-emu/internal/claims"
	"github.com/EvanUsesRust/gb-emu/internal/store"
)

var testSecret = []byte("server-test-secret")

type testEnv struct {
	srv     *Server
	romDir  string
	saveDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	romDir := t.TempDir()
	saveDir := t.TempDir()
	resolver := claims.NewResolver(claims.NewCodec(testSecret))

	return &testEnv{
		srv:     New(store.New(romDir, nil), store.New(saveDir, nil), resolver, nil),
		romDir:  romDir,
		saveDir: saveDir,
	}
}

func mintToken(t *testing.T, subject, storePath string, exp time.Time) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims.Claims{
		StorePath: storePath,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	signed, err := tok.SignedString(testSecret)
	require.NoError(t, err)

	return signed
}

func aliceToken(t *testing.T) string {
	t.Helper()
	return mintToken(t, "alice", "alice-store", time.Now().Add(time.Hour))
}

// multipartBody builds a multipart form with a single file field.
func multipartBody(t *testing.T, field, filename, content string) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)

	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

func (e *testEnv) do(t *testing.T, method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(method, target, body)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}

	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, r)

	return w
}

func (e *testEnv) upload(t *testing.T, cat, token, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartBody(t, cat, filename, content)

	return e.do(t, http.MethodPost, "/api/"+cat+"/upload", token, body, contentType)
}

func TestHello_NoAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hello World")
}

func TestUploadDownload_RoundTrip(t *testing.T) {
	e := newTestEnv(t)
	token := aliceToken(t)
	content := "ROM\x00\x01binary content"

	w := e.upload(t, "rom", token, "game.gba", content)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/rom/download?rom=game.gba", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-gba-rom", w.Header().Get("Content-Type"))
	assert.Equal(t, content, w.Body.String())
}

func TestSaveUploadDownload_AnyExtension(t *testing.T) {
	e := newTestEnv(t)
	token := aliceToken(t)

	w := e.upload(t, "save", token, "game.whatever", "save data")
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/save/download?save=game.whatever", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "save data", w.Body.String())
}

func TestUpload_Idempotent(t *testing.T) {
	e := newTestEnv(t)
	token := aliceToken(t)

	require.Equal(t, http.StatusOK, e.upload(t, "rom", token, "game.gba", "first").Code)
	require.Equal(t, http.StatusOK, e.upload(t, "rom", token, "game.gba", "second").Code)

	w := e.do(t, http.MethodGet, "/api/rom/download?rom=game.gba", token, nil, "")
	assert.Equal(t, "second", w.Body.String())

	w = e.do(t, http.MethodGet, "/api/rom/list", token, nil, "")
	var names []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &names))
	assert.Equal(t, []string{"game.gba"}, names)
}

func TestUpload_DisallowedExtension(t *testing.T) {
	e := newTestEnv(t)
	token := aliceToken(t)

	for _, name := range []string{"game.exe", "game.GBA", "game", "game.gba.txt"} {
		w := e.upload(t, "rom", token, name, "payload")
		assert.Equal(t, http.StatusBadRequest, w.Code, "filename %q", name)
		assert.Contains(t, w.Body.String(), "expected extensions", "filename %q", name)
	}

	// Nothing persisted.
	entries, err := os.ReadDir(e.romDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpload_AllowedExtensions(t *testing.T) {
	e := newTestEnv(t)
	token := aliceToken(t)

	for _, name := range []string{"a.gba", "b.gbc", "c.gb", "d.zip", "e.7z"} {
		w := e.upload(t, "rom", token, name, "payload")
		assert.Equal(t, http.StatusOK, w.Code, "filename %q", name)
	}
}

func TestUpload_MissingFormFile(t *testing.T) {
	e := newTestEnv(t)

	body, contentType := multipartBody(t, "wrongfield", "game.gba", "payload")
	w := e.do(t, http.MethodPost, "/api/rom/upload", aliceToken(t), body, contentType)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpload_Unauthorized(t *testing.T) {
	e := newTestEnv(t)

	w := e.upload(t, "rom", "", "game.gba", "payload")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	entries, err := os.ReadDir(e.romDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpload_ExpiredToken(t *testing.T) {
	e := newTestEnv(t)
	token := mintToken(t, "alice", "alice-store", time.Now().Add(-time.Minute))

	w := e.upload(t, "rom", token, "game.gba", "payload")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	entries, err := os.ReadDir(e.romDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload_MissingParameter(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/rom/download", aliceToken(t), nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownload_MissingFile(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/rom/download?rom=nope.gba", aliceToken(t), nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestList_Empty(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/save/list", aliceToken(t), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestList_TenantIsolation(t *testing.T) {
	e := newTestEnv(t)
	alice := aliceToken(t)
	bob := mintToken(t, "bob", "bob-store", time.Now().Add(time.Hour))

	require.Equal(t, http.StatusOK, e.upload(t, "rom", alice, "a.gba", "a").Code)
	require.Equal(t, http.StatusOK, e.upload(t, "rom", alice, "b.gba", "b").Code)

	w := e.do(t, http.MethodGet, "/api/rom/list", alice, nil, "")
	var names []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &names))
	assert.ElementsMatch(t, []string{"a.gba", "b.gba"}, names)

	w = e.do(t, http.MethodGet, "/api/rom/list", bob, nil, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &names))
	assert.Empty(t, names)

	// Bob can't read Alice's file either.
	w = e.do(t, http.MethodGet, "/api/rom/download?rom=a.gba", bob, nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestList_Unauthorized(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/rom/list", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpload_OverCapRejected(t *testing.T) {
	e := newTestEnv(t)
	token := aliceToken(t)

	// The recorded body exceeds MaxUploadBytes; multipart parsing hits the
	// MaxBytesReader wall before anything reaches the store.
	big := strings.Repeat("x", MaxUploadBytes+1)

	w := e.upload(t, "save", token, "huge.sav", big)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	entries, err := os.ReadDir(e.saveDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTenantDirectoriesStayInsideRoot(t *testing.T) {
	e := newTestEnv(t)
	token := aliceToken(t)

	require.Equal(t, http.StatusOK, e.upload(t, "rom", token, "game.gba", "x").Code)

	_, err := os.Stat(filepath.Join(e.romDir, "alice-store", "game.gba"))
	assert.NoError(t, err)
}
