package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"time"

	"github.com/EvanUsesRust/gb-emu/internal/store"
)

// handleDownload streams a stored file back to the client.
func (s *Server) handleDownload(cat category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fname := r.URL.Query().Get(cat.name)
		if fname == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		sp, err := s.resolver.Resolve(r)
		if err != nil {
			s.unauthorized(w, r, err)
			return
		}

		data, err := s.fileStore(cat).Read(sp, fname)
		if err != nil {
			s.storeError(w, r, err)
			return
		}

		w.Header().Add("Content-Type", cat.contentType)
		http.ServeContent(w, r, fname, time.Now(), bytes.NewReader(data))
	}
}

// handleUpload receives one multipart file and persists it. The body is
// hard-capped before any parsing so an oversize request is rejected rather
// than truncated, and ROM uploads must carry an allow-listed extension.
func (s *Server) handleUpload(cat category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

		file, handler, err := r.FormFile(cat.name)
		if err != nil {
			s.logger.Warn("upload missing form file",
				slog.String("field", cat.name),
				slog.String("error", err.Error()),
			)
			w.WriteHeader(http.StatusBadRequest)

			return
		}
		defer file.Close()

		if len(cat.extensions) > 0 && !slices.Contains(cat.extensions, filepath.Ext(handler.Filename)) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "File not in gba format, expected extensions are .gba/.gbc/.gb/.zip/.7z")

			return
		}

		sp, err := s.resolver.Resolve(r)
		if err != nil {
			s.unauthorized(w, r, err)
			return
		}

		if err := s.fileStore(cat).Write(sp, handler.Filename, file, MaxUploadBytes); err != nil {
			s.storeError(w, r, err)
			return
		}
	}
}

// handleList returns the tenant's file names as a JSON array.
func (s *Server) handleList(cat category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sp, err := s.resolver.Resolve(r)
		if err != nil {
			s.unauthorized(w, r, err)
			return
		}

		names, err := s.fileStore(cat).List(sp)
		if err != nil {
			s.storeError(w, r, err)
			return
		}

		resp, err := json.Marshal(names)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(resp)
	}
}

// unauthorized rejects a request that failed token resolution. No store
// access has happened at this point.
func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("unauthorized request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	w.WriteHeader(http.StatusBadRequest)
}

// storeError maps a store failure to a status code: client mistakes
// (too large, bad name, missing file on download) are 400-class, I/O
// failures are 500.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.Is(err, store.ErrTooLarge), errors.As(err, &maxBytesErr):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, store.ErrBadName):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		// The original API reported a missing file as a server error; kept
		// for client compatibility.
		w.WriteHeader(http.StatusInternalServerError)
	default:
		s.logger.Error("store operation failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		w.WriteHeader(http.StatusInternalServerError)
	}
}
