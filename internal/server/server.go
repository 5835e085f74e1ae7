// Package server exposes the file store over HTTP. Routes follow the
// pattern /api/{rom|save}/{download|upload|list}; every route except the
// root greeting requires a verified bearer token, resolved to a tenant
// StorePath before any store access.
package server

import (
	"log/slog"
	"net/http"

	"github.com/EvanUsesRust/gb-emu/internal/claims"
	"github.com/EvanUsesRust/gb-emu/internal/store"
)

// MaxUploadBytes caps upload request bodies: 50 MiB plus headroom for the
// multipart framing.
const MaxUploadBytes = 50<<20 + 1024

// Server is the HTTP front for the per-tenant file stores.
type Server struct {
	roms     *store.FileStore
	saves    *store.FileStore
	resolver *claims.Resolver
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New creates a Server with all routes registered.
func New(roms, saves *store.FileStore, resolver *claims.Resolver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		roms:     roms,
		saves:    saves,
		resolver: resolver,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.routes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleHello)

	s.mux.HandleFunc("GET /api/rom/download", s.handleDownload(catROM))
	s.mux.HandleFunc("POST /api/rom/upload", s.handleUpload(catROM))
	s.mux.HandleFunc("GET /api/rom/list", s.handleList(catROM))

	s.mux.HandleFunc("GET /api/save/download", s.handleDownload(catSave))
	s.mux.HandleFunc("POST /api/save/upload", s.handleUpload(catSave))
	s.mux.HandleFunc("GET /api/save/list", s.handleList(catSave))
}

// category binds a route family to its store, parameter name, and content
// type. ROM uploads additionally carry an extension allow-list.
type category struct {
	// name doubles as the query parameter (download) and the multipart form
	// field (upload).
	name        string
	contentType string
	extensions  []string
}

var (
	catROM = category{
		name:        "rom",
		contentType: "application/x-gba-rom",
		extensions:  []string{".gba", ".gbc", ".gb", ".zip", ".7z"},
	}
	catSave = category{
		name:        "save",
		contentType: "application/octet-stream",
	}
)

// fileStore returns the backing store for a category.
func (s *Server) fileStore(cat category) *store.FileStore {
	if cat.name == catROM.name {
		return s.roms
	}

	return s.saves
}

// handleHello serves the unauthenticated liveness greeting.
func (s *Server) handleHello(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("Hello World! This is a GBA file/auth server, written in Golang."))
}
