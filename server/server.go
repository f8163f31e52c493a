// Package server exposes a carousel editing surface over HTTP: document
// mutations, scaled previews, exports and a websocket progress stream.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	carousel "github.com/VantageDataChat/GoCarousel"
	"github.com/VantageDataChat/GoCarousel/generate"
	"github.com/VantageDataChat/GoCarousel/store"
)

// Options wires a Server.
type Options struct {
	Toolchain *carousel.Toolchain
	Store     *store.Store
	// Seeder is optional; without it seeding reports a missing credential.
	Seeder *generate.Seeder
}

// Server handles the editing API.
type Server struct {
	tc       *carousel.Toolchain
	store    *store.Store
	seeder   *generate.Seeder
	hub      *Hub
	platform *responsePlatform
	exporter *carousel.Exporter
	router   *mux.Router

	mu       sync.Mutex // serializes document read-modify-write cycles
	exportMu sync.Mutex // holds the response platform from export to take
}

// New creates a server and its routes.
func New(opts Options) *Server {
	s := &Server{
		tc:       opts.Toolchain,
		store:    opts.Store,
		seeder:   opts.Seeder,
		hub:      NewHub(),
		platform: &responsePlatform{},
	}
	s.exporter = carousel.NewExporter(s.tc.Renderer, s.tc.Readiness, s.tc.Capturer, s.platform)
	s.exporter.Delivery = s.tc.Exporter.Delivery
	s.exporter.Progress = s.hub.Broadcast
	s.router = s.routes()
	return s
}

// Hub returns the progress hub.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/documents", s.listDocuments).Methods(http.MethodGet)
	api.HandleFunc("/documents", s.seedDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}", s.getDocument).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", s.putDocument).Methods(http.MethodPut)
	api.HandleFunc("/documents/{id}", s.deleteDocument).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{id}/slides", s.addSlide).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/slides/{index:[0-9]+}", s.patchSlide).Methods(http.MethodPatch)
	api.HandleFunc("/documents/{id}/slides/{index:[0-9]+}", s.removeSlide).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{id}/style/{index:[0-9]+}", s.applyStyle).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/slides/{index:[0-9]+}/preview", s.preview).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/slides/{index:[0-9]+}/export", s.exportSlide).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/export", s.exportDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/presets/{name}", s.applyPreset).Methods(http.MethodPost)

	api.HandleFunc("/presets", s.listPresets).Methods(http.MethodGet)
	api.HandleFunc("/presets", s.savePreset).Methods(http.MethodPost)

	api.Handle("/progress", s.hub).Methods(http.MethodGet)
	api.HandleFunc("/fonts", s.listFonts).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		carousel.Logger().Warn("write response", "err", err)
	}
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var capErr *carousel.CaptureError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, carousel.ErrSlideIndex),
		errors.Is(err, carousel.ErrUnknownField),
		errors.Is(err, carousel.ErrLastSlide):
		status = http.StatusBadRequest
	case errors.Is(err, carousel.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, generate.ErrMissingCredential):
		status = http.StatusServiceUnavailable
	case errors.As(err, &capErr):
		status = http.StatusUnprocessableEntity
	}
	if status >= http.StatusInternalServerError {
		carousel.Logger().Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func slideIndex(r *http.Request) int {
	// The route pattern guarantees digits.
	i, _ := strconv.Atoi(mux.Vars(r)["index"])
	return i
}

// writeDownloads writes the export result: the single delivered file as an
// attachment.
func writeDownloads(w http.ResponseWriter, files []download) {
	if len(files) == 0 {
		writeError(w, carousel.ErrNoDelivery)
		return
	}
	f := files[len(files)-1]
	ctype := "image/png"
	if path.Ext(f.name) == ".zip" {
		ctype = "application/zip"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.name))
	w.Header().Set("Content-Length", strconv.Itoa(len(f.data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(f.data); err != nil {
		carousel.Logger().Warn("write download", "name", f.name, "err", err)
	}
}
