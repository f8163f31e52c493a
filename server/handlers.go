package server

import (
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	carousel "github.com/VantageDataChat/GoCarousel"
	"github.com/VantageDataChat/GoCarousel/generate"
)

const (
	maxBodySize         = 1 << 20
	defaultPreviewWidth = 540
)

// GET /api/documents
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.Documents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// POST /api/documents
func (s *Server) seedDocument(w http.ResponseWriter, r *http.Request) {
	var b generate.Brief
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&b); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if s.seeder == nil {
		writeError(w, generate.ErrMissingCredential)
		return
	}
	doc, err := s.seeder.Seed(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SaveDocument(r.Context(), doc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// GET /api/documents/{id}
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Document(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// PUT /api/documents/{id}
func (s *Server) putDocument(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		badRequest(w, "unreadable body")
		return
	}
	doc, err := carousel.HydrateDocument(raw)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	doc.ID = mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SaveDocument(r.Context(), doc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DELETE /api/documents/{id}
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.DeleteDocument(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mutate loads the document named by the route, applies fn and saves it.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(*carousel.Document) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.store.Document(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if err := fn(doc); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SaveDocument(r.Context(), doc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type addSlideRequest struct {
	Text          string `json:"text"`
	SecondaryText string `json:"secondaryText"`
}

// POST /api/documents/{id}/slides
func (s *Server) addSlide(w http.ResponseWriter, r *http.Request) {
	var req addSlideRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid JSON")
		return
	}
	s.mutate(w, r, func(doc *carousel.Document) error {
		doc.AddSlide(carousel.NewSlide(req.Text, req.SecondaryText))
		return nil
	})
}

type patchRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// PATCH /api/documents/{id}/slides/{index}
func (s *Server) patchSlide(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil || req.Field == "" {
		badRequest(w, "expected {\"field\": ..., \"value\": ...}")
		return
	}
	index := slideIndex(r)
	s.mutate(w, r, func(doc *carousel.Document) error {
		return doc.UpdateField(index, req.Field, req.Value)
	})
}

// DELETE /api/documents/{id}/slides/{index}
func (s *Server) removeSlide(w http.ResponseWriter, r *http.Request) {
	index := slideIndex(r)
	s.mutate(w, r, func(doc *carousel.Document) error {
		return doc.RemoveSlide(index)
	})
}

// POST /api/documents/{id}/style/{index}
func (s *Server) applyStyle(w http.ResponseWriter, r *http.Request) {
	index := slideIndex(r)
	s.mutate(w, r, func(doc *carousel.Document) error {
		return doc.ApplyStyleToAll(index)
	})
}

// POST /api/documents/{id}/presets/{name}
func (s *Server) applyPreset(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Preset(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	s.mutate(w, r, func(doc *carousel.Document) error {
		doc.ApplyPresetToAll(p)
		return nil
	})
}

// GET /api/documents/{id}/slides/{index}/preview?width=
//
// The response header X-Preview-Locked is "true" while fonts are still
// loading and the loading overlay covers the preview.
func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	width := float64(defaultPreviewWidth)
	if v := r.URL.Query().Get("width"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			badRequest(w, "width must be a positive number")
			return
		}
		width = f
	}
	doc, err := s.store.Document(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	index := slideIndex(r)
	sl, err := doc.Slide(index)
	if err != nil {
		writeError(w, err)
		return
	}

	// Every family of the document is requested so switching slides does not
	// start a new load; already loaded families are skipped.
	s.tc.Renderer.RequestFonts(doc.Slides)

	p := s.tc.Renderer.NewPreview(width)
	img, locked := p.Render(r.Context(), index, sl)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Preview-Scale", strconv.FormatFloat(p.Scale(), 'f', -1, 64))
	w.Header().Set("X-Preview-Locked", strconv.FormatBool(locked))
	if err := png.Encode(w, img); err != nil {
		carousel.Logger().Warn("encode preview", "err", err)
	}
}

// POST /api/documents/{id}/slides/{index}/export
func (s *Server) exportSlide(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Document(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if !s.exportMu.TryLock() {
		writeError(w, carousel.ErrBusy)
		return
	}
	defer s.exportMu.Unlock()
	if _, err := s.exporter.ExportSlide(r.Context(), doc, slideIndex(r)); err != nil {
		s.platform.take()
		writeError(w, err)
		return
	}
	writeDownloads(w, s.platform.take())
}

// POST /api/documents/{id}/export
//
// The request itself is the confirmation step, so the batch is delivered as
// soon as every slide is captured.
func (s *Server) exportDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Document(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if !s.exportMu.TryLock() {
		writeError(w, carousel.ErrBusy)
		return
	}
	defer s.exportMu.Unlock()
	batch, err := s.exporter.ExportDocument(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := batch.Deliver(r.Context()); err != nil {
		s.platform.take()
		writeError(w, err)
		return
	}
	writeDownloads(w, s.platform.take())
}

// GET /api/presets
func (s *Server) listPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.store.Presets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if presets == nil {
		presets = []carousel.Preset{}
	}
	writeJSON(w, http.StatusOK, presets)
}

type savePresetRequest struct {
	Name       string `json:"name"`
	DocumentID string `json:"documentId"`
	Index      int    `json:"index"`
}

// POST /api/presets captures the style of one slide under a name.
func (s *Server) savePreset(w http.ResponseWriter, r *http.Request) {
	var req savePresetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if req.Name == "" || req.DocumentID == "" {
		badRequest(w, "name and documentId are required")
		return
	}
	doc, err := s.store.Document(r.Context(), req.DocumentID)
	if err != nil {
		writeError(w, err)
		return
	}
	sl, err := doc.Slide(req.Index)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := carousel.CapturePreset(req.Name, sl)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SavePreset(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GET /api/fonts
func (s *Server) listFonts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, carousel.Catalog)
}
