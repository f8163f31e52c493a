package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	carousel "github.com/VantageDataChat/GoCarousel"
	"github.com/VantageDataChat/GoCarousel/generate"
	"github.com/VantageDataChat/GoCarousel/store"
)

func newTestServer(t *testing.T, seeder *generate.Seeder) (*Server, *store.Store, *httptest.Server) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "carousel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := carousel.DefaultConfig()
	cfg.Fonts.NoSystemFonts = true
	cfg.Export.SettleDelayMS = 0
	cfg.Export.WarmupDelayMS = 0
	cfg.Share.IntervalMS = 0

	srv := New(Options{Toolchain: cfg.Build(), Store: st, Seeder: seeder})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, st, ts
}

func saveDoc(t *testing.T, st *store.Store, topic string, n int) *carousel.Document {
	t.Helper()
	doc := carousel.NewDocument(topic)
	doc.Slides = nil
	for i := 0; i < n; i++ {
		doc.AddSlide(carousel.NewSlide("Headline", "Body"))
	}
	require.NoError(t, st.SaveDocument(context.Background(), doc))
	return doc
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPreviewScalesDown(t *testing.T) {
	srv, st, ts := newTestServer(t, nil)
	doc := saveDoc(t, st, "Preview", 1)
	require.NoError(t, srv.tc.Renderer.LoadFonts(context.Background(), doc.Slides))

	resp := do(t, http.MethodGet, ts.URL+"/api/documents/"+doc.ID+"/slides/0/preview?width=540", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "0.5", resp.Header.Get("X-Preview-Scale"))
	assert.Equal(t, "false", resp.Header.Get("X-Preview-Locked"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 540, img.Bounds().Dx())
	assert.Equal(t, 675, img.Bounds().Dy())
}

func TestPreviewNeverUpscales(t *testing.T) {
	_, st, ts := newTestServer(t, nil)
	doc := saveDoc(t, st, "Wide", 1)

	resp := do(t, http.MethodGet, ts.URL+"/api/documents/"+doc.ID+"/slides/0/preview?width=2000", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-Preview-Scale"))
}

func TestPreviewLocksWhileNewFamilyLoads(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	fonts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write(goregular.TTF)
	}))
	t.Cleanup(fonts.Close)
	t.Cleanup(unblock)

	srv, st, ts := newTestServer(t, nil)
	srv.tc.Fonts.AddSource("Lora", fonts.URL+"/lora.ttf")
	doc := saveDoc(t, st, "Fonts", 1)
	require.NoError(t, srv.tc.Renderer.LoadFonts(context.Background(), doc.Slides))

	previewURL := ts.URL + "/api/documents/" + doc.ID + "/slides/0/preview"
	assert.Equal(t, "false", do(t, http.MethodGet, previewURL, "").Header.Get("X-Preview-Locked"))

	resp := do(t, http.MethodPatch, ts.URL+"/api/documents/"+doc.ID+"/slides/0", `{"field":"fontFamily","value":"Lora"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", do(t, http.MethodGet, previewURL, "").Header.Get("X-Preview-Locked"))

	unblock()
	require.NoError(t, srv.tc.Fonts.Settled(context.Background()))
	assert.True(t, srv.tc.Fonts.Has("Lora"))
	assert.Equal(t, "false", do(t, http.MethodGet, previewURL, "").Header.Get("X-Preview-Locked"))
}

func TestPreviewErrors(t *testing.T) {
	_, st, ts := newTestServer(t, nil)
	doc := saveDoc(t, st, "Errors", 1)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, ts.URL+"/api/documents/"+doc.ID+"/slides/0/preview?width=-3", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, ts.URL+"/api/documents/"+doc.ID+"/slides/4/preview", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/api/documents/nope/slides/0/preview", "").StatusCode)
}

func TestPatchAndApplyStyle(t *testing.T) {
	_, st, ts := newTestServer(t, nil)
	doc := saveDoc(t, st, "Style", 3)
	base := ts.URL + "/api/documents/" + doc.ID

	resp := do(t, http.MethodPatch, base+"/slides/1", `{"field":"textColor","value":"#FF0000"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPatch, base+"/slides/1", `{"field":"nonsense","value":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, base+"/style/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := st.Document(context.Background(), doc.ID)
	require.NoError(t, err)
	for _, s := range got.Slides {
		assert.Equal(t, carousel.Color("#FF0000"), s.TextColor)
		assert.Equal(t, "Headline", s.Text)
	}
}

func TestPresetLibraryRoutes(t *testing.T) {
	_, st, ts := newTestServer(t, nil)
	doc := saveDoc(t, st, "Presets", 2)
	base := ts.URL + "/api/documents/" + doc.ID

	require.Equal(t, http.StatusOK, do(t, http.MethodPatch, base+"/slides/0", `{"field":"backgroundColor","value":"#123456"}`).StatusCode)

	resp := do(t, http.MethodPost, ts.URL+"/api/presets", `{"name":"Navy","documentId":"`+doc.ID+`","index":0}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, http.MethodPost, base+"/presets/Navy", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got carousel.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, carousel.Color("#123456"), got.Slides[1].BackgroundColor)

	resp = do(t, http.MethodGet, ts.URL+"/api/presets", "")
	var presets []carousel.Preset
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&presets))
	require.Len(t, presets, 1)

	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, base+"/presets/Missing", "").StatusCode)
}

func TestExportSlideRoute(t *testing.T) {
	_, st, ts := newTestServer(t, nil)
	doc := saveDoc(t, st, "Big Launch!", 2)

	resp := do(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/slides/1/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "slide_2_big_launch.png")

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, carousel.ExportWidth, img.Bounds().Dx())
	assert.Equal(t, carousel.ExportHeight, img.Bounds().Dy())
}

func TestExportDocumentRouteReturnsArchive(t *testing.T) {
	srv, st, ts := newTestServer(t, nil)
	doc := saveDoc(t, st, "Three things", 3)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.Hub().Len() == 1 }, time.Second, 10*time.Millisecond)

	resp := do(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "carousel_three_things.zip")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"slide_01_three_things.png",
		"slide_02_three_things.png",
		"slide_03_three_things.png",
	}, names)

	var st0 carousel.Status
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&st0))
	assert.Equal(t, carousel.StagePreparing, st0.Stage)
}

func TestExportRoutesAreSerialized(t *testing.T) {
	srv, st, ts := newTestServer(t, nil)
	doc := saveDoc(t, st, "Busy", 2)

	srv.exportMu.Lock()
	resp := do(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/export", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = do(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/slides/0/export", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	srv.exportMu.Unlock()

	resp = do(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/slides/1/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "slide_2_busy.png")
	assert.Empty(t, srv.platform.take(), "downloads must not outlive their request")

	resp = do(t, http.MethodPost, ts.URL+"/api/documents/"+doc.ID+"/slides/5/export", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, srv.platform.take())
}

func TestHubReplaysLastStatus(t *testing.T) {
	srv, _, ts := newTestServer(t, nil)
	srv.Hub().Broadcast(carousel.Status{Stage: carousel.StageReady, Total: 3})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var st carousel.Status
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, carousel.StageReady, st.Stage)
	assert.Equal(t, 3, st.Total)
}

func TestSeedRoute(t *testing.T) {
	_, _, ts := newTestServer(t, nil)
	resp := do(t, http.MethodPost, ts.URL+"/api/documents", `{"topic":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	_, st, ts := newTestServer(t, generate.NewSeeder(&generate.MockLLM{Count: 4}))
	resp = do(t, http.MethodPost, ts.URL+"/api/documents", `{"topic":"Habits","count":4}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var doc carousel.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Len(t, doc.Slides, 4)

	list, err := st.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Habits", list[0].Topic)
}
