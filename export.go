package carousel

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Stage is one state of an export operation.
type Stage string

const (
	StageIdle              Stage = "idle"
	StagePreparing         Stage = "preparing"
	StageCapturing         Stage = "capturing"
	StageReady             Stage = "ready"
	StageDelivering        Stage = "delivering"
	StageDelivered         Stage = "delivered"
	StageFallbackDelivered Stage = "fallback-delivered"
	StageFailed            Stage = "failed"
)

// Status is a progress report. Current is 1-based while capturing.
type Status struct {
	Stage   Stage  `json:"stage"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
	Message string `json:"message,omitempty"`
}

// Exporter turns slides into PNG artifacts and hands them to the platform.
//
// One operation runs at a time. A batch export keeps the exporter busy from
// the first preparation step until its Batch is delivered or released.
type Exporter struct {
	renderer  *Renderer
	readiness *Readiness
	capturer  *Capturer
	platform  Platform

	// Delivery configures the strategy chain. Title and ArchiveName are derived
	// from the document topic when empty.
	Delivery DeliveryOptions
	// Progress, when set, receives every status change.
	Progress func(Status)

	busy atomic.Bool
}

// NewExporter wires an exporter. A nil capturer captures with the renderer's
// painter.
func NewExporter(r *Renderer, rd *Readiness, c *Capturer, pf Platform) *Exporter {
	if c == nil {
		c = NewCapturer(r.Painter())
	}
	return &Exporter{
		renderer:  r,
		readiness: rd,
		capturer:  c,
		platform:  pf,
		Delivery:  DefaultDeliveryOptions(),
	}
}

// Busy reports whether an export operation is in progress.
func (e *Exporter) Busy() bool { return e.busy.Load() }

func (e *Exporter) emit(st Status) {
	Logger().Debug("export status", "stage", st.Stage, "current", st.Current, "total", st.Total)
	if e.Progress != nil {
		e.Progress(st)
	}
}

func (e *Exporter) fail(err error) error {
	e.emit(Status{Stage: StageFailed, Message: err.Error()})
	Logger().Error("export failed", "err", err)
	return err
}

// ExportSlide exports the slide at index and delivers it immediately.
func (e *Exporter) ExportSlide(ctx context.Context, doc *Document, index int) (Delivery, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return Delivery{}, ErrBusy
	}
	defer e.busy.Store(false)

	if _, err := doc.Slide(index); err != nil {
		return Delivery{}, e.fail(fmt.Errorf("export slide %d: %w", index+1, err))
	}
	topic := SanitizeTopic(doc.Topic)

	if err := e.prepare(ctx, doc, []int{index}); err != nil {
		return Delivery{}, e.fail(err)
	}
	e.emit(Status{Stage: StageCapturing, Current: 1, Total: 1, Message: "generating slide 1 of 1"})
	a, err := e.capture(ctx, index, fmt.Sprintf("slide_%d_%s.png", index+1, topic))
	if err != nil {
		return Delivery{}, e.fail(err)
	}
	e.emit(Status{Stage: StageReady, Total: 1})

	d, err := e.deliver(ctx, doc.Topic, topic, []Artifact{a})
	if err != nil {
		return d, e.fail(err)
	}
	return d, nil
}

// ExportDocument captures every slide of doc in index order and returns the
// artifacts held for confirmation. Nothing is handed to the platform until
// Batch.Deliver. A failed capture discards the partial set.
func (e *Exporter) ExportDocument(ctx context.Context, doc *Document) (*Batch, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	n := doc.Len()
	if n == 0 {
		e.busy.Store(false)
		return nil, e.fail(fmt.Errorf("export document: %w", ErrSlideIndex))
	}
	topic := SanitizeTopic(doc.Topic)

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if err := e.prepare(ctx, doc, indices); err != nil {
		e.busy.Store(false)
		return nil, e.fail(err)
	}

	artifacts := make([]Artifact, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			e.busy.Store(false)
			return nil, e.fail(err)
		}
		e.emit(Status{
			Stage:   StageCapturing,
			Current: i + 1,
			Total:   n,
			Message: fmt.Sprintf("generating slide %d of %d", i+1, n),
		})
		a, err := e.capture(ctx, i, fmt.Sprintf("slide_%02d_%s.png", i+1, topic))
		if err != nil {
			e.busy.Store(false)
			return nil, e.fail(err)
		}
		artifacts = append(artifacts, a)
	}
	e.emit(Status{Stage: StageReady, Total: n})
	Logger().Info("export ready", "slides", n, "topic", topic)

	return &Batch{exporter: e, title: doc.Topic, topic: topic, artifacts: artifacts}, nil
}

// prepare clears the readiness gates for indices and mounts the export surface.
func (e *Exporter) prepare(ctx context.Context, doc *Document, indices []int) error {
	e.emit(Status{Stage: StagePreparing, Total: len(indices), Message: "optimizing resources"})
	rep, err := e.readiness.Prepare(ctx, doc, indices)
	if err != nil {
		return fmt.Errorf("prepare resources: %w", err)
	}
	if len(rep.Failed) > 0 {
		Logger().Warn("some background images stay remote", "slides", rep.Failed)
	}
	e.renderer.Mount(doc)
	return nil
}

func (e *Exporter) capture(ctx context.Context, index int, name string) (Artifact, error) {
	tree, err := e.renderer.Surface().Node(index)
	if err != nil {
		return Artifact{}, &CaptureError{Index: index, Err: err}
	}
	img, err := e.capturer.Capture(ctx, tree, ExportWidth, ExportHeight)
	if err != nil {
		return Artifact{}, err
	}
	data, err := encodePNG(img)
	if err != nil {
		return Artifact{}, &CaptureError{Index: index, Err: err}
	}
	b := img.Bounds()
	return Artifact{Index: index, Name: name, Data: data, Width: b.Dx(), Height: b.Dy()}, nil
}

func (e *Exporter) deliver(ctx context.Context, title, topic string, files []Artifact) (Delivery, error) {
	opts := e.Delivery
	if opts.Title == "" {
		opts.Title = title
	}
	if opts.ArchiveName == "" || opts.ArchiveName == DefaultDeliveryOptions().ArchiveName {
		opts.ArchiveName = "carousel_" + topic + ".zip"
	}
	e.emit(Status{Stage: StageDelivering, Total: len(files)})
	d, err := Deliver(ctx, e.platform, files, opts)
	if err != nil {
		return d, err
	}
	stage := StageDelivered
	if d.Fallback {
		stage = StageFallbackDelivered
	}
	e.emit(Status{Stage: stage, Total: len(files), Message: d.Strategy.String()})
	Logger().Info("export delivered", "files", len(files), "strategy", d.Strategy, "cancelled", d.Cancelled)
	return d, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Batch is a captured set of artifacts awaiting confirmation.
type Batch struct {
	exporter *Exporter
	title    string
	topic    string

	mu        sync.Mutex
	artifacts []Artifact
	released  bool
}

// Artifacts returns the held artifacts in slide order.
func (b *Batch) Artifacts() []Artifact {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Artifact(nil), b.artifacts...)
}

// Len returns the number of held artifacts.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.artifacts)
}

// Deliver hands the artifacts to the platform and releases the batch whatever
// the outcome.
func (b *Batch) Deliver(ctx context.Context) (Delivery, error) {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return Delivery{}, ErrReleased
	}
	files := b.artifacts
	b.mu.Unlock()
	defer b.Release()

	d, err := b.exporter.deliver(ctx, b.title, b.topic, files)
	if err != nil {
		return d, b.exporter.fail(err)
	}
	return d, nil
}

// Release drops the artifacts without delivering them and frees the exporter.
// It is safe to call more than once.
func (b *Batch) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	b.artifacts = nil
	b.exporter.busy.Store(false)
	b.exporter.emit(Status{Stage: StageIdle})
}

// SanitizeTopic turns a document topic into a filename fragment: accents are
// stripped, letters lowercased, and every run of other characters becomes a
// single underscore. An empty result falls back to "carousel".
func SanitizeTopic(topic string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, topic)
	if err != nil {
		plain = topic
	}
	var sb strings.Builder
	sep := false
	for _, r := range strings.ToLower(plain) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if sep && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			sep = false
			sb.WriteRune(r)
			continue
		}
		sep = true
	}
	if sb.Len() == 0 {
		return "carousel"
	}
	return sb.String()
}
