package carousel

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/h2non/filetype"
	"golang.org/x/sync/errgroup"
)

// ImageCache holds embedded background images per slide index for the
// lifetime of an editing session. Entries remember the reference they were
// made from, so a slide whose image changed is fetched again.
type ImageCache struct {
	mu    sync.RWMutex
	slots map[int]embeddedImage
}

type embeddedImage struct {
	source  string
	dataURI string
}

// NewImageCache creates an empty cache.
func NewImageCache() *ImageCache {
	return &ImageCache{slots: make(map[int]embeddedImage)}
}

// Lookup returns the embedded form of ref for slide index, if one exists.
func (c *ImageCache) Lookup(index int, ref string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.slots[index]
	if !ok || e.source != ref {
		return "", false
	}
	return e.dataURI, true
}

// Resolve returns the embedded form of ref when cached and ref itself otherwise.
func (c *ImageCache) Resolve(index int, ref string) string {
	if d, ok := c.Lookup(index, ref); ok {
		return d
	}
	return ref
}

func (c *ImageCache) store(index int, source, dataURI string) {
	c.mu.Lock()
	c.slots[index] = embeddedImage{source: source, dataURI: dataURI}
	c.mu.Unlock()
}

// Len returns the number of cached slots.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}

// Readiness runs the two gates that must clear before any capture: fonts
// loaded and remote background images embedded.
type Readiness struct {
	renderer *Renderer
	client   *http.Client

	// Parallelism bounds concurrent image fetches.
	Parallelism int
	// SettleDelay is waited after both gates cleared.
	SettleDelay time.Duration
}

// NewReadiness creates a readiness pipeline feeding r.
func NewReadiness(r *Renderer, client *http.Client) *Readiness {
	if client == nil {
		client = http.DefaultClient
	}
	return &Readiness{
		renderer:    r,
		client:      client,
		Parallelism: 4,
		SettleDelay: 300 * time.Millisecond,
	}
}

// PrepareReport summarizes one Prepare run.
type PrepareReport struct {
	Families []string
	Embedded int
	Cached   int
	Failed   []int // slide indices whose image kept its remote reference
}

// Prepare clears both gates for the slides at indices. Fonts for the whole set
// are loaded first, then every remote image is embedded, then SettleDelay is
// waited. Image failures are isolated; only a font wait interrupted by ctx fails.
func (rd *Readiness) Prepare(ctx context.Context, doc *Document, indices []int) (PrepareReport, error) {
	slides := make([]Slide, 0, len(indices))
	for _, i := range indices {
		s, err := doc.Slide(i)
		if err != nil {
			return PrepareReport{}, fmt.Errorf("slide %d: %w", i+1, err)
		}
		slides = append(slides, s)
	}

	rep := PrepareReport{Families: slideFamilies(slides)}
	if err := rd.renderer.LoadFonts(ctx, slides); err != nil {
		return rep, err
	}
	rep.Embedded, rep.Cached, rep.Failed = rd.EmbedImages(ctx, doc, indices)
	pause(rd.SettleDelay)
	return rep, nil
}

// EmbedImages converts the remote background image of each slide at indices
// into a data URI stored in the renderer's image cache. Conversions are
// independent: a failure is logged and leaves that slide on its live reference.
func (rd *Readiness) EmbedImages(ctx context.Context, doc *Document, indices []int) (embedded, cached int, failed []int) {
	var (
		g       errgroup.Group
		nEmbed  atomic.Int64
		mu      sync.Mutex
		cache   = rd.renderer.Images()
		limit   = rd.Parallelism
		skipped int
	)
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, i := range indices {
		i := i // per-iteration copy (pre-Go 1.22 loop semantics)
		if i < 0 || i >= len(doc.Slides) {
			continue
		}
		ref := doc.Slides[i].BgImage
		if !isRemote(ref) {
			continue
		}
		if _, ok := cache.Lookup(i, ref); ok {
			skipped++
			continue
		}
		g.Go(func() error {
			data, err := EmbedImage(ctx, rd.client, ref)
			if err != nil {
				Logger().Warn("image embed failed, keeping remote reference", "slide", i+1, "src", ref, "err", err)
				mu.Lock()
				failed = append(failed, i)
				mu.Unlock()
				return nil
			}
			cache.store(i, ref, data)
			nEmbed.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	sort.Ints(failed)
	return int(nEmbed.Load()), skipped, failed
}

// EmbedImage fetches a remote image and returns it as a self-contained data URI.
func EmbedImage(ctx context.Context, client *http.Client, url string) (string, error) {
	data, err := fetch(ctx, client, url, maxImageSize)
	if err != nil {
		return "", err
	}
	kind, err := filetype.Match(data)
	if err != nil {
		return "", fmt.Errorf("sniff %s: %w", url, err)
	}
	if !filetype.IsImage(data) {
		return "", fmt.Errorf("%s is not an image (%s)", url, kind.MIME.Value)
	}
	return "data:" + kind.MIME.Value + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// pause is a fixed, non-cancellable stabilization wait.
func pause(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
