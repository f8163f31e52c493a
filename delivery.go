package carousel

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
)

// Artifact is one exported PNG, held in memory only for one delivery.
type Artifact struct {
	Index  int
	Name   string
	Data   []byte
	Width  int
	Height int
}

// ShareRequest is the payload handed to a native share primitive.
type ShareRequest struct {
	Files []Artifact
	Title string
	Text  string
}

// Platform is the sharing and download surface of the device running the
// editor. Implementations are black boxes: Share returns ErrShareCancelled when
// the user dismissed the share sheet and any other error when it failed.
type Platform interface {
	// NativeShare reports whether a share primitive exists at all.
	NativeShare() bool
	// Handheld reports whether the device is a phone or tablet.
	Handheld() bool
	// CanShare reports whether the platform accepts exactly this file set.
	CanShare(files []Artifact) bool
	Share(ctx context.Context, req ShareRequest) error
	// Download saves one file the conventional way for the platform.
	Download(ctx context.Context, name string, data []byte) error
}

// Strategy names how artifacts reached the user.
type Strategy int

const (
	StrategyShare Strategy = iota + 1
	StrategyChunkedShare
	StrategyDownload
	StrategyArchive
)

func (s Strategy) String() string {
	switch s {
	case StrategyShare:
		return "share"
	case StrategyChunkedShare:
		return "chunked-share"
	case StrategyDownload:
		return "download"
	case StrategyArchive:
		return "archive"
	}
	return "none"
}

// DeliveryOptions tunes Deliver. The share limits are empirical values tied to
// share sheets of current mobile platforms; revalidate them per target.
type DeliveryOptions struct {
	Title       string
	Text        string
	ArchiveName string
	// MaxShareBatch is the most files one share call is trusted with. Larger sets
	// rejected by the platform are split into two calls.
	MaxShareBatch int
	// ShareInterval separates the two calls of a chunked share; some platforms
	// refuse overlapping share invocations.
	ShareInterval time.Duration
}

// DefaultDeliveryOptions returns the tuned defaults.
func DefaultDeliveryOptions() DeliveryOptions {
	return DeliveryOptions{
		ArchiveName:   "carousel.zip",
		MaxShareBatch: 5,
		ShareInterval: 800 * time.Millisecond,
	}
}

// Delivery reports the outcome of Deliver.
type Delivery struct {
	Strategy Strategy
	// Cancelled is set when the user dismissed a share sheet; still a success.
	Cancelled bool
	// Fallback is set when the artifacts were downloaded instead of shared.
	Fallback bool
	// ShareCalls counts share invocations.
	ShareCalls int
}

// Deliver hands files to the user through the best channel pf offers, in order:
// native share of the whole set on handheld devices, share of the exact set
// when the platform accepts it, a two-call chunked share for sets above the
// single-call limit, then a direct download of the single file or of a ZIP
// archive of all of them. A failed share falls through to the next strategy;
// only the exhaustion of every strategy is an error.
func Deliver(ctx context.Context, pf Platform, files []Artifact, opts DeliveryOptions) (Delivery, error) {
	if len(files) == 0 {
		return Delivery{}, fmt.Errorf("%w: nothing to deliver", ErrNoDelivery)
	}
	var out Delivery
	log := Logger()

	share := func(set []Artifact) error {
		out.ShareCalls++
		return pf.Share(ctx, ShareRequest{Files: set, Title: opts.Title, Text: opts.Text})
	}

	if pf.NativeShare() && pf.Handheld() {
		err := share(files)
		if done, d := shareOutcome(err, StrategyShare, out); done {
			return d, nil
		}
		log.Debug("handheld share failed", "files", len(files), "err", err)
	}

	if pf.CanShare(files) {
		err := share(files)
		if done, d := shareOutcome(err, StrategyShare, out); done {
			return d, nil
		}
		log.Debug("share failed", "files", len(files), "err", err)
	}

	remaining := files
	if pf.NativeShare() && opts.MaxShareBatch > 0 && len(files) > opts.MaxShareBatch {
		mid := (len(files) + 1) / 2
		err := share(files[:mid])
		if done, d := shareOutcome(err, StrategyChunkedShare, out); done && errors.Is(err, ErrShareCancelled) {
			return d, nil
		}
		if err == nil {
			pause(opts.ShareInterval)
			err = share(files[mid:])
			if done, d := shareOutcome(err, StrategyChunkedShare, out); done {
				return d, nil
			}
			// The first half already reached the user.
			remaining = files[mid:]
		}
		log.Debug("chunked share failed", "files", len(files), "err", err)
	}

	out.Fallback = true
	if len(remaining) == 1 {
		if err := pf.Download(ctx, remaining[0].Name, remaining[0].Data); err != nil {
			return out, fmt.Errorf("%w: download: %v", ErrNoDelivery, err)
		}
		out.Strategy = StrategyDownload
		return out, nil
	}

	archive, err := Archive(remaining)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrNoDelivery, err)
	}
	name := opts.ArchiveName
	if name == "" {
		name = "carousel.zip"
	}
	if err := pf.Download(ctx, name, archive); err != nil {
		return out, fmt.Errorf("%w: download archive: %v", ErrNoDelivery, err)
	}
	out.Strategy = StrategyArchive
	return out, nil
}

// shareOutcome reports whether a share attempt ended delivery. A cancelled
// share is a deliberate user choice and counts as delivered.
func shareOutcome(err error, s Strategy, d Delivery) (bool, Delivery) {
	switch {
	case err == nil:
		d.Strategy = s
		return true, d
	case errors.Is(err, ErrShareCancelled):
		d.Strategy = s
		d.Cancelled = true
		return true, d
	}
	return false, d
}

// Archive bundles files into a ZIP archive. PNG data is stored uncompressed.
func Archive(files []Artifact) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Store})
		if err != nil {
			return nil, fmt.Errorf("archive %s: %w", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("archive %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}
