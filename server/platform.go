package server

import (
	"context"
	"sync"

	carousel "github.com/VantageDataChat/GoCarousel"
)

type download struct {
	name string
	data []byte
}

// responsePlatform delivers by download only. Downloads are collected and
// written to the HTTP response once the export returns. Server.exportMu is held
// from the start of an export until its downloads are taken, so one collector
// serves every request.
type responsePlatform struct {
	mu    sync.Mutex
	files []download
}

func (p *responsePlatform) NativeShare() bool                       { return false }
func (p *responsePlatform) Handheld() bool                          { return false }
func (p *responsePlatform) CanShare(files []carousel.Artifact) bool { return false }

func (p *responsePlatform) Share(ctx context.Context, req carousel.ShareRequest) error {
	return carousel.ErrShareUnavailable
}

func (p *responsePlatform) Download(ctx context.Context, name string, data []byte) error {
	p.mu.Lock()
	p.files = append(p.files, download{name: name, data: data})
	p.mu.Unlock()
	return nil
}

// take returns and clears the collected downloads.
func (p *responsePlatform) take() []download {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.files
	p.files = nil
	return out
}
