package carousel

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlatform is a scriptable Platform.
type fakePlatform struct {
	native    bool
	handheld  bool
	maxShare  int     // CanShare accepts sets up to this size; 0 rejects all
	shareErrs []error // returned by successive Share calls; nil entries succeed

	shares    [][]string
	downloads map[string][]byte
	dlErr     error
}

func (p *fakePlatform) NativeShare() bool { return p.native }
func (p *fakePlatform) Handheld() bool    { return p.handheld }

func (p *fakePlatform) CanShare(files []Artifact) bool {
	return p.native && len(files) <= p.maxShare
}

func (p *fakePlatform) Share(_ context.Context, req ShareRequest) error {
	var names []string
	for _, f := range req.Files {
		names = append(names, f.Name)
	}
	p.shares = append(p.shares, names)
	if n := len(p.shares) - 1; n < len(p.shareErrs) {
		return p.shareErrs[n]
	}
	return nil
}

func (p *fakePlatform) Download(_ context.Context, name string, data []byte) error {
	if p.dlErr != nil {
		return p.dlErr
	}
	if p.downloads == nil {
		p.downloads = make(map[string][]byte)
	}
	p.downloads[name] = data
	return nil
}

func artifacts(n int) []Artifact {
	out := make([]Artifact, n)
	for i := range out {
		out[i] = Artifact{Index: i, Name: fmt.Sprintf("slide_%02d_t.png", i+1), Data: []byte{byte(i)}}
	}
	return out
}

func testDeliveryOptions() DeliveryOptions {
	o := DefaultDeliveryOptions()
	o.ShareInterval = 0
	return o
}

func TestDeliverWithoutShareBuildsOneArchive(t *testing.T) {
	pf := &fakePlatform{}
	d, err := Deliver(context.Background(), pf, artifacts(3), testDeliveryOptions())
	require.NoError(t, err)
	assert.Equal(t, StrategyArchive, d.Strategy)
	assert.True(t, d.Fallback)
	assert.Zero(t, d.ShareCalls)
	require.Len(t, pf.downloads, 1)

	data := pf.downloads["carousel.zip"]
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	assert.Equal(t, "slide_01_t.png", zr.File[0].Name)
	assert.Equal(t, "slide_03_t.png", zr.File[2].Name)
}

func TestDeliverSingleDownload(t *testing.T) {
	pf := &fakePlatform{}
	d, err := Deliver(context.Background(), pf, artifacts(1), testDeliveryOptions())
	require.NoError(t, err)
	assert.Equal(t, StrategyDownload, d.Strategy)
	assert.Contains(t, pf.downloads, "slide_01_t.png")
}

func TestDeliverChunkedShare(t *testing.T) {
	pf := &fakePlatform{native: true, maxShare: 5}
	d, err := Deliver(context.Background(), pf, artifacts(7), testDeliveryOptions())
	require.NoError(t, err)
	assert.Equal(t, StrategyChunkedShare, d.Strategy)
	require.Len(t, pf.shares, 2)
	assert.Len(t, pf.shares[0], 4)
	assert.Len(t, pf.shares[1], 3)
	assert.Equal(t, "slide_01_t.png", pf.shares[0][0])
	assert.Equal(t, "slide_05_t.png", pf.shares[1][0])
	assert.Empty(t, pf.downloads)
}

func TestDeliverShareAcceptedSet(t *testing.T) {
	pf := &fakePlatform{native: true, maxShare: 5}
	d, err := Deliver(context.Background(), pf, artifacts(4), testDeliveryOptions())
	require.NoError(t, err)
	assert.Equal(t, StrategyShare, d.Strategy)
	assert.Len(t, pf.shares, 1)
	assert.False(t, d.Fallback)
}

func TestDeliverHandheldSharesEverything(t *testing.T) {
	pf := &fakePlatform{native: true, handheld: true}
	d, err := Deliver(context.Background(), pf, artifacts(9), testDeliveryOptions())
	require.NoError(t, err)
	assert.Equal(t, StrategyShare, d.Strategy)
	require.Len(t, pf.shares, 1)
	assert.Len(t, pf.shares[0], 9)
}

func TestDeliverCancelIsSuccess(t *testing.T) {
	pf := &fakePlatform{native: true, handheld: true, shareErrs: []error{ErrShareCancelled}}
	d, err := Deliver(context.Background(), pf, artifacts(3), testDeliveryOptions())
	require.NoError(t, err)
	assert.True(t, d.Cancelled)
	assert.Len(t, pf.shares, 1)
	assert.Empty(t, pf.downloads)
}

func TestDeliverFailedShareFallsThrough(t *testing.T) {
	fail := errors.New("share sheet crashed")
	pf := &fakePlatform{native: true, handheld: true, maxShare: 10, shareErrs: []error{fail, fail}}
	d, err := Deliver(context.Background(), pf, artifacts(2), testDeliveryOptions())
	require.NoError(t, err)
	assert.Equal(t, StrategyArchive, d.Strategy)
	assert.Equal(t, 2, d.ShareCalls)
	assert.Contains(t, pf.downloads, "carousel.zip")
}

func TestDeliverSecondChunkFailureDownloadsRemainder(t *testing.T) {
	fail := errors.New("busy")
	pf := &fakePlatform{native: true, maxShare: 5, shareErrs: []error{nil, fail}}
	d, err := Deliver(context.Background(), pf, artifacts(7), testDeliveryOptions())
	require.NoError(t, err)
	assert.Equal(t, StrategyArchive, d.Strategy)

	data := pf.downloads["carousel.zip"]
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Len(t, zr.File, 3)
}

func TestDeliverExhausted(t *testing.T) {
	pf := &fakePlatform{dlErr: errors.New("disk full")}
	_, err := Deliver(context.Background(), pf, artifacts(2), testDeliveryOptions())
	assert.ErrorIs(t, err, ErrNoDelivery)

	_, err = Deliver(context.Background(), &fakePlatform{}, nil, testDeliveryOptions())
	assert.ErrorIs(t, err, ErrNoDelivery)
}
