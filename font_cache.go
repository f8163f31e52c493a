package carousel

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// fallbackFamily is the embedded family used when a requested one is unavailable.
const fallbackFamily = "go"

// fontKey uniquely identifies a font face by name, size, bold, and italic.
type fontKey struct {
	name   string
	size   float64
	bold   bool
	italic bool
}

// FontCache manages TrueType font loading and face caching.
// It searches system font directories and user-specified directories
// for .ttf and .otf files, fetches families registered as remote sources on
// demand, then caches parsed fonts and rendered faces.
type FontCache struct {
	mu           sync.RWMutex
	dirs         []string                  // directories to search for fonts
	sources      map[string]string         // lowercase family -> URL or file path
	fonts        map[string]*opentype.Font // lowercase font name -> parsed font
	faces        map[fontKey]font.Face     // cached render faces (HintingFull)
	measureFaces map[fontKey]font.Face     // cached measure faces (HintingNone)
	pending      map[string]chan struct{}  // in-flight Require loads
	attempted    map[string]bool           // sources whose load has finished or failed
	scanned      bool
	client       *http.Client
}

// NewFontCache creates a FontCache that searches the given directories
// plus the OS default font directories.
func NewFontCache(extraDirs ...string) *FontCache {
	return NewFontCacheDirs(append(systemFontDirs(), extraDirs...)...)
}

// NewFontCacheDirs creates a FontCache that searches only the given directories.
func NewFontCacheDirs(dirs ...string) *FontCache {
	return &FontCache{
		dirs:         dirs,
		sources:      make(map[string]string),
		fonts:        make(map[string]*opentype.Font),
		faces:        make(map[fontKey]font.Face),
		measureFaces: make(map[fontKey]font.Face),
		pending:      make(map[string]chan struct{}),
		attempted:    make(map[string]bool),
		client:       http.DefaultClient,
	}
}

// SetHTTPClient sets the client used to fetch remote font sources.
func (fc *FontCache) SetHTTPClient(c *http.Client) {
	fc.mu.Lock()
	fc.client = c
	fc.mu.Unlock()
}

// AddSource registers where a family can be loaded from when it is not
// installed: an http(s) URL or a local file path.
func (fc *FontCache) AddSource(family, location string) {
	fc.mu.Lock()
	key := strings.ToLower(family)
	fc.sources[key] = location
	delete(fc.attempted, key)
	fc.mu.Unlock()
}

// Require requests that each family be loaded. Installed families are ready
// immediately; families with a registered source are fetched in the background.
// Use Settled to wait for every outstanding request.
func (fc *FontCache) Require(ctx context.Context, families ...string) {
	fc.ensureScanned()
	for _, family := range families {
		key := strings.ToLower(family)
		fc.mu.Lock()
		_, have := fc.fonts[key]
		_, inflight := fc.pending[key]
		src, ok := fc.sources[key]
		if have || inflight || !ok {
			fc.mu.Unlock()
			if !have && !ok {
				Logger().Debug("font not installed, using fallback", "family", family)
			}
			continue
		}
		done := make(chan struct{})
		fc.pending[key] = done
		client := fc.client
		fc.mu.Unlock()

		go func(family, src string) {
			defer func() {
				fc.mu.Lock()
				delete(fc.pending, key)
				fc.attempted[key] = true
				fc.mu.Unlock()
				close(done)
			}()
			if err := fc.loadSource(ctx, client, family, src); err != nil {
				Logger().Warn("font load failed", "family", family, "source", src, "err", err)
			}
		}(family, src)
	}
}

// Settled blocks until no Require load is in flight.
func (fc *FontCache) Settled(ctx context.Context) error {
	for {
		fc.mu.RLock()
		waits := make([]chan struct{}, 0, len(fc.pending))
		for _, ch := range fc.pending {
			waits = append(waits, ch)
		}
		fc.mu.RUnlock()
		if len(waits) == 0 {
			return nil
		}
		for _, ch := range waits {
			select {
			case <-ch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Pending reports whether any Require load is still in flight.
func (fc *FontCache) Pending() bool {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return len(fc.pending) > 0
}

// Ready reports whether every family can be drawn as it will finally look: no
// load is in flight for it, and a family with a registered source has been
// loaded or has failed to load. Families without a source are ready since they
// resolve to an installed font or the fallback.
func (fc *FontCache) Ready(families ...string) bool {
	fc.ensureScanned()
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	for _, family := range families {
		key := strings.ToLower(family)
		if _, inflight := fc.pending[key]; inflight {
			return false
		}
		_, have := fc.fonts[key]
		_, hasSource := fc.sources[key]
		if hasSource && !have && !fc.attempted[key] {
			return false
		}
	}
	return true
}

// Has reports whether the family resolves to a loaded font (not the fallback).
func (fc *FontCache) Has(family string) bool {
	fc.ensureScanned()
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	_, ok := fc.fonts[strings.ToLower(family)]
	return ok
}

func (fc *FontCache) loadSource(ctx context.Context, client *http.Client, family, src string) error {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		data, err := fetch(ctx, client, src, maxFontFileSize)
		if err != nil {
			return err
		}
		return fc.LoadFontData(family, data)
	}
	return fc.LoadFont(family, src)
}

// Face returns a render face for the given properties, falling back to the
// embedded Go family. It never returns nil.
func (fc *FontCache) Face(name string, sizePx float64, bold, italic bool) font.Face {
	if face := fc.GetFace(name, sizePx, bold, italic); face != nil {
		return face
	}
	return fc.GetFace(fallbackFamily, sizePx, bold, italic)
}

// MeasureFace is Face with unhinted metrics, used for layout.
func (fc *FontCache) MeasureFace(name string, sizePx float64, bold, italic bool) font.Face {
	if face := fc.GetMeasureFace(name, sizePx, bold, italic); face != nil {
		return face
	}
	return fc.GetMeasureFace(fallbackFamily, sizePx, bold, italic)
}

// GetFace returns a font.Face for the given font properties.
// It tries to find a matching TrueType font; returns nil if not found.
func (fc *FontCache) GetFace(name string, sizePx float64, bold, italic bool) font.Face {
	return fc.face(fc.faces, font.HintingFull, name, sizePx, bold, italic)
}

// GetMeasureFace returns a font.Face with HintingNone for text measurement.
// Unhinted advances do not depend on the pixel grid, so a layout measured at
// export resolution wraps at the same characters when painted scaled down.
func (fc *FontCache) GetMeasureFace(name string, sizePx float64, bold, italic bool) font.Face {
	return fc.face(fc.measureFaces, font.HintingNone, name, sizePx, bold, italic)
}

func (fc *FontCache) face(cache map[fontKey]font.Face, hinting font.Hinting, name string, sizePx float64, bold, italic bool) font.Face {
	fc.ensureScanned()

	key := fontKey{name: strings.ToLower(name), size: sizePx, bold: bold, italic: italic}

	fc.mu.RLock()
	if face, ok := cache[key]; ok {
		fc.mu.RUnlock()
		return face
	}
	fc.mu.RUnlock()

	f := fc.findFont(name, bold, italic)
	if f == nil {
		return nil
	}

	// DPI 72 makes Size a pixel size.
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    sizePx,
		DPI:     72,
		Hinting: hinting,
	})
	if err != nil {
		return nil
	}

	fc.mu.Lock()
	cache[key] = face
	fc.mu.Unlock()
	return face
}

// findFont looks up a parsed font by name, trying style-specific variants first.
func (fc *FontCache) findFont(name string, bold, italic bool) *opentype.Font {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	lower := strings.ToLower(name)

	if bold && italic {
		for _, suffix := range []string{" bold italic", "-bolditalic", "bi", " bolditalic", "z"} {
			if f, ok := fc.fonts[lower+suffix]; ok {
				return f
			}
		}
	}
	if bold {
		for _, suffix := range []string{" bold", "-bold", "bd", "b"} {
			if f, ok := fc.fonts[lower+suffix]; ok {
				return f
			}
		}
	}
	if italic {
		for _, suffix := range []string{" italic", "-italic", "i", " it"} {
			if f, ok := fc.fonts[lower+suffix]; ok {
				return f
			}
		}
	}

	if f, ok := fc.fonts[lower]; ok {
		return f
	}
	// Remote families are often registered under a hyphenated file name.
	if f, ok := fc.fonts[strings.ReplaceAll(lower, " ", "")]; ok {
		return f
	}
	return nil
}

// LoadFont manually loads a TrueType/OpenType font file and registers it under the given name.
// Returns an error if the file exceeds maxFontFileSize.
func (fc *FontCache) LoadFont(name string, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() > maxFontFileSize {
		return fmt.Errorf("font file too large: %d bytes (max %d)", info.Size(), maxFontFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return fc.LoadFontData(name, data)
}

// LoadFontData registers a TrueType/OpenType font from raw bytes.
func (fc *FontCache) LoadFontData(name string, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return err
	}
	fc.mu.Lock()
	fc.fonts[strings.ToLower(name)] = f
	fc.registerByFamilyName(f)
	fc.mu.Unlock()
	return nil
}

func (fc *FontCache) ensureScanned() {
	fc.mu.RLock()
	scanned := fc.scanned
	fc.mu.RUnlock()
	if scanned {
		return
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.scanned {
		return
	}
	fc.scanned = true

	fc.registerFallback()
	for _, dir := range fc.dirs {
		fc.scanDir(dir)
	}
}

// registerFallback parses the embedded Go fonts. Must be called with the lock held.
func (fc *FontCache) registerFallback() {
	for suffix, data := range map[string][]byte{
		"":             goregular.TTF,
		" bold":        gobold.TTF,
		" italic":      goitalic.TTF,
		" bold italic": gobolditalic.TTF,
	} {
		f, err := opentype.Parse(data)
		if err != nil {
			continue
		}
		fc.fonts[fallbackFamily+suffix] = f
	}
}

// maxFontScanDepth limits recursive directory traversal when scanning for fonts.
const maxFontScanDepth = 3

// maxFontFileSize limits the size of individual font files loaded into memory.
const maxFontFileSize = 20 << 20 // 20 MB

func (fc *FontCache) scanDir(dir string) {
	fc.scanDirDepth(dir, 0)
}

func (fc *FontCache) scanDirDepth(dir string, depth int) {
	if depth > maxFontScanDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			fc.scanDirDepth(filepath.Join(dir, entry.Name()), depth+1)
			continue
		}
		name := entry.Name()
		lower := strings.ToLower(name)
		isTTC := strings.HasSuffix(lower, ".ttc") || strings.HasSuffix(lower, ".otc")
		isSingle := strings.HasSuffix(lower, ".ttf") || strings.HasSuffix(lower, ".otf")
		if !isTTC && !isSingle {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.Size() > maxFontFileSize {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}

		if isTTC {
			fc.loadCollection(data, lower)
		} else {
			fc.loadSingleFont(data, lower)
		}
	}
}

// loadSingleFont parses a single TTF/OTF font and registers it by both
// filename and internal family name.
func (fc *FontCache) loadSingleFont(data []byte, lowerFilename string) {
	f, err := opentype.Parse(data)
	if err != nil {
		return
	}
	baseName := strings.TrimSuffix(lowerFilename, filepath.Ext(lowerFilename))
	fc.fonts[baseName] = f
	fc.registerByFamilyName(f)
}

// loadCollection parses a TTC/OTC font collection and registers each font
// by its internal family name.
func (fc *FontCache) loadCollection(data []byte, lowerFilename string) {
	coll, err := opentype.ParseCollection(data)
	if err != nil {
		return
	}
	for i := 0; i < coll.NumFonts(); i++ {
		f, err := coll.Font(i)
		if err != nil {
			continue
		}
		if i == 0 {
			baseName := strings.TrimSuffix(lowerFilename, filepath.Ext(lowerFilename))
			fc.fonts[baseName] = f
		}
		fc.registerByFamilyName(f)
	}
}

// registerByFamilyName registers f under its family and full names.
// Must be called with the lock held.
func (fc *FontCache) registerByFamilyName(f *opentype.Font) {
	familyName, err := f.Name(nil, sfnt.NameIDFamily)
	if err == nil && familyName != "" {
		if _, taken := fc.fonts[strings.ToLower(familyName)]; !taken {
			fc.fonts[strings.ToLower(familyName)] = f
		}
	}
	// Full names carry the style, e.g. "Montserrat Bold".
	fullName, err := f.Name(nil, sfnt.NameIDFull)
	if err == nil && fullName != "" {
		fc.fonts[strings.ToLower(fullName)] = f
	}
}

// systemFontDirs returns OS-specific font directories.
func systemFontDirs() []string {
	switch runtime.GOOS {
	case "windows":
		windir := os.Getenv("WINDIR")
		if windir == "" {
			windir = `C:\Windows`
		}
		dirs := []string{filepath.Join(windir, "Fonts")}
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			dirs = append(dirs, filepath.Join(localAppData, "Microsoft", "Windows", "Fonts"))
		}
		return dirs
	case "darwin", "ios":
		home, _ := os.UserHomeDir()
		dirs := []string{
			"/System/Library/Fonts",
			"/Library/Fonts",
		}
		if home != "" {
			dirs = append(dirs, filepath.Join(home, "Library", "Fonts"))
		}
		return dirs
	case "android":
		return []string{"/system/fonts"}
	default: // linux, freebsd, etc.
		home, _ := os.UserHomeDir()
		dirs := []string{
			"/usr/share/fonts",
			"/usr/local/share/fonts",
		}
		if home != "" {
			dirs = append(dirs, filepath.Join(home, ".local", "share", "fonts"))
			dirs = append(dirs, filepath.Join(home, ".fonts"))
		}
		return dirs
	}
}
