package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	carousel "github.com/VantageDataChat/GoCarousel"
	"github.com/VantageDataChat/GoCarousel/generate"
	"github.com/VantageDataChat/GoCarousel/server"
	"github.com/VantageDataChat/GoCarousel/store"
)

const usage = `usage: carousel [-config file] [-v] <command> [flags]

commands:
  export   export a document (all slides or one) as PNG
  preview  paint one slide at a container width
  seed     generate a document from a brief
  serve    start the local editing server
  version  print the version
`

func main() {
	configPath := flag.String("config", "carousel.toml", "path to the TOML config")
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := carousel.LoadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	level := cfg.SlogLevel()
	if *verbose {
		level = slog.LevelDebug
	}
	carousel.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	switch args[0] {
	case "export":
		err = runExport(ctx, cfg, args[1:])
	case "preview":
		err = runPreview(ctx, cfg, args[1:])
	case "seed":
		err = runSeed(ctx, cfg, args[1:])
	case "serve":
		err = runServe(ctx, cfg, args[1:])
	case "version":
		fmt.Println("carousel", carousel.Version)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "carousel: %v\n", err)
	os.Exit(1)
}

// loadDocument reads a document from a JSON file, or from the store when the
// argument is not a file.
func loadDocument(ctx context.Context, cfg carousel.Config, ref string) (*carousel.Document, error) {
	if ref == "" {
		return nil, errors.New("a document file or id is required")
	}
	if data, err := os.ReadFile(ref); err == nil {
		return carousel.HydrateDocument(data)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Document(ctx, ref)
}

func runExport(ctx context.Context, cfg carousel.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	docRef := fs.String("doc", "", "document JSON file or stored document id")
	slide := fs.Int("slide", 0, "export only this slide (1-based)")
	out := fs.String("out", "", "output directory (overrides export.output_dir)")
	fs.Parse(args)

	if *out != "" {
		cfg.Export.OutputDir = *out
	}
	doc, err := loadDocument(ctx, cfg, *docRef)
	if err != nil {
		return err
	}

	tc := cfg.Build()
	tc.Exporter.Progress = func(st carousel.Status) {
		if st.Message != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", st.Stage, st.Message)
		}
	}

	if *slide > 0 {
		d, err := tc.Exporter.ExportSlide(ctx, doc, *slide-1)
		if err != nil {
			return err
		}
		fmt.Printf("slide %d delivered (%s)\n", *slide, d.Strategy)
		return nil
	}

	batch, err := tc.Exporter.ExportDocument(ctx, doc)
	if err != nil {
		return err
	}
	d, err := batch.Deliver(ctx)
	if err != nil {
		return err
	}
	if d.Cancelled {
		fmt.Println("share cancelled")
		return nil
	}
	fmt.Printf("%d slides delivered (%s)\n", doc.Len(), d.Strategy)
	return nil
}

func runPreview(ctx context.Context, cfg carousel.Config, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	docRef := fs.String("doc", "", "document JSON file or stored document id")
	slide := fs.Int("slide", 1, "slide to paint (1-based)")
	width := fs.Float64("width", 540, "container width in pixels")
	out := fs.String("o", "preview.png", "output PNG")
	fs.Parse(args)

	doc, err := loadDocument(ctx, cfg, *docRef)
	if err != nil {
		return err
	}
	s, err := doc.Slide(*slide - 1)
	if err != nil {
		return err
	}

	tc := cfg.Build()
	if err := tc.Renderer.LoadFonts(ctx, doc.Slides); err != nil {
		return err
	}
	img := tc.Renderer.NewPreview(*width).Paint(ctx, *slide-1, s)

	if dir := filepath.Dir(*out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	fmt.Printf("preview %dx%d written to %s\n", img.Bounds().Dx(), img.Bounds().Dy(), *out)
	return nil
}

func newSeeder(cfg carousel.Config, mock bool) (*generate.Seeder, error) {
	if mock {
		return generate.NewSeeder(&generate.MockLLM{}), nil
	}
	llm, err := generate.NewOpenAILLM(generate.Settings{
		Model:   cfg.LLM.Model,
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	return generate.NewSeeder(llm), nil
}

func runSeed(ctx context.Context, cfg carousel.Config, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	topic := fs.String("topic", "", "carousel topic")
	mode := fs.String("mode", "", "carousel format, e.g. list or story")
	objective := fs.String("objective", "", "what the carousel should achieve")
	emotion := fs.String("emotion", "", "tone of voice")
	count := fs.Int("count", 0, "number of slides")
	mock := fs.Bool("mock", false, "use placeholder text instead of the model")
	save := fs.Bool("save", true, "save the document to the store")
	fs.Parse(args)

	seeder, err := newSeeder(cfg, *mock)
	if err != nil {
		return err
	}
	doc, err := seeder.Seed(ctx, generate.Brief{
		Mode:      *mode,
		Topic:     strings.TrimSpace(*topic),
		Objective: *objective,
		Emotion:   *emotion,
		Count:     *count,
	})
	if err != nil {
		return err
	}
	if *save {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.SaveDocument(ctx, doc); err != nil {
			return err
		}
	}
	fmt.Println(doc.ID)
	for i, s := range doc.Slides {
		fmt.Printf("%2d. %s\n", i+1, s.Text)
	}
	return nil
}

func runServe(ctx context.Context, cfg carousel.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "listen address (overrides server.addr)")
	fs.Parse(args)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	seeder, err := newSeeder(cfg, false)
	if err != nil {
		carousel.Logger().Warn("seeding disabled", "err", err)
		seeder = nil
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(server.Options{Toolchain: cfg.Build(), Store: st, Seeder: seeder}),
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	carousel.Logger().Info("listening", "addr", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
