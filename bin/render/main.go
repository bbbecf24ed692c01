package main

import (
	"asciitex/internal/config"
	"asciitex/internal/render"
	"asciitex/internal/retry"
	"asciitex/internal/storage"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

type RenderOutput struct {
	ImagePath string `json:"imagePath"`
	ModesPath string `json:"modesPath"`
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	defaults := render.DefaultConfig()

	var directory string
	var storageBackend string
	var latexMath bool
	var strict bool
	var cellWidth int
	var cellHeight int
	var tabWidth int
	var face string
	var mathFont string
	var foreground string
	var background string
	var uploadRetries uint
	flag.StringVar(&directory, "directory", config.EnvOrDefault("DIRECTORY", "/tmp"), "Output directory")
	flag.StringVar(&storageBackend, "storage-backend", config.EnvOrDefault("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.BoolVar(&latexMath, "latex-math", config.EnvOrDefault("LATEX_MATH", true), "Typeset $...$ spans as LaTeX math")
	flag.BoolVar(&strict, "strict", config.EnvOrDefault("STRICT", false), "Fail on unterminated spans instead of drawing them as text")
	flag.IntVar(&cellWidth, "cell-width", config.EnvOrDefault("CELL_WIDTH", defaults.CellWidth), "Cell width in pixels")
	flag.IntVar(&cellHeight, "cell-height", config.EnvOrDefault("CELL_HEIGHT", defaults.CellHeight), "Cell height in pixels")
	flag.IntVar(&tabWidth, "tab-width", config.EnvOrDefault("TAB_WIDTH", defaults.TabWidth), "Tab width in cells")
	flag.StringVar(&face, "face", config.EnvOrDefault("FACE", defaults.Face), "Glyph face (basic or liberation-mono)")
	flag.StringVar(&mathFont, "math-font", config.EnvOrDefault("MATH_FONT", "go"), "Math font (go or liberation)")
	flag.StringVar(&foreground, "foreground", config.EnvOrDefault("FOREGROUND", "#000"), "Ink color")
	flag.StringVar(&background, "background", config.EnvOrDefault("BACKGROUND", "#fff"), "Background color")
	flag.UintVar(&uploadRetries, "upload-retries", config.EnvOrDefault[uint]("UPLOAD_RETRIES", 5), "Retries per failed upload")

	flag.Parse()

	source := "-"
	if args := flag.Args(); len(args) > 0 {
		source = args[0]
	}

	data, err := readSource(source)
	if err != nil {
		log.Fatalf("Failed to read source: %v", err)
	}

	c := defaults
	c.LatexMath = latexMath
	c.Strict = strict
	c.CellWidth = cellWidth
	c.CellHeight = cellHeight
	c.TabWidth = tabWidth
	c.Face = face
	if c.Foreground, err = render.ParseColor(foreground); err != nil {
		log.Fatalf("Invalid foreground: %v", err)
	}
	if c.Background, err = render.ParseColor(background); err != nil {
		log.Fatalf("Invalid background: %v", err)
	}

	typesetter, err := newTypesetter(c, mathFont)
	if err != nil {
		log.Fatalf("Failed to create typesetter: %v", err)
	}

	renderer, err := render.NewRenderer(c, render.WithTypesetter(typesetter), render.WithLogger(slog.Default()))
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}

	ctx := context.Background()
	s, err := storage.New(ctx, storage.Config{
		Backend: storageBackend,
		File:    storage.FileConfig{Directory: directory},
		S3: storage.S3Config{
			Bucket:      os.Getenv("S3_BUCKET"),
			EndpointURL: os.Getenv("S3_ENDPOINT_URL"),
		},
	})
	if err != nil {
		log.Fatalf("Failed to create storage backend: %v", err)
	}

	result, err := renderer.Render(ctx, data)
	if err != nil {
		log.Fatalf("Failed to render %s: %v", source, err)
	}

	s = storage.NewRetryingStorage(s, retry.NewExponentialBackOff(100*time.Millisecond, 5*time.Second, uploadRetries, nil))
	output, err := upload(ctx, s, data, result)
	if err != nil {
		log.Fatalf("Failed to store render: %v", err)
	}

	if err := json.NewEncoder(os.Stdout).Encode(output); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
}

func readSource(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func newTypesetter(c render.Config, mathFont string) (render.Typesetter, error) {
	switch mathFont {
	case "go":
		return render.NewMathTypesetter(c.FontSize, c.DPI), nil
	case "liberation":
		fonts, err := render.LiberationFonts()
		if err != nil {
			return nil, err
		}
		return render.NewMathTypesetter(c.FontSize, c.DPI, render.WithFonts(fonts)), nil
	}
	return nil, fmt.Errorf("unknown math font: %s", mathFont)
}

func upload(ctx context.Context, s storage.Storage, source []byte, result *render.Result) (*RenderOutput, error) {
	now := time.Now()
	output := &RenderOutput{}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		path, err := s.Put(ctx, storage.Key(storage.KindRender, "png", now, source), result.PNG)
		if err != nil {
			return xerrors.Errorf("failed to upload image: %w", err)
		}
		output.ImagePath = path
		return nil
	})
	eg.Go(func() error {
		path, err := s.Put(ctx, storage.Key(storage.KindModes, "modes", now, source), result.Modes)
		if err != nil {
			return xerrors.Errorf("failed to upload modes: %w", err)
		}
		output.ModesPath = path
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return output, nil
}
