package main

import (
	"asciitex/internal/config"
	diffimage "asciitex/internal/diff/image"
	difftext "asciitex/internal/diff/text"
	"asciitex/internal/render"
	"asciitex/internal/retry"
	"asciitex/internal/storage"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

type CheckOutput struct {
	ImagePath       string  `json:"imagePath"`
	ModesPath       string  `json:"modesPath"`
	DiffPath        string  `json:"diffPath,omitempty"`
	DiffAmount      float64 `json:"diffAmount"`
	Similarity      float64 `json:"similarity"`
	Threshold       float64 `json:"threshold"`
	Passed          bool    `json:"passed"`
	SizeMismatch    bool    `json:"sizeMismatch"`
	ModesDiffPath   string  `json:"modesDiffPath,omitempty"`
	ModesDiffAmount float64 `json:"modesDiffAmount"`
	ChangedRows     []int   `json:"changedRows,omitempty"`
}

type Checker struct {
	Renderer  *render.Renderer
	Storage   storage.Storage
	Differ    diffimage.Differ
	Threshold float64
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	var directory string
	var storageBackend string
	var diffFormat string
	var threshold float64
	var latexMath bool
	var strict bool
	var goldenModesPath string
	var callbackURL string
	var callbackRetryOn string
	flag.StringVar(&directory, "directory", config.EnvOrDefault("DIRECTORY", "/tmp"), "Output directory")
	flag.StringVar(&storageBackend, "storage-backend", config.EnvOrDefault("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&diffFormat, "diff-format", config.EnvOrDefault("DIFF_FORMAT", "highlight"), "Diff format (highlight or region)")
	flag.Float64Var(&threshold, "threshold", config.EnvOrDefault("THRESHOLD", diffimage.DefaultThreshold), "Minimum similarity to pass")
	flag.BoolVar(&latexMath, "latex-math", config.EnvOrDefault("LATEX_MATH", true), "Typeset $...$ spans as LaTeX math")
	flag.BoolVar(&strict, "strict", config.EnvOrDefault("STRICT", true), "Fail on unterminated spans instead of drawing them as text")
	flag.StringVar(&goldenModesPath, "golden-modes", config.EnvOrDefault("GOLDEN_MODES", ""), "Golden mode file to diff the rendered modes against")
	flag.StringVar(&callbackURL, "callback-url", config.EnvOrDefault("CALLBACK_URL", ""), "Callback URL to send results to")
	flag.StringVar(&callbackRetryOn, "callback-retry-on", config.EnvOrDefault("CALLBACK_RETRY_ON", retry.DefaultRetryOn), "Callback retry conditions (5xx, gateway-error, connect-failure, retriable-4xx or status codes)")

	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		log.Fatalf("source, golden not specified")
	}

	retryOn, err := retry.NewRetryOnFromString(callbackRetryOn)
	if err != nil {
		log.Fatalf("Failed to parse callback retry conditions: %v", err)
	}

	ctx := context.Background()

	source, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("Failed to read source: %v", err)
	}
	golden, err := loadImage(args[1])
	if err != nil {
		log.Fatalf("Failed to load golden image: %v", err)
	}
	var goldenModes []byte
	if goldenModesPath != "" {
		goldenModes, err = os.ReadFile(goldenModesPath)
		if err != nil {
			log.Fatalf("Failed to read golden modes: %v", err)
		}
	}

	c := render.DefaultConfig()
	c.LatexMath = latexMath
	c.Strict = strict
	renderer, err := render.NewRenderer(c)
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}

	differ, err := diffimage.NewDiffer(diffFormat)
	if err != nil {
		log.Fatalf("Failed to create differ: %v", err)
	}

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

	checker := &Checker{
		Renderer:  renderer,
		Storage:   storage.NewRetryingStorage(s, retry.NewExponentialBackOff(100*time.Millisecond, 5*time.Second, 5, nil)),
		Differ:    differ,
		Threshold: threshold,
	}

	output, err := checker.Check(ctx, source, golden, goldenModes)
	if err != nil {
		log.Fatalf("Failed to check %s: %v", args[0], err)
	}

	j, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal result: %v", err)
	}

	if callbackURL == "" {
		fmt.Println(string(j))
	} else {
		if err := callback(ctx, callbackURL, j, retryOn); err != nil {
			log.Fatalf("Failed to send callback: %v", err)
		}
	}

	if !output.Passed {
		os.Exit(1)
	}
}

func (c *Checker) Check(ctx context.Context, source []byte, golden image.Image, goldenModes []byte) (*CheckOutput, error) {
	// Step 1: Render
	result, err := c.Renderer.Render(ctx, source)
	if err != nil {
		return nil, xerrors.Errorf("failed to render: %w", err)
	}

	// Step 2: Compare against the golden image
	report, err := diffimage.Compare(golden, result.Image, c.Threshold)
	if err != nil {
		return nil, xerrors.Errorf("failed to compare: %w", err)
	}
	if report.SizeMismatch {
		slog.Warn("rendered image and golden image differ in size",
			"golden", golden.Bounds().Size().String(), "rendered", result.Image.Bounds().Size().String())
	}

	output := &CheckOutput{
		Similarity:   report.Similarity,
		Threshold:    report.Threshold,
		Passed:       report.Passed,
		SizeMismatch: report.SizeMismatch,
		DiffAmount:   1.0,
	}

	var diffImage []byte
	diffResult, err := c.Differ.Calculate(golden, result.Image)
	switch {
	case errors.Is(err, diffimage.ErrDimensionMismatch):
		slog.Warn("skipping diff image", "error", err)
	case err != nil:
		return nil, xerrors.Errorf("failed to generate diff: %w", err)
	default:
		var buffer bytes.Buffer
		if err := png.Encode(&buffer, diffResult.Image); err != nil {
			return nil, xerrors.Errorf("failed to encode diff image: %w", err)
		}
		diffImage = buffer.Bytes()
		output.DiffAmount = diffResult.DiffAmount
	}

	// Step 2.5: Diff the mode file
	var modesDiff []byte
	if goldenModes != nil {
		textResult, err := difftext.NewLineDiff().Calculate(goldenModes, result.Modes)
		if err != nil {
			return nil, xerrors.Errorf("failed to calculate modes diff: %w", err)
		}
		modesDiff = textResult.Diff
		output.ModesDiffAmount = textResult.DiffAmount
		output.ChangedRows = textResult.Changed
	}

	// Step 3: Upload all artifacts in parallel
	now := time.Now()
	put := func(ctx context.Context, kind string, ext string, data []byte, path *string) func() error {
		return func() error {
			url, err := c.Storage.Put(ctx, storage.Key(kind, ext, now, source), data)
			if err != nil {
				return xerrors.Errorf("failed to upload %s %s: %w", kind, ext, err)
			}
			*path = url
			return nil
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(put(ctx, storage.KindRender, "png", result.PNG, &output.ImagePath))
	eg.Go(put(ctx, storage.KindModes, "modes", result.Modes, &output.ModesPath))
	if diffImage != nil {
		eg.Go(put(ctx, storage.KindDiff, "png", diffImage, &output.DiffPath))
	}
	if modesDiff != nil {
		eg.Go(put(ctx, storage.KindDiff, "txt", modesDiff, &output.ModesDiffPath))
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return output, nil
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}

	return img, nil
}

func callback(ctx context.Context, callbackURL string, data []byte, retryOn *retry.On) error {
	client := &http.Client{
		Timeout: 1 * time.Second,
	}

	return retry.Do(ctx, retry.NewExponentialBackOff(10*time.Millisecond, 1*time.Second, 3, nil), func(ctx context.Context) error {
		request, err := http.NewRequestWithContext(ctx, http.MethodPatch, callbackURL, bytes.NewReader(data))
		if err != nil {
			return retry.Permanent(xerrors.Errorf("failed to create request: %w", err))
		}
		request.Header.Set("Content-Type", "application/json")

		response, err := client.Do(request)
		if err != nil {
			return retryOn.Outcome(nil, xerrors.Errorf("failed to send request: %w", err))
		}
		defer response.Body.Close()

		return retryOn.Outcome(response, nil)
	})
}
