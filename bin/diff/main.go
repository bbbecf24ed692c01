package main

import (
	"asciitex/internal/config"
	diffimage "asciitex/internal/diff/image"
	difftext "asciitex/internal/diff/text"
	"asciitex/internal/storage"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"image"
	_ "image/jpeg"
	"image/png"
	"log"
	"log/slog"
	"os"
	"time"
)

type DiffOutput struct {
	DiffPath     string  `json:"diffPath"`
	DiffAmount   float64 `json:"diffAmount"`
	Similarity   float64 `json:"similarity"`
	SizeMismatch bool    `json:"sizeMismatch"`
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	var directory string
	var format string
	flag.StringVar(&directory, "directory", config.EnvOrDefault("DIRECTORY", "/tmp"), "Output directory")
	flag.StringVar(&format, "format", config.EnvOrDefault("FORMAT", "highlight"), "Diff format (highlight, region or line)")

	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		log.Fatalf("baseline, target not specified")
	}

	ctx := context.Background()
	s, err := storage.NewFileStorage(ctx, storage.FileConfig{
		Directory: directory,
	})
	if err != nil {
		log.Fatalf("Failed to create storage backend: %v", err)
	}

	baselinePath := args[0]
	targetPath := args[1]
	now := time.Now()

	var output DiffOutput
	switch format {
	case "line":
		baseline, err := os.ReadFile(baselinePath)
		if err != nil {
			log.Fatalf("Failed to read baseline: %v", err)
		}
		target, err := os.ReadFile(targetPath)
		if err != nil {
			log.Fatalf("Failed to read target: %v", err)
		}

		diffResult, err := difftext.NewLineDiff().Calculate(baseline, target)
		if err != nil {
			log.Fatalf("Failed to calculate line diff: %v", err)
		}

		output.DiffPath, err = s.Put(ctx, storage.Key(storage.KindDiff, "txt", now, baseline, target), diffResult.Diff)
		if err != nil {
			log.Fatalf("Failed to save diff: %v", err)
		}
		output.DiffAmount = diffResult.DiffAmount
	default:
		differ, err := diffimage.NewDiffer(format)
		if err != nil {
			log.Fatalf("Unknown diff type: %s", format)
		}

		baselineImage, err := loadImage(baselinePath)
		if err != nil {
			log.Fatalf("Failed to load baseline image: %v", err)
		}
		targetImage, err := loadImage(targetPath)
		if err != nil {
			log.Fatalf("Failed to load target image: %v", err)
		}

		output.Similarity, err = diffimage.Similarity(baselineImage, targetImage)
		if errors.Is(err, diffimage.ErrSizeMismatch) {
			slog.Warn("sample buffers differ in size", "baseline", baselinePath, "target", targetPath, "error", err)
			output.SizeMismatch = true
		}

		diffResult, err := differ.Calculate(baselineImage, targetImage)
		if errors.Is(err, diffimage.ErrDimensionMismatch) {
			// Nothing to overlay; report the images as entirely different.
			slog.Warn("skipping diff image", "error", err)
			output.DiffAmount = 1.0
			break
		}
		if err != nil {
			log.Fatalf("Failed to calculate diff: %v", err)
		}

		var buffer bytes.Buffer
		if err := png.Encode(&buffer, diffResult.Image); err != nil {
			log.Fatalf("Failed to encode diff image: %v", err)
		}

		output.DiffPath, err = s.Put(ctx, storage.Key(storage.KindDiff, "png", now, []byte(baselinePath), []byte(targetPath)), buffer.Bytes())
		if err != nil {
			log.Fatalf("Failed to save diff image: %v", err)
		}
		output.DiffAmount = diffResult.DiffAmount
	}

	if err := json.NewEncoder(os.Stdout).Encode(output); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
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
