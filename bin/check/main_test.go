package main

import (
	diffimage "asciitex/internal/diff/image"
	"asciitex/internal/render"
	"asciitex/internal/retry"
	"asciitex/internal/storage"
	"context"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type blockTypesetter struct{}

func (blockTypesetter) Typeset(formula string) (image.Image, error) {
	img := image.NewAlpha(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img, nil
}

func newTestChecker(t *testing.T) *Checker {
	t.Helper()

	c := render.DefaultConfig()
	c.LatexMath = true
	renderer, err := render.NewRenderer(c, render.WithTypesetter(blockTypesetter{}), render.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := storage.NewFileStorage(context.Background(), storage.FileConfig{Directory: t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &Checker{
		Renderer:  renderer,
		Storage:   s,
		Differ:    diffimage.NewHighlightDiff(),
		Threshold: diffimage.DefaultThreshold,
	}
}

func TestChecker_Check(t *testing.T) {
	ctx := context.Background()
	source := []byte("+---+\n|$x$|\n+---+")

	t.Run("MatchesGolden", func(t *testing.T) {
		checker := newTestChecker(t)
		golden, err := checker.Renderer.Render(ctx, source)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output, err := checker.Check(ctx, source, golden.Image, golden.Modes)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !output.Passed || output.Similarity != 1.0 {
			t.Errorf("Expected a pass with similarity 1, got %+v", output)
		}
		if output.DiffAmount != 0.0 || output.ModesDiffAmount != 0.0 {
			t.Errorf("Expected no differences, got %+v", output)
		}

		modes, err := os.ReadFile(output.ModesPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff("PPPPP\nPLLLP\nPPPPP", string(modes)); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		for _, path := range []string{output.ImagePath, output.DiffPath, output.ModesDiffPath} {
			if _, err := os.Stat(path); err != nil {
				t.Errorf("Expected %q to exist: %v", path, err)
			}
		}
	})

	t.Run("ChangedGolden", func(t *testing.T) {
		checker := newTestChecker(t)
		golden, err := checker.Renderer.Render(ctx, []byte("+---+\n| x |\n+---+"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output, err := checker.Check(ctx, source, golden.Image, golden.Modes)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if output.Passed {
			t.Errorf("Expected a failure, got %+v", output)
		}
		if output.DiffAmount == 0.0 {
			t.Errorf("Expected a non zero DiffAmount")
		}
		if diff := cmp.Diff([]int{2}, output.ChangedRows); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("SizeMismatch", func(t *testing.T) {
		checker := newTestChecker(t)
		golden := image.NewRGBA(image.Rect(0, 0, 10, 10))
		for i := range golden.Pix {
			golden.Pix[i] = 0xff
		}

		output, err := checker.Check(ctx, source, golden, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !output.SizeMismatch || output.Passed || output.Similarity != 0.0 {
			t.Errorf("Expected a size mismatch failure, got %+v", output)
		}
		if output.DiffPath != "" || output.ModesDiffPath != "" {
			t.Errorf("Expected no diff artifacts, got %+v", output)
		}
	})
}

func TestCallback(t *testing.T) {
	t.Run("RetriesGatewayErrors", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPatch {
				t.Errorf("Expected PATCH, got %s", r.Method)
			}
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		if err := callback(context.Background(), server.URL, []byte("{}"), retry.NewDefaultRetryOn()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := atomic.LoadInt32(&calls); got != 2 {
			t.Errorf("Expected 2 calls, got %d", got)
		}
	})

	t.Run("ClientErrorIsPermanent", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		if err := callback(context.Background(), server.URL, []byte("{}"), retry.NewDefaultRetryOn()); err == nil {
			t.Fatalf("Expected an error")
		}
		if got := atomic.LoadInt32(&calls); got != 1 {
			t.Errorf("Expected 1 call, got %d", got)
		}
	})

	t.Run("CustomRetryOn", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		on, err := retry.NewRetryOnFromString("5xx")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := callback(context.Background(), server.URL, []byte("{}"), on); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := atomic.LoadInt32(&calls); got != 3 {
			t.Errorf("Expected 3 calls, got %d", got)
		}
	})

	t.Run("ServerErrorIsPermanentByDefault", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		if err := callback(context.Background(), server.URL, []byte("{}"), retry.NewDefaultRetryOn()); err == nil {
			t.Fatalf("Expected an error")
		}
		if got := atomic.LoadInt32(&calls); got != 1 {
			t.Errorf("Expected 1 call, got %d", got)
		}
	})
}
