package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type blockTypesetter struct{}

func (blockTypesetter) Typeset(formula string) (image.Image, error) {
	img := image.NewAlpha(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := NewServer()
	s.typesetter = blockTypesetter{}
	server := httptest.NewServer(s.routes(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(server.Close)
	return server
}

func multipartBody(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := writer.CreateFormFile(name, name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, _ = part.Write(data)
	}
	for name, value := range fields {
		_ = writer.WriteField(name, value)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, img); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return buffer.Bytes()
}

func solid(w int, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestHandleModes(t *testing.T) {
	server := newTestServer(t)

	response, err := http.Post(server.URL+"/modes", "text/plain", strings.NewReader("xyz$xyz^^^$xyz\nxyz_xyz^^^_xyz"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", response.StatusCode)
	}

	var got ModesResponse
	if err := json.NewDecoder(response.Body).Decode(&got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"PPPLLLLLLLLPPP", "PPPPPPPPPPPPPP"}, got.Rows); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	bad, err := http.Post(server.URL+"/modes", "text/plain", strings.NewReader("xyz$xyz^^^_xyz"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", bad.StatusCode)
	}
}

func TestHandleRender(t *testing.T) {
	server := newTestServer(t)

	body, contentType := multipartBody(t, map[string][]byte{"source": []byte("+-+\n$x$")}, map[string]string{"latexMath": "true"})
	response, err := http.Post(server.URL+"/render", contentType, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", response.StatusCode)
	}

	var got RenderResponse
	if err := json.NewDecoder(response.Body).Decode(&got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"PPP", "LLL"}, got.Modes); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if got.Width != 27 || got.Height != 32 {
		t.Errorf("Expected 27x32, got %dx%d", got.Width, got.Height)
	}
	data, err := base64.StdEncoding.DecodeString(got.ImageData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("Expected a PNG, got %v", err)
	}

	body, contentType = multipartBody(t, map[string][]byte{"source": []byte("$x")}, map[string]string{"strict": "true"})
	strict, err := http.Post(server.URL+"/render", contentType, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer strict.Body.Close()
	if strict.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", strict.StatusCode)
	}
}

func TestHandleDiff(t *testing.T) {
	server := newTestServer(t)

	baseline := solid(10, 10, color.White)
	target := solid(10, 10, color.White)
	target.Set(3, 3, color.Black)

	t.Run("Highlight", func(t *testing.T) {
		body, contentType := multipartBody(t, map[string][]byte{
			"baseline": encodePNG(t, baseline),
			"target":   encodePNG(t, target),
		}, nil)
		response, err := http.Post(server.URL+"/diff", contentType, body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer response.Body.Close()
		if response.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", response.StatusCode)
		}

		var got DiffResponse
		if err := json.NewDecoder(response.Body).Decode(&got); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.DiffAmount != 0.01 {
			t.Errorf("Expected DiffAmount 0.01, got %f", got.DiffAmount)
		}
		if got.SizeMismatch || got.Similarity >= 1.0 {
			t.Errorf("Unexpected similarity result %+v", got)
		}
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		body, contentType := multipartBody(t, map[string][]byte{
			"baseline": encodePNG(t, baseline),
			"target":   encodePNG(t, solid(5, 5, color.White)),
		}, nil)
		response, err := http.Post(server.URL+"/diff", contentType, body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer response.Body.Close()
		if response.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("Expected 422, got %d", response.StatusCode)
		}
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		body, contentType := multipartBody(t, map[string][]byte{
			"baseline": encodePNG(t, baseline),
			"target":   encodePNG(t, target),
		}, map[string]string{"format": "dom"})
		response, err := http.Post(server.URL+"/diff", contentType, body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer response.Body.Close()
		if response.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", response.StatusCode)
		}
	})
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	response, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", response.StatusCode)
	}
}
