package main

import (
	diffimage "asciitex/internal/diff/image"
	difftext "asciitex/internal/diff/text"
	"asciitex/internal/moderow"
	"asciitex/internal/myhttp"
	"asciitex/internal/render"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type DiffResponse struct {
	DiffData     string  `json:"diffData,omitempty"`
	DiffAmount   float64 `json:"diffAmount"`
	Similarity   float64 `json:"similarity"`
	SizeMismatch bool    `json:"sizeMismatch"`
	ChangedRows  []int   `json:"changedRows,omitempty"`
}

type RenderResponse struct {
	ImageData string   `json:"imageData"`
	Modes     []string `json:"modes"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
}

type ModesResponse struct {
	Rows []string `json:"rows"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		myhttp.Logger(r.Context()).Error("Failed to encode response", "error", err)
	}
}

func readFormFile(r *http.Request, name string) ([]byte, error) {
	file, _, err := r.FormFile(name)
	if err != nil {
		return nil, err
	}
	defer func(file multipart.File) {
		_ = file.Close()
	}(file)
	return io.ReadAll(file)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = "highlight"
	}

	baselineData, err := readFormFile(r, "baseline")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	targetData, err := readFormFile(r, "target")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if format == "line" {
		diffResult, err := difftext.NewLineDiff().Calculate(baselineData, targetData)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		writeJSON(w, r, http.StatusOK, DiffResponse{
			DiffData:    base64.StdEncoding.EncodeToString(diffResult.Diff),
			DiffAmount:  diffResult.DiffAmount,
			ChangedRows: diffResult.Changed,
		})
		return
	}

	differ, err := diffimage.NewDiffer(format)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	baselineImage, err := decodeImage(baselineData)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	targetImage, err := decodeImage(targetData)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	response := DiffResponse{}
	response.Similarity, err = diffimage.Similarity(baselineImage, targetImage)
	if errors.Is(err, diffimage.ErrSizeMismatch) {
		myhttp.Logger(r.Context()).Warn("sample buffers differ in size", "error", err)
		response.SizeMismatch = true
	}
	s.metrics.similarity.Record(r.Context(), response.Similarity, metric.WithAttributes(
		attribute.Key("format").String(format),
	))

	diffResult, err := differ.Calculate(baselineImage, targetImage)
	if errors.Is(err, diffimage.ErrDimensionMismatch) {
		writeJSON(w, r, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buffer bytes.Buffer
	if err := png.Encode(&buffer, diffResult.Image); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	response.DiffData = base64.StdEncoding.EncodeToString(buffer.Bytes())
	response.DiffAmount = diffResult.DiffAmount

	writeJSON(w, r, http.StatusOK, response)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	source, err := readFormFile(r, "source")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c := s.renderConfig
	c.LatexMath = formBool(r, "latexMath", true)
	c.Strict = formBool(r, "strict", false)

	renderer, err := render.NewRenderer(c, render.WithTypesetter(s.typesetter), render.WithLogger(myhttp.Logger(r.Context())))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	result, err := renderer.Render(r.Context(), source)
	switch {
	case errors.Is(err, moderow.ErrUnterminatedSpan):
		s.metrics.unterminatedSpansTotal.Add(r.Context(), 1)
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, render.ErrEmptyDiagram):
		writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		myhttp.Logger(r.Context()).Error("failed to render", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.metrics.rendersTotal.Add(r.Context(), 1, metric.WithAttributes(
		attribute.Key("latex_math").Bool(c.LatexMath),
	))

	modes := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		modes = append(modes, row.String())
	}

	writeJSON(w, r, http.StatusOK, RenderResponse{
		ImageData: base64.StdEncoding.EncodeToString(result.PNG),
		Modes:     modes,
		Width:     result.Image.Bounds().Dx(),
		Height:    result.Image.Bounds().Dy(),
	})
}

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rows, err := moderow.ClassifyLines(body)
	if err != nil {
		if errors.Is(err, moderow.ErrUnterminatedSpan) {
			s.metrics.unterminatedSpansTotal.Add(r.Context(), 1)
			writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	response := ModesResponse{Rows: make([]string, 0, len(rows))}
	for _, row := range rows {
		response.Rows = append(response.Rows, row.String())
	}
	writeJSON(w, r, http.StatusOK, response)
}

func formBool(r *http.Request, key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(r.FormValue(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func decodeImage(data []byte) (image.Image, error) {
	i, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return i, nil
}

