package image

import (
	"errors"
	"image"
)

const DefaultThreshold = 0.999999

// Report summarizes a comparison of a rendered image against its golden
// counterpart.
type Report struct {
	Similarity   float64 `json:"similarity"`
	Threshold    float64 `json:"threshold"`
	Passed       bool    `json:"passed"`
	SizeMismatch bool    `json:"sizeMismatch"`
}

// Compare scores actual against golden. A size mismatch is reported in the
// Report, not as an error, and never passes.
func Compare(golden image.Image, actual image.Image, threshold float64) (*Report, error) {
	similarity, err := Similarity(golden, actual)
	report := &Report{
		Similarity: similarity,
		Threshold:  threshold,
	}
	if err != nil {
		if !errors.Is(err, ErrSizeMismatch) {
			return nil, err
		}
		report.SizeMismatch = true
		return report, nil
	}
	report.Passed = similarity > threshold
	return report, nil
}
