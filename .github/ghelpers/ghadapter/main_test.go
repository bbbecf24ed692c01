package main

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteOutputs(t *testing.T) {
	var b bytes.Buffer
	err := writeOutputs(&b, map[string]any{
		"similarity":  0.5,
		"passed":      false,
		"imagePath":   "/tmp/Diagram/render/abc/1.png",
		"changedRows": []any{2.0, 5.0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "changedRows=[2,5]\nimagePath=/tmp/Diagram/render/abc/1.png\npassed=false\nsimilarity=0.5\n"
	if diff := cmp.Diff(want, b.String()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
