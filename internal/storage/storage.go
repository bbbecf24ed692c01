package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"
)

type Storage interface {
	// Put stores data under key and returns the URL it can be read back from.
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, url string) ([]byte, error)
}

// Artifact kinds used as the second key segment.
const (
	KindRender = "render"
	KindDiff   = "diff"
	KindModes  = "modes"
)

const timestampLayout = "20060102150405"

// Key builds Diagram/<kind>/<hash>/<timestamp>.<ext>, where hash is the
// first 16 hex digits of the SHA-256 of the given inputs.
func Key(kind string, ext string, at time.Time, inputs ...[]byte) string {
	h := sha256.New()
	for _, input := range inputs {
		h.Write(input)
	}
	return fmt.Sprintf("Diagram/%s/%x/%s.%s", kind, h.Sum(nil)[:8], at.Format(timestampLayout), ext)
}
