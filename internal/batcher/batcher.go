// Package batcher splits a site's pending files into fixed-size batches.
package batcher

import (
	"slices"
	"strings"

	"github.com/d-singer/batdetect2-CLI/internal/discovery"
	"github.com/d-singer/batdetect2-CLI/internal/errors"
)

// DefaultSize is the number of files handed to one detector invocation.
const DefaultSize = 100

// Batch is one detector invocation's worth of files from a single site.
type Batch struct {
	Index int
	Files []discovery.AudioFile
}

// Split orders files by key and cuts them into batches of at most size
// files. The input slice is not modified. The last batch may be smaller.
func Split(files []discovery.AudioFile, size int) ([]Batch, error) {
	if size < 1 {
		return nil, errors.Newf("batch size must be positive, got %d", size).
			Component("batcher").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if len(files) == 0 {
		return nil, nil
	}

	sorted := slices.Clone(files)
	slices.SortStableFunc(sorted, func(a, b discovery.AudioFile) int {
		return strings.Compare(a.Key, b.Key)
	})

	batches := make([]Batch, 0, (len(sorted)+size-1)/size)
	for start := 0; start < len(sorted); start += size {
		end := min(start+size, len(sorted))
		batches = append(batches, Batch{
			Index: len(batches),
			Files: sorted[start:end:end],
		})
	}
	return batches, nil
}

// Count returns how many batches Split would produce.
func Count(n, size int) int {
	if size < 1 || n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
