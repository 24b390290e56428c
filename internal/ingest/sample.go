package ingest

import (
	"math/rand"
	"sort"
)

// sampleIndices picks at most size row indices from n rows. The same seed
// always yields the same sample, returned in ascending order so first-seen
// column order follows the document.
func sampleIndices(n, size int, seed int64) []int {
	if size <= 0 || n <= size {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(n)[:size]
	sort.Ints(idx)
	return idx
}
