package util

import (
	"sort"

	"github.com/bsv-blockchain/fingerprint/errors"
)

// MedianTimeBlocks is the number of previous blocks, including the block
// itself, that make up the median-time-past window.
const MedianTimeBlocks = 11

// timeSorter implements sort.Interface to allow a slice of timestamps to
// be sorted.
type timeSorter []int64

func (s timeSorter) Len() int           { return len(s) }
func (s timeSorter) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s timeSorter) Less(i, j int) bool { return s[i] < s[j] }

// CalcPastMedianTime returns the median of up to MedianTimeBlocks timestamps.
// The input slice is not modified.
//
// For an even number of timestamps the upper middle element is returned
// rather than the average of the two middle elements, matching consensus.
func CalcPastMedianTime(timestamps []int64) (int64, error) {
	if len(timestamps) == 0 {
		return 0, errors.NewProcessingError("no timestamps for median time calculation")
	}

	if len(timestamps) > MedianTimeBlocks {
		return 0, errors.NewProcessingError("too many timestamps for median time calculation")
	}

	sorted := make([]int64, len(timestamps))
	copy(sorted, timestamps)
	sort.Sort(timeSorter(sorted))

	return sorted[len(sorted)/2], nil
}
