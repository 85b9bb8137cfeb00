package util

import (
	"testing"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcPastMedianTime(t *testing.T) {
	tests := []struct {
		name       string
		timestamps []int64
		expected   int64
	}{
		{
			name:       "single",
			timestamps: []int64{1296688602},
			expected:   1296688602,
		},
		{
			name:       "five unsorted",
			timestamps: []int64{1231470988, 1231470173, 1231469744, 1231469665, 1231006505},
			expected:   1231469744,
		},
		{
			name:       "even count takes upper middle",
			timestamps: []int64{4, 1, 3, 2},
			expected:   3,
		},
		{
			name: "eleven",
			timestamps: []int64{
				1686609209, 1686608789, 1686608129, 1686606869, 1686606449, 1686603569,
				1686603509, 1686603449, 1686603089, 1686601469, 1686600089,
			},
			expected: 1686603569,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := append([]int64(nil), tt.timestamps...)

			medianTime, err := CalcPastMedianTime(input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, medianTime)
			assert.Equal(t, tt.timestamps, input)
		})
	}
}

func TestCalcPastMedianTimeBounds(t *testing.T) {
	_, err := CalcPastMedianTime(nil)
	require.ErrorIs(t, err, errors.ErrProcessing)

	_, err = CalcPastMedianTime(make([]int64, MedianTimeBlocks+1))
	require.ErrorIs(t, err, errors.ErrProcessing)
}
