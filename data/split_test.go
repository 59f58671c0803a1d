// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package data

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// numberedDataset creates a dataset of n single-message conversations whose
// contents are unique, so partition membership can be checked.
func numberedDataset(n int) *Dataset {
	examples := make([]Example, n)
	for i := range examples {
		examples[i].Messages = []Message{
			{Role: "user", Content: fmt.Sprintf("example #%d", i)},
		}
	}
	return New("numbered", examples)
}

// contentsOf returns the set of first-message contents of a dataset.
func contentsOf(ds *Dataset) map[string]bool {
	contents := make(map[string]bool, ds.Len())
	for i := range ds.Len() {
		contents[ds.At(i).Messages[0].Content] = true
	}
	return contents
}

func TestSplitExactness(t *testing.T) {
	for _, test := range []struct {
		numExamples                     int
		trainRatio, valRatio, testRatio float64
		wantTrain, wantVal, wantTest    int
	}{
		{100, 0.80, 0.10, 0.10, 80, 10, 10},
		{95, 0.80, 0.10, 0.10, 76, 9, 10},
		{7, 0.60, 0.20, 0.20, 4, 2, 1},
		{1, 1.00, 0.00, 0.00, 1, 0, 0},
		{10, 0.00, 0.00, 1.00, 0, 0, 10},
	} {
		ds := numberedDataset(test.numExamples)
		splits, err := Split(ds, test.trainRatio, test.valRatio, test.testRatio, 42)
		require.NoError(t, err)
		require.Equal(t, test.wantTrain, splits.Train.Len())
		require.Equal(t, test.wantVal, splits.Validation.Len())
		require.Equal(t, test.wantTest, splits.Test.Len())
		require.Equal(t, test.numExamples,
			splits.Train.Len()+splits.Validation.Len()+splits.Test.Len())

		// The partitions must be disjoint and their union the full dataset.
		union := make(map[string]bool)
		total := 0
		for _, part := range []*Dataset{splits.Train, splits.Validation, splits.Test} {
			for content := range contentsOf(part) {
				require.False(t, union[content], "example %q assigned to two partitions", content)
				union[content] = true
			}
			total += part.Len()
		}
		require.Len(t, union, total)
		require.Equal(t, contentsOf(ds), union)
	}
}

func TestSplitDeterminism(t *testing.T) {
	ds := numberedDataset(128)
	first, err := Split(ds, 0.8, 0.1, 0.1, 7)
	require.NoError(t, err)
	second, err := Split(ds, 0.8, 0.1, 0.1, 7)
	require.NoError(t, err)
	require.Equal(t, first.Train.Examples(), second.Train.Examples())
	require.Equal(t, first.Validation.Examples(), second.Validation.Examples())
	require.Equal(t, first.Test.Examples(), second.Test.Examples())

	// A different seed must yield a different partition (128 examples make a
	// collision vanishingly unlikely).
	other, err := Split(ds, 0.8, 0.1, 0.1, 8)
	require.NoError(t, err)
	require.NotEqual(t, first.Test.Examples(), other.Test.Examples())
}

func TestSplitInvalidRatios(t *testing.T) {
	ds := numberedDataset(10)
	_, err := Split(ds, 0.7, 0.2, 0.05, 1)
	require.ErrorIs(t, err, ErrInvalidRatios)
	require.ErrorContains(t, err, "0.95")

	_, err = Split(ds, 1.1, -0.1, 0.0, 1)
	require.ErrorIs(t, err, ErrInvalidRatios)
}

func TestAnalyzeSplitDistribution(t *testing.T) {
	ds := numberedDataset(20)
	splits, err := Split(ds, 0.5, 0.25, 0.25, 3)
	require.NoError(t, err)

	stats := AnalyzeSplitDistribution(splits, runeTokenizer{})
	require.Len(t, stats, 3)
	require.Equal(t, 10, stats["train"].Count)
	require.Equal(t, 5, stats["validation"].Count)
	require.Equal(t, 5, stats["test"].Count)

	// "user: example #NN" is 16 or 17 runes depending on the number width.
	for _, s := range stats {
		require.GreaterOrEqual(t, s.Min, 16)
		require.LessOrEqual(t, s.Max, 17)
		require.GreaterOrEqual(t, s.Average, float64(s.Min))
		require.LessOrEqual(t, s.Average, float64(s.Max))
	}

	// Diagnostics only: the splits themselves must not gain derived columns.
	for _, part := range []*Dataset{splits.Train, splits.Validation, splits.Test} {
		require.False(t, part.Has(ColText))
		require.False(t, part.Has(ColLength))
		require.Empty(t, part.At(0).Text)
		require.Zero(t, part.At(0).Length)
	}
}

func TestAnalyzeSplitDistributionSkipsUnusable(t *testing.T) {
	// A split with neither "messages" nor "text" is skipped, not an error.
	empty := New("no-columns", make([]Example, 3))
	splits := &Splits{
		Train:      New("train", []Example{{Text: "some text"}}),
		Validation: empty,
		Test:       empty,
	}
	stats := AnalyzeSplitDistribution(splits, runeTokenizer{})
	require.Len(t, stats, 1)
	require.Equal(t, 1, stats["train"].Count)
	require.Equal(t, 9, stats["train"].Max) // len("some text")
}
