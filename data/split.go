// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package data

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrInvalidRatios is returned by Split when the three ratios don't sum
// to 1.0 (within ratioTolerance).
var ErrInvalidRatios = errors.New("split ratios must sum to 1.0")

const ratioTolerance = 1e-6

// Splits holds the three disjoint partitions of a dataset. Their union is
// the original dataset.
type Splits struct {
	Train      *Dataset
	Validation *Dataset
	Test       *Dataset

	// Seed used to compute the partition. The same (dataset, ratios, seed)
	// always yields the same partition.
	Seed int64
}

// Split partitions a dataset into train/validation/test by exact ratios,
// using a seeded shuffle so the partition is reproducible.
//
// It cuts in two stages: first the test partition is cut from the full
// dataset, then the validation partition is cut from the remainder with the
// ratio renormalized to valRatio/(trainRatio+valRatio). A single three-way
// cut can't be expressed with a binary cut primitive without rounding drift;
// renormalizing the second cut preserves the requested proportions up to the
// integer rounding of each partition size.
//
// The ratios must be non-negative and sum to 1.0 within 1e-6, otherwise
// Split fails with ErrInvalidRatios.
func Split(ds *Dataset, trainRatio, valRatio, testRatio float64, seed int64) (*Splits, error) {
	if trainRatio < 0 || valRatio < 0 || testRatio < 0 {
		return nil, errors.WithMessagef(ErrInvalidRatios,
			"ratios must be non-negative, got train=%g, validation=%g, test=%g",
			trainRatio, valRatio, testRatio)
	}
	sum := trainRatio + valRatio + testRatio
	if math.Abs(sum-1.0) > ratioTolerance {
		return nil, errors.WithMessagef(ErrInvalidRatios,
			"got train=%g + validation=%g + test=%g = %g",
			trainRatio, valRatio, testRatio, sum)
	}

	numExamples := ds.Len()

	// Stage 1: cut the test partition from the full dataset.
	trainValIdx, testIdx := cut(allIndices(numExamples), testRatio, seed)

	// Stage 2: cut validation from the remainder, reusing the same seed.
	valFraction := 0.0
	if trainRatio+valRatio > 0 {
		valFraction = valRatio / (trainRatio + valRatio)
	}
	trainIdx, valIdx := cut(trainValIdx, valFraction, seed)

	splits := &Splits{
		Train:      ds.subset("train", trainIdx),
		Validation: ds.subset("validation", valIdx),
		Test:       ds.subset("test", testIdx),
		Seed:       seed,
	}

	fmt.Printf("Dataset split of %q (%s samples, seed=%d):\n",
		ds.Name(), humanize.Comma(int64(numExamples)), seed)
	for _, part := range []struct {
		name string
		ds   *Dataset
	}{{"train", splits.Train}, {"validation", splits.Validation}, {"test", splits.Test}} {
		pct := 0.0
		if numExamples > 0 {
			pct = float64(part.ds.Len()) / float64(numExamples) * 100
		}
		fmt.Printf("  %-12s %s samples (%.1f%%)\n",
			part.name+":", humanize.Comma(int64(part.ds.Len())), pct)
	}
	return splits, nil
}

// cut splits indices into (rest, taken), where len(taken) is fraction of
// len(indices) rounded to the nearest integer, chosen by a seeded shuffle.
func cut(indices []int, fraction float64, seed int64) (rest, taken []int) {
	n := len(indices)
	numTaken := int(math.Round(fraction * float64(n)))
	if numTaken > n {
		numTaken = n
	}
	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	perm := rng.Perm(n)
	rest = make([]int, 0, n-numTaken)
	taken = make([]int, 0, numTaken)
	for pos, p := range perm {
		if pos < n-numTaken {
			rest = append(rest, indices[p])
		} else {
			taken = append(taken, indices[p])
		}
	}
	return
}

func allIndices(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

// LengthStats summarizes the token-length distribution of one split.
type LengthStats struct {
	Count   int
	Average float64
	Max     int
	Min     int
}

// AnalyzeSplitDistribution tokenizes every example of every split and
// reports the token-length distribution per split. It is a read-only
// diagnostic: the splits are never modified, and a split missing both the
// "messages" and "text" columns is logged and skipped rather than failing
// the run.
func AnalyzeSplitDistribution(splits *Splits, tokenizer Tokenizer) map[string]LengthStats {
	fmt.Println("Token length distribution per split:")
	stats := make(map[string]LengthStats)
	for _, part := range []struct {
		name string
		ds   *Dataset
	}{{"train", splits.Train}, {"validation", splits.Validation}, {"test", splits.Test}} {
		var lengths []int
		switch {
		case part.ds.Has(ColMessages):
			for i := range part.ds.Len() {
				text := FormatMessages(part.ds.At(i).Messages)
				lengths = append(lengths, len(tokenizer.Encode(text)))
			}
		case part.ds.Has(ColText):
			for i := range part.ds.Len() {
				lengths = append(lengths, len(tokenizer.Encode(part.ds.At(i).Text)))
			}
		default:
			klog.Warningf("Skipping split %q: neither %q nor %q column present",
				part.name, ColMessages, ColText)
			continue
		}

		s := LengthStats{Count: len(lengths)}
		if len(lengths) > 0 {
			total := 0
			s.Max = lengths[0]
			s.Min = lengths[0]
			for _, l := range lengths {
				total += l
				s.Max = max(s.Max, l)
				s.Min = min(s.Min, l)
			}
			s.Average = float64(total) / float64(len(lengths))
		}
		stats[part.name] = s
		fmt.Printf("  %-12s avg=%.0f, max=%d, min=%d (%s samples)\n",
			part.name+":", s.Average, s.Max, s.Min, humanize.Comma(int64(s.Count)))
	}
	return stats
}
