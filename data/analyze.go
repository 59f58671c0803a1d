// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package data

import (
	"fmt"
	"math"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/types/xslices"
	"github.com/pkg/errors"
)

// Tokenizer encodes text into token ids. It must be deterministic for a
// fixed text and must not add special tokens (BOS/EOS).
//
// go-huggingface's tokenizers/api.Tokenizer satisfies this interface.
type Tokenizer interface {
	Encode(text string) []int
}

var (
	// ErrMissingMessages is returned when the dataset to analyze has no
	// "messages" column.
	ErrMissingMessages = errors.New(`dataset has no "messages" column, conversational data expected`)

	// ErrTextDerivation reports that the "text" column is still missing
	// after the conversion from "messages". The conversion establishes the
	// column unconditionally, so this is a defensive check on an invariant
	// that should never be violated.
	ErrTextDerivation = errors.New(`"text" column missing after conversion from "messages"`)
)

// DynamicConfig is the training configuration derived from the dataset
// analysis. It is immutable once created and consumed by the training
// driver.
type DynamicConfig struct {
	MaxSeqLength              int  `json:"max_seq_length"`
	PerDeviceTrainBatchSize   int  `json:"per_device_train_batch_size"`
	GradientAccumulationSteps int  `json:"gradient_accumulation_steps"`
	EffectiveBatchSize        int  `json:"effective_batch_size"`
	UseGradientCheckpointing  bool `json:"use_gradient_checkpointing"`
}

const (
	// percentileHeadroom is added to the 95th-percentile token length when
	// choosing the sequence length, so the bulk of the examples are not
	// truncated.
	percentileHeadroom = 256

	// minSeqLength is the floor for the derived sequence length.
	minSeqLength = 512

	// longSeqLengthCap bounds the sequence length on the catch-all batch
	// tier, where memory use would otherwise grow unchecked.
	longSeqLengthCap = 8192

	// highMemoryGB is the device memory at which the tiered batch sizing
	// applies (T4 class). Below it the defaults stay at batch=1, accum=16.
	highMemoryGB = 16.0
)

// batchTier is one row of the memory/throughput table for accelerators with
// at least highMemoryGB of memory. Rows are evaluated in order and the first
// row with seqLen <= upToSeqLen wins, which makes the breakpoint priority
// explicit and testable.
type batchTier struct {
	upToSeqLen int // inclusive upper bound on the sequence length
	batchSize  int
	gradAccum  int
	capSeqLen  int // if > 0, the sequence length is capped to this value
}

var highMemoryTiers = []batchTier{
	{upToSeqLen: 1024, batchSize: 2, gradAccum: 8},
	{upToSeqLen: 2048, batchSize: 1, gradAccum: 16},
	{upToSeqLen: 4096, batchSize: 1, gradAccum: 32},
	{upToSeqLen: math.MaxInt, batchSize: 1, gradAccum: 64, capSeqLen: longSeqLengthCap},
}

// chooseBatchTier selects the per-device batch size and gradient
// accumulation for the given sequence length and memory budget. The returned
// sequence length is the input one, possibly capped by the selected tier.
func chooseBatchTier(seqLen int, memoryGB float64) (newSeqLen, batchSize, gradAccum int) {
	newSeqLen = seqLen
	batchSize, gradAccum = 1, 16
	if memoryGB < highMemoryGB {
		return
	}
	for _, tier := range highMemoryTiers {
		if seqLen <= tier.upToSeqLen {
			batchSize, gradAccum = tier.batchSize, tier.gradAccum
			if tier.capSeqLen > 0 && newSeqLen > tier.capSeqLen {
				newSeqLen = tier.capSeqLen
			}
			return
		}
	}
	return
}

// AnalyzeAndConfigure tokenizes the dataset and derives the dynamic training
// configuration for it.
//
// It flattens the "messages" column into a "text" column (always recomputed,
// overwriting any prior value, so "text" stays consistent with "messages"),
// tokenizes every example into a "length" column, and sizes the training
// run from the 95th percentile of the lengths:
//
//	maxSeqLength = clamp(min(maxLength, p95+256), 512, maxLength)
//
// The percentile is index-based (lengths[floor(0.95*N)] over the sorted
// lengths), not interpolated: the headroom and tier breakpoints were tuned
// against this exact formula, so keep it as is.
//
// Batch size and gradient accumulation come from a tier table keyed by the
// sequence length when memoryGB >= 16; below that the defaults are batch=1,
// accum=16.
//
// The input dataset is not modified; the returned dataset carries the
// derived columns. maxLength is the model's absolute context limit.
func AnalyzeAndConfigure(ds *Dataset, tokenizer Tokenizer, maxLength int, memoryGB float64) (*Dataset, DynamicConfig, error) {
	var config DynamicConfig
	if !ds.Has(ColMessages) {
		return nil, config, errors.WithMessagef(ErrMissingMessages,
			"dataset %q has columns %v", ds.Name(), xslices.SortedKeys(ds.columns))
	}
	if ds.Len() == 0 {
		return nil, config, errors.Errorf("cannot analyze empty dataset %q", ds.Name())
	}
	fmt.Printf("Analyzing dataset %q (%s samples)...\n",
		ds.Name(), humanize.Comma(int64(ds.Len())))

	out := ds.clone()
	out.Map("Formatting messages to text", func(ex *Example) {
		ex.Text = FormatMessages(ex.Messages)
	})
	out.columns.Insert(ColText)
	if !out.Has(ColText) {
		return nil, config, errors.WithMessagef(ErrTextDerivation, "dataset %q", ds.Name())
	}

	out.Map("Calculating token lengths", func(ex *Example) {
		ex.Length = len(tokenizer.Encode(ex.Text))
	})
	out.columns.Insert(ColLength)

	lengths := xslices.Map(out.examples, func(ex Example) int { return ex.Length })
	slices.Sort(lengths)
	p95 := lengths[int(float64(len(lengths))*0.95)]
	fmt.Printf("  95th percentile token length: %s\n", humanize.Comma(int64(p95)))

	seqLen := min(maxLength, p95+percentileHeadroom)
	seqLen = max(seqLen, minSeqLength)
	seqLen, batchSize, gradAccum := chooseBatchTier(seqLen, memoryGB)

	config = DynamicConfig{
		MaxSeqLength:              seqLen,
		PerDeviceTrainBatchSize:   batchSize,
		GradientAccumulationSteps: gradAccum,
		EffectiveBatchSize:        batchSize * gradAccum,
		UseGradientCheckpointing:  true,
	}
	fmt.Printf("  Max sequence length: %s\n", humanize.Comma(int64(config.MaxSeqLength)))
	fmt.Printf("  Per-device batch size: %d, gradient accumulation: %d (effective batch %d)\n",
		config.PerDeviceTrainBatchSize, config.GradientAccumulationSteps, config.EffectiveBatchSize)
	return out, config, nil
}
