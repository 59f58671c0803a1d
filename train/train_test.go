// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"math"
	"testing"

	"github.com/gomlx/finetune/data"
	"github.com/gomlx/finetune/telemetry"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestSelectPrecision(t *testing.T) {
	// No accelerator.
	require.Equal(t, PrecisionFP32, SelectPrecision(telemetry.Capability{}))
	// T4: compute 7.5, no bf16.
	require.Equal(t, PrecisionFP16, SelectPrecision(telemetry.Capability{
		Present: true, Major: 7, Minor: 5, Name: "Tesla T4"}))
	// Ampere and newer.
	require.Equal(t, PrecisionBF16, SelectPrecision(telemetry.Capability{
		Present: true, Major: 8, Minor: 0, Name: "A100"}))
	require.Equal(t, PrecisionBF16, SelectPrecision(telemetry.Capability{
		Present: true, Major: 9, Minor: 0, Name: "H100"}))
}

func TestPerplexity(t *testing.T) {
	require.Equal(t, 1.0, Perplexity(0))
	require.InDelta(t, math.E, Perplexity(1), 1e-9)
	// Diverged losses stay finite.
	require.False(t, math.IsInf(Perplexity(1e6), 1))
	require.Equal(t, Perplexity(maxLossForPerplexity), Perplexity(1e6))
}

func TestEarlyStopping(t *testing.T) {
	es := NewEarlyStopping(3, 0.001)

	require.Equal(t, SignalContinue, es.OnEvaluation(EvalMetrics{Step: 100, Loss: 1.0}))
	require.Equal(t, SignalContinue, es.OnEvaluation(EvalMetrics{Step: 200, Loss: 0.9}))
	// Three evaluations without >= 0.001 improvement: stop on the third.
	require.Equal(t, SignalContinue, es.OnEvaluation(EvalMetrics{Step: 300, Loss: 0.9}))
	require.Equal(t, SignalContinue, es.OnEvaluation(EvalMetrics{Step: 400, Loss: 0.8995}))
	require.Equal(t, SignalStop, es.OnEvaluation(EvalMetrics{Step: 500, Loss: 0.91}))
	require.Equal(t, 0.9, es.BestLoss())
}

func TestEarlyStoppingCounterResets(t *testing.T) {
	es := NewEarlyStopping(2, 0.001)
	require.Equal(t, SignalContinue, es.OnEvaluation(EvalMetrics{Loss: 1.0}))
	require.Equal(t, SignalContinue, es.OnEvaluation(EvalMetrics{Loss: 1.0}))
	// Improvement resets the patience counter.
	require.Equal(t, SignalContinue, es.OnEvaluation(EvalMetrics{Loss: 0.5}))
	require.Equal(t, SignalContinue, es.OnEvaluation(EvalMetrics{Loss: 0.5}))
	require.Equal(t, SignalStop, es.OnEvaluation(EvalMetrics{Loss: 0.5}))
}

// fakeProbe returns a fixed sequence of results, then repeats the last one.
type fakeProbe struct {
	results []telemetry.Result
	calls   int
}

func (p *fakeProbe) DeviceMemory() telemetry.Result {
	idx := min(p.calls, len(p.results)-1)
	p.calls++
	return p.results[idx]
}

func TestVRAMWatcherThreshold(t *testing.T) {
	const gib = uint64(1024 * 1024 * 1024)
	reading := func(usedGiB uint64) telemetry.Result {
		return telemetry.Result{
			Status:  telemetry.StatusOK,
			Reading: telemetry.Reading{UsedBytes: usedGiB * gib, TotalBytes: 16 * gib},
		}
	}
	probe := &fakeProbe{results: []telemetry.Result{
		reading(8),  // 50%: below threshold
		reading(16), // 100%: warns
		reading(16), // still high: no second warning
		reading(8),  // dropped: re-arms
		reading(16), // warns again
	}}
	w := NewVRAMWatcher(probe, 95)
	w.OnStep(1)
	require.False(t, w.warned)
	w.OnStep(2)
	require.True(t, w.warned)
	w.OnStep(3)
	require.True(t, w.warned)
	w.OnStep(4)
	require.False(t, w.warned)
	w.OnStep(5)
	require.True(t, w.warned)
}

func TestVRAMWatcherUnavailableAndError(t *testing.T) {
	// No accelerator: silent no-op.
	w := NewVRAMWatcher(&fakeProbe{results: []telemetry.Result{
		{Status: telemetry.StatusUnavailable},
	}}, 95)
	for step := range 100 {
		w.OnStep(step)
	}
	require.False(t, w.warned)
	require.False(t, w.errLogged)

	// Failing reads are logged once, then ignored.
	w = NewVRAMWatcher(&fakeProbe{results: []telemetry.Result{
		{Status: telemetry.StatusError, Err: errors.New("nvml broke")},
	}}, 95)
	for step := range 100 {
		w.OnStep(step)
	}
	require.True(t, w.errLogged)
	require.False(t, w.warned)
}

func TestEvalLogger(t *testing.T) {
	logger := &EvalLogger{}
	logger.OnEvaluation(EvalMetrics{Step: 100, Loss: 1.0})
	logger.OnEvaluation(EvalMetrics{Step: 200, Loss: 0.5, Perplexity: 42})
	require.Equal(t, []float64{1.0, 0.5}, logger.Losses)
	// Derived from the loss when not reported, kept when reported.
	require.InDelta(t, math.E, logger.Perplexities[0], 1e-9)
	require.Equal(t, 42.0, logger.Perplexities[1])
}

func TestNewArguments(t *testing.T) {
	config := data.DynamicConfig{
		MaxSeqLength:              2048,
		PerDeviceTrainBatchSize:   1,
		GradientAccumulationSteps: 16,
		EffectiveBatchSize:        16,
		UseGradientCheckpointing:  true,
	}
	args := NewArguments("./outputs", 3, config, PrecisionFP16)
	require.Equal(t, 2048, args.MaxSeqLength)
	require.Equal(t, 1, args.PerDeviceTrainBatchSize)
	require.Equal(t, 16, args.GradientAccumulationSteps)
	require.True(t, args.UseGradientCheckpointing)
	require.Equal(t, 2e-5, args.LearningRate)
	require.Equal(t, "cosine", args.SchedulerType)
	require.Equal(t, PrecisionFP16, args.Precision)
}
