// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"math"

	"github.com/gomlx/finetune/telemetry"
	"k8s.io/klog/v2"
)

// EvalMetrics is what the training driver reports after each evaluation
// pass on the validation split.
type EvalMetrics struct {
	Step int

	// Loss on the validation split.
	Loss float64

	// Perplexity of the validation split; if 0, it is derived from Loss.
	Perplexity float64
}

// Signal is a hook's verdict after an evaluation.
type Signal int

const (
	// SignalContinue: keep training.
	SignalContinue Signal = iota

	// SignalStop: stop training (e.g. early stopping triggered).
	SignalStop
)

// Hook observes the training run. The driver calls OnStep after every
// optimizer step and OnEvaluation after every validation pass; training
// stops if any hook returns SignalStop.
type Hook interface {
	OnStep(step int)
	OnEvaluation(metrics EvalMetrics) Signal
}

// EarlyStopping stops training when the validation loss stops improving, to
// prevent overfitting: after Patience evaluations without an improvement of
// at least MinDelta, it signals a stop.
type EarlyStopping struct {
	Patience int
	MinDelta float64

	bestLoss float64
	counter  int
}

// NewEarlyStopping creates an EarlyStopping hook. Typical values: patience
// 3, minDelta 0.001.
func NewEarlyStopping(patience int, minDelta float64) *EarlyStopping {
	return &EarlyStopping{
		Patience: patience,
		MinDelta: minDelta,
		bestLoss: math.Inf(1),
	}
}

// BestLoss returns the best validation loss seen so far.
func (es *EarlyStopping) BestLoss() float64 { return es.bestLoss }

// OnStep implements Hook.
func (es *EarlyStopping) OnStep(step int) {}

// OnEvaluation implements Hook.
func (es *EarlyStopping) OnEvaluation(metrics EvalMetrics) Signal {
	if metrics.Loss < es.bestLoss-es.MinDelta {
		es.bestLoss = metrics.Loss
		es.counter = 0
		klog.V(1).Infof("New best validation loss: %.4f", metrics.Loss)
		return SignalContinue
	}
	es.counter++
	klog.V(1).Infof("No improvement in validation loss (%d/%d)", es.counter, es.Patience)
	if es.counter >= es.Patience {
		klog.Infof("Early stopping triggered, best validation loss: %.4f", es.bestLoss)
		return SignalStop
	}
	return SignalContinue
}

// VRAMWatcher watches accelerator memory during training and warns when
// usage crosses a threshold, before the run hits an OOM.
//
// A probe that reports no accelerator is a silent no-op; a probe whose reads
// fail is logged once and then ignored -- telemetry must never interrupt
// training, but the failure is still visible.
type VRAMWatcher struct {
	// ThresholdPercent of used memory above which a warning is emitted.
	ThresholdPercent float64

	// LogEverySteps controls the periodic usage log. Default 50.
	LogEverySteps int

	probe     telemetry.Probe
	warned    bool
	errLogged bool
}

// NewVRAMWatcher creates a VRAMWatcher on the given probe. A typical
// threshold is 95 (percent).
func NewVRAMWatcher(probe telemetry.Probe, thresholdPercent float64) *VRAMWatcher {
	return &VRAMWatcher{
		ThresholdPercent: thresholdPercent,
		LogEverySteps:    50,
		probe:            probe,
	}
}

// OnStep implements Hook.
func (w *VRAMWatcher) OnStep(step int) {
	result := w.probe.DeviceMemory()
	switch result.Status {
	case telemetry.StatusUnavailable:
		return
	case telemetry.StatusError:
		if !w.errLogged {
			klog.Warningf("Accelerator memory read failed, VRAM watching disabled: %+v", result.Err)
			w.errLogged = true
		}
		return
	}

	usedPercent := result.Reading.UsedPercent()
	if w.LogEverySteps > 0 && step%w.LogEverySteps == 0 {
		klog.Infof("VRAM: %.2fGB / %.2fGB (%.1f%%)",
			float64(result.Reading.UsedBytes)/1e9,
			float64(result.Reading.TotalBytes)/1e9,
			usedPercent)
	}
	if usedPercent > w.ThresholdPercent && !w.warned {
		klog.Warningf("VRAM usage at %.1f%%, approaching OOM", usedPercent)
		w.warned = true
	}
	// Re-arm the warning once usage has dropped well below the threshold.
	if usedPercent < w.ThresholdPercent-5 {
		w.warned = false
	}
}

// OnEvaluation implements Hook.
func (w *VRAMWatcher) OnEvaluation(metrics EvalMetrics) Signal { return SignalContinue }

// EvalLogger records the validation loss and perplexity series across the
// run, deriving perplexity from the loss when the driver doesn't report it.
type EvalLogger struct {
	Losses       []float64
	Perplexities []float64
}

// OnStep implements Hook.
func (l *EvalLogger) OnStep(step int) {}

// OnEvaluation implements Hook.
func (l *EvalLogger) OnEvaluation(metrics EvalMetrics) Signal {
	perplexity := metrics.Perplexity
	if perplexity == 0 {
		perplexity = Perplexity(metrics.Loss)
	}
	l.Losses = append(l.Losses, metrics.Loss)
	l.Perplexities = append(l.Perplexities, perplexity)
	klog.Infof("Validation at step %d: loss=%.4f, perplexity=%.4f",
		metrics.Step, metrics.Loss, perplexity)
	return SignalContinue
}
