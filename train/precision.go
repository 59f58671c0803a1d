// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package train holds the training-driver glue around the dataset analysis:
// mixed-precision selection, run-time hooks (early stopping, accelerator
// memory watching, evaluation logging) and the assembled trainer arguments.
package train

import (
	"fmt"

	"github.com/gomlx/finetune/telemetry"
)

// Precision is the numeric precision used for training.
type Precision string

const (
	// PrecisionBF16: bfloat16 mixed precision, the best option where
	// supported (Ampere and newer).
	PrecisionBF16 Precision = "bf16"

	// PrecisionFP16: float16 mixed precision, the fallback for older
	// accelerators (T4, V100). Requires gradient scaling for stability.
	PrecisionFP16 Precision = "fp16"

	// PrecisionFP32: full precision, used when there is no accelerator.
	PrecisionFP32 Precision = "fp32"
)

// SelectPrecision picks the training precision for the given accelerator:
// BF16 on compute capability 8.x (Ampere) and newer, FP16 on older
// accelerators, FP32 when there is none.
func SelectPrecision(dev telemetry.Capability) Precision {
	switch {
	case !dev.Present:
		return PrecisionFP32
	case dev.Major >= 8:
		return PrecisionBF16
	default:
		return PrecisionFP16
	}
}

// DescribeDevice returns a one-line human-readable description of the
// accelerator, for run banners.
func DescribeDevice(dev telemetry.Capability) string {
	if !dev.Present {
		return "no accelerator detected"
	}
	return fmt.Sprintf("%s (compute %d.%d, %.1fGB)",
		dev.Name, dev.Major, dev.Minor, dev.TotalMemoryGB)
}
