// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import "github.com/gomlx/finetune/data"

// Arguments is the full set of trainer arguments for one fine-tuning run:
// the dynamic configuration derived from the dataset plus the fixed
// optimizer/schedule settings that worked well for small causal models.
type Arguments struct {
	OutputDir string `json:"output_dir"`
	Epochs    int    `json:"num_train_epochs"`

	MaxSeqLength              int  `json:"max_seq_length"`
	PerDeviceTrainBatchSize   int  `json:"per_device_train_batch_size"`
	GradientAccumulationSteps int  `json:"gradient_accumulation_steps"`
	UseGradientCheckpointing  bool `json:"gradient_checkpointing"`

	LearningRate  float64   `json:"learning_rate"`
	SchedulerType string    `json:"lr_scheduler_type"`
	WarmupRatio   float64   `json:"warmup_ratio"`
	WeightDecay   float64   `json:"weight_decay"`
	MaxGradNorm   float64   `json:"max_grad_norm"`
	EvalSteps     int       `json:"eval_steps"`
	Precision     Precision `json:"precision"`
}

// NewArguments assembles the trainer arguments from the derived dynamic
// configuration and the selected precision.
func NewArguments(outputDir string, epochs int, config data.DynamicConfig, precision Precision) Arguments {
	return Arguments{
		OutputDir: outputDir,
		Epochs:    epochs,

		MaxSeqLength:              config.MaxSeqLength,
		PerDeviceTrainBatchSize:   config.PerDeviceTrainBatchSize,
		GradientAccumulationSteps: config.GradientAccumulationSteps,
		UseGradientCheckpointing:  config.UseGradientCheckpointing,

		LearningRate:  2e-5,
		SchedulerType: "cosine",
		WarmupRatio:   0.1,
		WeightDecay:   0.01,
		MaxGradNorm:   1.0,
		EvalSteps:     100,
		Precision:     precision,
	}
}
