// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package lora derives LoRA (low-rank adapter) hyperparameters from the base
// model being fine-tuned.
//
// Rank and alpha scale with the model size, read off the model name; the
// adapted projection layers are always the same seven attention and
// feed-forward matrices (adapting all of them performs best for QLoRA).
package lora

import (
	"strings"

	"github.com/gomlx/gomlx/types"
	"k8s.io/klog/v2"
)

// BiasMode selects which bias parameters are trained alongside the adapters.
type BiasMode string

// BiasNone trains no bias parameters, the only mode used here.
const BiasNone BiasMode = "none"

// TaskType identifies the adapter task head.
type TaskType string

// TaskCausalLM is causal language modeling.
const TaskCausalLM TaskType = "CAUSAL_LM"

// Config holds the LoRA hyperparameters for one fine-tuning run. It is
// derived purely from the model name and sequence length; immutable once
// created.
type Config struct {
	Rank          int      `json:"r"`
	Alpha         int      `json:"lora_alpha"`
	TargetModules []string `json:"target_modules"`
	Dropout       float64  `json:"lora_dropout"`
	Bias          BiasMode `json:"bias"`
	TaskType      TaskType `json:"task_type"`

	// UseRSLoRA enables rank-stabilized scaling (alpha/sqrt(r) instead of
	// alpha/r), which behaves better for the larger base models.
	UseRSLoRA bool `json:"use_rslora"`
}

// targetModules are the projection layers the adapters attach to: the four
// attention projections and the three FFN/MLP projections. All seven,
// independent of model size.
var targetModules = []string{
	"q_proj", "k_proj", "v_proj", "o_proj",
	"gate_proj", "up_proj", "down_proj",
}

// rankTier maps model-size markers (substrings of the lowercased model name)
// to an adapter rank/alpha pair. Tiers are checked in order and the first
// marker match wins; a tier with no markers always matches.
type rankTier struct {
	markers     []string
	rank, alpha int
}

var rankTiers = []rankTier{
	{markers: []string{"0.5b", "0.6b", "270m"}, rank: 8, alpha: 16},
	{markers: []string{"1.5b", "1b", "1.7b"}, rank: 16, alpha: 32},
	{markers: []string{"6b", "7b"}, rank: 32, alpha: 64},
	{rank: 16, alpha: 32}, // default for unrecognized models
}

// rsLoRAMarkers: rank-stabilized scaling is enabled for these model sizes,
// independent of which rank tier matched first.
var rsLoRAMarkers = []string{"6b", "7b"}

func containsAny(name string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// Select derives the LoRA configuration for the given model. The match on
// the model name is case-insensitive, and unrecognized names silently fall
// to the default tier (r=16, alpha=32) -- that is intentional, not an error.
//
// maxSeqLength does not change the adapter shape; it is reported alongside
// the choice for context.
func Select(modelName string, maxSeqLength int) Config {
	name := strings.ToLower(modelName)
	config := Config{
		TargetModules: append([]string(nil), targetModules...),
		Dropout:       0, // disabled for faster training
		Bias:          BiasNone,
		TaskType:      TaskCausalLM,
		UseRSLoRA:     containsAny(name, rsLoRAMarkers),
	}
	for _, tier := range rankTiers {
		if len(tier.markers) == 0 || containsAny(name, tier.markers) {
			config.Rank = tier.rank
			config.Alpha = tier.alpha
			break
		}
	}
	klog.V(1).Infof("LoRA config for %q at sequence length %d: r=%d, alpha=%d, rslora=%v",
		modelName, maxSeqLength, config.Rank, config.Alpha, config.UseRSLoRA)
	return config
}

// TargetModuleSet returns the adapted module names as a set.
func (c Config) TargetModuleSet() types.Set[string] {
	return types.SetWith(c.TargetModules...)
}

// EstimateTrainableParams roughly estimates the number of trainable adapter
// parameters for a model with the given hidden dimension: each adapted
// matrix contributes two rank-r factors.
func (c Config) EstimateTrainableParams(hiddenDim int) int {
	return c.Rank * 2 * len(c.TargetModules) * hiddenDim
}
