// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// finetune-plan prepares a supervised fine-tuning run for a small causal
// language model (Qwen3-0.6B, Gemma-3-270M class): it splits the dataset,
// sets the test partition aside, analyzes the training partition with the
// model's tokenizer and derives the dynamic training configuration, the
// LoRA adapter configuration and the trainer arguments.
//
// Usage:
//
//	finetune-plan --dataset=conversations.jsonl
//	finetune-plan --dataset=conversations.jsonl --model=google/gemma-3-270m-it --memory-gb=16
//
// The dataset is a JSONL file with a "messages" column. The derived plan is
// written to <output>/training_plan.json, and the test partition to
// <output>/test_dataset.jsonl -- by convention the latter is not read again
// until training has fully completed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/finetune/data"
	"github.com/gomlx/finetune/lora"
	"github.com/gomlx/finetune/telemetry"
	"github.com/gomlx/finetune/train"
	"github.com/gomlx/go-huggingface/hub"
	"github.com/gomlx/go-huggingface/tokenizers"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagDataset = flag.String("dataset", "", "Path to the JSONL dataset file with a \"messages\" column. Required.")
	flagModel   = flag.String("model", "Qwen/Qwen3-0.6B", "HuggingFace model id: its tokenizer drives the length "+
		"analysis and its size drives the LoRA rank.")
	flagOutput = flag.String("output", "./outputs", "Directory for the training plan and the held-out test partition.")
	flagEpochs = flag.Int("epochs", 3, "Number of training epochs.")
	flagSeed   = flag.Int64("seed", 42, "Seed for the dataset split. The same dataset, ratios and seed always "+
		"reproduce the same held-out test set.")

	flagTrainRatio = flag.Float64("train-ratio", 0.80, "Fraction of the dataset used for training.")
	flagValRatio   = flag.Float64("val-ratio", 0.10, "Fraction of the dataset used for validation.")
	flagTestRatio  = flag.Float64("test-ratio", 0.10, "Fraction of the dataset held out for the final evaluation.")

	flagMaxLength = flag.Int("max-length", 32768, "The model's absolute context limit, an upper bound for the "+
		"derived sequence length.")
	flagMemoryGB = flag.Float64("memory-gb", 16.0, "Accelerator memory budget in GB; drives the batch-size tiers. "+
		"Defaults to a Colab T4.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagDataset == "" {
		klog.Errorf("Missing --dataset. See 'finetune-plan -help'.")
		os.Exit(1)
	}

	fmt.Printf("Fine-tuning plan for %s\n\n", *flagModel)

	// Dataset and tokenizer.
	ds := must.M1(data.LoadJSONL(*flagDataset))
	fmt.Printf("Loaded %q: %s samples\n", *flagDataset, humanize.Comma(int64(ds.Len())))

	repo := hub.New(*flagModel).WithAuth(os.Getenv("HF_TOKEN")).WithProgressBar(true)
	tok, err := tokenizers.New(repo)
	if err != nil {
		klog.Fatalf("Failed to load tokenizer for %q: %+v", *flagModel, err)
	}

	// Split, and set the test partition aside before anything else touches it.
	splits := must.M1(data.Split(ds, *flagTrainRatio, *flagValRatio, *flagTestRatio, *flagSeed))
	testPath := path.Join(*flagOutput, "test_dataset.jsonl")
	must.M(splits.Test.SaveJSONL(testPath))
	fmt.Printf("Test partition saved to %s -- don't read it until training completes.\n\n", testPath)

	// Analyze the training partition only: sizing must not peek at the
	// validation or test data.
	trainDS, config, err := data.AnalyzeAndConfigure(splits.Train, tok, *flagMaxLength, *flagMemoryGB)
	if err != nil {
		klog.Fatalf("Dataset analysis failed: %+v", err)
	}
	data.AnalyzeSplitDistribution(splits, tok)

	// The driver trains on the augmented partition (with the flattened text
	// and token lengths), so they don't need recomputing at training time.
	must.M(trainDS.SaveJSONL(path.Join(*flagOutput, "train_dataset.jsonl")))
	must.M(splits.Validation.SaveJSONL(path.Join(*flagOutput, "validation_dataset.jsonl")))

	loraConfig := lora.Select(*flagModel, config.MaxSeqLength)

	// Precision from the accelerator actually present, if any.
	probe := telemetry.NewNVML()
	device, err := probe.DeviceCapability()
	if err != nil {
		klog.Warningf("Accelerator detection failed, assuming none: %+v", err)
		device = telemetry.Capability{}
	}
	precision := train.SelectPrecision(device)
	fmt.Printf("\nDevice: %s -> %s\n", train.DescribeDevice(device), precision)

	args := train.NewArguments(*flagOutput, *flagEpochs, config, precision)

	reportPlan(splits, config, loraConfig, args)

	plan := TrainingPlan{
		Model:     *flagModel,
		Dataset:   *flagDataset,
		Seed:      *flagSeed,
		Dynamic:   config,
		LoRA:      loraConfig,
		Arguments: args,
	}
	planPath := path.Join(*flagOutput, "training_plan.json")
	must.M(plan.Save(planPath))
	fmt.Printf("\nTraining plan written to %s\n", planPath)
}

// TrainingPlan is the serialized output of finetune-plan, everything the
// training driver needs to start the run.
type TrainingPlan struct {
	Model   string `json:"model"`
	Dataset string `json:"dataset"`
	Seed    int64  `json:"seed"`

	Dynamic   data.DynamicConfig `json:"dynamic_config"`
	LoRA      lora.Config        `json:"lora"`
	Arguments train.Arguments    `json:"training_arguments"`
}

// Save writes the plan as indented JSON.
func (p *TrainingPlan) Save(filePath string) error {
	encoded, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, append(encoded, '\n'), 0644)
}
