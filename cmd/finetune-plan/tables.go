// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/finetune/data"
	"github.com/gomlx/finetune/lora"
	"github.com/gomlx/finetune/train"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == 1 {
				s = headerRowStyle
				return
			}
			switch {
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			return
		})
}

// reportPlan prints the derived plan as tables, one per concern.
func reportPlan(splits *data.Splits, config data.DynamicConfig, loraConfig lora.Config, args train.Arguments) {
	fmt.Println(titleStyle.Render("Dataset Splits"))
	total := splits.Train.Len() + splits.Validation.Len() + splits.Test.Len()
	splitsTable := newPlainTable(true)
	splitsTable.Row("Split", "Samples", "Fraction")
	for _, part := range []struct {
		name string
		ds   *data.Dataset
	}{{"train", splits.Train}, {"validation", splits.Validation}, {"test", splits.Test}} {
		splitsTable.Row(part.name,
			humanize.Comma(int64(part.ds.Len())),
			fmt.Sprintf("%.1f%%", float64(part.ds.Len())/float64(total)*100))
	}
	fmt.Println(splitsTable.Render())

	fmt.Println(titleStyle.Render("Dynamic Training Configuration"))
	configTable := newPlainTable(false)
	configTable.Row("Max sequence length", humanize.Comma(int64(config.MaxSeqLength)))
	configTable.Row("Per-device batch size", strconv.Itoa(config.PerDeviceTrainBatchSize))
	configTable.Row("Gradient accumulation", strconv.Itoa(config.GradientAccumulationSteps))
	configTable.Row("Effective batch size", strconv.Itoa(config.EffectiveBatchSize))
	configTable.Row("Gradient checkpointing", strconv.FormatBool(config.UseGradientCheckpointing))
	fmt.Println(configTable.Render())

	fmt.Println(titleStyle.Render("LoRA Adapter"))
	loraTable := newPlainTable(false)
	loraTable.Row("Rank (r)", strconv.Itoa(loraConfig.Rank))
	loraTable.Row("Alpha", strconv.Itoa(loraConfig.Alpha))
	loraTable.Row("Target modules", strings.Join(loraConfig.TargetModules, ", "))
	loraTable.Row("Dropout", fmt.Sprintf("%g", loraConfig.Dropout))
	loraTable.Row("Bias", string(loraConfig.Bias))
	loraTable.Row("Task type", string(loraConfig.TaskType))
	loraTable.Row("Rank-stabilized scaling", strconv.FormatBool(loraConfig.UseRSLoRA))
	fmt.Println(loraTable.Render())

	fmt.Println(titleStyle.Render("Trainer Arguments"))
	argsTable := newPlainTable(false)
	argsTable.Row("Epochs", strconv.Itoa(args.Epochs))
	argsTable.Row("Learning rate", fmt.Sprintf("%g", args.LearningRate))
	argsTable.Row("Schedule", fmt.Sprintf("%s (warmup %.0f%%)", args.SchedulerType, args.WarmupRatio*100))
	argsTable.Row("Weight decay", fmt.Sprintf("%g", args.WeightDecay))
	argsTable.Row("Max gradient norm", fmt.Sprintf("%g", args.MaxGradNorm))
	argsTable.Row("Eval every", fmt.Sprintf("%d steps", args.EvalSteps))
	argsTable.Row("Precision", string(args.Precision))
	fmt.Println(argsTable.Render())
}
