// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package data

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Map applies fn to every example in place, fanning out over half the
// available CPUs, and displays a progress bar with the given description.
//
// fn must be safe for concurrent calls on distinct examples. The order of
// the examples in the dataset is preserved; the order in which fn is called
// is not defined.
//
// Map never caches: it is always recomputed in full, since derived columns
// must stay consistent with the tokenizer and message content of the current
// run.
func (ds *Dataset) Map(description string, fn func(*Example)) {
	numExamples := len(ds.examples)
	if numExamples == 0 {
		return
	}
	bar := progressbar.NewOptions(numExamples,
		progressbar.OptionSetDescription(description),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("examples"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: ".",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	numWorkers := max(runtime.NumCPU()/2, 1)
	if numWorkers > numExamples {
		numWorkers = numExamples
	}
	indices := make(chan int, numWorkers)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for idx := range indices {
				fn(&ds.examples[idx])
				_ = bar.Add(1)
			}
		}()
	}
	for idx := range numExamples {
		indices <- idx
	}
	close(indices)
	wg.Wait()
	_ = bar.Close()
	fmt.Println()
}
