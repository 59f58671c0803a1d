// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package data loads, splits and analyzes conversational fine-tuning
// datasets, and derives from them the dynamic training configuration
// (sequence length and batch sizing) for a target accelerator memory budget.
//
// Datasets are JSONL files where each line is one example, typically with a
// "messages" column holding the conversation:
//
//	{"messages": [{"role": "user", "content": "hi"}, {"role": "assistant", "content": "hello"}]}
//
// The usual flow, as driven by cmd/finetune-plan:
//
//	ds := must.M1(data.LoadJSONL("dataset.jsonl"))
//	splits := must.M1(data.Split(ds, 0.8, 0.1, 0.1, 42))
//	trainDS, config, err := data.AnalyzeAndConfigure(splits.Train, tokenizer, 32768, 16.0)
package data

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/gomlx/gomlx/types"
	"github.com/pkg/errors"
)

// Column names recognized by this package.
const (
	// ColMessages holds the conversation, a list of Message.
	ColMessages = "messages"

	// ColText holds the flattened conversation, derived from ColMessages
	// by FormatMessages.
	ColText = "text"

	// ColLength holds the token count of ColText under the tokenizer used
	// for analysis.
	ColLength = "length"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Example is one record of a fine-tuning dataset.
//
// Text is derived from Messages (see FormatMessages) and Length is the token
// count of Text; both are filled in by AnalyzeAndConfigure.
type Example struct {
	Messages []Message `json:"messages,omitempty"`
	Text     string    `json:"text,omitempty"`
	Length   int       `json:"length,omitempty"`
}

// Dataset is an ordered, in-memory collection of examples with column
// introspection.
//
// The column set reflects which fields were present when the dataset was
// loaded or created, plus columns later derived by AnalyzeAndConfigure.
type Dataset struct {
	name     string
	examples []Example
	columns  types.Set[string]
}

// New creates a dataset from a slice of examples. The column set is inferred
// from the fields present in the examples.
func New(name string, examples []Example) *Dataset {
	ds := &Dataset{
		name:     name,
		examples: examples,
		columns:  types.MakeSet[string](),
	}
	for _, ex := range examples {
		if ex.Messages != nil {
			ds.columns.Insert(ColMessages)
		}
		if ex.Text != "" {
			ds.columns.Insert(ColText)
		}
		if ex.Length != 0 {
			ds.columns.Insert(ColLength)
		}
	}
	return ds
}

// Name of the dataset, usually the base name of the file it was loaded from.
func (ds *Dataset) Name() string { return ds.name }

// Len returns the number of examples.
func (ds *Dataset) Len() int { return len(ds.examples) }

// Has reports whether the dataset has the given column.
func (ds *Dataset) Has(column string) bool { return ds.columns.Has(column) }

// Columns returns a copy of the dataset's column set.
func (ds *Dataset) Columns() types.Set[string] {
	cols := types.MakeSet[string](len(ds.columns))
	for col := range ds.columns {
		cols.Insert(col)
	}
	return cols
}

// At returns a pointer to the example at position i. The pointer stays valid
// until the dataset is mutated.
func (ds *Dataset) At(i int) *Example { return &ds.examples[i] }

// Examples returns the underlying examples slice. It is owned by the
// dataset, don't modify it.
func (ds *Dataset) Examples() []Example { return ds.examples }

// clone returns a deep-enough copy: the examples slice is copied so the
// receiver is never mutated through the clone, but the Messages slices are
// shared (they are treated as immutable throughout).
func (ds *Dataset) clone() *Dataset {
	c := &Dataset{
		name:     ds.name,
		examples: make([]Example, len(ds.examples)),
		columns:  types.MakeSet[string](len(ds.columns)),
	}
	copy(c.examples, ds.examples)
	for col := range ds.columns {
		c.columns.Insert(col)
	}
	return c
}

// subset builds a dataset named "<name> [<suffix>]" from the examples at the
// given positions.
func (ds *Dataset) subset(suffix string, indices []int) *Dataset {
	examples := make([]Example, 0, len(indices))
	for _, idx := range indices {
		examples = append(examples, ds.examples[idx])
	}
	sub := New(fmt.Sprintf("%s [%s]", ds.name, suffix), examples)
	return sub
}

// LoadJSONL reads a dataset from a line-delimited JSON file. Empty lines are
// skipped; a malformed line is an error identifying the line number.
func LoadJSONL(filePath string) (*Dataset, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset %q", filePath)
	}
	defer func() { _ = f.Close() }()

	ds := &Dataset{
		name:    filepath.Base(filePath),
		columns: types.MakeSet[string](),
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// Decode the raw object first so that columns are registered even for
		// examples where the value is empty (e.g. "messages": []).
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, errors.Wrapf(err, "dataset %q: invalid JSON at line %d", filePath, lineNum)
		}
		var ex Example
		if err := json.Unmarshal(line, &ex); err != nil {
			return nil, errors.Wrapf(err, "dataset %q: invalid example at line %d", filePath, lineNum)
		}
		for col := range raw {
			ds.columns.Insert(col)
		}
		ds.examples = append(ds.examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed reading dataset %q", filePath)
	}
	return ds, nil
}

// SaveJSONL writes the dataset to a line-delimited JSON file, one example
// per line, creating the target directory if needed.
func (ds *Dataset) SaveJSONL(filePath string) error {
	if err := os.MkdirAll(path.Dir(filePath), 0777); err != nil && !os.IsExist(err) {
		return errors.Wrapf(err, "failed to create directory for %q", filePath)
	}
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", filePath)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range ds.examples {
		if err := enc.Encode(&ds.examples[i]); err != nil {
			_ = f.Close()
			return errors.Wrapf(err, "failed to encode example #%d of dataset %q", i, ds.name)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed writing dataset %q to %q", ds.name, filePath)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed closing %q", filePath)
	}
	return nil
}
