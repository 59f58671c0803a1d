// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package data

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatMessages(t *testing.T) {
	require.Equal(t, "", FormatMessages(nil))
	require.Equal(t, "", FormatMessages([]Message{}))

	require.Equal(t, "user: hi",
		FormatMessages([]Message{{Role: "user", Content: "hi"}}))

	got := FormatMessages([]Message{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	require.Equal(t, "system: You are helpful.\nuser: hi\nassistant: hello", got)
}

func TestFormatMessagesDefaults(t *testing.T) {
	// Missing role defaults to "user", missing content to "".
	require.Equal(t, "user: hi", FormatMessages([]Message{{Content: "hi"}}))
	require.Equal(t, "assistant: ", FormatMessages([]Message{{Role: "assistant"}}))
	require.Equal(t, "user: ", FormatMessages([]Message{{}}))
}

func TestFormatMessagesDeterminism(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "second"},
	}
	first := FormatMessages(msgs)
	for range 10 {
		require.Equal(t, first, FormatMessages(msgs))
	}
}
