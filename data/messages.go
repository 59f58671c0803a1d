// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package data

import "strings"

// FormatMessages flattens a conversation into a single string with one line
// per message, in the form "<role>: <content>", lines joined by "\n".
//
// A message without a role defaults to "user", a message without content
// yields an empty content. An empty (or nil) conversation returns "".
//
// Token lengths computed from this string drive the sequence-length choice,
// so the output must be byte-for-byte stable for the same input.
func FormatMessages(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		role := msg.Role
		if role == "" {
			role = "user"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	return b.String()
}
