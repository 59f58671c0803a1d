// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import "math"

// maxLossForPerplexity caps the loss fed into the exponential, so a diverged
// run reports a large finite perplexity instead of +Inf.
const maxLossForPerplexity = 20.0

// Perplexity converts a cross-entropy loss (in nats) into perplexity,
// exp(loss), the standard language-model evaluation metric.
func Perplexity(loss float64) float64 {
	return math.Exp(min(loss, maxLossForPerplexity))
}
