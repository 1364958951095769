// Package pricing estimates token counts and USD cost for model calls.
// Estimates are deliberately coarse: they feed the budget gate, which
// only needs an upper-bound signal, not billing-grade accuracy.
package pricing

import (
	"math"
	"strings"
)

// perThousandUSD maps model names to [prompt, completion] USD per 1K
// tokens. Unknown models fall back to defaultRate.
var perThousandUSD = map[string][2]float64{
	"deepseek-chat":     {0.00014, 0.00028},
	"deepseek-reasoner": {0.00055, 0.00219},
	"gpt-4o":            {0.0025, 0.01},
	"gpt-4o-mini":       {0.00015, 0.0006},
	"claude-3-5-sonnet": {0.003, 0.015},
	"claude-3-5-haiku":  {0.0008, 0.004},
	"qwen-turbo":        {0.00005, 0.0002},
}

var defaultRate = [2]float64{0.001, 0.002}

const (
	minPromptTokens     = 16
	minCompletionTokens = 20
	minExpectedTokens   = 60
)

// EstimatePromptTokens approximates the token count of a prompt as one
// token per four bytes, with a floor of 16.
func EstimatePromptTokens(text string) int {
	n := int(math.Ceil(float64(len(text)) / 4))
	if n < minPromptTokens {
		return minPromptTokens
	}
	return n
}

// EstimateCompletionTokens approximates the token count of a produced
// completion, with a floor of 20.
func EstimateCompletionTokens(text string) int {
	n := int(math.Ceil(float64(len(text)) / 4))
	if n < minCompletionTokens {
		return minCompletionTokens
	}
	return n
}

// ExpectedCompletionTokens predicts completion size ahead of the call
// as 60% of the prompt, with a floor of 60.
func ExpectedCompletionTokens(promptTokens int) int {
	n := int(math.Ceil(float64(promptTokens) * 0.6))
	if n < minExpectedTokens {
		return minExpectedTokens
	}
	return n
}

// EstimateCostUSD returns the estimated USD cost of a call against
// model, given prompt and completion token counts. Model lookup is
// case-insensitive; unknown models use a conservative default rate.
func EstimateCostUSD(model string, promptTokens, completionTokens int) float64 {
	rate, ok := perThousandUSD[strings.ToLower(strings.TrimSpace(model))]
	if !ok {
		rate = defaultRate
	}
	if promptTokens < 0 {
		promptTokens = 0
	}
	if completionTokens < 0 {
		completionTokens = 0
	}
	return float64(promptTokens)/1000*rate[0] + float64(completionTokens)/1000*rate[1]
}
