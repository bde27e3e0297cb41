package agent

import (
	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/model"
)

// Pricing is the price of Unit tokens for input and output.
type Pricing struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
	Unit   int     `yaml:"unit" json:"unit"`
}

// CalculateCosts converts the usage of one model call into a core.Usage
// including its cost. Without a unit the cost is zero.
func CalculateCosts(u model.TokenUsage, p Pricing) core.Usage {
	usage := core.Usage{
		Calls:            1,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	if p.Unit <= 0 {
		return usage
	}
	unit := float64(p.Unit)
	usage.InputCost = float64(u.PromptTokens) / unit * p.Input
	usage.OutputCost = float64(u.CompletionTokens) / unit * p.Output
	usage.TotalCost = usage.InputCost + usage.OutputCost
	return usage
}
