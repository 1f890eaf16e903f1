package toolloop

import (
	"fmt"
	"strings"

	"github.com/loomworks/deepresearch/internal/llm"
)

// CompressionConfig bounds the transcript handed to the extraction step.
type CompressionConfig struct {
	// MaxTokens is the token budget for the compressed transcript.
	// Token counts are estimated at four characters per token.
	MaxTokens int
}

const defaultMaxTokens = 8000

// EstimateTokens approximates the token count of a string.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// Compress turns a tool-loop conversation into a bounded transcript.
// Tool results carry the evidence, so they are kept preferentially over
// assistant reasoning when the budget forces cuts. Within each group newer
// entries win because later tool calls refine earlier ones.
func Compress(history []llm.Message, cfg CompressionConfig) string {
	budget := cfg.MaxTokens
	if budget <= 0 {
		budget = defaultMaxTokens
	}

	var toolParts, otherParts []string
	for _, m := range history {
		switch m.Role {
		case "tool":
			label := m.ToolName
			if m.IsError {
				label += " (error)"
			}
			toolParts = append(toolParts, fmt.Sprintf("[%s] %s", label, m.Content))
		case "assistant":
			if m.Content != "" {
				otherParts = append(otherParts, fmt.Sprintf("[notes] %s", m.Content))
			}
		}
	}

	var kept []string
	remaining := budget
	take := func(parts []string) {
		for i := len(parts) - 1; i >= 0; i-- {
			cost := EstimateTokens(parts[i])
			if cost > remaining {
				continue
			}
			kept = append([]string{parts[i]}, kept...)
			remaining -= cost
		}
	}
	take(toolParts)
	take(otherParts)

	return strings.Join(kept, "\n\n")
}
