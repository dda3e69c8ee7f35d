package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/memory"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/provider"
)

const summarizerPrompt = `You extract durable facts about the user from a conversation.
Return one fact per line, phrased in third person ("the user ...").
Only include stable, personal facts worth remembering across sessions.
Return nothing if there are no such facts.`

// LLMSummarize builds a SummarizeFunc that asks the generator to
// distill turns into fact lines, falling back to the heuristic
// summarizer when the model call fails.
func LLMSummarize(gen provider.Generator) memory.SummarizeFunc {
	return func(ctx context.Context, turns []memory.Turn) ([]string, error) {
		var b strings.Builder
		for _, t := range turns {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}

		raw, err := gen.Generate(ctx, summarizerPrompt, nil, b.String())
		if err != nil {
			return memory.HeuristicSummarize(ctx, turns)
		}

		var facts []string
		for _, line := range strings.Split(raw, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
			if line == "" {
				continue
			}
			facts = append(facts, line)
		}
		if len(facts) == 0 {
			return memory.HeuristicSummarize(ctx, turns)
		}
		return facts, nil
	}
}
