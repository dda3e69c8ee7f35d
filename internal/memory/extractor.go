package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const defaultImportance = 0.6

// EmbedFunc converts text to a fixed-dimension embedding.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// SummarizeFunc distills a window of turns into durable fact lines.
type SummarizeFunc func(ctx context.Context, turns []Turn) ([]string, error)

// Extractor converts accumulated turns into long-term entries. It is
// the only path that grows the vector index from conversation, and the
// watermark CAS keeps concurrent triggers at one boundary from writing
// duplicate entries.
type Extractor struct {
	store     Store
	embed     EmbedFunc
	summarize SummarizeFunc
	interval  int
}

func NewExtractor(store Store, embed EmbedFunc, summarize SummarizeFunc, interval int) *Extractor {
	if interval <= 0 {
		interval = 6
	}
	if summarize == nil {
		summarize = HeuristicSummarize
	}
	return &Extractor{
		store:     store,
		embed:     embed,
		summarize: summarize,
		interval:  interval,
	}
}

// MaybeExtract runs extraction for scope when at least interval turns
// have accumulated past the watermark. Returns the number of entries
// written; (0, nil) when below the boundary or another extractor won.
func (e *Extractor) MaybeExtract(ctx context.Context, scope Scope) (int, error) {
	mark, err := e.store.LastExtractedTurn(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", scope, err)
	}

	turns, err := e.store.TurnsAfter(ctx, scope, mark)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", scope, err)
	}
	if len(turns) < e.interval {
		return 0, nil
	}

	to := turns[len(turns)-1].ID
	claimed, err := e.store.AdvanceWatermark(ctx, scope, mark, to)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", scope, err)
	}
	if !claimed {
		return 0, nil
	}

	facts, err := e.summarize(ctx, turns)
	if err != nil {
		e.release(ctx, scope, mark, to)
		return 0, fmt.Errorf("extract %s: summarize: %w", scope, err)
	}

	written := 0
	for _, fact := range facts {
		fact = strings.TrimSpace(fact)
		if fact == "" {
			continue
		}
		embedding, err := e.embed(ctx, fact)
		if err != nil {
			log.Printf("memory: embed fact failed for %s: %v", scope, err)
			continue
		}
		if _, err := e.store.Remember(ctx, scope, fact, embedding, defaultImportance, to); err != nil {
			log.Printf("memory: remember fact failed for %s: %v", scope, err)
			continue
		}
		written++
	}

	if written == 0 && len(facts) > 0 {
		// Nothing landed; give the window back so the next boundary
		// retries it instead of silently dropping the memories.
		e.release(ctx, scope, mark, to)
		return 0, fmt.Errorf("extract %s: no facts written", scope)
	}
	return written, nil
}

func (e *Extractor) release(ctx context.Context, scope Scope, mark, to int64) {
	if ok, err := e.store.AdvanceWatermark(ctx, scope, to, mark); err != nil || !ok {
		log.Printf("memory: watermark release failed for %s (ok=%v err=%v)", scope, ok, err)
	}
}

// HeuristicSummarize is the fallback summarizer: it keeps each user
// turn verbatim as a candidate fact. Deployments with a language model
// wire an LLM-backed SummarizeFunc instead.
func HeuristicSummarize(_ context.Context, turns []Turn) ([]string, error) {
	var facts []string
	seen := make(map[string]bool)
	for _, t := range turns {
		if t.Role != RoleUser {
			continue
		}
		content := strings.TrimSpace(t.Content)
		if content == "" || seen[content] {
			continue
		}
		seen[content] = true
		facts = append(facts, content)
	}
	return facts, nil
}
