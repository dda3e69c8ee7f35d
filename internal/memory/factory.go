package memory

import (
	"context"
	"strings"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/vecindex"
)

// NewStore creates a postgres-backed store when configured, otherwise a
// local store over an embedded chromem index.
func NewStore(ctx context.Context, databaseURL string, embeddingDim int) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		idx, err := vecindex.NewChromemIndex(embeddingDim)
		if err != nil {
			return nil, err
		}
		return NewLocalStore(idx, embeddingDim), nil
	}
	return NewPostgresStore(ctx, databaseURL, embeddingDim)
}
