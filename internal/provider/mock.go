package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// BlockMarker makes the mock moderator flag a text, for local testing
// of the blocked path.
const BlockMarker = "[blocked]"

// Mock provides deterministic local implementations of all three
// capabilities when no real provider is configured.
type Mock struct {
	dim int
}

func NewMock(embeddingDim int) *Mock {
	if embeddingDim <= 0 {
		embeddingDim = 384
	}
	return &Mock{dim: embeddingDim}
}

func (m *Mock) Generate(ctx context.Context, _ string, turns []TurnMessage, newMessage string) (string, error) {
	select {
	case <-ctx.Done():
		return "", mapCallError("mock", ctx.Err())
	default:
	}

	base := strings.TrimSpace(newMessage)
	if base == "" {
		base = "I'm listening."
	}
	if len(turns) == 0 {
		return fmt.Sprintf("I hear you: %s", base), nil
	}
	last := strings.TrimSpace(turns[len(turns)-1].Content)
	if last == "" {
		return fmt.Sprintf("I hear you: %s", base), nil
	}
	return fmt.Sprintf("I hear you: %s\nEarlier you said: %s", base, last), nil
}

func (m *Mock) Classify(ctx context.Context, text string) (Verdict, error) {
	select {
	case <-ctx.Done():
		return Verdict{}, mapCallError("mock", ctx.Err())
	default:
	}
	if strings.Contains(strings.ToLower(text), BlockMarker) {
		return Verdict{Allowed: false, Reason: "policy"}, nil
	}
	return Verdict{Allowed: true}, nil
}

// Embed produces a bag-of-words embedding: each token is hashed into a
// bucket and the vector normalized. Deterministic, and texts sharing
// words land near each other, which is enough for local recall.
func (m *Mock) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, mapCallError("mock", ctx.Err())
	default:
	}

	v := make([]float32, m.dim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		v[h.Sum32()%uint32(m.dim)] += 1
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v, nil
}

func (m *Mock) Dimensions() int { return m.dim }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
