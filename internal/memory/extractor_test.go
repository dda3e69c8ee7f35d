package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func testEmbed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, testDim)
	for i, r := range text {
		v[i%testDim] += float32(r%13) / 13
	}
	return v, nil
}

func seedTurns(t *testing.T, s *LocalStore, scope Scope, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := RoleUser
		content := fmt.Sprintf("my name is Sam, message %d", i)
		if i%2 == 1 {
			role = RoleCompanion
			content = fmt.Sprintf("nice to meet you, reply %d", i)
		}
		if _, err := s.AppendTurn(context.Background(), Turn{
			CompanionID: scope.CompanionID,
			UserID:      scope.UserID,
			Role:        role,
			Content:     content,
		}); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}
}

func TestMaybeExtractBelowBoundaryIsNoop(t *testing.T) {
	s := newTestStore(t)
	scope := Scope{CompanionID: "nova", UserID: "u1"}
	seedTurns(t, s, scope, 4)

	ex := NewExtractor(s, testEmbed, nil, 6)
	n, err := ex.MaybeExtract(context.Background(), scope)
	if err != nil {
		t.Fatalf("MaybeExtract() error = %v", err)
	}
	if n != 0 {
		t.Fatalf("entries = %d, want 0 below boundary", n)
	}
}

func TestMaybeExtractProducesFactsOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := Scope{CompanionID: "nova", UserID: "u1"}
	seedTurns(t, s, scope, 6)

	ex := NewExtractor(s, testEmbed, nil, 6)
	n, err := ex.MaybeExtract(ctx, scope)
	if err != nil {
		t.Fatalf("MaybeExtract() error = %v", err)
	}
	if n < 1 {
		t.Fatalf("entries = %d, want >= 1", n)
	}

	query, _ := testEmbed(ctx, "my name is Sam, message 0")
	recalled, err := s.SemanticRecall(ctx, scope, query, 5)
	if err != nil {
		t.Fatalf("SemanticRecall() error = %v", err)
	}
	found := false
	for _, e := range recalled {
		if strings.Contains(e.Content, "Sam") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no recalled entry mentions Sam: %+v", recalled)
	}

	// Same watermark, second trigger: idempotent, no duplicates.
	again, err := ex.MaybeExtract(ctx, scope)
	if err != nil {
		t.Fatalf("second MaybeExtract() error = %v", err)
	}
	if again != 0 {
		t.Fatalf("second extraction wrote %d entries, want 0", again)
	}
}

func TestMaybeExtractSummarizeFailureReleasesWatermark(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := Scope{CompanionID: "nova", UserID: "u1"}
	seedTurns(t, s, scope, 6)

	boom := errors.New("summarizer unavailable")
	failing := func(context.Context, []Turn) ([]string, error) { return nil, boom }
	ex := NewExtractor(s, testEmbed, failing, 6)

	if _, err := ex.MaybeExtract(ctx, scope); !errors.Is(err, boom) {
		t.Fatalf("MaybeExtract() error = %v, want summarizer failure", err)
	}

	mark, err := s.LastExtractedTurn(ctx, scope)
	if err != nil {
		t.Fatalf("LastExtractedTurn() error = %v", err)
	}
	if mark != 0 {
		t.Fatalf("watermark = %d after failed extraction, want 0", mark)
	}

	// The window is retried once a summarizer is available again.
	ok := NewExtractor(s, testEmbed, nil, 6)
	n, err := ok.MaybeExtract(ctx, scope)
	if err != nil || n < 1 {
		t.Fatalf("retry MaybeExtract() = %d, %v; want entries", n, err)
	}
}

func TestHeuristicSummarizeKeepsUserFacts(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Content: "My name is Sam"},
		{Role: RoleCompanion, Content: "Hi Sam!"},
		{Role: RoleUser, Content: "My name is Sam"},
		{Role: RoleUser, Content: "  "},
	}
	facts, err := HeuristicSummarize(context.Background(), turns)
	if err != nil {
		t.Fatalf("HeuristicSummarize() error = %v", err)
	}
	if len(facts) != 1 || facts[0] != "My name is Sam" {
		t.Fatalf("facts = %+v, want single deduped user fact", facts)
	}
}
