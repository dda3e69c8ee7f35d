package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/vecindex"
)

const testDim = 8

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	idx, err := vecindex.NewChromemIndex(testDim)
	if err != nil {
		t.Fatalf("NewChromemIndex() error = %v", err)
	}
	return NewLocalStore(idx, testDim)
}

func axis(hot int) []float32 {
	v := make([]float32, testDim)
	v[hot%testDim] = 1
	return v
}

func TestAppendTurnOrderingAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := Scope{CompanionID: "nova", UserID: "u1"}

	var lastID int64
	for i := 0; i < 7; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleCompanion
		}
		id, err := s.AppendTurn(ctx, Turn{
			CompanionID: scope.CompanionID,
			UserID:      scope.UserID,
			Role:        role,
			Content:     fmt.Sprintf("turn %d", i),
		})
		if err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
		if id <= lastID {
			t.Fatalf("turn id %d not strictly increasing after %d", id, lastID)
		}
		lastID = id
	}

	recent, err := s.RecentTurns(ctx, scope, 3)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("recent = %d turns, want 3", len(recent))
	}
	if recent[0].Content != "turn 4" || recent[2].Content != "turn 6" {
		t.Fatalf("recent not oldest-first: %q .. %q", recent[0].Content, recent[2].Content)
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].ID <= recent[i-1].ID {
			t.Fatalf("recent ids not increasing: %+v", recent)
		}
	}
}

func TestAppendTurnRejectsBadInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AppendTurn(ctx, Turn{UserID: "u1", Role: RoleUser, Content: "hi"}); err == nil {
		t.Fatalf("AppendTurn without companion id should fail")
	}
	if _, err := s.AppendTurn(ctx, Turn{CompanionID: "nova", UserID: "u1", Role: "narrator", Content: "hi"}); err == nil {
		t.Fatalf("AppendTurn with invalid role should fail")
	}
}

func TestRememberRecallRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := Scope{CompanionID: "nova", UserID: "u1"}

	id, err := s.Remember(ctx, scope, "the user's name is Sam", axis(0), 0.9, 1)
	if err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if _, err := s.Remember(ctx, scope, "likes rainy mornings", axis(1), 0.5, 2); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}

	got, err := s.SemanticRecall(ctx, scope, axis(0), 2)
	if err != nil {
		t.Fatalf("SemanticRecall() error = %v", err)
	}
	if len(got) == 0 || got[0].ID != id {
		t.Fatalf("top recall = %+v, want entry %s first", got, id)
	}
	if got[0].Content != "the user's name is Sam" {
		t.Fatalf("recall content = %q", got[0].Content)
	}
}

func TestSemanticRecallScopeIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := Scope{CompanionID: "nova", UserID: "u1"}
	b := Scope{CompanionID: "atlas", UserID: "u1"}
	c := Scope{CompanionID: "nova", UserID: "u2"}

	if _, err := s.Remember(ctx, b, "belongs to atlas/u1", axis(0), 0.5, 1); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if _, err := s.Remember(ctx, c, "belongs to nova/u2", axis(0), 0.5, 1); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}

	got, err := s.SemanticRecall(ctx, a, axis(0), 10)
	if err != nil {
		t.Fatalf("SemanticRecall() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("recall for %s leaked entries: %+v", a, got)
	}
}

func TestTombstoneExcludedFromRecall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := Scope{CompanionID: "nova", UserID: "u1"}

	id, err := s.Remember(ctx, scope, "superseded fact", axis(0), 0.5, 1)
	if err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if err := s.TombstoneEntry(ctx, scope, id); err != nil {
		t.Fatalf("TombstoneEntry() error = %v", err)
	}

	got, err := s.SemanticRecall(ctx, scope, axis(0), 10)
	if err != nil {
		t.Fatalf("SemanticRecall() error = %v", err)
	}
	for _, e := range got {
		if e.ID == id {
			t.Fatalf("tombstoned entry %s still recalled", id)
		}
	}

	if err := s.TombstoneEntry(ctx, scope, "missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("TombstoneEntry(missing) error = %v, want ErrEntryNotFound", err)
	}
}

func TestRememberRejectsWrongDimension(t *testing.T) {
	s := newTestStore(t)
	scope := Scope{CompanionID: "nova", UserID: "u1"}
	_, err := s.Remember(context.Background(), scope, "fact", make([]float32, testDim+1), 0.5, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Remember() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestAdvanceWatermarkCAS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := Scope{CompanionID: "nova", UserID: "u1"}

	ok, err := s.AdvanceWatermark(ctx, scope, 0, 6)
	if err != nil || !ok {
		t.Fatalf("AdvanceWatermark(0,6) = %v, %v; want claimed", ok, err)
	}

	// A second extractor racing from the same starting point loses.
	ok, err = s.AdvanceWatermark(ctx, scope, 0, 6)
	if err != nil || ok {
		t.Fatalf("AdvanceWatermark(0,6) again = %v, %v; want not claimed", ok, err)
	}

	mark, err := s.LastExtractedTurn(ctx, scope)
	if err != nil || mark != 6 {
		t.Fatalf("LastExtractedTurn() = %d, %v; want 6", mark, err)
	}
}
