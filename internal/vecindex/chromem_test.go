package vecindex

import (
	"context"
	"testing"
)

func unit(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	x, err := NewChromemIndex(4)
	if err != nil {
		t.Fatalf("NewChromemIndex() error = %v", err)
	}
	ctx := context.Background()
	scope := Scope{CompanionID: "nova", UserID: "u1"}

	if err := x.Insert(ctx, scope, "e1", unit(4, 0)); err != nil {
		t.Fatalf("Insert e1 error = %v", err)
	}
	if err := x.Insert(ctx, scope, "e2", unit(4, 1)); err != nil {
		t.Fatalf("Insert e2 error = %v", err)
	}
	if err := x.Insert(ctx, scope, "e3", []float32{0.9, 0.1, 0, 0}); err != nil {
		t.Fatalf("Insert e3 error = %v", err)
	}

	hits, err := x.Search(ctx, scope, unit(4, 0), 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("hits = %d, want 3", len(hits))
	}
	if hits[0].EntryID != "e1" {
		t.Fatalf("top hit = %s, want e1", hits[0].EntryID)
	}
	if hits[1].EntryID != "e3" {
		t.Fatalf("second hit = %s, want e3", hits[1].EntryID)
	}
	if hits[0].Score < hits[1].Score || hits[1].Score < hits[2].Score {
		t.Fatalf("scores not descending: %+v", hits)
	}
}

func TestSearchScopeIsolation(t *testing.T) {
	x, _ := NewChromemIndex(4)
	ctx := context.Background()

	a := Scope{CompanionID: "nova", UserID: "u1"}
	b := Scope{CompanionID: "atlas", UserID: "u1"}
	c := Scope{CompanionID: "nova", UserID: "u2"}

	if err := x.Insert(ctx, a, "ea", unit(4, 0)); err != nil {
		t.Fatalf("Insert error = %v", err)
	}
	if err := x.Insert(ctx, b, "eb", unit(4, 0)); err != nil {
		t.Fatalf("Insert error = %v", err)
	}

	hits, err := x.Search(ctx, a, unit(4, 0), 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].EntryID != "ea" {
		t.Fatalf("scope a hits = %+v, want only ea", hits)
	}

	hits, err = x.Search(ctx, c, unit(4, 0), 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("scope c hits = %+v, want none", hits)
	}
}

func TestRemoveExcludesEntry(t *testing.T) {
	x, _ := NewChromemIndex(4)
	ctx := context.Background()
	scope := Scope{CompanionID: "nova", UserID: "u1"}

	if err := x.Insert(ctx, scope, "e1", unit(4, 0)); err != nil {
		t.Fatalf("Insert error = %v", err)
	}
	if err := x.Insert(ctx, scope, "e2", unit(4, 1)); err != nil {
		t.Fatalf("Insert error = %v", err)
	}
	if err := x.Remove(ctx, scope, "e1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	hits, err := x.Search(ctx, scope, unit(4, 0), 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, h := range hits {
		if h.EntryID == "e1" {
			t.Fatalf("removed entry e1 still returned")
		}
	}
}

func TestInsertRejectsWrongDimension(t *testing.T) {
	x, _ := NewChromemIndex(4)
	err := x.Insert(context.Background(), Scope{CompanionID: "nova", UserID: "u1"}, "e1", unit(8, 0))
	if err == nil {
		t.Fatalf("Insert with wrong dim should fail")
	}
}

func TestSearchClampsKToCollectionSize(t *testing.T) {
	x, _ := NewChromemIndex(4)
	ctx := context.Background()
	scope := Scope{CompanionID: "nova", UserID: "u1"}
	if err := x.Insert(ctx, scope, "e1", unit(4, 0)); err != nil {
		t.Fatalf("Insert error = %v", err)
	}
	hits, err := x.Search(ctx, scope, unit(4, 0), 50)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
}
