package companions

import (
	"context"
	"errors"
	"testing"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/persona"
)

func TestCreateAndGetCompanion(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()

	created, err := s.CreateCompanion(ctx, Companion{
		OwnerID:          "user-1",
		Name:             "Nova",
		Identity:         "Nova, a curious stargazer",
		InteractionStyle: "warm",
		Traits:           persona.Traits{Humor: 4, Empathy: 9},
	})
	if err != nil {
		t.Fatalf("CreateCompanion() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("created companion has empty id")
	}
	if created.Traits.Empathy != 5 {
		t.Fatalf("traits not clamped: %+v", created.Traits)
	}

	got, err := s.GetCompanion(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetCompanion() error = %v", err)
	}
	if got.Name != "Nova" || got.OwnerID != "user-1" {
		t.Fatalf("GetCompanion() = %+v", got)
	}
}

func TestCreateCompanionValidation(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()

	if _, err := s.CreateCompanion(ctx, Companion{OwnerID: "u"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing name: err = %v, want ErrInvalidInput", err)
	}
	if _, err := s.CreateCompanion(ctx, Companion{Name: "Nova"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing owner: err = %v, want ErrInvalidInput", err)
	}
}

func TestListCompanionsFiltersByOwner(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()

	s.CreateCompanion(ctx, Companion{OwnerID: "alice", Name: "Nova"})
	s.CreateCompanion(ctx, Companion{OwnerID: "alice", Name: "Atlas"})
	s.CreateCompanion(ctx, Companion{OwnerID: "bob", Name: "Echo"})

	mine, err := s.ListCompanions(ctx, "alice")
	if err != nil {
		t.Fatalf("ListCompanions() error = %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("ListCompanions(alice) returned %d, want 2", len(mine))
	}

	all, _ := s.ListCompanions(ctx, "")
	if len(all) != 3 {
		t.Fatalf("ListCompanions(\"\") returned %d, want 3", len(all))
	}
}

func TestUpdateCompanion(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()

	created, _ := s.CreateCompanion(ctx, Companion{OwnerID: "u", Name: "Nova"})
	created.InteractionStyle = "playful"
	updated, err := s.UpdateCompanion(ctx, created)
	if err != nil {
		t.Fatalf("UpdateCompanion() error = %v", err)
	}
	if updated.InteractionStyle != "playful" {
		t.Fatalf("update not applied: %+v", updated)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatal("update must not change created_at")
	}

	missing := created
	missing.ID = "nope"
	if _, err := s.UpdateCompanion(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteCompanion(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()

	created, _ := s.CreateCompanion(ctx, Companion{OwnerID: "u", Name: "Nova"})
	if err := s.DeleteCompanion(ctx, created.ID); err != nil {
		t.Fatalf("DeleteCompanion() error = %v", err)
	}
	if _, err := s.GetCompanion(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteCompanion(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: err = %v, want ErrNotFound", err)
	}
}

func TestCategories(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()

	if _, err := s.CreateCategory(ctx, "Sci-Fi"); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	if _, err := s.CreateCategory(ctx, "sci-fi"); !errors.Is(err, ErrCategoryExists) {
		t.Fatalf("duplicate category: err = %v, want ErrCategoryExists", err)
	}
	s.CreateCategory(ctx, "Advice")

	cats, err := s.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(cats) != 2 || cats[0].Name != "Advice" || cats[1].Name != "Sci-Fi" {
		t.Fatalf("ListCategories() = %+v, want sorted [Advice Sci-Fi]", cats)
	}
}

func TestCompanionPersona(t *testing.T) {
	c := Companion{
		Name:             "Nova",
		Identity:         "Nova, a stargazer",
		InteractionStyle: "warm",
		Traits:           persona.Traits{Humor: 2, Empathy: 4, Assertiveness: 3, Sarcasm: 1},
	}
	p := c.Persona()
	if p.Name != "Nova" || p.Identity != "Nova, a stargazer" || p.Traits.Empathy != 4 {
		t.Fatalf("Persona() = %+v", p)
	}
}
