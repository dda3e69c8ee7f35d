package provider

import (
	"context"
	"strings"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestMockEmbedDeterministic(t *testing.T) {
	m := NewMock(64)
	ctx := context.Background()

	a1, err := m.Embed(ctx, "My name is Sam")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	a2, _ := m.Embed(ctx, "My name is Sam")
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatalf("embedding not deterministic at dim %d", i)
		}
	}
}

func TestMockEmbedWordOverlapRanksHigher(t *testing.T) {
	m := NewMock(64)
	ctx := context.Background()

	name, _ := m.Embed(ctx, "My name is Sam")
	query, _ := m.Embed(ctx, "What's my name?")
	weather, _ := m.Embed(ctx, "The weather looks cloudy today")

	if cosine(query, name) <= cosine(query, weather) {
		t.Fatalf("name fact should score above unrelated text: %v vs %v",
			cosine(query, name), cosine(query, weather))
	}
}

func TestMockClassifyBlockMarker(t *testing.T) {
	m := NewMock(64)
	ctx := context.Background()

	v, err := m.Classify(ctx, "a friendly hello")
	if err != nil || !v.Allowed {
		t.Fatalf("Classify(benign) = %+v, %v; want allowed", v, err)
	}
	v, err = m.Classify(ctx, "something "+BlockMarker+" here")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if v.Allowed || v.Reason != "policy" {
		t.Fatalf("Classify(marked) = %+v, want blocked with policy reason", v)
	}
}

func TestMockGenerateUsesContext(t *testing.T) {
	m := NewMock(64)
	ctx := context.Background()

	reply, err := m.Generate(ctx, "persona", nil, "hello there")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(reply, "hello there") {
		t.Fatalf("reply %q should echo the message", reply)
	}

	reply, _ = m.Generate(ctx, "persona", []TurnMessage{{Role: "user", Content: "I like tea"}}, "and you?")
	if !strings.Contains(reply, "I like tea") {
		t.Fatalf("reply %q should reference prior turn", reply)
	}
}
