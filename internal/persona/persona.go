// Package persona renders a companion's identity and personality
// traits into the system prompt handed to the language model.
package persona

import (
	"fmt"
	"strings"
)

// Traits are the tunable personality dials, each on a 1-5 scale.
type Traits struct {
	Humor         int `json:"humor"`
	Empathy       int `json:"empathy"`
	Assertiveness int `json:"assertiveness"`
	Sarcasm       int `json:"sarcasm"`
}

// Clamped returns a copy with every trait forced into [1,5]. Zero
// values (unset) land on the midpoint.
func (t Traits) Clamped() Traits {
	return Traits{
		Humor:         clampTrait(t.Humor),
		Empathy:       clampTrait(t.Empathy),
		Assertiveness: clampTrait(t.Assertiveness),
		Sarcasm:       clampTrait(t.Sarcasm),
	}
}

func clampTrait(v int) int {
	if v == 0 {
		return 3
	}
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

// Profile is everything needed to produce the persona prompt.
type Profile struct {
	Name             string
	Identity         string
	InteractionStyle string
	Traits           Traits
}

// SystemPrompt renders the profile as the system message. Remembered
// facts about the user, if any, are appended as a memory section.
func (p Profile) SystemPrompt(memories []string) string {
	t := p.Traits.Clamped()

	identity := strings.TrimSpace(p.Identity)
	if identity == "" {
		identity = fmt.Sprintf("%s, a thoughtful companion", p.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", identity)
	if style := strings.TrimSpace(p.InteractionStyle); style != "" {
		fmt.Fprintf(&b, " Style: %s.", style)
	}
	fmt.Fprintf(&b, " Traits - Humor: %d/5, Empathy: %d/5, Assertiveness: %d/5, Sarcasm: %d/5.",
		t.Humor, t.Empathy, t.Assertiveness, t.Sarcasm)

	if len(memories) > 0 {
		b.WriteString("\n\nThings you remember about this user:")
		for _, m := range memories {
			fmt.Fprintf(&b, "\n- %s", strings.TrimSpace(m))
		}
	}
	return b.String()
}
