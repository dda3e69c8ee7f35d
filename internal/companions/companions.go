// Package companions holds the catalog of chat characters and their
// grouping categories.
package companions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/persona"
)

var (
	ErrNotFound       = errors.New("companion not found")
	ErrCategoryExists = errors.New("category already exists")
	ErrInvalidInput   = errors.New("invalid companion input")
)

// ModerationLevels are per-axis strictness dials on a 1-5 scale. They
// travel with the companion so a stricter character can be stricter
// than the platform default.
type ModerationLevels struct {
	Hate       int `json:"hate"`
	Harassment int `json:"harassment"`
	Violence   int `json:"violence"`
	SelfHarm   int `json:"self_harm"`
	Sexual     int `json:"sexual"`
}

// Companion is one chat character.
type Companion struct {
	ID               string           `json:"id"`
	OwnerID          string           `json:"owner_id"`
	OwnerName        string           `json:"owner_name"`
	Name             string           `json:"name"`
	ShortDescription string           `json:"short_description"`
	Identity         string           `json:"identity"`
	InteractionStyle string           `json:"interaction_style"`
	CategoryID       string           `json:"category_id,omitempty"`
	AvatarURL        string           `json:"avatar_url,omitempty"`
	Traits           persona.Traits   `json:"traits"`
	Moderation       ModerationLevels `json:"moderation"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Persona renders the companion into the prompt profile.
func (c Companion) Persona() persona.Profile {
	return persona.Profile{
		Name:             c.Name,
		Identity:         c.Identity,
		InteractionStyle: c.InteractionStyle,
		Traits:           c.Traits,
	}
}

// Validate checks required fields before a create or update.
func (c Companion) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.Join(ErrInvalidInput, errors.New("name is required"))
	}
	if strings.TrimSpace(c.OwnerID) == "" {
		return errors.Join(ErrInvalidInput, errors.New("owner is required"))
	}
	return nil
}

// Category groups companions in the catalog.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Store persists companions and categories.
type Store interface {
	CreateCompanion(ctx context.Context, c Companion) (Companion, error)
	GetCompanion(ctx context.Context, id string) (Companion, error)
	ListCompanions(ctx context.Context, ownerID string) ([]Companion, error)
	UpdateCompanion(ctx context.Context, c Companion) (Companion, error)
	DeleteCompanion(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, name string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	Close()
}

func newID() string { return uuid.NewString() }
