package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/companions"
)

func (s *Server) handleListCompanions(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "me" {
		owner = identityFrom(r.Context()).UserID
	}
	list, err := s.catalog.ListCompanions(r.Context(), owner)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}

	category := strings.TrimSpace(r.URL.Query().Get("category"))
	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	filtered := make([]companions.Companion, 0, len(list))
	for _, c := range list {
		if category != "" && c.CategoryID != category {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(c.Name), query) &&
			!strings.Contains(strings.ToLower(c.ShortDescription), query) {
			continue
		}
		filtered = append(filtered, c)
	}
	respondJSON(w, http.StatusOK, filtered)
}

func (s *Server) handleCreateCompanion(w http.ResponseWriter, r *http.Request) {
	var c companions.Companion
	if err := decodeJSON(r, &c); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	id := identityFrom(r.Context())
	c.OwnerID = id.UserID
	c.OwnerName = id.UserName

	created, err := s.catalog.CreateCompanion(r.Context(), c)
	if err != nil {
		if errors.Is(err, companions.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid_companion", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "create_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetCompanion(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalog.GetCompanion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, companions.ErrNotFound) {
			respondError(w, http.StatusNotFound, "companion_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "get_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCompanion(w http.ResponseWriter, r *http.Request) {
	existing, err := s.catalog.GetCompanion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, companions.ErrNotFound) {
			respondError(w, http.StatusNotFound, "companion_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "get_failed", err.Error())
		return
	}
	if existing.OwnerID != identityFrom(r.Context()).UserID {
		respondError(w, http.StatusForbidden, "not_owner", "only the owner can modify a companion")
		return
	}

	var c companions.Companion
	if err := decodeJSON(r, &c); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	c.ID = existing.ID
	c.OwnerID = existing.OwnerID
	c.OwnerName = existing.OwnerName

	updated, err := s.catalog.UpdateCompanion(r.Context(), c)
	if err != nil {
		if errors.Is(err, companions.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid_companion", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "update_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteCompanion(w http.ResponseWriter, r *http.Request) {
	existing, err := s.catalog.GetCompanion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, companions.ErrNotFound) {
			respondError(w, http.StatusNotFound, "companion_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "get_failed", err.Error())
		return
	}
	if existing.OwnerID != identityFrom(r.Context()).UserID {
		respondError(w, http.StatusForbidden, "not_owner", "only the owner can delete a companion")
		return
	}
	if err := s.catalog.DeleteCompanion(r.Context(), existing.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "delete_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.catalog.ListCategories(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	if cats == nil {
		cats = []companions.Category{}
	}
	respondJSON(w, http.StatusOK, cats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	cat, err := s.catalog.CreateCategory(r.Context(), req.Name)
	if err != nil {
		switch {
		case errors.Is(err, companions.ErrCategoryExists):
			respondError(w, http.StatusConflict, "category_exists", err.Error())
		case errors.Is(err, companions.ErrInvalidInput):
			respondError(w, http.StatusBadRequest, "invalid_category", "name is required")
		default:
			respondError(w, http.StatusInternalServerError, "create_failed", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusCreated, cat)
}
