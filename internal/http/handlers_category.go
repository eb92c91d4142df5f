package http

import (
	"net/http"

	"kakebo/internal/core"
	"kakebo/internal/service"
)

type categoryPayload struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
	Icon  *string `json:"icon"`
}

func categoryFromPayload(p categoryPayload) core.Category {
	var c core.Category
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	if p.Icon != nil {
		c.Icon = *p.Icon
	}
	return c
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.categories.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryListJSON(cats))
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	cat, err := s.categories.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryJSON(cat))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var payload categoryPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Name == nil {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	cat := categoryFromPayload(payload)
	created, err := s.categories.Create(r.Context(), cat)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.invalidateAggregates()
	writeJSON(w, http.StatusCreated, toCategoryJSON(created))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	var payload categoryPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.categories.Update(r.Context(), id, service.CategoryPatch{
		Name:  payload.Name,
		Color: payload.Color,
		Icon:  payload.Icon,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, toCategoryJSON(updated))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category id")
		return
	}
	deleted, err := s.categories.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if deleted {
		s.invalidateAggregates()
	}
	writeJSON(w, http.StatusOK, successJSON{Success: deleted})
}
