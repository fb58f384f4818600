package http

import (
	"net/http"

	"github.com/coachdiary/gradebook/internal/gradebook"
)

type standardRequest struct {
	Name            string                 `json:"name" validate:"required,max=255"`
	Description     string                 `json:"description"`
	HasNumericValue bool                   `json:"has_numeric_value"`
	Levels          []gradebook.LevelInput `json:"levels" validate:"dive"`
}

func (req standardRequest) input() gradebook.StandardInput {
	return gradebook.StandardInput{
		Name:        req.Name,
		Description: req.Description,
		Kind:        gradebook.KindFromNumeric(req.HasNumericValue),
		Levels:      req.Levels,
	}
}

type standardResponse struct {
	gradebook.Standard
	HasNumericValue bool `json:"has_numeric_value"`
}

func toResponse(s gradebook.Standard) standardResponse {
	if s.Levels == nil {
		s.Levels = []gradebook.Level{}
	}
	return standardResponse{Standard: s, HasNumericValue: s.HasNumericValue()}
}

// GET /standards
func (a *API) listStandards(w http.ResponseWriter, r *http.Request) {
	c, err := callerFrom(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	stds, err := a.Engine.ListStandards(r.Context(), c.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]standardResponse, 0, len(stds))
	for _, s := range stds {
		out = append(out, toResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /standards/{id}
func (a *API) getStandard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	std, err := a.Engine.GetStandard(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(std))
}

// POST /standards
//
// A standard whose name already exists gets the new levels merged in; the
// response is then 200 instead of 201.
func (a *API) createStandard(w http.ResponseWriter, r *http.Request) {
	c, err := callerFrom(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req standardRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	std, created, err := a.Engine.CreateStandard(r.Context(), c.ID, req.input())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toResponse(std))
}

// PUT /standards/{id}
func (a *API) updateStandard(w http.ResponseWriter, r *http.Request) {
	c, err := callerFrom(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req standardRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	std, err := a.Engine.UpdateStandard(r.Context(), c.ID, id, req.input())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(std))
}

// DELETE /standards/{id}/levels?level_number=N
func (a *API) removeLevel(w http.ResponseWriter, r *http.Request) {
	c, err := callerFrom(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	n, err := queryLevel(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if n == nil {
		a.fail(w, r, &gradebook.ValidationError{Field: "level_number", Message: "is required"})
		return
	}
	removed, err := a.Engine.RemoveLevel(r.Context(), c.ID, id, *n)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
