// Package http exposes the gradebook over JSON. Routes expect the JWT and
// role middleware from internal/auth to have run already.
package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	auth "github.com/coachdiary/gradebook/internal/auth/middleware"
	"github.com/coachdiary/gradebook/internal/gradebook"
	"github.com/coachdiary/gradebook/internal/rbac"
	"github.com/coachdiary/gradebook/internal/roster"
	"github.com/coachdiary/gradebook/internal/transfer"
)

type API struct {
	Engine   *gradebook.Engine
	Roster   *roster.Service
	Importer *transfer.Importer

	log *log.Logger
}

func New(eng *gradebook.Engine, rs *roster.Service, im *transfer.Importer, logger *log.Logger) *API {
	if logger == nil {
		logger = log.New("api")
	}
	return &API{Engine: eng, Roster: rs, Importer: im, log: logger}
}

// Mount registers every gradebook route on r.
func (a *API) Mount(r chi.Router) {
	r.With(rbac.Require(rbac.PermStandardsRead)).Get("/standards", a.listStandards)
	r.With(rbac.Require(rbac.PermStandardsRead)).Get("/standards/{id}", a.getStandard)
	r.With(rbac.Require(rbac.PermStandardsWrite)).Post("/standards", a.createStandard)
	r.With(rbac.Require(rbac.PermStandardsWrite)).Put("/standards/{id}", a.updateStandard)
	r.With(rbac.Require(rbac.PermStandardsWrite)).Delete("/standards/{id}/levels", a.removeLevel)

	r.With(rbac.Require(rbac.PermResultsRead)).Get("/results", a.classResults)
	r.With(rbac.Require(rbac.PermResultsRecord)).Post("/results", a.recordResults)

	r.With(rbac.Require(rbac.PermStudentsRead)).Get("/students", a.listStudents)
	r.With(rbac.Require(rbac.PermStudentsWrite)).Post("/students", a.createStudent)
	r.With(rbac.Require(rbac.PermStudentsWrite)).Put("/students/{id}", a.updateStudent)
	r.With(rbac.RequireAny(rbac.PermSummaryAny, rbac.PermSummaryOwn)).
		Get("/students/{id}/standards", a.studentSummary)

	r.With(rbac.Require(rbac.PermStudentsRead)).Get("/classes", a.listClasses)
	r.With(rbac.Require(rbac.PermClassesPromote)).Post("/classes/promote", a.promoteClasses)
	r.With(rbac.Require(rbac.PermImport)).Post("/import", a.importDocument)
}

type caller struct {
	ID   int64
	Role string
}

func (c caller) isAdmin() bool { return c.Role == auth.RoleAdmin }

func callerFrom(r *http.Request) (caller, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return caller{}, errors.Wrap(gradebook.ErrForbidden, "no user in token")
	}
	return caller{ID: id, Role: rbac.RoleFromContext(r.Context())}, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &gradebook.ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

// queryLevel reads an optional level_number query parameter.
func queryLevel(r *http.Request) (*int, error) {
	raw := r.URL.Query().Get("level_number")
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < gradebook.MinClassNumber || n > gradebook.MaxClassNumber {
		return nil, &gradebook.ValidationError{Field: "level_number", Message: "must be a class number between 1 and 11"}
	}
	return &n, nil
}

// queryIDs reads a repeatable id parameter; ?class_id=1&class_id=2 and
// ?class_id=1,2 are the same.
func queryIDs(r *http.Request, name string) ([]int64, error) {
	var out []int64
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, &gradebook.ValidationError{Field: name, Message: "must be a list of positive integers"}
			}
			out = append(out, id)
		}
	}
	return out, nil
}
