package http

import (
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/coachdiary/gradebook/internal/gradebook"
	"github.com/coachdiary/gradebook/internal/rbac"
	"github.com/coachdiary/gradebook/internal/roster"
)

// GET /students
func (a *API) listStudents(w http.ResponseWriter, r *http.Request) {
	c, err := callerFrom(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := a.Roster.ListStudents(r.Context(), c.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if out == nil {
		out = []roster.Student{}
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /students
func (a *API) createStudent(w http.ResponseWriter, r *http.Request) {
	c, err := callerFrom(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var in roster.StudentInput
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.Roster.CreateStudent(r.Context(), c.ID, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// PUT /students/{id}
func (a *API) updateStudent(w http.ResponseWriter, r *http.Request) {
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
	var in roster.StudentInput
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.Roster.UpdateStudent(r.Context(), c.ID, id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GET /classes
func (a *API) listClasses(w http.ResponseWriter, r *http.Request) {
	c, err := callerFrom(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := a.Roster.ListClasses(r.Context(), c.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if out == nil {
		out = []roster.Class{}
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /classes/promote
func (a *API) promoteClasses(w http.ResponseWriter, r *http.Request) {
	c, err := callerFrom(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rep, err := a.Roster.PromoteClasses(r.Context(), c.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GET /students/{id}/standards?level_number=N
//
// Teachers see the students they teach, a student sees only the record
// linked to their own login, admins see everyone.
func (a *API) studentSummary(w http.ResponseWriter, r *http.Request) {
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
	level, err := queryLevel(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	ctx := r.Context()
	st, err := a.Engine.Student(ctx, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	switch {
	case c.isAdmin():
	case rbac.Can(ctx, rbac.PermSummaryAny) && st.TeacherID == c.ID:
	case rbac.Can(ctx, rbac.PermSummaryOwn) && st.UserID != nil && *st.UserID == c.ID:
	default:
		a.fail(w, r, errors.Wrapf(gradebook.ErrForbidden, "summary of student %d", id))
		return
	}

	sum, err := a.Engine.StudentSummary(ctx, id, level)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// POST /import  (body is a transfer document)
func (a *API) importDocument(w http.ResponseWriter, r *http.Request) {
	c, err := callerFrom(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	doc, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		a.fail(w, r, &gradebook.ValidationError{Message: "read body: " + err.Error()})
		return
	}
	rep, err := a.Importer.Import(r.Context(), c.ID, doc)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
