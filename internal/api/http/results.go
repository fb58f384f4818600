package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/coachdiary/gradebook/internal/gradebook"
	"github.com/coachdiary/gradebook/internal/roster"
	"github.com/coachdiary/gradebook/internal/validate"
)

// POST /results  { "results": [ {student_id, standard_id, value, level_number?, level_id?}, ... ] }
//
// The batch is all or nothing: any rejected entry fails the request and the
// response lists every rejected entry by index.
func (a *API) recordResults(w http.ResponseWriter, r *http.Request) {
	c, err := callerFrom(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req struct {
		Results []gradebook.RecordRequest `json:"results"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		a.fail(w, r, &gradebook.ValidationError{Message: "bad json: " + err.Error()})
		return
	}
	if len(req.Results) == 0 {
		a.fail(w, r, &gradebook.ValidationError{Field: "results", Message: "is required"})
		return
	}

	bad := map[int]error{}
	owners := map[int64]error{}
	for i, rr := range req.Results {
		if err := validate.Struct(rr); err != nil {
			bad[i] = err
			continue
		}
		if c.isAdmin() {
			continue
		}
		err, seen := owners[rr.StudentID]
		if !seen {
			err = a.checkTeaches(r, c, rr.StudentID)
			owners[rr.StudentID] = err
		}
		switch {
		case errors.Is(err, gradebook.ErrNotFound):
			bad[i] = &gradebook.ValidationError{Field: "student_id", Message: fmt.Sprintf("student %d does not exist", rr.StudentID)}
		case err != nil:
			a.fail(w, r, err)
			return
		}
	}
	if len(bad) > 0 {
		a.fail(w, r, &gradebook.BatchError{Entries: bad})
		return
	}

	out, err := a.Engine.RecordResults(r.Context(), req.Results)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": out})
}

func (a *API) checkTeaches(r *http.Request, c caller, studentID int64) error {
	st, err := a.Engine.Student(r.Context(), studentID)
	if err != nil {
		return err
	}
	if st.TeacherID != c.ID {
		return errors.Wrapf(gradebook.ErrForbidden, "student %d", studentID)
	}
	return nil
}

// GET /results?class_id=N[&class_id=M][&standard_id=K...]
//
// The results grid of the caller's classes, one row per student.
func (a *API) classResults(w http.ResponseWriter, r *http.Request) {
	c, err := callerFrom(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	classIDs, err := queryIDs(r, "class_id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	standardIDs, err := queryIDs(r, "standard_id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rows, err := a.Roster.ListClassResults(r.Context(), c.ID, classIDs, standardIDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []roster.ClassRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"students": rows})
}
