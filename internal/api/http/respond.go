package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/coachdiary/gradebook/internal/gradebook"
	"github.com/coachdiary/gradebook/internal/validate"
)

const maxBody = 4 << 20

type errorBody struct {
	Error   string         `json:"error"`
	Field   string         `json:"field,omitempty"`
	Entries map[int]string `json:"entries,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps engine errors onto status codes. Anything unrecognised is logged
// and reported as a 500 without details.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		be *gradebook.BatchError
		ve *gradebook.ValidationError
	)
	switch {
	case errors.As(err, &be):
		body := errorBody{Error: "batch rejected", Entries: map[int]string{}}
		for i, e := range be.Entries {
			body.Entries[i] = e.Error()
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Field: ve.Field})
	case errors.Is(err, gradebook.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
	case errors.Is(err, gradebook.ErrNotFound), errors.Is(err, gradebook.ErrLevelNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, gradebook.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		a.log.Errorf("%s %s: %+v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		return &gradebook.ValidationError{Message: "bad json: " + err.Error()}
	}
	return validate.Struct(dst)
}
