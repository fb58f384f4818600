package gradebook

import (
	"context"
	"math"

	"github.com/pkg/errors"
)

// RecordRequest is one measured value for a student. Level selection runs
// LevelID first, then LevelNumber, then the student's current class.
type RecordRequest struct {
	StudentID   int64    `json:"student_id" validate:"required,gt=0"`
	StandardID  int64    `json:"standard_id" validate:"required,gt=0"`
	Value       *float64 `json:"value" validate:"required"`
	LevelID     *int64   `json:"level_id,omitempty" validate:"omitempty,gt=0"`
	LevelNumber *int     `json:"level_number,omitempty" validate:"omitempty,min=1,max=11"`
}

// EnsureEntries makes sure the student has a slot for every standard at every
// class in classes for which a matching level exists. Existing slots are left
// alone, so calling it twice is the same as calling it once. It returns the
// number of placeholders created.
func (e *Engine) EnsureEntries(ctx context.Context, st Student, standards []Standard, classes ClassRange) (int, error) {
	var n int
	err := e.Store.InTx(ctx, func(tx Tx) error {
		var err error
		n, err = e.ensureEntries(ctx, tx, st, standards, classes)
		return err
	})
	return n, err
}

func (e *Engine) ensureEntries(ctx context.Context, tx Tx, st Student, standards []Standard, classes ClassRange) (int, error) {
	if classes.From < MinClassNumber {
		classes.From = MinClassNumber
	}
	if classes.To > MaxClassNumber {
		classes.To = MaxClassNumber
	}
	if classes.Empty() || len(standards) == 0 {
		return 0, nil
	}

	var batch []Result
	seen := map[int64]bool{}
	for _, std := range standards {
		if seen[std.ID] {
			continue
		}
		seen[std.ID] = true

		levels, err := tx.ListLevels(ctx, std.ID)
		if err != nil {
			return 0, errors.Wrapf(err, "levels of standard %d", std.ID)
		}
		ix := indexLevels(levels)
		for _, n := range classes.Numbers() {
			lvl, err := ix.resolve(n, st.Gender)
			if err != nil {
				e.log.Debugf("no level %d/%s for standard %d, skipping", n, st.Gender, std.ID)
				continue
			}
			batch = append(batch, placeholder(st, lvl))
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}
	created, err := tx.InsertPlaceholders(ctx, batch)
	if err != nil {
		return 0, errors.Wrapf(err, "placeholders for student %d", st.ID)
	}
	return created, nil
}

func placeholder(st Student, lvl Level) Result {
	id := lvl.ID
	return Result{
		StudentID:   st.ID,
		StandardID:  lvl.StandardID,
		LevelID:     &id,
		LevelNumber: lvl.Number,
		LevelGender: lvl.Gender,
	}
}

// RecordResult grades value against the selected level and stores it,
// overwriting any previous value for the same slot.
func (e *Engine) RecordResult(ctx context.Context, req RecordRequest) (Result, error) {
	var out Result
	err := e.Store.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = e.recordResult(ctx, tx, req)
		return err
	})
	return out, err
}

// RecordResults applies every request or none. Validation failures are
// collected per entry index and returned as a *BatchError.
func (e *Engine) RecordResults(ctx context.Context, reqs []RecordRequest) ([]Result, error) {
	var out []Result
	err := e.Store.InTx(ctx, func(tx Tx) error {
		out = make([]Result, 0, len(reqs))
		failed := map[int]error{}
		for i, req := range reqs {
			r, err := e.recordResult(ctx, tx, req)
			if err != nil {
				if !IsValidation(err) {
					return errors.Wrapf(err, "entry %d", i)
				}
				failed[i] = err
				continue
			}
			out = append(out, r)
		}
		if len(failed) > 0 {
			return &BatchError{Entries: failed}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Infof("recorded %d results", len(out))
	return out, nil
}

func (e *Engine) recordResult(ctx context.Context, tx Tx, req RecordRequest) (Result, error) {
	if req.Value == nil {
		return Result{}, invalid("value", "is required")
	}
	st, err := tx.GetStudent(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Result{}, invalid("student_id", "student %d does not exist", req.StudentID)
		}
		return Result{}, err
	}
	std, err := tx.GetStandard(ctx, req.StandardID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Result{}, invalid("standard_id", "standard %d does not exist", req.StandardID)
		}
		return Result{}, err
	}
	lvl, err := selectLevel(ctx, tx, std, st, req)
	if err != nil {
		return Result{}, err
	}
	value := *req.Value
	if err := checkValue(std.Kind, value); err != nil {
		return Result{}, err
	}
	grade, err := CalculateGrade(std.Kind, lvl, value)
	if err != nil {
		if errors.Is(err, ErrInvalidLevel) {
			return Result{}, invalid("level", "%v", err)
		}
		return Result{}, err
	}

	levelID := lvl.ID
	saved, err := tx.UpsertResult(ctx, Result{
		StudentID:   st.ID,
		StandardID:  std.ID,
		LevelID:     &levelID,
		LevelNumber: lvl.Number,
		LevelGender: lvl.Gender,
		Value:       &value,
		Grade:       &grade,
		RecordedAt:  e.Now().UTC(),
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "save result")
	}
	return saved, nil
}

func selectLevel(ctx context.Context, tx Tx, std Standard, st Student, req RecordRequest) (Level, error) {
	switch {
	case req.LevelID != nil:
		lvl, err := tx.GetLevel(ctx, *req.LevelID)
		if errors.Is(err, ErrNotFound) || (err == nil && lvl.StandardID != std.ID) {
			return Level{}, invalid("level_id", "level %d does not belong to standard %d", *req.LevelID, std.ID)
		}
		if err != nil {
			return Level{}, err
		}
		if lvl.Gender != st.Gender {
			return Level{}, invalid("level_id", "level %d is for gender %q", lvl.ID, lvl.Gender)
		}
		return lvl, nil
	case req.LevelNumber != nil:
		lvl, err := Resolve(ctx, tx, std.ID, *req.LevelNumber, st.Gender)
		if errors.Is(err, ErrLevelNotFound) {
			return Level{}, invalid("level_number", "standard %q has no level %d for gender %q", std.Name, *req.LevelNumber, st.Gender)
		}
		return lvl, err
	default:
		lvl, err := Resolve(ctx, tx, std.ID, st.ClassNumber, st.Gender)
		if errors.Is(err, ErrLevelNotFound) {
			return Level{}, invalid("level_number", "standard %q has no level for class %d, gender %q", std.Name, st.ClassNumber, st.Gender)
		}
		return lvl, err
	}
}

func checkValue(kind Kind, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid("value", "must be a finite number")
	}
	switch kind {
	case KindSkill:
		if v != math.Trunc(v) || v < MinGrade || v > MaxGrade {
			return invalid("value", "skill grade must be a whole number from %d to %d", MinGrade, MaxGrade)
		}
	case KindNumeric:
		if v < 0 {
			return invalid("value", "must not be negative")
		}
	}
	return nil
}
