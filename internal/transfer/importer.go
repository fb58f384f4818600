// Package transfer loads gradebook data exported from another CoachDiary
// instance or prepared by hand.
//
// The document is JSON:
//
//	{
//	  "standards": [
//	    {"name": "Бег 60 м", "description": "", "has_numeric_value": true,
//	     "levels": [{"level_number": 5, "gender": "m", "is_lower_better": true,
//	                 "low_value": 11.2, "middle_value": 10.6, "high_value": 10.0}]}
//	  ],
//	  "results": [
//	    {"student_id": 12, "standard": "Бег 60 м", "value": 10.4, "level_number": 5}
//	  ]
//	}
//
// Results may name their standard by "standard" (name) or "standard_id".
package transfer

import (
	"context"
	"fmt"
	"math"

	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/coachdiary/gradebook/internal/gradebook"
)

type Report struct {
	StandardsCreated int `json:"standards_created"`
	StandardsMerged  int `json:"standards_merged"`
	Results          int `json:"results"`
}

type Importer struct {
	Engine *gradebook.Engine
	log    *log.Logger
}

func NewImporter(eng *gradebook.Engine, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.New("import")
	}
	return &Importer{Engine: eng, log: logger}
}

// Import applies the document on behalf of ownerID. Standards go through the
// same merge-by-name path as the editor and are written in one transaction,
// so one bad standard leaves the catalog untouched. Results are recorded
// afterwards as one batch: a bad result rejects every result but keeps the
// standards.
func (im *Importer) Import(ctx context.Context, ownerID int64, doc []byte) (Report, error) {
	var rep Report
	if !gjson.ValidBytes(doc) {
		return rep, &gradebook.ValidationError{Message: "document is not valid JSON"}
	}

	var ins []gradebook.StandardInput
	for i, v := range gjson.GetBytes(doc, "standards").Array() {
		in, err := standardInput(v)
		if err != nil {
			return rep, errors.Wrapf(err, "standards[%d]", i)
		}
		ins = append(ins, in)
	}

	byName := map[string]int64{}
	err := im.Engine.Store.InTx(ctx, func(tx gradebook.Tx) error {
		rep.StandardsCreated, rep.StandardsMerged = 0, 0
		for i, in := range ins {
			std, created, err := im.Engine.CreateStandardTx(ctx, tx, ownerID, in)
			if err != nil {
				return errors.Wrapf(err, "standards[%d]", i)
			}
			if created {
				rep.StandardsCreated++
			} else {
				rep.StandardsMerged++
			}
			byName[std.Name] = std.ID
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	var reqs []gradebook.RecordRequest
	for i, v := range gjson.GetBytes(doc, "results").Array() {
		req, err := im.recordRequest(ctx, v, byName)
		if err != nil {
			return rep, errors.Wrapf(err, "results[%d]", i)
		}
		st, err := im.Engine.Student(ctx, req.StudentID)
		if err != nil {
			if errors.Is(err, gradebook.ErrNotFound) {
				return rep, &gradebook.ValidationError{Field: fmt.Sprintf("results[%d].student_id", i), Message: "unknown student"}
			}
			return rep, err
		}
		if st.TeacherID != ownerID {
			return rep, errors.Wrapf(gradebook.ErrForbidden, "results[%d]: student %d", i, st.ID)
		}
		reqs = append(reqs, req)
	}
	if len(reqs) > 0 {
		out, err := im.Engine.RecordResults(ctx, reqs)
		if err != nil {
			return rep, err
		}
		rep.Results = len(out)
	}
	im.log.Infof("import by %d: %+v", ownerID, rep)
	return rep, nil
}

func standardInput(v gjson.Result) (gradebook.StandardInput, error) {
	if !v.IsObject() {
		return gradebook.StandardInput{}, &gradebook.ValidationError{Message: "standard must be an object"}
	}
	in := gradebook.StandardInput{
		Name:        v.Get("name").String(),
		Description: v.Get("description").String(),
		Kind:        gradebook.KindFromNumeric(v.Get("has_numeric_value").Bool()),
	}
	for _, l := range v.Get("levels").Array() {
		in.Levels = append(in.Levels, gradebook.LevelInput{
			Number:        int(l.Get("level_number").Int()),
			Gender:        gradebook.Gender(l.Get("gender").String()),
			IsLowerBetter: l.Get("is_lower_better").Bool(),
			Low:           optFloat(l.Get("low_value")),
			Middle:        optFloat(l.Get("middle_value")),
			High:          optFloat(l.Get("high_value")),
		})
	}
	return in, nil
}

func (im *Importer) recordRequest(ctx context.Context, v gjson.Result, byName map[string]int64) (gradebook.RecordRequest, error) {
	req := gradebook.RecordRequest{StudentID: v.Get("student_id").Int()}
	if req.StudentID <= 0 {
		return req, &gradebook.ValidationError{Field: "student_id", Message: "is required"}
	}

	value := v.Get("value")
	if value.Type != gjson.Number {
		return req, &gradebook.ValidationError{Field: "value", Message: "must be a number"}
	}
	f := value.Float()
	req.Value = &f

	switch name := v.Get("standard"); {
	case name.Exists():
		id, ok := byName[name.String()]
		if !ok {
			std, err := im.findStandard(ctx, name.String())
			if err != nil {
				return req, err
			}
			id = std
			byName[name.String()] = id
		}
		req.StandardID = id
	case v.Get("standard_id").Exists():
		req.StandardID = v.Get("standard_id").Int()
	default:
		return req, &gradebook.ValidationError{Field: "standard", Message: "standard or standard_id is required"}
	}

	if n := v.Get("level_number"); n.Exists() {
		num := int(n.Int())
		req.LevelNumber = &num
	}
	if id := v.Get("level_id"); id.Exists() {
		lid := id.Int()
		req.LevelID = &lid
	}
	return req, nil
}

func (im *Importer) findStandard(ctx context.Context, name string) (int64, error) {
	var id int64
	err := im.Engine.Store.InTx(ctx, func(tx gradebook.Tx) error {
		std, err := tx.FindStandardByName(ctx, name)
		if err != nil {
			return err
		}
		id = std.ID
		return nil
	})
	if errors.Is(err, gradebook.ErrNotFound) {
		return 0, &gradebook.ValidationError{Field: "standard", Message: fmt.Sprintf("unknown standard %q", name)}
	}
	return id, err
}

func optFloat(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	f := r.Float()
	if math.IsNaN(f) {
		return nil
	}
	return &f
}
