package validate

import (
	"errors"
	"testing"

	"github.com/coachdiary/gradebook/internal/gradebook"
)

func TestStructReportsJSONField(t *testing.T) {
	err := Struct(gradebook.StandardInput{
		Name:   "Бег",
		Levels: []gradebook.LevelInput{{Number: 12, Gender: gradebook.Male}},
	})
	var ve *gradebook.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if ve.Field != "levels[0].level_number" {
		t.Fatalf("field = %q", ve.Field)
	}
	if ve.Message != "must be at most 11" {
		t.Fatalf("message = %q", ve.Message)
	}
}

func TestStructAcceptsValid(t *testing.T) {
	lid, four := int64(3), 4.0
	if err := Struct(gradebook.RecordRequest{StudentID: 1, StandardID: 2, Value: &four, LevelID: &lid}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := Struct(gradebook.RecordRequest{StudentID: 1, StandardID: 2})
	var ve *gradebook.ValidationError
	if !errors.As(err, &ve) || ve.Field != "value" {
		t.Fatalf("missing value: err = %v", err)
	}
	if err := Struct(gradebook.RecordRequest{StandardID: 2}); !gradebook.IsValidation(err) {
		t.Fatalf("missing student id: err = %v", err)
	}
}
