package gradebook_test

import (
	"errors"
	"testing"

	"github.com/coachdiary/gradebook/internal/gradebook"
)

func TestCalculateGradeThresholds(t *testing.T) {
	longJump := gradebook.Level{Number: 5, Gender: gradebook.Male,
		Thresholds: &gradebook.Thresholds{Low: 10, Middle: 20, High: 30}}
	sprint := gradebook.Level{Number: 5, Gender: gradebook.Male, IsLowerBetter: true,
		Thresholds: &gradebook.Thresholds{Low: 15, Middle: 14, High: 13}}

	cases := []struct {
		name  string
		lvl   gradebook.Level
		value float64
		want  int
	}{
		{"higher: above high", longJump, 100, 5},
		{"higher: equal high", longJump, 30, 5},
		{"higher: just below high", longJump, 29.9, 4},
		{"higher: equal middle", longJump, 20, 4},
		{"higher: equal low", longJump, 10, 3},
		{"higher: below low", longJump, 9.99, 2},
		{"higher: zero", longJump, 0, 2},
		{"lower: well under high", sprint, 10, 5},
		{"lower: equal high", sprint, 13, 5},
		{"lower: between high and middle", sprint, 13.5, 4},
		{"lower: equal middle", sprint, 14, 4},
		{"lower: equal low", sprint, 15, 3},
		{"lower: above low", sprint, 15.1, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := gradebook.CalculateGrade(gradebook.KindNumeric, tc.lvl, tc.value)
			if err != nil {
				t.Fatalf("CalculateGrade: %v", err)
			}
			if got != tc.want {
				t.Fatalf("grade for %v = %d, want %d", tc.value, got, tc.want)
			}
		})
	}
}

func TestCalculateGradeSkillPassesValueThrough(t *testing.T) {
	for _, v := range []float64{2, 3, 4, 5} {
		got, err := gradebook.CalculateGrade(gradebook.KindSkill, gradebook.Level{Number: 1, Gender: gradebook.Female}, v)
		if err != nil {
			t.Fatalf("CalculateGrade(%v): %v", v, err)
		}
		if got != int(v) {
			t.Fatalf("skill grade = %d, want %d", got, int(v))
		}
	}
}

func TestCalculateGradeNumericWithoutThresholds(t *testing.T) {
	_, err := gradebook.CalculateGrade(gradebook.KindNumeric, gradebook.Level{Number: 2, Gender: gradebook.Male}, 12)
	if !errors.Is(err, gradebook.ErrInvalidLevel) {
		t.Fatalf("err = %v, want ErrInvalidLevel", err)
	}
}
