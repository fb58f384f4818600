package gradebook

import "github.com/pkg/errors"

// CalculateGrade maps a measured value onto the 2..5 scale using the level's
// thresholds. Every threshold is inclusive: a value equal to a threshold earns
// the better of the two neighbouring grades.
//
// For skill standards the value already is the grade and is returned as is.
func CalculateGrade(kind Kind, lvl Level, value float64) (int, error) {
	switch kind {
	case KindSkill:
		return int(value), nil
	case KindNumeric:
		t := lvl.Thresholds
		if t == nil {
			return 0, errors.Wrapf(ErrInvalidLevel, "level %d/%s has no thresholds", lvl.Number, lvl.Gender)
		}
		if lvl.IsLowerBetter {
			return lowerIsBetter(*t, value), nil
		}
		return higherIsBetter(*t, value), nil
	default:
		return 0, errors.Wrapf(ErrInvalidLevel, "unknown standard kind %q", kind)
	}
}

func higherIsBetter(t Thresholds, v float64) int {
	switch {
	case v >= t.High:
		return 5
	case v >= t.Middle:
		return 4
	case v >= t.Low:
		return 3
	default:
		return 2
	}
}

func lowerIsBetter(t Thresholds, v float64) int {
	switch {
	case v <= t.High:
		return 5
	case v <= t.Middle:
		return 4
	case v <= t.Low:
		return 3
	default:
		return 2
	}
}
