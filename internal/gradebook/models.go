package gradebook

import "time"

type Gender string

const (
	Male   Gender = "m"
	Female Gender = "f"
)

func (g Gender) Valid() bool { return g == Male || g == Female }

// Kind tells how a standard is graded.
type Kind string

const (
	KindNumeric Kind = "numeric" // measured norm, levels carry thresholds
	KindSkill   Kind = "skill"   // submitted value is the grade itself
)

// KindFromNumeric maps the wire flag has_numeric_value onto a Kind.
func KindFromNumeric(hasNumericValue bool) Kind {
	if hasNumericValue {
		return KindNumeric
	}
	return KindSkill
}

const (
	MinClassNumber = 1
	MaxClassNumber = 11

	MinGrade = 2
	MaxGrade = 5
)

type Standard struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Kind        Kind      `json:"kind"`
	OwnerID     int64     `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	Levels      []Level   `json:"levels,omitempty"`
}

func (s Standard) HasNumericValue() bool { return s.Kind == KindNumeric }

// Thresholds are ascending for larger-is-better levels; for lower-is-better
// levels High is the smallest (best) value.
type Thresholds struct {
	Low    float64 `json:"low_value"`
	Middle float64 `json:"middle_value"`
	High   float64 `json:"high_value"`
}

type Level struct {
	ID            int64       `json:"id"`
	StandardID    int64       `json:"standard_id"`
	Number        int         `json:"level_number"`
	Gender        Gender      `json:"gender"`
	IsLowerBetter bool        `json:"is_lower_better"`
	Thresholds    *Thresholds `json:"thresholds,omitempty"` // nil for skill standards
}

// levelKey identifies a level inside one standard.
type levelKey struct {
	Number int
	Gender Gender
}

func (l Level) key() levelKey { return levelKey{Number: l.Number, Gender: l.Gender} }

// Result is one student's slot for a standard at one class level.
// A placeholder has neither Value nor Grade. LevelNumber and LevelGender
// outlive the level so an orphan can be matched to its replacement.
type Result struct {
	ID          int64     `json:"id"`
	StudentID   int64     `json:"student_id"`
	StandardID  int64     `json:"standard_id"`
	LevelID     *int64    `json:"level_id"` // nil when the level was removed
	LevelNumber int       `json:"level_number"`
	LevelGender Gender    `json:"level_gender"` // gender of the level it was graded on
	Value       *float64  `json:"value"`
	Grade       *int      `json:"grade"`
	RecordedAt  time.Time `json:"recorded_at"`
}

func (r Result) IsPlaceholder() bool { return r.Value == nil }

// Student is the engine's view of a roster entry.
type Student struct {
	ID          int64  `json:"id"`
	Gender      Gender `json:"gender"`
	ClassNumber int    `json:"class_number"`
	TeacherID   int64  `json:"teacher_id"`
	UserID      *int64 `json:"user_id,omitempty"`
}

// ClassRange is an inclusive span of class numbers.
type ClassRange struct {
	From, To int
}

func SingleClass(n int) ClassRange { return ClassRange{From: n, To: n} }

// UpTo covers every class from the first one through n.
func UpTo(n int) ClassRange { return ClassRange{From: MinClassNumber, To: n} }

func (c ClassRange) Empty() bool { return c.To < c.From }

func (c ClassRange) Numbers() []int {
	if c.Empty() {
		return nil
	}
	out := make([]int, 0, c.To-c.From+1)
	for n := c.From; n <= c.To; n++ {
		out = append(out, n)
	}
	return out
}
