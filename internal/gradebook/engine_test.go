package gradebook_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/coachdiary/gradebook/internal/gradebook"
	syncx "github.com/coachdiary/gradebook/internal/sync"
)

const teacherID = 1

func newEngine(t *testing.T) (*gradebook.Engine, *gradebook.MemStore) {
	t.Helper()
	store := gradebook.NewMemStore()
	eng := gradebook.New(store,
		gradebook.WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		gradebook.WithLogOutput(io.Discard),
	)
	return eng, store
}

func f(v float64) *float64 { return &v }

func numericLevel(n int, g gradebook.Gender, low, mid, high float64) gradebook.LevelInput {
	return gradebook.LevelInput{Number: n, Gender: g, Low: f(low), Middle: f(mid), High: f(high)}
}

// timedLevel is a numeric level where a smaller value is the better result.
func timedLevel(n int, g gradebook.Gender, low, mid, high float64) gradebook.LevelInput {
	l := numericLevel(n, g, low, mid, high)
	l.IsLowerBetter = true
	return l
}

// everyClass defines levels for classes 1..11, both genders.
func everyClass() []gradebook.LevelInput {
	var out []gradebook.LevelInput
	for n := 1; n <= 11; n++ {
		out = append(out,
			numericLevel(n, gradebook.Male, 100, 120, 140),
			numericLevel(n, gradebook.Female, 90, 110, 130))
	}
	return out
}

func mustCreate(t *testing.T, eng *gradebook.Engine, owner int64, in gradebook.StandardInput) gradebook.Standard {
	t.Helper()
	std, _, err := eng.CreateStandard(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("CreateStandard(%q): %v", in.Name, err)
	}
	return std
}

func levelNumbers(rs []gradebook.Result) []int {
	out := make([]int, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.LevelNumber)
	}
	sort.Ints(out)
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func levelID(t *testing.T, std gradebook.Standard, n int, g gradebook.Gender) int64 {
	t.Helper()
	for _, l := range std.Levels {
		if l.Number == n && l.Gender == g {
			return l.ID
		}
	}
	t.Fatalf("standard %q has no level %d/%s", std.Name, n, g)
	return 0
}

func TestStudentCreatedSeedsEarlierClasses(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t)
	mustCreate(t, eng, teacherID, gradebook.StandardInput{Name: "Прыжок в длину", Kind: gradebook.KindNumeric, Levels: everyClass()})

	st := store.PutStudent(gradebook.Student{Gender: gradebook.Male, ClassNumber: 3, TeacherID: teacherID})
	n, err := eng.Handle(ctx, gradebook.StudentCreated{Student: st})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if n != 3 {
		t.Fatalf("created %d placeholders, want 3", n)
	}
	if got := levelNumbers(store.Results()); !equalInts(got, []int{1, 2, 3}) {
		t.Fatalf("level numbers = %v", got)
	}
	for _, r := range store.Results() {
		if !r.IsPlaceholder() || r.Grade != nil {
			t.Fatalf("expected placeholder, got %+v", r)
		}
	}

	// replaying the event changes nothing
	n, err = eng.Handle(ctx, gradebook.StudentCreated{Student: st})
	if err != nil || n != 0 {
		t.Fatalf("second Handle = %d, %v; want 0, nil", n, err)
	}
	if len(store.Results()) != 3 {
		t.Fatalf("results after replay = %d, want 3", len(store.Results()))
	}

	evs := store.Events()
	if last := evs[len(evs)-1]; last.Type != syncx.TypeStudentCreated {
		t.Fatalf("last event = %q, want %q", last.Type, syncx.TypeStudentCreated)
	}
}

func TestStudentWithoutStandardsGetsNothing(t *testing.T) {
	eng, store := newEngine(t)
	mustCreate(t, eng, 99, gradebook.StandardInput{Name: "Чужой норматив", Kind: gradebook.KindNumeric, Levels: everyClass()})

	st := store.PutStudent(gradebook.Student{Gender: gradebook.Female, ClassNumber: 4, TeacherID: teacherID})
	n, err := eng.Handle(context.Background(), gradebook.StudentCreated{Student: st})
	if err != nil || n != 0 {
		t.Fatalf("Handle = %d, %v; want 0, nil", n, err)
	}
}

func TestPromotionSeedsOnlyNewClasses(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t)
	mustCreate(t, eng, teacherID, gradebook.StandardInput{Name: "Бег 60 м", Kind: gradebook.KindNumeric, Levels: everyClass()})

	st := store.PutStudent(gradebook.Student{Gender: gradebook.Female, ClassNumber: 3, TeacherID: teacherID})
	if _, err := eng.Handle(ctx, gradebook.StudentCreated{Student: st}); err != nil {
		t.Fatalf("StudentCreated: %v", err)
	}

	st.ClassNumber = 5
	store.PutStudent(st)
	n, err := eng.Handle(ctx, gradebook.ClassChanged{Student: st, From: 3, To: 5})
	if err != nil {
		t.Fatalf("ClassChanged: %v", err)
	}
	if n != 2 {
		t.Fatalf("created %d, want 2", n)
	}
	if got := levelNumbers(store.Results()); !equalInts(got, []int{1, 2, 3, 4, 5}) {
		t.Fatalf("level numbers = %v", got)
	}

	// moving down retracts nothing and adds nothing
	st.ClassNumber = 2
	store.PutStudent(st)
	n, err = eng.Handle(ctx, gradebook.ClassChanged{Student: st, From: 5, To: 2})
	if err != nil || n != 0 {
		t.Fatalf("demotion = %d, %v; want 0, nil", n, err)
	}
	if len(store.Results()) != 5 {
		t.Fatalf("results after demotion = %d, want 5", len(store.Results()))
	}
}

func TestLevelAddedLaterReachesEligibleStudents(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t)
	std := mustCreate(t, eng, teacherID, gradebook.StandardInput{
		Name: "Челночный бег", Kind: gradebook.KindNumeric,
		Levels: []gradebook.LevelInput{numericLevel(1, gradebook.Male, 1, 2, 3)},
	})

	f7 := store.PutStudent(gradebook.Student{Gender: gradebook.Female, ClassNumber: 7, TeacherID: teacherID})
	f6 := store.PutStudent(gradebook.Student{Gender: gradebook.Female, ClassNumber: 6, TeacherID: teacherID})
	store.PutStudent(gradebook.Student{Gender: gradebook.Female, ClassNumber: 5, TeacherID: teacherID})
	store.PutStudent(gradebook.Student{Gender: gradebook.Male, ClassNumber: 7, TeacherID: teacherID})
	store.PutStudent(gradebook.Student{Gender: gradebook.Female, ClassNumber: 9, TeacherID: 2})

	merged, created, err := eng.CreateStandard(ctx, teacherID, gradebook.StandardInput{
		Name: "Челночный бег", Kind: gradebook.KindNumeric,
		Levels: []gradebook.LevelInput{timedLevel(6, gradebook.Female, 9, 8.5, 8)},
	})
	if err != nil {
		t.Fatalf("CreateStandard: %v", err)
	}
	if created || merged.ID != std.ID {
		t.Fatalf("expected merge into %d, got id %d created=%v", std.ID, merged.ID, created)
	}

	got := map[int64]bool{}
	for _, r := range store.Results() {
		if r.LevelNumber != 6 || r.StandardID != std.ID {
			t.Fatalf("unexpected result %+v", r)
		}
		got[r.StudentID] = true
	}
	if len(got) != 2 || !got[f7.ID] || !got[f6.ID] {
		t.Fatalf("placeholders for %v, want students %d and %d", got, f7.ID, f6.ID)
	}
}

func TestCreateStandardMergesByName(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t)
	first := mustCreate(t, eng, teacherID, gradebook.StandardInput{
		Name: "Бег 100 м", Kind: gradebook.KindNumeric,
		Levels: []gradebook.LevelInput{
			timedLevel(1, gradebook.Male, 20, 19, 18),
			timedLevel(1, gradebook.Female, 21, 20, 19),
		},
	})

	second, created, err := eng.CreateStandard(ctx, 2, gradebook.StandardInput{
		Name: "  Бег 100 м ", Kind: gradebook.KindNumeric,
		Levels: []gradebook.LevelInput{
			numericLevel(1, gradebook.Male, 1, 1, 1),
			timedLevel(2, gradebook.Male, 19, 18, 17),
			timedLevel(2, gradebook.Female, 20, 19, 18),
		},
	})
	if err != nil {
		t.Fatalf("CreateStandard: %v", err)
	}
	if created {
		t.Fatal("second create reported a new standard")
	}
	if second.ID != first.ID || second.OwnerID != teacherID {
		t.Fatalf("merged standard = %+v, want id %d owned by %d", second, first.ID, teacherID)
	}
	if len(second.Levels) != 4 {
		t.Fatalf("levels = %d, want 4", len(second.Levels))
	}
	for _, l := range second.Levels {
		if l.Number == 1 && l.Gender == gradebook.Male && l.Thresholds.High != 18 {
			t.Fatalf("existing level was overwritten: %+v", l.Thresholds)
		}
	}

	stds, err := eng.ListStandards(ctx, teacherID)
	if err != nil || len(stds) != 1 {
		t.Fatalf("ListStandards = %d, %v; want 1", len(stds), err)
	}
}

func TestMergeValidatesAgainstStoredKind(t *testing.T) {
	eng, _ := newEngine(t)
	mustCreate(t, eng, teacherID, gradebook.StandardInput{
		Name: "Подтягивания", Kind: gradebook.KindNumeric,
		Levels: []gradebook.LevelInput{numericLevel(5, gradebook.Male, 4, 6, 8)},
	})
	_, _, err := eng.CreateStandard(context.Background(), teacherID, gradebook.StandardInput{
		Name: "Подтягивания", Kind: gradebook.KindSkill,
		Levels: []gradebook.LevelInput{{Number: 6, Gender: gradebook.Male}},
	})
	if !gradebook.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestStandardInputValidation(t *testing.T) {
	cases := []struct {
		name string
		in   gradebook.StandardInput
	}{
		{"empty name", gradebook.StandardInput{Name: " ", Kind: gradebook.KindSkill}},
		{"numeric missing high", gradebook.StandardInput{Name: "x", Kind: gradebook.KindNumeric,
			Levels: []gradebook.LevelInput{{Number: 1, Gender: gradebook.Male, Low: f(1), Middle: f(2)}}}},
		{"skill with thresholds", gradebook.StandardInput{Name: "x", Kind: gradebook.KindSkill,
			Levels: []gradebook.LevelInput{numericLevel(1, gradebook.Male, 1, 2, 3)}}},
		{"class out of range", gradebook.StandardInput{Name: "x", Kind: gradebook.KindSkill,
			Levels: []gradebook.LevelInput{{Number: 12, Gender: gradebook.Male}}}},
		{"bad gender", gradebook.StandardInput{Name: "x", Kind: gradebook.KindSkill,
			Levels: []gradebook.LevelInput{{Number: 1, Gender: "x"}}}},
		{"duplicate level", gradebook.StandardInput{Name: "x", Kind: gradebook.KindSkill,
			Levels: []gradebook.LevelInput{{Number: 1, Gender: gradebook.Male}, {Number: 1, Gender: gradebook.Male}}}},
		{"negative threshold", gradebook.StandardInput{Name: "x", Kind: gradebook.KindNumeric,
			Levels: []gradebook.LevelInput{numericLevel(1, gradebook.Male, -1, 2, 3)}}},
		{"descending thresholds", gradebook.StandardInput{Name: "x", Kind: gradebook.KindNumeric,
			Levels: []gradebook.LevelInput{numericLevel(1, gradebook.Male, 3, 2, 1)}}},
		{"middle above high", gradebook.StandardInput{Name: "x", Kind: gradebook.KindNumeric,
			Levels: []gradebook.LevelInput{numericLevel(1, gradebook.Male, 1, 5, 3)}}},
		{"ascending lower-is-better", gradebook.StandardInput{Name: "x", Kind: gradebook.KindNumeric,
			Levels: []gradebook.LevelInput{timedLevel(1, gradebook.Male, 10, 10.5, 11)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := gradebook.ValidateStandard(tc.in); !gradebook.IsValidation(err) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestThresholdOrderFollowsDirection(t *testing.T) {
	for _, l := range []gradebook.LevelInput{
		numericLevel(1, gradebook.Male, 1, 2, 3),
		numericLevel(1, gradebook.Male, 2, 2, 2),
		timedLevel(1, gradebook.Male, 11.2, 10.6, 10),
	} {
		in := gradebook.StandardInput{Name: "x", Kind: gradebook.KindNumeric, Levels: []gradebook.LevelInput{l}}
		if err := gradebook.ValidateStandard(in); err != nil {
			t.Fatalf("%+v: %v", l, err)
		}
	}
}

func TestRecordResultWithoutMatchingLevel(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t)
	std := mustCreate(t, eng, teacherID, gradebook.StandardInput{
		Name: "Отжимания", Kind: gradebook.KindNumeric,
		Levels: []gradebook.LevelInput{numericLevel(5, gradebook.Male, 10, 20, 30)},
	})
	st := store.PutStudent(gradebook.Student{Gender: gradebook.Male, ClassNumber: 3, TeacherID: teacherID})

	_, err := eng.RecordResult(ctx, gradebook.RecordRequest{StudentID: st.ID, StandardID: std.ID, Value: f(25)})
	var ve *gradebook.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	six := 6
	_, err = eng.RecordResult(ctx, gradebook.RecordRequest{StudentID: st.ID, StandardID: std.ID, Value: f(25), LevelNumber: &six})
	if !gradebook.IsValidation(err) {
		t.Fatalf("explicit level: err = %v, want validation error", err)
	}
	if n := len(store.Results()); n != 0 {
		t.Fatalf("results = %d, want 0", n)
	}
}

func TestRecordResultUpsertsSlot(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t)
	std := mustCreate(t, eng, teacherID, gradebook.StandardInput{Name: "Прыжок", Kind: gradebook.KindNumeric, Levels: everyClass()})
	st := store.PutStudent(gradebook.Student{Gender: gradebook.Male, ClassNumber: 2, TeacherID: teacherID})
	if _, err := eng.Handle(ctx, gradebook.StudentCreated{Student: st}); err != nil {
		t.Fatal(err)
	}

	r, err := eng.RecordResult(ctx, gradebook.RecordRequest{StudentID: st.ID, StandardID: std.ID, Value: f(125)})
	if err != nil {
		t.Fatalf("RecordResult: %v", err)
	}
	if r.Grade == nil || *r.Grade != 4 || r.LevelNumber != 2 {
		t.Fatalf("result = %+v, want grade 4 at level 2", r)
	}
	if len(store.Results()) != 2 {
		t.Fatalf("results = %d, want 2 (placeholder was filled in place)", len(store.Results()))
	}

	one := 1
	r2, err := eng.RecordResult(ctx, gradebook.RecordRequest{StudentID: st.ID, StandardID: std.ID, Value: f(150), LevelNumber: &one})
	if err != nil {
		t.Fatalf("RecordResult level 1: %v", err)
	}
	if *r2.Grade != 5 || r2.LevelNumber != 1 {
		t.Fatalf("result = %+v, want grade 5 at level 1", r2)
	}

	lid := levelID(t, std, 2, gradebook.Male)
	r3, err := eng.RecordResult(ctx, gradebook.RecordRequest{StudentID: st.ID, StandardID: std.ID, Value: f(90), LevelID: &lid})
	if err != nil {
		t.Fatalf("RecordResult by level id: %v", err)
	}
	if r3.ID != r.ID || *r3.Grade != 2 {
		t.Fatalf("overwrite = %+v, want id %d grade 2", r3, r.ID)
	}
	if len(store.Results()) != 2 {
		t.Fatalf("results = %d, want 2", len(store.Results()))
	}

	wrong := levelID(t, std, 2, gradebook.Female)
	if _, err := eng.RecordResult(ctx, gradebook.RecordRequest{StudentID: st.ID, StandardID: std.ID, Value: f(90), LevelID: &wrong}); !gradebook.IsValidation(err) {
		t.Fatalf("other gender level: err = %v, want validation error", err)
	}
}

func TestRecordResultValueChecks(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t)
	skill := mustCreate(t, eng, teacherID, gradebook.StandardInput{
		Name: "Кувырок", Kind: gradebook.KindSkill,
		Levels: []gradebook.LevelInput{{Number: 4, Gender: gradebook.Female}},
	})
	numeric := mustCreate(t, eng, teacherID, gradebook.StandardInput{
		Name: "Метание", Kind: gradebook.KindNumeric,
		Levels: []gradebook.LevelInput{numericLevel(4, gradebook.Female, 10, 15, 20)},
	})
	st := store.PutStudent(gradebook.Student{Gender: gradebook.Female, ClassNumber: 4, TeacherID: teacherID})

	for _, tc := range []struct {
		std   int64
		value float64
	}{
		{skill.ID, 6}, {skill.ID, 1}, {skill.ID, 3.5}, {numeric.ID, -1},
	} {
		if _, err := eng.RecordResult(ctx, gradebook.RecordRequest{StudentID: st.ID, StandardID: tc.std, Value: f(tc.value)}); !gradebook.IsValidation(err) {
			t.Fatalf("value %v on %d: err = %v, want validation error", tc.value, tc.std, err)
		}
	}
	r, err := eng.RecordResult(ctx, gradebook.RecordRequest{StudentID: st.ID, StandardID: skill.ID, Value: f(4)})
	if err != nil || *r.Grade != 4 {
		t.Fatalf("skill record = %+v, %v", r, err)
	}
}

func TestRecordResultRequiresValue(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t)
	std := mustCreate(t, eng, teacherID, gradebook.StandardInput{
		Name: "Бег 60 м", Kind: gradebook.KindNumeric,
		Levels: []gradebook.LevelInput{
			{Number: 5, Gender: gradebook.Male, IsLowerBetter: true, Low: f(11.2), Middle: f(10.6), High: f(10)},
		},
	})
	st := store.PutStudent(gradebook.Student{Gender: gradebook.Male, ClassNumber: 5, TeacherID: teacherID})

	_, err := eng.RecordResult(ctx, gradebook.RecordRequest{StudentID: st.ID, StandardID: std.ID})
	var ve *gradebook.ValidationError
	if !errors.As(err, &ve) || ve.Field != "value" {
		t.Fatalf("err = %v, want validation error on value", err)
	}
	if _, err := eng.RecordResults(ctx, []gradebook.RecordRequest{{StudentID: st.ID, StandardID: std.ID}}); !gradebook.IsValidation(err) {
		t.Fatalf("batch err = %v, want validation error", err)
	}
	if rs := store.Results(); len(rs) != 0 {
		t.Fatalf("results = %+v, want none", rs)
	}
}

func TestRecordResultsIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t)
	std := mustCreate(t, eng, teacherID, gradebook.StandardInput{Name: "Прыжок", Kind: gradebook.KindNumeric, Levels: everyClass()})
	a := store.PutStudent(gradebook.Student{Gender: gradebook.Male, ClassNumber: 2, TeacherID: teacherID})
	b := store.PutStudent(gradebook.Student{Gender: gradebook.Female, ClassNumber: 2, TeacherID: teacherID})

	_, err := eng.RecordResults(ctx, []gradebook.RecordRequest{
		{StudentID: a.ID, StandardID: std.ID, Value: f(130)},
		{StudentID: 9999, StandardID: std.ID, Value: f(130)},
		{StudentID: b.ID, StandardID: std.ID, Value: f(130)},
		{StudentID: b.ID, StandardID: std.ID, Value: f(-3)},
	})
	var be *gradebook.BatchError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BatchError", err)
	}
	if len(be.Entries) != 2 || be.Entries[1] == nil || be.Entries[3] == nil {
		t.Fatalf("failed entries = %v, want #1 and #3", be.Entries)
	}
	if n := len(store.Results()); n != 0 {
		t.Fatalf("results = %d, want 0 after rejected batch", n)
	}

	out, err := eng.RecordResults(ctx, []gradebook.RecordRequest{
		{StudentID: a.ID, StandardID: std.ID, Value: f(130)},
		{StudentID: b.ID, StandardID: std.ID, Value: f(130)},
	})
	if err != nil || len(out) != 2 {
		t.Fatalf("RecordResults = %d, %v", len(out), err)
	}
}

func TestUpdateStandardRelinksByLevelNumber(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t)
	std := mustCreate(t, eng, teacherID, gradebook.StandardInput{
		Name: "Подтягивания", Kind: gradebook.KindNumeric,
		Levels: []gradebook.LevelInput{numericLevel(3, gradebook.Male, 5, 8, 10)},
	})
	st := store.PutStudent(gradebook.Student{Gender: gradebook.Male, ClassNumber: 3, TeacherID: teacherID})
	if _, err := eng.Handle(ctx, gradebook.StudentCreated{Student: st}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.RecordResult(ctx, gradebook.RecordRequest{StudentID: st.ID, StandardID: std.ID, Value: f(9)}); err != nil {
		t.Fatal(err)
	}

	updated, err := eng.UpdateStandard(ctx, teacherID, std.ID, gradebook.StandardInput{
		Name: "Подтягивания на перекладине", Kind: gradebook.KindNumeric,
		Levels: []gradebook.LevelInput{
			numericLevel(3, gradebook.Male, 1, 2, 3),
			numericLevel(4, gradebook.Male, 5, 8, 10),
		},
	})
	if err != nil {
		t.Fatalf("UpdateStandard: %v", err)
	}
	if updated.Name != "Подтягивания на перекладине" || len(updated.Levels) != 2 {
		t.Fatalf("updated = %+v", updated)
	}

	rs := store.Results()
	if len(rs) != 1 {
		t.Fatalf("results = %d, want 1", len(rs))
	}
	r := rs[0]
	if r.LevelID == nil || *r.LevelID != levelID(t, updated, 3, gradebook.Male) {
		t.Fatalf("result level = %v, want new level 3", r.LevelID)
	}
	if *r.Value != 9 || *r.Grade != 4 {
		t.Fatalf("result = value %v grade %v, want 9 and 4 untouched", *r.Value, *r.Grade)
	}
}

func TestRelinkKeepsGradedGender(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t)
	in := gradebook.StandardInput{
		Name: "Прыжок в длину", Kind: gradebook.KindNumeric,
		Levels: []gradebook.LevelInput{
			numericLevel(5, gradebook.Male, 100, 120, 140),
			numericLevel(5, gradebook.Female, 90, 110, 130),
		},
	}
	std := mustCreate(t, eng, teacherID, in)
	st := store.PutStudent(gradebook.Student{Gender: gradebook.Male, ClassNumber: 5, TeacherID: teacherID})
	if _, err := eng.RecordResult(ctx, gradebook.RecordRequest{StudentID: st.ID, StandardID: std.ID, Value: f(125)}); err != nil {
		t.Fatal(err)
	}

	// the student's gender is corrected after the result was graded
	st.Gender = gradebook.Female
	store.PutStudent(st)

	updated, err := eng.UpdateStandard(ctx, teacherID, std.ID, in)
	if err != nil {
		t.Fatalf("UpdateStandard: %v", err)
	}
	var graded []gradebook.Result
	for _, r := range store.Results() {
		if r.Value != nil {
			graded = append(graded, r)
		}
	}
	if len(graded) != 1 {
		t.Fatalf("graded results = %d, want 1", len(graded))
	}
	r := graded[0]
	if r.LevelID == nil || *r.LevelID != levelID(t, updated, 5, gradebook.Male) {
		t.Fatalf("result level = %v, want new male level %d", r.LevelID, levelID(t, updated, 5, gradebook.Male))
	}
	if r.LevelGender != gradebook.Male || *r.Grade != 4 {
		t.Fatalf("result = gender %s grade %d, want m and 4", r.LevelGender, *r.Grade)
	}
}

func TestUpdateStandardChecksOwner(t *testing.T) {
	eng, _ := newEngine(t)
	std := mustCreate(t, eng, teacherID, gradebook.StandardInput{Name: "Гибкость", Kind: gradebook.KindSkill})
	_, err := eng.UpdateStandard(context.Background(), 2, std.ID, gradebook.StandardInput{Name: "Гибкость", Kind: gradebook.KindSkill})
	if !errors.Is(err, gradebook.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	_, err = eng.UpdateStandard(context.Background(), teacherID, 4242, gradebook.StandardInput{Name: "x", Kind: gradebook.KindSkill})
	if !errors.Is(err, gradebook.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRemoveLevelThenReAddRelinks(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t)
	name := "Бег 1000 м"
	std := mustCreate(t, eng, teacherID, gradebook.StandardInput{
		Name: name, Kind: gradebook.KindNumeric,
		Levels: []gradebook.LevelInput{
			timedLevel(3, gradebook.Male, 300, 280, 260),
			timedLevel(3, gradebook.Female, 320, 300, 280),
		},
	})
	st := store.PutStudent(gradebook.Student{Gender: gradebook.Male, ClassNumber: 3, TeacherID: teacherID})
	if _, err := eng.Handle(ctx, gradebook.StudentCreated{Student: st}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.RecordResult(ctx, gradebook.RecordRequest{StudentID: st.ID, StandardID: std.ID, Value: f(270)}); err != nil {
		t.Fatal(err)
	}

	n, err := eng.RemoveLevel(ctx, teacherID, std.ID, 3)
	if err != nil || n != 2 {
		t.Fatalf("RemoveLevel = %d, %v; want 2 levels", n, err)
	}
	if r := store.Results()[0]; r.LevelID != nil || r.LevelNumber != 3 {
		t.Fatalf("result after removal = %+v, want orphan at level 3", r)
	}
	if _, err := eng.RemoveLevel(ctx, teacherID, std.ID, 3); !errors.Is(err, gradebook.ErrNotFound) {
		t.Fatalf("second RemoveLevel err = %v, want ErrNotFound", err)
	}

	merged := mustCreate(t, eng, teacherID, gradebook.StandardInput{
		Name: name, Kind: gradebook.KindNumeric,
		Levels: []gradebook.LevelInput{timedLevel(3, gradebook.Male, 300, 280, 260)},
	})
	rs := store.Results()
	if len(rs) != 1 {
		t.Fatalf("results = %d, want 1", len(rs))
	}
	if rs[0].LevelID == nil || *rs[0].LevelID != levelID(t, merged, 3, gradebook.Male) || *rs[0].Value != 270 {
		t.Fatalf("result = %+v, want relinked with value kept", rs[0])
	}
}

func TestStudentSummary(t *testing.T) {
	ctx := context.Background()
	eng, store := newEngine(t)
	run := mustCreate(t, eng, teacherID, gradebook.StandardInput{Name: "Бег", Kind: gradebook.KindNumeric, Levels: everyClass()})
	jump := mustCreate(t, eng, teacherID, gradebook.StandardInput{Name: "Прыжок", Kind: gradebook.KindNumeric, Levels: everyClass()})
	mustCreate(t, eng, teacherID, gradebook.StandardInput{Name: "Метание", Kind: gradebook.KindNumeric, Levels: everyClass()})
	st := store.PutStudent(gradebook.Student{Gender: gradebook.Male, ClassNumber: 3, TeacherID: teacherID})
	if _, err := eng.Handle(ctx, gradebook.StudentCreated{Student: st}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.RecordResults(ctx, []gradebook.RecordRequest{
		{StudentID: st.ID, StandardID: run.ID, Value: f(150)},
		{StudentID: st.ID, StandardID: jump.ID, Value: f(105)},
	}); err != nil {
		t.Fatal(err)
	}

	sum, err := eng.StudentSummary(ctx, st.ID, nil)
	if err != nil {
		t.Fatalf("StudentSummary: %v", err)
	}
	if sum.LevelNumber != 3 || len(sum.Items) != 3 {
		t.Fatalf("summary = level %d with %d items, want 3 and 3", sum.LevelNumber, len(sum.Items))
	}
	if sum.SummaryGrade != 4 {
		t.Fatalf("summary grade = %v, want 4", sum.SummaryGrade)
	}

	two := 2
	sum, err = eng.StudentSummary(ctx, st.ID, &two)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Items) != 3 || sum.SummaryGrade != 0 {
		t.Fatalf("class 2 summary = %d items, grade %v; want 3 placeholders, 0", len(sum.Items), sum.SummaryGrade)
	}

	if _, err := eng.StudentSummary(ctx, 777, nil); !errors.Is(err, gradebook.ErrNotFound) {
		t.Fatalf("unknown student err = %v, want ErrNotFound", err)
	}
}
