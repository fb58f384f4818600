package roster_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/coachdiary/gradebook/internal/db"
	"github.com/coachdiary/gradebook/internal/gradebook"
	"github.com/coachdiary/gradebook/internal/roster"
)

type fixture struct {
	db      *sql.DB
	eng     *gradebook.Engine
	svc     *roster.Service
	teacher int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	sqlDB, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var teacher int64
	if err := sqlDB.QueryRow(`INSERT INTO users (username, password_hash, role, created_at)
		VALUES ('coach','x','teacher',$1) RETURNING id`, time.Now().Unix()).Scan(&teacher); err != nil {
		t.Fatalf("seed teacher: %v", err)
	}

	quiet := log.New("test")
	quiet.SetOutput(io.Discard)
	eng := gradebook.New(gradebook.NewSQLStore(sqlDB), gradebook.WithLogger(quiet))
	svc := roster.NewService(roster.NewSQLStore(sqlDB), eng, quiet)
	return fixture{db: sqlDB, eng: eng, svc: svc, teacher: teacher}
}

func (fx fixture) standard(t *testing.T, name string) gradebook.Standard {
	t.Helper()
	var levels []gradebook.LevelInput
	for n := 1; n <= 11; n++ {
		for _, g := range []gradebook.Gender{gradebook.Male, gradebook.Female} {
			levels = append(levels, gradebook.LevelInput{Number: n, Gender: g})
		}
	}
	std, _, err := fx.eng.CreateStandard(context.Background(), fx.teacher,
		gradebook.StandardInput{Name: name, Kind: gradebook.KindSkill, Levels: levels})
	if err != nil {
		t.Fatalf("CreateStandard: %v", err)
	}
	return std
}

func (fx fixture) slots(t *testing.T, studentID int64) []int {
	t.Helper()
	rows, err := fx.db.Query(`SELECT level_number FROM results WHERE student_id=$1 ORDER BY level_number`, studentID)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			t.Fatal(err)
		}
		out = append(out, n)
	}
	return out
}

func sameInts(a, b []int) bool {
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

func TestCreateStudentSeedsSlots(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.standard(t, "Кувырок вперёд")

	st, err := fx.svc.CreateStudent(ctx, fx.teacher, roster.StudentInput{
		FullName: " Анна Смирнова ", Gender: gradebook.Female, ClassNumber: 3, ClassName: "б",
	})
	if err != nil {
		t.Fatalf("CreateStudent: %v", err)
	}
	if st.FullName != "Анна Смирнова" || st.ClassName != "Б" || st.ClassNumber != 3 {
		t.Fatalf("student = %+v", st)
	}
	if len(st.InvitationCode) != 8 || strings.ToUpper(st.InvitationCode) != st.InvitationCode {
		t.Fatalf("invitation code = %q", st.InvitationCode)
	}
	if got := fx.slots(t, st.ID); !sameInts(got, []int{1, 2, 3}) {
		t.Fatalf("slots = %v, want [1 2 3]", got)
	}

	// second student reuses the class
	other, err := fx.svc.CreateStudent(ctx, fx.teacher, roster.StudentInput{
		FullName: "Олег Иванов", Gender: gradebook.Male, ClassNumber: 3, ClassName: "Б",
	})
	if err != nil {
		t.Fatal(err)
	}
	if other.ClassID != st.ClassID {
		t.Fatalf("class ids %d and %d differ", other.ClassID, st.ClassID)
	}
}

func TestCreateStudentValidates(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.CreateStudent(context.Background(), fx.teacher, roster.StudentInput{
		FullName: "Олег", Gender: "x", ClassNumber: 3, ClassName: "А",
	})
	var ve *gradebook.ValidationError
	if !errors.As(err, &ve) || ve.Field != "gender" {
		t.Fatalf("err = %v, want gender validation error", err)
	}
}

func TestUpdateStudentRaisesClassChange(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.standard(t, "Прыжки через скакалку")
	st, err := fx.svc.CreateStudent(ctx, fx.teacher, roster.StudentInput{
		FullName: "Олег Иванов", Gender: gradebook.Male, ClassNumber: 2, ClassName: "А",
	})
	if err != nil {
		t.Fatal(err)
	}

	up, err := fx.svc.UpdateStudent(ctx, fx.teacher, st.ID, roster.StudentInput{
		FullName: "Олег Иванов", Gender: gradebook.Male, ClassNumber: 4, ClassName: "А",
	})
	if err != nil {
		t.Fatalf("UpdateStudent: %v", err)
	}
	if up.ClassNumber != 4 {
		t.Fatalf("class = %d", up.ClassNumber)
	}
	if got := fx.slots(t, st.ID); !sameInts(got, []int{1, 2, 3, 4}) {
		t.Fatalf("slots = %v", got)
	}

	// back down: nothing removed
	if _, err := fx.svc.UpdateStudent(ctx, fx.teacher, st.ID, roster.StudentInput{
		FullName: "Олег Иванов", Gender: gradebook.Male, ClassNumber: 1, ClassName: "А",
	}); err != nil {
		t.Fatal(err)
	}
	if got := fx.slots(t, st.ID); len(got) != 4 {
		t.Fatalf("slots after demotion = %v", got)
	}

	if _, err := fx.svc.UpdateStudent(ctx, fx.teacher+1, st.ID, roster.StudentInput{
		FullName: "x", Gender: gradebook.Male, ClassNumber: 1, ClassName: "А",
	}); !errors.Is(err, gradebook.ErrForbidden) {
		t.Fatalf("other teacher err = %v, want ErrForbidden", err)
	}
}

func TestPromoteClasses(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.standard(t, "Метание мяча")

	mk := func(name string, class int, letter string) roster.Student {
		st, err := fx.svc.CreateStudent(ctx, fx.teacher, roster.StudentInput{
			FullName: name, Gender: gradebook.Female, ClassNumber: class, ClassName: letter,
		})
		if err != nil {
			t.Fatalf("CreateStudent(%s): %v", name, err)
		}
		return st
	}
	grad := mk("Выпускница", 11, "А")
	tenth := mk("Десятиклассница", 10, "А")
	third := mk("Третьеклассница", 3, "А")
	fourth := mk("Четвероклассница", 4, "А")

	rep, err := fx.svc.PromoteClasses(ctx, fx.teacher)
	if err != nil {
		t.Fatalf("PromoteClasses: %v", err)
	}
	if rep.Archived != 1 || rep.Promoted != 3 || rep.Students != 3 || rep.Placeholders != 3 {
		t.Fatalf("report = %+v", rep)
	}

	list, err := fx.svc.ListStudents(ctx, fx.teacher)
	if err != nil {
		t.Fatal(err)
	}
	classes := map[int64]int{}
	for _, s := range list {
		classes[s.ID] = s.ClassNumber
	}
	if _, ok := classes[grad.ID]; ok {
		t.Fatal("graduate still listed")
	}
	if classes[tenth.ID] != 11 || classes[third.ID] != 4 || classes[fourth.ID] != 5 {
		t.Fatalf("classes after promotion = %v", classes)
	}
	if got := fx.slots(t, third.ID); !sameInts(got, []int{1, 2, 3, 4}) {
		t.Fatalf("slots = %v", got)
	}

	// the former 10А is the active 11А now; enrolling there reuses it
	if _, err := fx.svc.CreateStudent(ctx, fx.teacher, roster.StudentInput{
		FullName: "Новенькая", Gender: gradebook.Female, ClassNumber: 11, ClassName: "А",
	}); err != nil {
		t.Fatalf("enrol into 11А after archive: %v", err)
	}
}

func TestLinkUser(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	st, err := fx.svc.CreateStudent(ctx, fx.teacher, roster.StudentInput{
		FullName: "Олег Иванов", Gender: gradebook.Male, ClassNumber: 5, ClassName: "В",
	})
	if err != nil {
		t.Fatal(err)
	}
	var uid int64
	if err := fx.db.QueryRow(`INSERT INTO users (username, password_hash, role, created_at)
		VALUES ('oleg','x','student',0) RETURNING id`).Scan(&uid); err != nil {
		t.Fatal(err)
	}

	linked, err := fx.svc.LinkUser(ctx, strings.ToLower(st.InvitationCode), uid)
	if err != nil {
		t.Fatalf("LinkUser: %v", err)
	}
	if linked.UserID == nil || *linked.UserID != uid {
		t.Fatalf("user id = %v", linked.UserID)
	}
	if _, err := fx.svc.LinkUser(ctx, st.InvitationCode, uid); !errors.Is(err, gradebook.ErrNotFound) {
		t.Fatalf("second claim err = %v, want ErrNotFound", err)
	}
}

func TestListClassResults(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	roll := fx.standard(t, "Кувырок вперёд")
	fx.standard(t, "Стойка на лопатках")

	anna, err := fx.svc.CreateStudent(ctx, fx.teacher, roster.StudentInput{
		FullName: "Анна Смирнова", Gender: gradebook.Female, ClassNumber: 3, ClassName: "А",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.CreateStudent(ctx, fx.teacher, roster.StudentInput{
		FullName: "Олег Иванов", Gender: gradebook.Male, ClassNumber: 5, ClassName: "Б",
	}); err != nil {
		t.Fatal(err)
	}
	four := 4.0
	if _, err := fx.eng.RecordResult(ctx, gradebook.RecordRequest{StudentID: anna.ID, StandardID: roll.ID, Value: &four}); err != nil {
		t.Fatal(err)
	}

	classes, err := fx.svc.ListClasses(ctx, fx.teacher)
	if err != nil || len(classes) != 2 {
		t.Fatalf("ListClasses = %d, %v; want 2", len(classes), err)
	}
	if classes[0].Number != 5 || classes[1].ID != anna.ClassID {
		t.Fatalf("classes = %+v", classes)
	}

	rows, err := fx.svc.ListClassResults(ctx, fx.teacher, []int64{anna.ClassID}, []int64{roll.ID})
	if err != nil {
		t.Fatalf("ListClassResults: %v", err)
	}
	if len(rows) != 1 || rows[0].Student.ID != anna.ID {
		t.Fatalf("rows = %+v, want only Анна", rows)
	}
	graded := 0
	for _, r := range rows[0].Results {
		if r.StandardID != roll.ID {
			t.Fatalf("result of standard %d leaked through the filter", r.StandardID)
		}
		if r.Grade != nil {
			graded++
		}
	}
	if len(rows[0].Results) != 3 || graded != 1 {
		t.Fatalf("results = %d (%d graded), want 3 slots with 1 graded", len(rows[0].Results), graded)
	}

	all, err := fx.svc.ListClassResults(ctx, fx.teacher, []int64{anna.ClassID}, nil)
	if err != nil || len(all) != 1 || len(all[0].Results) != 6 {
		t.Fatalf("unfiltered grid = %+v, %v; want 6 slots", all, err)
	}
}

func TestListClassResultsChecksOwner(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	var rival int64
	if err := fx.db.QueryRow(`INSERT INTO users (username, password_hash, role, created_at)
		VALUES ('rival','x','teacher',0) RETURNING id`).Scan(&rival); err != nil {
		t.Fatal(err)
	}
	st, err := fx.svc.CreateStudent(ctx, rival, roster.StudentInput{
		FullName: "Вера Орлова", Gender: gradebook.Female, ClassNumber: 7, ClassName: "А",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fx.svc.ListClassResults(ctx, fx.teacher, []int64{st.ClassID}, nil); !errors.Is(err, gradebook.ErrForbidden) {
		t.Fatalf("foreign class err = %v, want ErrForbidden", err)
	}
	if _, err := fx.svc.ListClassResults(ctx, fx.teacher, []int64{st.ClassID + 100}, nil); !errors.Is(err, gradebook.ErrNotFound) {
		t.Fatalf("missing class err = %v, want ErrNotFound", err)
	}
	if _, err := fx.svc.ListClassResults(ctx, fx.teacher, nil, nil); !gradebook.IsValidation(err) {
		t.Fatalf("no classes err = %v, want validation error", err)
	}
}
