package roster

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/coachdiary/gradebook/internal/db"
	"github.com/coachdiary/gradebook/internal/gradebook"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(sqlDB *sql.DB) *SQLStore { return &SQLStore{db: sqlDB} }

func (s *SQLStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&sqlTx{Tx: gradebook.NewSQLTx(tx), tx: tx})
	})
}

type sqlTx struct {
	gradebook.Tx
	tx *sql.Tx
}

func (t *sqlTx) GetOrCreateClass(ctx context.Context, teacherID int64, number int, name string) (Class, error) {
	c := Class{TeacherID: teacherID, Number: number, Name: name}
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM student_classes
		  WHERE teacher_id=$1 AND number=$2 AND class_name=$3 AND NOT archived`,
		teacherID, number, name).Scan(&c.ID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Class{}, err
	}
	err = t.tx.QueryRowContext(ctx,
		`INSERT INTO student_classes (teacher_id, number, class_name, created_at)
		 VALUES ($1,$2,$3,$4) RETURNING id`,
		teacherID, number, name, time.Now().Unix()).Scan(&c.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Class{}, errors.Wrapf(gradebook.ErrConflict, "class %d%s", number, name)
		}
		return Class{}, err
	}
	return c, nil
}

func (t *sqlTx) ListActiveClasses(ctx context.Context, teacherID int64) ([]Class, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, teacher_id, number, class_name, archived FROM student_classes
		  WHERE teacher_id=$1 AND NOT archived
		  ORDER BY number DESC, class_name`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Class
	for rows.Next() {
		var c Class
		if err := rows.Scan(&c.ID, &c.TeacherID, &c.Number, &c.Name, &c.Archived); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *sqlTx) GetClass(ctx context.Context, id int64) (Class, error) {
	var c Class
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, teacher_id, number, class_name, archived FROM student_classes WHERE id=$1`, id).
		Scan(&c.ID, &c.TeacherID, &c.Number, &c.Name, &c.Archived)
	if errors.Is(err, sql.ErrNoRows) {
		return Class{}, errors.Wrapf(gradebook.ErrNotFound, "class %d", id)
	}
	return c, err
}

func (t *sqlTx) ArchiveClass(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE student_classes SET archived=$1 WHERE id=$2`, true, id)
	return err
}

func (t *sqlTx) SetClassNumber(ctx context.Context, id int64, number int) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE student_classes SET number=$1 WHERE id=$2`, number, id)
	if db.IsUniqueViolation(err) {
		return errors.Wrapf(gradebook.ErrConflict, "class %d cannot move to %d", id, number)
	}
	return err
}

func (t *sqlTx) InsertStudent(ctx context.Context, s Student) (Student, error) {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO students (full_name, gender, class_id, invitation_code, created_at)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		s.FullName, string(s.Gender), s.ClassID, s.InvitationCode, s.CreatedAt.Unix()).Scan(&s.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Student{}, errors.Wrap(gradebook.ErrConflict, "invitation code taken")
		}
		return Student{}, err
	}
	s.CreatedAt = time.Unix(s.CreatedAt.Unix(), 0).UTC()
	return s, nil
}

const rosterSelect = `SELECT s.id, s.full_name, s.gender, s.class_id, c.number, c.class_name,
	c.teacher_id, s.user_id, s.invitation_code, s.created_at
	FROM students s JOIN student_classes c ON c.id = s.class_id`

func scanStudent(row interface{ Scan(...interface{}) error }) (Student, error) {
	var (
		s       Student
		userID  sql.NullInt64
		created int64
	)
	err := row.Scan(&s.ID, &s.FullName, &s.Gender, &s.ClassID, &s.ClassNumber, &s.ClassName,
		&s.TeacherID, &userID, &s.InvitationCode, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, gradebook.ErrNotFound
		}
		return Student{}, err
	}
	if userID.Valid {
		s.UserID = &userID.Int64
	}
	s.CreatedAt = time.Unix(created, 0).UTC()
	return s, nil
}

func (t *sqlTx) queryStudents(ctx context.Context, q string, args ...interface{}) ([]Student, error) {
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *sqlTx) GetRosterStudent(ctx context.Context, id int64) (Student, error) {
	return scanStudent(t.tx.QueryRowContext(ctx, rosterSelect+` WHERE s.id=$1`, id))
}

func (t *sqlTx) UpdateRosterStudent(ctx context.Context, s Student) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE students SET full_name=$1, gender=$2, class_id=$3 WHERE id=$4`,
		s.FullName, string(s.Gender), s.ClassID, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return gradebook.ErrNotFound
	}
	return nil
}

func (t *sqlTx) ListStudents(ctx context.Context, teacherID int64) ([]Student, error) {
	return t.queryStudents(ctx,
		rosterSelect+` WHERE c.teacher_id=$1 AND NOT c.archived ORDER BY c.number, c.class_name, s.full_name`,
		teacherID)
}

func (t *sqlTx) ListClassStudents(ctx context.Context, classID int64) ([]Student, error) {
	return t.queryStudents(ctx, rosterSelect+` WHERE s.class_id=$1 ORDER BY s.id`, classID)
}

func (t *sqlTx) LinkUser(ctx context.Context, invitationCode string, userID int64) (Student, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE students SET user_id=$1 WHERE invitation_code=$2 AND user_id IS NULL`,
		userID, invitationCode)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Student{}, gradebook.ErrConflict
		}
		return Student{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Student{}, errors.Wrapf(gradebook.ErrNotFound, "no unclaimed student with code %s", invitationCode)
	}
	return scanStudent(t.tx.QueryRowContext(ctx, rosterSelect+` WHERE s.invitation_code=$1`, invitationCode))
}
