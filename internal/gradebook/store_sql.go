package gradebook

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/coachdiary/gradebook/internal/db"
	syncx "github.com/coachdiary/gradebook/internal/sync"
)

// placeholderChunk bounds the rows of one multi-row insert.
const placeholderChunk = 200

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(sqlDB *sql.DB) *SQLStore { return &SQLStore{db: sqlDB} }

func (s *SQLStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(NewSQLTx(tx))
	})
}

// NewSQLTx exposes an open transaction through the Tx interface so other
// packages can mix their own writes with engine calls.
func NewSQLTx(tx *sql.Tx) Tx {
	return &sqlTx{tx: tx, events: syncx.NewEventRepo(tx)}
}

type sqlTx struct {
	tx     *sql.Tx
	events *syncx.EventRepo
}

const standardCols = `id, name, description, kind, owner_id, created_at`

func scanStandard(row interface{ Scan(...interface{}) error }) (Standard, error) {
	var (
		s       Standard
		created int64
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Kind, &s.OwnerID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Standard{}, ErrNotFound
		}
		return Standard{}, err
	}
	s.CreatedAt = time.Unix(created, 0).UTC()
	return s, nil
}

func (t *sqlTx) GetStandard(ctx context.Context, id int64) (Standard, error) {
	return scanStandard(t.tx.QueryRowContext(ctx,
		`SELECT `+standardCols+` FROM standards WHERE id=$1`, id))
}

func (t *sqlTx) FindStandardByName(ctx context.Context, name string) (Standard, error) {
	return scanStandard(t.tx.QueryRowContext(ctx,
		`SELECT `+standardCols+` FROM standards WHERE name=$1`, name))
}

func (t *sqlTx) CreateStandardIfAbsent(ctx context.Context, s Standard) (Standard, bool, error) {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO standards (name, description, kind, owner_id, created_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING id`,
		s.Name, s.Description, string(s.Kind), s.OwnerID, s.CreatedAt.Unix()).Scan(&s.ID)
	if errors.Is(err, sql.ErrNoRows) {
		cur, err := t.FindStandardByName(ctx, s.Name)
		return cur, false, err
	}
	if err != nil {
		return Standard{}, false, err
	}
	s.CreatedAt = time.Unix(s.CreatedAt.Unix(), 0).UTC()
	s.Levels = nil
	return s, true, nil
}

func (t *sqlTx) UpdateStandard(ctx context.Context, s Standard) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE standards SET name=$1, description=$2, kind=$3 WHERE id=$4`,
		s.Name, s.Description, string(s.Kind), s.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return errors.Wrapf(ErrConflict, "standard %q already exists", s.Name)
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) ListStandardsByOwner(ctx context.Context, ownerID int64) ([]Standard, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+standardCols+` FROM standards WHERE owner_id=$1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Standard
	for rows.Next() {
		s, err := scanStandard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const levelCols = `id, standard_id, level_number, gender, is_lower_better, low_value, middle_value, high_value`

func scanLevel(row interface{ Scan(...interface{}) error }) (Level, error) {
	var (
		l                 Level
		low, middle, high sql.NullFloat64
	)
	if err := row.Scan(&l.ID, &l.StandardID, &l.Number, &l.Gender, &l.IsLowerBetter, &low, &middle, &high); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Level{}, ErrNotFound
		}
		return Level{}, err
	}
	if low.Valid && middle.Valid && high.Valid {
		l.Thresholds = &Thresholds{Low: low.Float64, Middle: middle.Float64, High: high.Float64}
	}
	return l, nil
}

func (t *sqlTx) ListLevels(ctx context.Context, standardID int64) ([]Level, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+levelCols+` FROM levels WHERE standard_id=$1 ORDER BY level_number, gender`, standardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Level
	for rows.Next() {
		l, err := scanLevel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *sqlTx) GetLevel(ctx context.Context, id int64) (Level, error) {
	return scanLevel(t.tx.QueryRowContext(ctx, `SELECT `+levelCols+` FROM levels WHERE id=$1`, id))
}

func (t *sqlTx) FindLevel(ctx context.Context, standardID int64, number int, g Gender) (Level, error) {
	l, err := scanLevel(t.tx.QueryRowContext(ctx,
		`SELECT `+levelCols+` FROM levels WHERE standard_id=$1 AND level_number=$2 AND gender=$3`,
		standardID, number, string(g)))
	if errors.Is(err, ErrNotFound) {
		return Level{}, ErrLevelNotFound
	}
	return l, err
}

func (t *sqlTx) InsertLevel(ctx context.Context, l Level) (Level, error) {
	var low, middle, high sql.NullFloat64
	if th := l.Thresholds; th != nil {
		low = sql.NullFloat64{Float64: th.Low, Valid: true}
		middle = sql.NullFloat64{Float64: th.Middle, Valid: true}
		high = sql.NullFloat64{Float64: th.High, Valid: true}
	}
	// DO NOTHING keeps a Postgres transaction usable after a duplicate.
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO levels (standard_id, level_number, gender, is_lower_better, low_value, middle_value, high_value)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (standard_id, level_number, gender) DO NOTHING
		 RETURNING id`,
		l.StandardID, l.Number, string(l.Gender), l.IsLowerBetter, low, middle, high).Scan(&l.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return Level{}, errors.Wrapf(ErrConflict, "level %d/%s exists", l.Number, l.Gender)
	}
	if err != nil {
		return Level{}, err
	}
	return l, nil
}

func (t *sqlTx) DeleteLevel(ctx context.Context, id int64) error {
	// results keep their level_number; the FK clears level_id
	res, err := t.tx.ExecContext(ctx, `DELETE FROM levels WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const studentSelect = `SELECT s.id, s.gender, c.number, c.teacher_id, s.user_id
	FROM students s JOIN student_classes c ON c.id = s.class_id`

func scanStudent(row interface{ Scan(...interface{}) error }) (Student, error) {
	var (
		s      Student
		userID sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Gender, &s.ClassNumber, &s.TeacherID, &userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, ErrNotFound
		}
		return Student{}, err
	}
	if userID.Valid {
		s.UserID = &userID.Int64
	}
	return s, nil
}

func (t *sqlTx) GetStudent(ctx context.Context, id int64) (Student, error) {
	return scanStudent(t.tx.QueryRowContext(ctx, studentSelect+` WHERE s.id=$1`, id))
}

func (t *sqlTx) ListEligibleStudents(ctx context.Context, ownerID int64, g Gender, minClass int) ([]Student, error) {
	rows, err := t.tx.QueryContext(ctx,
		studentSelect+` WHERE c.teacher_id=$1 AND s.gender=$2 AND c.number >= $3 AND NOT c.archived ORDER BY s.id`,
		ownerID, string(g), minClass)
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

const resultCols = `id, student_id, standard_id, level_id, level_number, level_gender, value, grade, recorded_at`

func scanResult(row interface{ Scan(...interface{}) error }) (Result, error) {
	var (
		r        Result
		levelID  sql.NullInt64
		value    sql.NullFloat64
		grade    sql.NullInt64
		recorded sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.StudentID, &r.StandardID, &levelID, &r.LevelNumber, &r.LevelGender, &value, &grade, &recorded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	if levelID.Valid {
		r.LevelID = &levelID.Int64
	}
	if value.Valid {
		r.Value = &value.Float64
	}
	if grade.Valid {
		g := int(grade.Int64)
		r.Grade = &g
	}
	if recorded.Valid {
		r.RecordedAt = time.Unix(recorded.Int64, 0).UTC()
	}
	return r, nil
}

func (t *sqlTx) FindResult(ctx context.Context, studentID, standardID, levelID int64) (Result, error) {
	return scanResult(t.tx.QueryRowContext(ctx,
		`SELECT `+resultCols+` FROM results WHERE student_id=$1 AND standard_id=$2 AND level_id=$3`,
		studentID, standardID, levelID))
}

func (t *sqlTx) InsertPlaceholders(ctx context.Context, rs []Result) (int, error) {
	total := 0
	for start := 0; start < len(rs); start += placeholderChunk {
		end := start + placeholderChunk
		if end > len(rs) {
			end = len(rs)
		}
		chunk := rs[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO results (student_id, standard_id, level_id, level_number, level_gender) VALUES `)
		args := make([]interface{}, 0, len(chunk)*5)
		for i, r := range chunk {
			if r.LevelID == nil {
				return total, errors.Wrapf(ErrInvalidLevel, "placeholder for student %d has no level", r.StudentID)
			}
			if i > 0 {
				sb.WriteString(",")
			}
			n := len(args)
			fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5)
			args = append(args, r.StudentID, r.StandardID, *r.LevelID, r.LevelNumber, string(r.LevelGender))
		}
		sb.WriteString(` ON CONFLICT (student_id, standard_id, level_id) DO NOTHING`)

		res, err := t.tx.ExecContext(ctx, sb.String(), args...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(n)
	}
	return total, nil
}

func (t *sqlTx) UpsertResult(ctx context.Context, r Result) (Result, error) {
	if r.LevelID == nil {
		return Result{}, ErrInvalidLevel
	}
	var grade sql.NullInt64
	if r.Grade != nil {
		grade = sql.NullInt64{Int64: int64(*r.Grade), Valid: true}
	}
	var value sql.NullFloat64
	if r.Value != nil {
		value = sql.NullFloat64{Float64: *r.Value, Valid: true}
	}
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO results (student_id, standard_id, level_id, level_number, level_gender, value, grade, recorded_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (student_id, standard_id, level_id) DO UPDATE SET
		   level_number=EXCLUDED.level_number, level_gender=EXCLUDED.level_gender, value=EXCLUDED.value,
		   grade=EXCLUDED.grade, recorded_at=EXCLUDED.recorded_at
		 RETURNING id`,
		r.StudentID, r.StandardID, *r.LevelID, r.LevelNumber, string(r.LevelGender), value, grade, r.RecordedAt.Unix()).Scan(&r.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Result{}, errors.Wrap(ErrConflict, "result")
		}
		return Result{}, err
	}
	r.RecordedAt = time.Unix(r.RecordedAt.Unix(), 0).UTC()
	return r, nil
}

func (t *sqlTx) RelinkOrphans(ctx context.Context, lvl Level) (int, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE results SET level_id=$1 WHERE id IN (
		   SELECT MAX(id) FROM results
		    WHERE level_id IS NULL AND standard_id=$2 AND level_number=$3 AND level_gender=$4
		    GROUP BY student_id)`,
		lvl.ID, lvl.StandardID, lvl.Number, string(lvl.Gender))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *sqlTx) ListResults(ctx context.Context, studentID int64) ([]Result, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+resultCols+` FROM results WHERE student_id=$1 ORDER BY id`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *sqlTx) AppendEvent(ctx context.Context, e syncx.Event) error {
	return t.events.Append(ctx, e)
}
