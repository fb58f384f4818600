// Package roster manages teachers' classes and students and tells the
// gradebook engine about every change that affects result slots.
package roster

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/coachdiary/gradebook/internal/gradebook"
	"github.com/coachdiary/gradebook/internal/validate"
)

type Class struct {
	ID        int64  `json:"id"`
	TeacherID int64  `json:"teacher_id"`
	Number    int    `json:"number"`
	Name      string `json:"class_name"`
	Archived  bool   `json:"archived"`
}

type Student struct {
	ID             int64            `json:"id"`
	FullName       string           `json:"full_name"`
	Gender         gradebook.Gender `json:"gender"`
	ClassID        int64            `json:"class_id"`
	ClassNumber    int              `json:"class_number"`
	ClassName      string           `json:"class_name"`
	TeacherID      int64            `json:"teacher_id"`
	UserID         *int64           `json:"user_id,omitempty"`
	InvitationCode string           `json:"invitation_code"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Engine is the subset of the student the gradebook cares about.
func (s Student) Engine() gradebook.Student {
	return gradebook.Student{
		ID:          s.ID,
		Gender:      s.Gender,
		ClassNumber: s.ClassNumber,
		TeacherID:   s.TeacherID,
		UserID:      s.UserID,
	}
}

type StudentInput struct {
	FullName    string           `json:"full_name" validate:"required,max=255"`
	Gender      gradebook.Gender `json:"gender" validate:"oneof=m f"`
	ClassNumber int              `json:"class_number" validate:"min=1,max=11"`
	ClassName   string           `json:"class_name" validate:"required,max=8"`
}

// ClassRow is one student's line of a class results grid.
type ClassRow struct {
	Student Student            `json:"student"`
	Results []gradebook.Result `json:"results"`
}

// PromotionReport summarizes one PromoteClasses run.
type PromotionReport struct {
	Archived     int `json:"archived_classes"`
	Promoted     int `json:"promoted_classes"`
	Students     int `json:"students"`
	Placeholders int `json:"placeholders"`
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx extends the engine's transaction with roster writes so a roster change
// and its reconciliation commit together.
type Tx interface {
	gradebook.Tx

	GetOrCreateClass(ctx context.Context, teacherID int64, number int, name string) (Class, error)
	GetClass(ctx context.Context, id int64) (Class, error)
	ListActiveClasses(ctx context.Context, teacherID int64) ([]Class, error)
	ArchiveClass(ctx context.Context, id int64) error
	SetClassNumber(ctx context.Context, id int64, number int) error

	InsertStudent(ctx context.Context, s Student) (Student, error)
	GetRosterStudent(ctx context.Context, id int64) (Student, error)
	UpdateRosterStudent(ctx context.Context, s Student) error
	ListStudents(ctx context.Context, teacherID int64) ([]Student, error)
	ListClassStudents(ctx context.Context, classID int64) ([]Student, error)
	LinkUser(ctx context.Context, invitationCode string, userID int64) (Student, error)
}

type Service struct {
	Store  Store
	Engine *gradebook.Engine
	Now    func() time.Time
	// NewCode generates invitation codes.
	NewCode func() string

	log *log.Logger
}

func NewService(store Store, eng *gradebook.Engine, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New("roster")
	}
	return &Service{Store: store, Engine: eng, Now: time.Now, NewCode: InvitationCode, log: logger}
}

// InvitationCode returns eight upper-case hex characters.
func InvitationCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func normalize(in StudentInput) StudentInput {
	in.FullName = strings.TrimSpace(in.FullName)
	in.ClassName = strings.ToUpper(strings.TrimSpace(in.ClassName))
	return in
}

// CreateStudent enrolls a student into the owner's class, creating the class
// on first use, and seeds the student's result slots.
func (s *Service) CreateStudent(ctx context.Context, ownerID int64, in StudentInput) (Student, error) {
	in = normalize(in)
	if err := validate.Struct(in); err != nil {
		return Student{}, err
	}
	var out Student
	err := s.Store.InTx(ctx, func(tx Tx) error {
		class, err := tx.GetOrCreateClass(ctx, ownerID, in.ClassNumber, in.ClassName)
		if err != nil {
			return errors.Wrap(err, "class")
		}
		st, err := tx.InsertStudent(ctx, Student{
			FullName:       in.FullName,
			Gender:         in.Gender,
			ClassID:        class.ID,
			ClassNumber:    class.Number,
			ClassName:      class.Name,
			TeacherID:      ownerID,
			InvitationCode: s.NewCode(),
			CreatedAt:      s.Now().UTC(),
		})
		if err != nil {
			return errors.Wrap(err, "insert student")
		}
		if _, err := s.Engine.HandleTx(ctx, tx, gradebook.StudentCreated{Student: st.Engine()}); err != nil {
			return err
		}
		out = st
		return nil
	})
	if err != nil {
		return Student{}, err
	}
	s.log.Infof("student %d enrolled in %d%s by %d", out.ID, out.ClassNumber, out.ClassName, ownerID)
	return out, nil
}

// UpdateStudent rewrites a student the owner teaches. Moving to a class with
// a higher number opens slots for the classes in between.
func (s *Service) UpdateStudent(ctx context.Context, ownerID, id int64, in StudentInput) (Student, error) {
	in = normalize(in)
	if err := validate.Struct(in); err != nil {
		return Student{}, err
	}
	var out Student
	err := s.Store.InTx(ctx, func(tx Tx) error {
		cur, err := ownedStudent(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		from := cur.ClassNumber

		class, err := tx.GetOrCreateClass(ctx, ownerID, in.ClassNumber, in.ClassName)
		if err != nil {
			return errors.Wrap(err, "class")
		}
		cur.FullName, cur.Gender = in.FullName, in.Gender
		cur.ClassID, cur.ClassNumber, cur.ClassName = class.ID, class.Number, class.Name
		if err := tx.UpdateRosterStudent(ctx, cur); err != nil {
			return errors.Wrap(err, "update student")
		}
		if class.Number != from {
			ev := gradebook.ClassChanged{Student: cur.Engine(), From: from, To: class.Number}
			if _, err := s.Engine.HandleTx(ctx, tx, ev); err != nil {
				return err
			}
		}
		out = cur
		return nil
	})
	return out, err
}

// PromoteClasses moves the owner's classes up one year. Graduating 11th
// classes are archived; their students keep their results.
func (s *Service) PromoteClasses(ctx context.Context, ownerID int64) (PromotionReport, error) {
	var rep PromotionReport
	err := s.Store.InTx(ctx, func(tx Tx) error {
		rep = PromotionReport{}
		classes, err := tx.ListActiveClasses(ctx, ownerID)
		if err != nil {
			return err
		}
		// highest first, so a class never lands on one that has not moved yet
		for _, c := range classes {
			if c.Number >= gradebook.MaxClassNumber {
				if err := tx.ArchiveClass(ctx, c.ID); err != nil {
					return errors.Wrapf(err, "archive class %d", c.ID)
				}
				rep.Archived++
				continue
			}
			to := c.Number + 1
			if err := tx.SetClassNumber(ctx, c.ID, to); err != nil {
				return errors.Wrapf(err, "promote class %d", c.ID)
			}
			rep.Promoted++

			students, err := tx.ListClassStudents(ctx, c.ID)
			if err != nil {
				return err
			}
			for _, st := range students {
				ev := gradebook.ClassChanged{Student: st.Engine(), From: c.Number, To: to}
				n, err := s.Engine.HandleTx(ctx, tx, ev)
				if err != nil {
					return err
				}
				rep.Students++
				rep.Placeholders += n
			}
		}
		return nil
	})
	if err != nil {
		return PromotionReport{}, err
	}
	s.log.Infof("promotion for %d: %+v", ownerID, rep)
	return rep, nil
}

func (s *Service) ListStudents(ctx context.Context, ownerID int64) ([]Student, error) {
	var out []Student
	err := s.Store.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListStudents(ctx, ownerID)
		return err
	})
	return out, err
}

// ListClasses returns the owner's active classes, highest number first.
func (s *Service) ListClasses(ctx context.Context, ownerID int64) ([]Class, error) {
	var out []Class
	err := s.Store.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListActiveClasses(ctx, ownerID)
		return err
	})
	return out, err
}

// ListClassResults builds the results grid for the owner's classes: every
// student of the classes with their result slots, placeholders included.
// An empty standardIDs keeps every standard.
func (s *Service) ListClassResults(ctx context.Context, ownerID int64, classIDs, standardIDs []int64) ([]ClassRow, error) {
	if len(classIDs) == 0 {
		return nil, &gradebook.ValidationError{Field: "class_id", Message: "is required"}
	}
	keep := make(map[int64]bool, len(standardIDs))
	for _, id := range standardIDs {
		keep[id] = true
	}

	var out []ClassRow
	err := s.Store.InTx(ctx, func(tx Tx) error {
		out = nil
		seen := map[int64]bool{}
		for _, id := range classIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			c, err := tx.GetClass(ctx, id)
			if err != nil {
				return err
			}
			if c.TeacherID != ownerID {
				return errors.Wrapf(gradebook.ErrForbidden, "class %d has another teacher", id)
			}
			students, err := tx.ListClassStudents(ctx, c.ID)
			if err != nil {
				return err
			}
			for _, st := range students {
				rs, err := tx.ListResults(ctx, st.ID)
				if err != nil {
					return err
				}
				row := ClassRow{Student: st, Results: []gradebook.Result{}}
				for _, r := range rs {
					if len(keep) == 0 || keep[r.StandardID] {
						row.Results = append(row.Results, r)
					}
				}
				out = append(out, row)
			}
		}
		return nil
	})
	return out, err
}

func (s *Service) GetStudent(ctx context.Context, ownerID, id int64) (Student, error) {
	var out Student
	err := s.Store.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = ownedStudent(ctx, tx, ownerID, id)
		return err
	})
	return out, err
}

// LinkUser attaches a login to the student holding the invitation code.
func (s *Service) LinkUser(ctx context.Context, invitationCode string, userID int64) (Student, error) {
	code := strings.ToUpper(strings.TrimSpace(invitationCode))
	if code == "" {
		return Student{}, &gradebook.ValidationError{Field: "invitation_code", Message: "is required"}
	}
	var out Student
	err := s.Store.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.LinkUser(ctx, code, userID)
		return err
	})
	return out, err
}

func ownedStudent(ctx context.Context, tx Tx, ownerID, id int64) (Student, error) {
	st, err := tx.GetRosterStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if st.TeacherID != ownerID {
		return Student{}, errors.Wrapf(gradebook.ErrForbidden, "student %d has another teacher", id)
	}
	return st, nil
}
