package gradebook

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	syncx "github.com/coachdiary/gradebook/internal/sync"
)

// Event is a roster or catalog change the engine reacts to.
type Event interface {
	eventType() string
	eventKey() string
}

// StudentCreated is raised once a new student row exists.
type StudentCreated struct {
	Student Student
}

// ClassChanged carries the class numbers before and after a student's move.
// Both values come from the caller; the stored row may already hold To.
type ClassChanged struct {
	Student Student
	From    int
	To      int
}

// LevelCreated is raised for each level added to an existing standard.
type LevelCreated struct {
	Level Level
}

func (StudentCreated) eventType() string { return syncx.TypeStudentCreated }
func (ClassChanged) eventType() string   { return syncx.TypeClassChanged }
func (LevelCreated) eventType() string   { return syncx.TypeLevelCreated }

func (ev StudentCreated) eventKey() string { return fmt.Sprintf("student:%d", ev.Student.ID) }
func (ev ClassChanged) eventKey() string   { return fmt.Sprintf("student:%d", ev.Student.ID) }
func (ev LevelCreated) eventKey() string   { return fmt.Sprintf("level:%d", ev.Level.ID) }

type eventRecord struct {
	Event    Event `json:"event"`
	Created  int   `json:"created"`
	Relinked int   `json:"relinked,omitempty"`
}

// Handle reacts to ev in its own transaction and returns the number of
// placeholders created.
func (e *Engine) Handle(ctx context.Context, ev Event) (int, error) {
	var n int
	err := e.Store.InTx(ctx, func(tx Tx) error {
		var err error
		n, err = e.HandleTx(ctx, tx, ev)
		return err
	})
	return n, err
}

// HandleTx reacts to ev inside the caller's transaction so the change that
// raised it and the resulting placeholders commit together.
func (e *Engine) HandleTx(ctx context.Context, tx Tx, ev Event) (int, error) {
	var (
		created, relinked int
		err               error
	)
	switch ev := ev.(type) {
	case StudentCreated:
		created, err = e.onStudentCreated(ctx, tx, ev)
	case ClassChanged:
		created, err = e.onClassChanged(ctx, tx, ev)
	case LevelCreated:
		created, relinked, err = e.onLevelCreated(ctx, tx, ev)
	default:
		return 0, errors.Errorf("unsupported event %T", ev)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "handle %s", ev.eventType())
	}

	rec := eventRecord{Event: ev, Created: created, Relinked: relinked}
	if err := tx.AppendEvent(ctx, syncx.NewEvent(e.SiteID, ev.eventType(), ev.eventKey(), rec)); err != nil {
		return 0, errors.Wrap(err, "append event")
	}
	e.log.Infof("%s %s: %d placeholders, %d relinked", ev.eventType(), ev.eventKey(), created, relinked)
	return created, nil
}

func (e *Engine) onStudentCreated(ctx context.Context, tx Tx, ev StudentCreated) (int, error) {
	standards, err := tx.ListStandardsByOwner(ctx, ev.Student.TeacherID)
	if err != nil {
		return 0, err
	}
	return e.ensureEntries(ctx, tx, ev.Student, standards, UpTo(ev.Student.ClassNumber))
}

func (e *Engine) onClassChanged(ctx context.Context, tx Tx, ev ClassChanged) (int, error) {
	if ev.To <= ev.From {
		return 0, nil
	}
	standards, err := tx.ListStandardsByOwner(ctx, ev.Student.TeacherID)
	if err != nil {
		return 0, err
	}
	return e.ensureEntries(ctx, tx, ev.Student, standards, ClassRange{From: ev.From + 1, To: ev.To})
}

func (e *Engine) onLevelCreated(ctx context.Context, tx Tx, ev LevelCreated) (created, relinked int, err error) {
	lvl := ev.Level
	std, err := tx.GetStandard(ctx, lvl.StandardID)
	if err != nil {
		return 0, 0, err
	}
	relinked, err = tx.RelinkOrphans(ctx, lvl)
	if err != nil {
		return 0, 0, errors.Wrap(err, "relink orphans")
	}
	students, err := tx.ListEligibleStudents(ctx, std.OwnerID, lvl.Gender, lvl.Number)
	if err != nil {
		return 0, relinked, err
	}
	if len(students) == 0 {
		return 0, relinked, nil
	}
	batch := make([]Result, 0, len(students))
	for _, st := range students {
		batch = append(batch, placeholder(st, lvl))
	}
	created, err = tx.InsertPlaceholders(ctx, batch)
	if err != nil {
		return 0, relinked, errors.Wrapf(err, "placeholders for level %d", lvl.ID)
	}
	return created, relinked, nil
}
