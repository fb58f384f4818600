package gradebook

import (
	"context"

	syncx "github.com/coachdiary/gradebook/internal/sync"
)

// Store runs units of work atomically: either every write made through the
// Tx lands or none does.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the persistence surface the engine needs. Implementations enforce
// uniqueness of standards by name, levels by (standard, number, gender) and
// results by (student, standard, level) themselves; application pre-checks
// are never the only guard.
type Tx interface {
	GetStandard(ctx context.Context, id int64) (Standard, error)
	FindStandardByName(ctx context.Context, name string) (Standard, error)
	// CreateStandardIfAbsent inserts s unless a standard with the same name
	// exists. It returns the stored row and whether it was inserted.
	CreateStandardIfAbsent(ctx context.Context, s Standard) (Standard, bool, error)
	UpdateStandard(ctx context.Context, s Standard) error
	ListStandardsByOwner(ctx context.Context, ownerID int64) ([]Standard, error)

	ListLevels(ctx context.Context, standardID int64) ([]Level, error)
	GetLevel(ctx context.Context, id int64) (Level, error)
	// FindLevel returns ErrLevelNotFound when no level matches.
	FindLevel(ctx context.Context, standardID int64, number int, g Gender) (Level, error)
	// InsertLevel returns ErrConflict when (standard, number, gender) is taken.
	InsertLevel(ctx context.Context, l Level) (Level, error)
	// DeleteLevel removes the level; results pointing at it keep their
	// level number and lose the reference.
	DeleteLevel(ctx context.Context, id int64) error

	GetStudent(ctx context.Context, id int64) (Student, error)
	// ListEligibleStudents returns active students of the owner's classes
	// with the given gender and class number >= minClass.
	ListEligibleStudents(ctx context.Context, ownerID int64, g Gender, minClass int) ([]Student, error)

	FindResult(ctx context.Context, studentID, standardID, levelID int64) (Result, error)
	// InsertPlaceholders writes the rows, silently skipping any that collide
	// with an existing (student, standard, level). Returns rows written.
	InsertPlaceholders(ctx context.Context, rs []Result) (int, error)
	// UpsertResult creates or overwrites the result keyed by
	// (student, standard, level).
	UpsertResult(ctx context.Context, r Result) (Result, error)
	// RelinkOrphans points results of lvl's standard that lost a level with
	// lvl's number and gender at lvl. The gender is the one stored on the
	// result, not the student's current one. Returns rows updated.
	RelinkOrphans(ctx context.Context, lvl Level) (int, error)
	ListResults(ctx context.Context, studentID int64) ([]Result, error)

	AppendEvent(ctx context.Context, e syncx.Event) error
}
