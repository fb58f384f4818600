package gradebook

import (
	"context"

	"github.com/pkg/errors"
)

// Resolve finds the level that grades a student of gender g in class
// classNumber. There is no fallback to neighbouring classes: a missing level
// yields ErrLevelNotFound, which callers treat as "not authored yet" rather
// than as a failure.
func Resolve(ctx context.Context, tx Tx, standardID int64, classNumber int, g Gender) (Level, error) {
	if classNumber < MinClassNumber || classNumber > MaxClassNumber || !g.Valid() {
		return Level{}, ErrLevelNotFound
	}
	lvl, err := tx.FindLevel(ctx, standardID, classNumber, g)
	if err != nil {
		if errors.Is(err, ErrLevelNotFound) || errors.Is(err, ErrNotFound) {
			return Level{}, ErrLevelNotFound
		}
		return Level{}, errors.Wrap(err, "resolve level")
	}
	return lvl, nil
}

// ResolveLevel is Resolve in its own transaction.
func (e *Engine) ResolveLevel(ctx context.Context, standardID int64, classNumber int, g Gender) (Level, error) {
	var lvl Level
	err := e.Store.InTx(ctx, func(tx Tx) error {
		var err error
		lvl, err = Resolve(ctx, tx, standardID, classNumber, g)
		return err
	})
	return lvl, err
}

// levelIndex answers repeated lookups against one standard's levels without
// going back to the store.
type levelIndex map[levelKey]Level

func indexLevels(ls []Level) levelIndex {
	ix := make(levelIndex, len(ls))
	for _, l := range ls {
		ix[l.key()] = l
	}
	return ix
}

func (ix levelIndex) resolve(classNumber int, g Gender) (Level, error) {
	l, ok := ix[levelKey{Number: classNumber, Gender: g}]
	if !ok {
		return Level{}, ErrLevelNotFound
	}
	return l, nil
}
