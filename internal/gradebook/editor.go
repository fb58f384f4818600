package gradebook

import (
	"context"
	"math"
	"strings"

	"github.com/pkg/errors"
)

type LevelInput struct {
	Number        int      `json:"level_number" validate:"min=1,max=11"`
	Gender        Gender   `json:"gender" validate:"oneof=m f"`
	IsLowerBetter bool     `json:"is_lower_better"`
	Low           *float64 `json:"low_value,omitempty" validate:"omitempty,gte=0"`
	Middle        *float64 `json:"middle_value,omitempty" validate:"omitempty,gte=0"`
	High          *float64 `json:"high_value,omitempty" validate:"omitempty,gte=0"`
}

type StandardInput struct {
	Name        string       `json:"name" validate:"required,max=255"`
	Description string       `json:"description"`
	Kind        Kind         `json:"-"`
	Levels      []LevelInput `json:"levels" validate:"dive"`
}

// ValidateStandard checks the payload on its own, without looking at stored
// data. Numeric levels need every threshold, ordered in the level's grading
// direction; skill levels take none.
func ValidateStandard(in StandardInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name", "is required")
	}
	if in.Kind != KindNumeric && in.Kind != KindSkill {
		return invalid("kind", "unknown kind %q", in.Kind)
	}
	return validateLevels(in.Kind, in.Levels)
}

func validateLevels(kind Kind, levels []LevelInput) error {
	seen := make(map[levelKey]bool, len(levels))
	for i, l := range levels {
		if l.Number < MinClassNumber || l.Number > MaxClassNumber {
			return invalid("levels", "#%d: level_number must be between %d and %d", i, MinClassNumber, MaxClassNumber)
		}
		if !l.Gender.Valid() {
			return invalid("levels", "#%d: gender must be %q or %q", i, Male, Female)
		}
		k := levelKey{Number: l.Number, Gender: l.Gender}
		if seen[k] {
			return invalid("levels", "#%d: duplicate level %d/%s", i, l.Number, l.Gender)
		}
		seen[k] = true

		set := 0
		for _, v := range []*float64{l.Low, l.Middle, l.High} {
			if v == nil {
				continue
			}
			if *v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0) {
				return invalid("levels", "#%d: thresholds must be non-negative numbers", i)
			}
			set++
		}
		switch kind {
		case KindNumeric:
			if set != 3 {
				return invalid("levels", "#%d: numeric levels need low, middle and high values", i)
			}
			lo, mid, hi := *l.Low, *l.Middle, *l.High
			if l.IsLowerBetter && !(lo >= mid && mid >= hi) {
				return invalid("levels", "#%d: lower-is-better thresholds must satisfy low >= middle >= high", i)
			}
			if !l.IsLowerBetter && !(lo <= mid && mid <= hi) {
				return invalid("levels", "#%d: thresholds must satisfy low <= middle <= high", i)
			}
		case KindSkill:
			if set != 0 {
				return invalid("levels", "#%d: skill levels take no threshold values", i)
			}
		}
	}
	return nil
}

func (l LevelInput) level(standardID int64, kind Kind) Level {
	lvl := Level{
		StandardID:    standardID,
		Number:        l.Number,
		Gender:        l.Gender,
		IsLowerBetter: l.IsLowerBetter,
	}
	if kind == KindNumeric && l.Low != nil && l.Middle != nil && l.High != nil {
		lvl.Thresholds = &Thresholds{Low: *l.Low, Middle: *l.Middle, High: *l.High}
	}
	return lvl
}

// CreateStandard adds a standard to the shared catalog. Standards are keyed
// by name: when the name is taken, the supplied levels are merged into the
// existing standard and levels it already has are skipped. Ownership only
// gates who may edit, so merging into another teacher's standard is allowed.
func (e *Engine) CreateStandard(ctx context.Context, ownerID int64, in StandardInput) (Standard, bool, error) {
	var (
		out     Standard
		created bool
	)
	err := e.Store.InTx(ctx, func(tx Tx) error {
		var err error
		out, created, err = e.CreateStandardTx(ctx, tx, ownerID, in)
		return err
	})
	if err != nil {
		return Standard{}, false, err
	}
	if created {
		e.log.Infof("standard %d %q created by %d", out.ID, out.Name, ownerID)
	} else {
		e.log.Infof("standard %d %q merged by %d", out.ID, out.Name, ownerID)
	}
	return out, created, nil
}

// CreateStandardTx is CreateStandard inside a caller's transaction, so several
// standards can be created or merged as one unit.
func (e *Engine) CreateStandardTx(ctx context.Context, tx Tx, ownerID int64, in StandardInput) (Standard, bool, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := ValidateStandard(in); err != nil {
		return Standard{}, false, err
	}
	std, created, err := tx.CreateStandardIfAbsent(ctx, Standard{
		Name:        in.Name,
		Description: in.Description,
		Kind:        in.Kind,
		OwnerID:     ownerID,
		CreatedAt:   e.Now().UTC(),
	})
	if err != nil {
		return Standard{}, false, errors.Wrap(err, "create standard")
	}
	if !created && std.Kind != in.Kind {
		if err := validateLevels(std.Kind, in.Levels); err != nil {
			return Standard{}, false, err
		}
	}

	existing, err := tx.ListLevels(ctx, std.ID)
	if err != nil {
		return Standard{}, false, err
	}
	have := indexLevels(existing)
	for _, li := range in.Levels {
		if _, dup := have[levelKey{Number: li.Number, Gender: li.Gender}]; dup {
			continue
		}
		lvl, err := tx.InsertLevel(ctx, li.level(std.ID, std.Kind))
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return Standard{}, false, errors.Wrap(err, "insert level")
		}
		if _, err := e.HandleTx(ctx, tx, LevelCreated{Level: lvl}); err != nil {
			return Standard{}, false, err
		}
	}

	if std.Levels, err = tx.ListLevels(ctx, std.ID); err != nil {
		return Standard{}, false, err
	}
	return std, created, nil
}

// UpdateStandard overwrites a standard the caller owns. Levels are replaced
// as a set; results of the old levels are re-attached to the new level with
// the same class number and gender. Existing grades are not recomputed.
func (e *Engine) UpdateStandard(ctx context.Context, ownerID, id int64, in StandardInput) (Standard, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := ValidateStandard(in); err != nil {
		return Standard{}, err
	}

	var out Standard
	err := e.Store.InTx(ctx, func(tx Tx) error {
		std, err := ownedStandard(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		if in.Name != std.Name {
			other, err := tx.FindStandardByName(ctx, in.Name)
			switch {
			case err == nil && other.ID != std.ID:
				return errors.Wrapf(ErrConflict, "standard %q already exists", in.Name)
			case err != nil && !errors.Is(err, ErrNotFound):
				return err
			}
		}
		std.Name, std.Description, std.Kind = in.Name, in.Description, in.Kind
		if err := tx.UpdateStandard(ctx, std); err != nil {
			return errors.Wrap(err, "update standard")
		}

		old, err := tx.ListLevels(ctx, std.ID)
		if err != nil {
			return err
		}
		for _, l := range old {
			if err := tx.DeleteLevel(ctx, l.ID); err != nil {
				return errors.Wrapf(err, "delete level %d", l.ID)
			}
		}
		for _, li := range in.Levels {
			lvl, err := tx.InsertLevel(ctx, li.level(std.ID, std.Kind))
			if err != nil {
				return errors.Wrap(err, "insert level")
			}
			if _, err := e.HandleTx(ctx, tx, LevelCreated{Level: lvl}); err != nil {
				return err
			}
		}

		std.Levels, err = tx.ListLevels(ctx, std.ID)
		out = std
		return err
	})
	return out, err
}

// RemoveLevel deletes both genders' levels for one class number. Results
// stay, detached from any level.
func (e *Engine) RemoveLevel(ctx context.Context, ownerID, standardID int64, levelNumber int) (int, error) {
	if levelNumber < MinClassNumber || levelNumber > MaxClassNumber {
		return 0, invalid("level_number", "must be between %d and %d", MinClassNumber, MaxClassNumber)
	}
	var deleted int
	err := e.Store.InTx(ctx, func(tx Tx) error {
		std, err := ownedStandard(ctx, tx, ownerID, standardID)
		if err != nil {
			return err
		}
		levels, err := tx.ListLevels(ctx, std.ID)
		if err != nil {
			return err
		}
		for _, l := range levels {
			if l.Number != levelNumber {
				continue
			}
			if err := tx.DeleteLevel(ctx, l.ID); err != nil {
				return err
			}
			deleted++
		}
		if deleted == 0 {
			return errors.Wrapf(ErrNotFound, "standard %d has no level %d", standardID, levelNumber)
		}
		return nil
	})
	return deleted, err
}

func (e *Engine) ListStandards(ctx context.Context, ownerID int64) ([]Standard, error) {
	var out []Standard
	err := e.Store.InTx(ctx, func(tx Tx) error {
		stds, err := tx.ListStandardsByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		for i := range stds {
			if stds[i].Levels, err = tx.ListLevels(ctx, stds[i].ID); err != nil {
				return err
			}
		}
		out = stds
		return nil
	})
	return out, err
}

func (e *Engine) GetStandard(ctx context.Context, id int64) (Standard, error) {
	var out Standard
	err := e.Store.InTx(ctx, func(tx Tx) error {
		std, err := tx.GetStandard(ctx, id)
		if err != nil {
			return err
		}
		std.Levels, err = tx.ListLevels(ctx, id)
		out = std
		return err
	})
	return out, err
}

func ownedStandard(ctx context.Context, tx Tx, ownerID, id int64) (Standard, error) {
	std, err := tx.GetStandard(ctx, id)
	if err != nil {
		return Standard{}, err
	}
	if std.OwnerID != ownerID {
		return Standard{}, errors.Wrapf(ErrForbidden, "standard %d belongs to another teacher", id)
	}
	return std, nil
}
