package gradebook

import (
	"context"
	"sort"
)

type SummaryItem struct {
	Standard    Standard `json:"standard"`
	LevelNumber int      `json:"level_number"`
	Value       *float64 `json:"value"`
	Grade       *int     `json:"grade"`
}

type Summary struct {
	StudentID    int64         `json:"student_id"`
	LevelNumber  int           `json:"level_number"`
	Items        []SummaryItem `json:"standards"`
	SummaryGrade float64       `json:"summary_grade"`
}

// StudentSummary lists the student's results for one class level, the
// current class when levelNumber is nil. The average covers graded results
// only and is 0 when there are none.
func (e *Engine) StudentSummary(ctx context.Context, studentID int64, levelNumber *int) (Summary, error) {
	var sum Summary
	err := e.Store.InTx(ctx, func(tx Tx) error {
		st, err := tx.GetStudent(ctx, studentID)
		if err != nil {
			return err
		}
		n := st.ClassNumber
		if levelNumber != nil {
			n = *levelNumber
		}
		sum = Summary{StudentID: st.ID, LevelNumber: n, Items: []SummaryItem{}}

		results, err := tx.ListResults(ctx, st.ID)
		if err != nil {
			return err
		}
		stds := map[int64]Standard{}
		var total, graded int
		for _, r := range results {
			if r.LevelID == nil || r.LevelNumber != n {
				continue
			}
			std, ok := stds[r.StandardID]
			if !ok {
				if std, err = tx.GetStandard(ctx, r.StandardID); err != nil {
					return err
				}
				stds[r.StandardID] = std
			}
			sum.Items = append(sum.Items, SummaryItem{
				Standard:    std,
				LevelNumber: r.LevelNumber,
				Value:       r.Value,
				Grade:       r.Grade,
			})
			if r.Grade != nil {
				total += *r.Grade
				graded++
			}
		}
		sort.Slice(sum.Items, func(i, j int) bool { return sum.Items[i].Standard.Name < sum.Items[j].Standard.Name })
		if graded > 0 {
			sum.SummaryGrade = float64(total) / float64(graded)
		}
		return nil
	})
	return sum, err
}
