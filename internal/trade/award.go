package trade

import (
	"context"
	"math"
)

// AssessmentAwarder derives completion XP locally: Base, plus five XP per
// point of the overall assessment, plus two XP per star the participant
// received from their partner.
type AssessmentAwarder struct {
	Base int64
}

func (a AssessmentAwarder) Award(_ context.Context, t *Trade) (map[string]int64, error) {
	var fromScore int64
	if t.Assessment != nil {
		fromScore = int64(math.Round(t.Assessment.Overall * 5))
	}
	out := make(map[string]int64, 2)
	for _, userID := range t.Participants() {
		amount := a.Base + fromScore
		for _, r := range t.Ratings {
			if r.RateeID == userID {
				amount += int64(r.Score) * 2
			}
		}
		out[userID] = amount
	}
	return out, nil
}
