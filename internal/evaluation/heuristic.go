package evaluation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sudo-init-do/skillswap/internal/trade"
)

var levelWeight = map[trade.SkillLevel]float64{
	trade.SkillBeginner:     25,
	trade.SkillIntermediate: 50,
	trade.SkillAdvanced:     75,
	trade.SkillCertified:    100,
}

var typeWeight = map[trade.RequestType]float64{
	trade.RequestService: 40,
	trade.RequestOutput:  60,
	trade.RequestProject: 85,
}

var modeWeight = map[trade.DeliveryMode]float64{
	trade.DeliveryOnline: 35,
	trade.DeliveryHybrid: 55,
	trade.DeliveryOnsite: 70,
}

// Heuristic scores a trade from the two detail submissions alone. Fairness
// is high when both sides commit similar effort.
type Heuristic struct{}

func (Heuristic) Score(_ context.Context, in trade.EvaluationInput) (trade.Assessment, error) {
	a, b := in.Owner, in.Partner

	complexity := (typeWeight[a.RequestType] + typeWeight[b.RequestType]) / 2
	complexity += descriptionBonus(a.Description) + descriptionBonus(b.Description)
	commitment := (modeWeight[a.DeliveryMode] + modeWeight[b.DeliveryMode]) / 2
	skill := (levelWeight[a.SkillLevel] + levelWeight[b.SkillLevel]) / 2

	gap := math.Abs(effort(a) - effort(b))
	overall := 10 - gap/10

	var notes []string
	switch {
	case gap < 15:
		notes = append(notes, "Both sides commit comparable effort.")
	case effort(a) > effort(b):
		notes = append(notes, "The requester's side looks heavier than the offer.")
	default:
		notes = append(notes, "The offer looks heavier than the request.")
	}
	if a.SkillLevel != b.SkillLevel {
		notes = append(notes, fmt.Sprintf("Skill levels differ (%s vs %s).", a.SkillLevel, b.SkillLevel))
	}

	return trade.Assessment{
		Overall:        math.Round(overall*10) / 10,
		TaskComplexity: math.Round(complexity),
		TimeCommitment: math.Round(commitment),
		SkillLevel:     math.Round(skill),
		Feedback:       strings.Join(notes, " "),
	}, nil
}

func effort(d trade.Details) float64 {
	return (typeWeight[d.RequestType] + modeWeight[d.DeliveryMode] + levelWeight[d.SkillLevel]) / 3
}

// descriptionBonus rewards specific descriptions, up to 5 points per side.
func descriptionBonus(desc string) float64 {
	words := len(strings.Fields(desc))
	return math.Min(5, float64(words)/10)
}
