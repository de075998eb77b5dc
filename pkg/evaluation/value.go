package evaluation

import "github.com/aretw0/tradeflow/pkg/domain"

// ComputeTeamValueDelta returns the projected gain of each side.
// The proposing team gains sum(get) - sum(give); the counterparty gains the negation.
// Unknown player ids count as zero.
func ComputeTeamValueDelta(players map[string]domain.Player, proposal domain.TradeProposal) (deltaFrom, deltaTo float64) {
	sum := func(ids []string) float64 {
		var total float64
		for _, id := range ids {
			total += players[id].Proj
		}
		return total
	}

	deltaFrom = sum(proposal.Get) - sum(proposal.Give)
	deltaTo = -deltaFrom
	return deltaFrom, deltaTo
}

// RiskFlags lists injured players among ids, in input order.
func RiskFlags(players map[string]domain.Player, ids []string) []string {
	flags := []string{}
	for _, id := range ids {
		p, ok := players[id]
		if !ok || p.Injury == nil {
			continue
		}
		switch p.Injury.Status {
		case domain.InjuryOut:
			flags = append(flags, p.Name+": OUT")
		case domain.InjuryDayToDay:
			flags = append(flags, p.Name+": day-to-day")
		}
	}
	return flags
}

var gradeThresholds = []struct {
	min   float64
	grade domain.Grade
}{
	{5, domain.GradeA},
	{2, domain.GradeB},
	{0, domain.GradeC},
	{-2, domain.GradeD},
}

// GradeTrade grades a trade on the smaller of the two sides' gains.
func GradeTrade(deltaFrom, deltaTo float64) domain.Grade {
	smallest := min(deltaFrom, deltaTo)
	for _, t := range gradeThresholds {
		if smallest >= t.min {
			return t.grade
		}
	}
	return domain.GradeF
}
