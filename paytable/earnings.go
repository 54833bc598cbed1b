package paytable

import (
	"github.com/shopspring/decimal"

	"github.com/ts4z/trz/model"
)

// EffectiveTable picks the adjusted table when there is one.
func EffectiveTable(adjusted, rules *model.PrizeRules) *model.PrizeRules {
	if adjusted != nil {
		return adjusted
	}
	return rules
}

// ComputeEarnings prices one match result against table.  Missing placement
// or kills count as zero, and a placement with no prize pays nothing.
func ComputeEarnings(mr *model.MatchResult, table *model.PrizeRules) model.Earnings {
	if table == nil {
		return model.Earnings{}
	}

	placementPrize, ok := table.PlacementPrizes[mr.PlacementOrZero()]
	if !ok {
		placementPrize = decimal.Zero
	}
	killPrize := table.KillPrize.Mul(decimal.NewFromInt(int64(mr.KillsOrZero())))

	return model.Earnings{
		PlacementPrize: placementPrize,
		KillPrize:      killPrize,
		Total:          placementPrize.Add(killPrize),
	}
}
