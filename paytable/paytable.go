// Package paytable scales prize tables to what a tournament actually took
// in, and works out what each team earned from the result.
//
// Everything here is pure arithmetic on decimals.
package paytable

import (
	"github.com/shopspring/decimal"

	"github.com/ts4z/trz/defaults"
	"github.com/ts4z/trz/model"
)

// Policy holds the knobs of the scaling rule.
type Policy struct {
	// ReferenceSlots is the lobby size the base rules were written for.
	ReferenceSlots int
	// EstimatedLobbyKills is the assumed kill count of a full lobby.
	EstimatedLobbyKills int
	// AutoProfitRate is the organizer's cut in auto mode.
	AutoProfitRate decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		ReferenceSlots:      defaults.ReferenceSlots,
		EstimatedLobbyKills: defaults.EstimatedLobbyKills,
		AutoProfitRate:      defaults.AutoProfitRate,
	}
}

// Tournament is the money side of one tournament.
type Tournament struct {
	SlotsSold   int
	EntryFee    decimal.Decimal
	Mode        model.AdjustmentMode
	FixedProfit decimal.Decimal
}

// Collected is slots times entry fee.
func (t Tournament) Collected() decimal.Decimal {
	return t.EntryFee.Mul(decimal.NewFromInt(int64(t.SlotsSold)))
}

// OrganizerProfit is what the organizer keeps before prizes.
func (p Policy) OrganizerProfit(t Tournament) decimal.Decimal {
	if t.Mode == model.AdjustmentFixed {
		return t.FixedProfit
	}
	return t.Collected().Mul(p.AutoProfitRate)
}

// PrizePool is what is left to pay out, never negative.
func (p Policy) PrizePool(t Tournament) decimal.Decimal {
	return decimal.Max(decimal.Zero, t.Collected().Sub(p.OrganizerProfit(t)))
}

// BasePool is the payout a full lobby would see under rules.
func (p Policy) BasePool(rules *model.PrizeRules) decimal.Decimal {
	kills := rules.KillPrize.Mul(decimal.NewFromInt(int64(p.EstimatedLobbyKills)))
	return rules.PlacementTotal().Add(kills)
}

// Adjust scales the placement prizes of rules in proportion to the prize
// pool the tournament actually generated.
//
// It returns nil when no slots were sold, and a copy of rules when the
// lobby is exactly the reference size.  The kill prize is never scaled.
func (p Policy) Adjust(rules *model.PrizeRules, t Tournament) *model.PrizeRules {
	if t.SlotsSold == 0 {
		return nil
	}
	if t.SlotsSold == p.ReferenceSlots {
		return rules.Clone()
	}

	base := p.BasePool(rules)
	if base.IsZero() {
		return &model.PrizeRules{
			PlacementPrizes: map[int]decimal.Decimal{},
			KillPrize:       decimal.Zero,
		}
	}

	factor := p.PrizePool(t).Div(base)
	adjusted := &model.PrizeRules{
		PlacementPrizes: make(map[int]decimal.Decimal, len(rules.PlacementPrizes)),
		KillPrize:       rules.KillPrize,
	}
	for rank, prize := range rules.PlacementPrizes {
		adjusted.PlacementPrizes[rank] = prize.Mul(factor)
	}
	return adjusted
}

// ScalingFactor reports the multiplier Adjust would apply, for display.
// ok is false in the cases where Adjust doesn't scale.
func (p Policy) ScalingFactor(rules *model.PrizeRules, t Tournament) (factor decimal.Decimal, ok bool) {
	if t.SlotsSold == 0 || t.SlotsSold == p.ReferenceSlots {
		return decimal.Zero, false
	}
	base := p.BasePool(rules)
	if base.IsZero() {
		return decimal.Zero, false
	}
	return p.PrizePool(t).Div(base), true
}
