// Package defaults holds the out-of-the-box tournament configuration, used
// whenever the shared settings haven't been filled in.
package defaults

import (
	"github.com/shopspring/decimal"

	"github.com/ts4z/trz/model"
)

const (
	// ReferenceSlots is the full lobby.  At this many slots the prize rules
	// apply as written.
	ReferenceSlots = 24

	// EstimatedLobbyKills is how many kills a full lobby is assumed to
	// produce when sizing the kill share of the prize pool.
	EstimatedLobbyKills = 60
)

var (
	EntryFee       = decimal.RequireFromString("5.00")
	KillPrize      = decimal.RequireFromString("0.50")
	FixedProfit    = decimal.RequireFromString("20")
	AutoProfitRate = decimal.RequireFromString("0.20")
)

// PrizeRules returns a fresh copy of the stock prize table.
func PrizeRules() *model.PrizeRules {
	return &model.PrizeRules{
		PlacementPrizes: map[int]decimal.Decimal{
			1: decimal.NewFromInt(25),
			2: decimal.NewFromInt(15),
			3: decimal.NewFromInt(10),
			4: decimal.NewFromInt(5),
		},
		KillPrize: KillPrize,
	}
}

// Settings returns the settings used to fill in anything the store doesn't have.
func Settings() *model.ResolvedSettings {
	return &model.ResolvedSettings{
		EntryFee:       EntryFee,
		AdjustmentMode: model.AdjustmentAuto,
		FixedProfit:    FixedProfit,
		PrizeRules:     PrizeRules(),
	}
}
