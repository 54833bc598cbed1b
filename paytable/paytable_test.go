package paytable

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ts4z/trz/defaults"
	"github.com/ts4z/trz/model"
)

var dec = decimal.RequireFromString

func intp(i int) *int { return &i }

func autoTournament(slots int) Tournament {
	return Tournament{
		SlotsSold:   slots,
		EntryFee:    dec("5"),
		Mode:        model.AdjustmentAuto,
		FixedProfit: dec("20"),
	}
}

func TestAdjustNoSlots(t *testing.T) {
	if got := DefaultPolicy().Adjust(defaults.PrizeRules(), autoTournament(0)); got != nil {
		t.Errorf("Adjust with 0 slots = %+v, want nil", got)
	}
}

func TestAdjustReferenceSlotsIsIdentity(t *testing.T) {
	rules := defaults.PrizeRules()
	got := DefaultPolicy().Adjust(rules, autoTournament(defaults.ReferenceSlots))
	if got == nil {
		t.Fatalf("Adjust at reference slots returned nil")
	}
	if len(got.PlacementPrizes) != len(rules.PlacementPrizes) {
		t.Fatalf("got %d ranks, want %d", len(got.PlacementPrizes), len(rules.PlacementPrizes))
	}
	for rank, want := range rules.PlacementPrizes {
		if !got.PlacementPrizes[rank].Equal(want) {
			t.Errorf("rank %d: got %v, want %v", rank, got.PlacementPrizes[rank], want)
		}
	}
	if !got.KillPrize.Equal(rules.KillPrize) {
		t.Errorf("kill prize: got %v, want %v", got.KillPrize, rules.KillPrize)
	}

	// Must be a copy.
	got.PlacementPrizes[1] = dec("999")
	if rules.PlacementPrizes[1].Equal(dec("999")) {
		t.Errorf("Adjust returned the caller's map")
	}
}

func TestAdjustHalfLobby(t *testing.T) {
	p := DefaultPolicy()
	rules := defaults.PrizeRules()
	tm := autoTournament(12)

	if got := tm.Collected(); !got.Equal(dec("60")) {
		t.Errorf("collected = %v, want 60", got)
	}
	if got := p.PrizePool(tm); !got.Equal(dec("48")) {
		t.Errorf("pool = %v, want 48", got)
	}
	if got := p.BasePool(rules); !got.Equal(dec("85")) {
		t.Errorf("base pool = %v, want 85", got)
	}

	adj := p.Adjust(rules, tm)
	if got := adj.PlacementPrizes[1].Round(2); !got.Equal(dec("14.12")) {
		t.Errorf("first place = %v, want 14.12", got)
	}
	if !adj.KillPrize.Equal(dec("0.5")) {
		t.Errorf("kill prize = %v, want 0.5", adj.KillPrize)
	}
}

func TestAdjust(t *testing.T) {
	tests := []struct {
		name      string
		rules     *model.PrizeRules
		tm        Tournament
		wantFirst string
		wantKill  string
		wantRanks int
	}{
		{
			name:  "fixed profit",
			rules: defaults.PrizeRules(),
			tm: Tournament{
				SlotsSold:   17,
				EntryFee:    dec("5"),
				Mode:        model.AdjustmentFixed,
				FixedProfit: dec("0"),
			},
			// 85 collected, 85 base: factor 1
			wantFirst: "25",
			wantKill:  "0.5",
			wantRanks: 4,
		},
		{
			name:  "fixed profit larger than takings",
			rules: defaults.PrizeRules(),
			tm: Tournament{
				SlotsSold:   2,
				EntryFee:    dec("5"),
				Mode:        model.AdjustmentFixed,
				FixedProfit: dec("20"),
			},
			wantFirst: "0",
			wantKill:  "0.5",
			wantRanks: 4,
		},
		{
			name:      "all zero rules",
			rules:     &model.PrizeRules{PlacementPrizes: map[int]decimal.Decimal{1: decimal.Zero}, KillPrize: decimal.Zero},
			tm:        autoTournament(10),
			wantFirst: "0",
			wantKill:  "0",
			wantRanks: 0,
		},
		{
			name:      "oversold lobby grows prizes",
			rules:     defaults.PrizeRules(),
			tm:        autoTournament(34),
			wantFirst: "40",
			wantKill:  "0.5",
			wantRanks: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultPolicy().Adjust(tt.rules, tt.tm)
			if got == nil {
				t.Fatalf("Adjust returned nil")
			}
			if len(got.PlacementPrizes) != tt.wantRanks {
				t.Errorf("got %d ranks, want %d", len(got.PlacementPrizes), tt.wantRanks)
			}
			if tt.wantRanks > 0 {
				if first := got.PlacementPrizes[1]; !first.Equal(dec(tt.wantFirst)) {
					t.Errorf("first place = %v, want %s", first, tt.wantFirst)
				}
			}
			if !got.KillPrize.Equal(dec(tt.wantKill)) {
				t.Errorf("kill prize = %v, want %s", got.KillPrize, tt.wantKill)
			}
		})
	}
}

func TestAdjustScalesPlacementOnly(t *testing.T) {
	p := DefaultPolicy()
	rules := &model.PrizeRules{
		PlacementPrizes: map[int]decimal.Decimal{1: dec("30"), 2: dec("12.5"), 5: dec("1")},
		KillPrize:       dec("0.75"),
	}
	for slots := 1; slots <= 48; slots++ {
		if slots == p.ReferenceSlots {
			continue
		}
		tm := autoTournament(slots)
		factor, ok := p.ScalingFactor(rules, tm)
		if !ok {
			t.Fatalf("slots=%d: no scaling factor", slots)
		}
		got := p.Adjust(rules, tm)
		for rank, base := range rules.PlacementPrizes {
			want := base.Mul(factor)
			if !got.PlacementPrizes[rank].Equal(want) {
				t.Errorf("slots=%d rank=%d: got %v, want %v", slots, rank, got.PlacementPrizes[rank], want)
			}
		}
		for rank := range got.PlacementPrizes {
			if _, ok := rules.PlacementPrizes[rank]; !ok {
				t.Errorf("slots=%d: adjusted has rank %d not in rules", slots, rank)
			}
		}
		if !got.KillPrize.Equal(rules.KillPrize) {
			t.Errorf("slots=%d: kill prize %v, want %v", slots, got.KillPrize, rules.KillPrize)
		}
	}
}

func TestComputeEarnings(t *testing.T) {
	table := defaults.PrizeRules()
	tests := []struct {
		name          string
		mr            model.MatchResult
		wantPlacement string
		wantKill      string
	}{
		{
			name:          "winner with kills",
			mr:            model.MatchResult{Placement: intp(1), Kills: intp(8)},
			wantPlacement: "25",
			wantKill:      "4",
		},
		{
			name:          "placement outside table",
			mr:            model.MatchResult{Placement: intp(9), Kills: intp(3)},
			wantPlacement: "0",
			wantKill:      "1.5",
		},
		{
			name:          "missing everything",
			mr:            model.MatchResult{},
			wantPlacement: "0",
			wantKill:      "0",
		},
		{
			name:          "missing kills",
			mr:            model.MatchResult{Placement: intp(2)},
			wantPlacement: "15",
			wantKill:      "0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ComputeEarnings(&tt.mr, table)
			if !e.PlacementPrize.Equal(dec(tt.wantPlacement)) {
				t.Errorf("placement prize = %v, want %s", e.PlacementPrize, tt.wantPlacement)
			}
			if !e.KillPrize.Equal(dec(tt.wantKill)) {
				t.Errorf("kill prize = %v, want %s", e.KillPrize, tt.wantKill)
			}
			if !e.Total.Equal(e.PlacementPrize.Add(e.KillPrize)) {
				t.Errorf("total %v != %v + %v", e.Total, e.PlacementPrize, e.KillPrize)
			}
		})
	}
}

func TestEffectiveTable(t *testing.T) {
	rules := defaults.PrizeRules()
	if got := EffectiveTable(nil, rules); got != rules {
		t.Errorf("EffectiveTable(nil, rules) didn't return rules")
	}
	adj := DefaultPolicy().Adjust(rules, autoTournament(12))
	if got := EffectiveTable(adj, rules); got != adj {
		t.Errorf("EffectiveTable(adj, rules) didn't return adj")
	}
}
