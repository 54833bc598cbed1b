package model

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Clients treat prizes as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// MatchResult is one team as read off a screenshot.  Any field may be
// missing if the extractor couldn't make it out.
type MatchResult struct {
	PlayerNames []string `json:"playerNames"`
	Kills       *int     `json:"kills"`
	Placement   *int     `json:"placement"`
}

// KillsOrZero returns the kill count, treating a missing count as zero.
func (mr *MatchResult) KillsOrZero() int {
	if mr.Kills == nil {
		return 0
	}
	return *mr.Kills
}

// PlacementOrZero returns the placement, treating a missing placement as zero.
func (mr *MatchResult) PlacementOrZero() int {
	if mr.Placement == nil {
		return 0
	}
	return *mr.Placement
}

func (mr MatchResult) Clone() MatchResult {
	c := MatchResult{PlayerNames: slices.Clone(mr.PlayerNames)}
	if mr.Kills != nil {
		k := *mr.Kills
		c.Kills = &k
	}
	if mr.Placement != nil {
		p := *mr.Placement
		c.Placement = &p
	}
	return c
}

// PrizeRules is the configured prize table.  Ranks are sparse.
//
// The same shape is used for adjusted prizes, which are derived from the
// rules and the tournament's takings.
type PrizeRules struct {
	PlacementPrizes map[int]decimal.Decimal `json:"placementPrizes"`
	KillPrize       decimal.Decimal         `json:"killPrize"`
}

func (pr *PrizeRules) Clone() *PrizeRules {
	if pr == nil {
		return nil
	}
	c := &PrizeRules{
		PlacementPrizes: maps.Clone(pr.PlacementPrizes),
		KillPrize:       pr.KillPrize,
	}
	if c.PlacementPrizes == nil {
		c.PlacementPrizes = map[int]decimal.Decimal{}
	}
	return c
}

// Ranks returns the configured ranks in ascending order.
func (pr *PrizeRules) Ranks() []int {
	return slices.Sorted(maps.Keys(pr.PlacementPrizes))
}

// PlacementTotal sums the placement prizes.
func (pr *PrizeRules) PlacementTotal() decimal.Decimal {
	total := decimal.Zero
	for _, v := range pr.PlacementPrizes {
		total = total.Add(v)
	}
	return total
}

type Earnings struct {
	PlacementPrize decimal.Decimal `json:"placementPrize"`
	KillPrize      decimal.Decimal `json:"killPrize"`
	Total          decimal.Decimal `json:"total"`
}

type RankedResult struct {
	ID          string      `json:"id"`
	MatchResult MatchResult `json:"matchResult"`
	Earnings    Earnings    `json:"earnings"`
}

type AdjustmentMode string

const (
	AdjustmentAuto  AdjustmentMode = "auto"
	AdjustmentFixed AdjustmentMode = "fixed"
)

func (m AdjustmentMode) Valid() bool {
	return m == AdjustmentAuto || m == AdjustmentFixed
}

// AnalysisConfigSnapshot is the configuration that was in effect when a
// report was produced.  Dashboards recompute from this, not from current
// settings.
type AnalysisConfigSnapshot struct {
	EntryFee       decimal.Decimal `json:"entryFee"`
	SlotsSold      int             `json:"slotsSold"`
	PrizeRules     PrizeRules      `json:"prizeRules"`
	AdjustedPrizes *PrizeRules     `json:"adjustedPrizes"`
	AdjustmentMode AdjustmentMode  `json:"adjustmentMode"`
	FixedProfit    decimal.Decimal `json:"fixedProfit"`
}

// EffectivePrizes returns the adjusted prizes if there are any, else the base rules.
func (c *AnalysisConfigSnapshot) EffectivePrizes() *PrizeRules {
	if c.AdjustedPrizes != nil {
		return c.AdjustedPrizes
	}
	return &c.PrizeRules
}

// Collected is what the organizer took in for the match.
func (c *AnalysisConfigSnapshot) Collected() decimal.Decimal {
	return c.EntryFee.Mul(decimal.NewFromInt(int64(c.SlotsSold)))
}

// AnalysisRecord is a persisted report.
type AnalysisRecord struct {
	ID         string                 `json:"id"`
	CreatedAt  time.Time              `json:"createdAt"`
	Tournament *string                `json:"tournament"`
	Mode       *string                `json:"mode"`
	Entries    []*RankedResult        `json:"entries"`
	Config     AnalysisConfigSnapshot `json:"config"`
}

// TournamentLabel returns the tournament label, or "" if there isn't one.
func (r *AnalysisRecord) TournamentLabel() string {
	if r.Tournament == nil {
		return ""
	}
	return *r.Tournament
}

func (r *AnalysisRecord) Clone() *AnalysisRecord {
	c := *r
	if r.Tournament != nil {
		t := *r.Tournament
		c.Tournament = &t
	}
	if r.Mode != nil {
		m := *r.Mode
		c.Mode = &m
	}
	c.Entries = make([]*RankedResult, len(r.Entries))
	for i, e := range r.Entries {
		ec := *e
		ec.MatchResult = e.MatchResult.Clone()
		c.Entries[i] = &ec
	}
	c.Config.PrizeRules = *r.Config.PrizeRules.Clone()
	c.Config.AdjustedPrizes = r.Config.AdjustedPrizes.Clone()
	return &c
}

// ReportPatch carries the fields of a report that may change after creation.
type ReportPatch struct {
	Tournament Optional[string] `json:"tournament"`
	Mode       Optional[string] `json:"mode"`
}

// Apply copies any present fields from the patch into r.
func (p *ReportPatch) Apply(r *AnalysisRecord) {
	if p.Tournament.Set {
		r.Tournament = p.Tournament.Clone()
	}
	if p.Mode.Set {
		r.Mode = p.Mode.Clone()
	}
}

// ReportFilters narrows the set of reports the dashboard looks at.  Empty
// strings mean "no filter".  Dates are YYYY-MM-DD.
type ReportFilters struct {
	DateFrom   string `json:"dateFrom,omitempty"`
	DateTo     string `json:"dateTo,omitempty"`
	Tournament string `json:"tournament,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
}

// MoneyResult is a list of amounts found in some text, and their total.
type MoneyResult struct {
	Values []decimal.Decimal `json:"values"`
	Total  decimal.Decimal   `json:"total"`
}
