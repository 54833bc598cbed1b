package kpi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/textutil"
)

// Row is one report as the table view shows it.
type Row struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"createdAt"`
	Tournament   string          `json:"tournament"`
	Teams        int             `json:"teams"`
	Collected    decimal.Decimal `json:"collected"`
	TargetProfit decimal.Decimal `json:"targetProfit"`
	RealProfit   decimal.Decimal `json:"realProfit"`
	Prizes       decimal.Decimal `json:"prizes"`
	Kills        float64         `json:"kills"`
}

// Rows recomputes each report for the table view.  With a player query,
// only the matching players' teams count toward kills, split per player.
//
// autoRate is the organizer cut used as the target in auto mode.
func Rows(records []*model.AnalysisRecord, playerQuery string, autoRate decimal.Decimal) []Row {
	query := textutil.NormalizeName(playerQuery)
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		m := moneyOf(r)
		kills := attributedKills(r, query)
		prizes := m.prizesFor(decimal.NewFromFloat(kills))

		rows = append(rows, Row{
			ID:           r.ID,
			CreatedAt:    r.CreatedAt,
			Tournament:   r.TournamentLabel(),
			Teams:        len(r.Entries),
			Collected:    m.collected,
			TargetProfit: targetProfit(&r.Config, autoRate),
			RealProfit:   decimal.Max(decimal.Zero, m.collected.Sub(prizes)),
			Prizes:       prizes,
			Kills:        kills,
		})
	}
	return rows
}

func targetProfit(c *model.AnalysisConfigSnapshot, autoRate decimal.Decimal) decimal.Decimal {
	collected := c.Collected()
	if c.AdjustmentMode == model.AdjustmentFixed {
		return decimal.Min(collected, c.FixedProfit)
	}
	return collected.Mul(autoRate)
}

func attributedKills(r *model.AnalysisRecord, query string) float64 {
	total := 0.0
	for _, e := range r.Entries {
		kills := float64(e.MatchResult.KillsOrZero())
		if query == "" {
			total += kills
			continue
		}
		players := e.MatchResult.PlayerNames
		if !teamMatches(players, query) {
			continue
		}
		total += kills / float64(len(players))
	}
	return total
}

// Dashboard is everything the dashboard page needs in one go.
type Dashboard struct {
	Filters      model.ReportFilters `json:"filters"`
	Summary      Summary             `json:"summary"`
	Leaderboards Leaderboards        `json:"leaderboards"`
	Rows         []Row               `json:"rows"`
	Tournaments  []string            `json:"tournaments"`
}

// Build filters all and aggregates.  The tournament list is taken from the
// unfiltered set so the picker keeps every option.
func Build(all []*model.AnalysisRecord, f model.ReportFilters, autoRate decimal.Decimal) *Dashboard {
	filtered := Filter(all, f)
	return &Dashboard{
		Filters:      f,
		Summary:      Compute(filtered),
		Leaderboards: BuildLeaderboards(filtered, f.PlayerName),
		Rows:         Rows(filtered, f.PlayerName, autoRate),
		Tournaments:  Tournaments(all),
	}
}
