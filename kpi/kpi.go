// Package kpi aggregates saved reports into the numbers on the dashboard.
//
// All money is recomputed from each report's own config snapshot, so the
// figures don't move when the shared settings change.
package kpi

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/textutil"
)

const (
	leaderboardPool = 50
	leaderboardSize = 10
)

// Filter keeps the records that pass every set filter.
func Filter(records []*model.AnalysisRecord, f model.ReportFilters) []*model.AnalysisRecord {
	query := textutil.NormalizeName(f.PlayerName)
	out := []*model.AnalysisRecord{}
	for _, r := range records {
		day := r.CreatedAt.UTC().Format("2006-01-02")
		if f.DateFrom != "" && day < f.DateFrom {
			continue
		}
		if f.DateTo != "" && day > f.DateTo {
			continue
		}
		if f.Tournament != "" && r.TournamentLabel() != f.Tournament {
			continue
		}
		if query != "" && !hasPlayer(r, query) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func hasPlayer(r *model.AnalysisRecord, query string) bool {
	for _, e := range r.Entries {
		if teamMatches(e.MatchResult.PlayerNames, query) {
			return true
		}
	}
	return false
}

func teamMatches(names []string, query string) bool {
	for _, n := range names {
		if strings.Contains(textutil.NormalizeName(n), query) {
			return true
		}
	}
	return false
}

// matchMoney is the money side of one report.
type matchMoney struct {
	collected      decimal.Decimal
	killRate       decimal.Decimal
	placementTotal decimal.Decimal
}

func moneyOf(r *model.AnalysisRecord) matchMoney {
	table := r.Config.EffectivePrizes()
	return matchMoney{
		collected:      r.Config.Collected(),
		killRate:       table.KillPrize,
		placementTotal: table.PlacementTotal(),
	}
}

// prizesFor is what was paid out if kills kills were scored.
func (m matchMoney) prizesFor(kills decimal.Decimal) decimal.Decimal {
	return m.placementTotal.Add(kills.Mul(m.killRate))
}

func matchKills(r *model.AnalysisRecord) int {
	total := 0
	for _, e := range r.Entries {
		total += e.MatchResult.KillsOrZero()
	}
	return total
}

// Summary is the set of headline numbers.
type Summary struct {
	TotalCollected decimal.Decimal `json:"totalCollected"`
	TotalProfit    decimal.Decimal `json:"totalProfit"`
	TotalPrizes    decimal.Decimal `json:"totalPrizes"`
	Matches        int             `json:"matches"`
	Kills          int             `json:"kills"`
	AverageKills   float64         `json:"averageKills"`
}

// Compute totals up records.
func Compute(records []*model.AnalysisRecord) Summary {
	s := Summary{
		TotalCollected: decimal.Zero,
		TotalProfit:    decimal.Zero,
		TotalPrizes:    decimal.Zero,
	}
	for _, r := range records {
		m := moneyOf(r)
		kills := matchKills(r)
		prizes := m.prizesFor(decimal.NewFromInt(int64(kills)))

		s.TotalCollected = s.TotalCollected.Add(m.collected)
		s.TotalPrizes = s.TotalPrizes.Add(prizes)
		s.TotalProfit = s.TotalProfit.Add(decimal.Max(decimal.Zero, m.collected.Sub(prizes)))
		s.Matches++
		s.Kills += kills
	}
	if s.Matches > 0 {
		s.AverageKills = float64(s.Kills) / float64(s.Matches)
	}
	return s
}

type KillsEntry struct {
	Name  string  `json:"name"`
	Kills float64 `json:"kills"`
}

type ParticipationEntry struct {
	Name  string `json:"name"`
	Games int    `json:"games"`
}

type Leaderboards struct {
	TopKills          []KillsEntry         `json:"topKills"`
	TopParticipations []ParticipationEntry `json:"topParticipations"`
}

// BuildLeaderboards credits each named player with an even share of their
// team's kills and one game per team entry.  Players are merged on their
// normalized name and shown under the first spelling seen.
func BuildLeaderboards(records []*model.AnalysisRecord, playerQuery string) Leaderboards {
	query := textutil.NormalizeName(playerQuery)

	order := []string{}
	display := map[string]string{}
	kills := map[string]float64{}
	games := map[string]int{}

	for _, r := range records {
		for _, e := range r.Entries {
			players := e.MatchResult.PlayerNames
			if len(players) == 0 {
				continue
			}
			share := float64(e.MatchResult.KillsOrZero()) / float64(len(players))
			for _, p := range players {
				key := textutil.NormalizeName(p)
				if _, seen := display[key]; !seen {
					display[key] = p
					order = append(order, key)
				}
				kills[key] += share
				games[key]++
			}
		}
	}

	topKills := make([]KillsEntry, 0, len(order))
	topGames := make([]ParticipationEntry, 0, len(order))
	for _, key := range order {
		topKills = append(topKills, KillsEntry{Name: display[key], Kills: kills[key]})
		topGames = append(topGames, ParticipationEntry{Name: display[key], Games: games[key]})
	}
	slices.SortStableFunc(topKills, func(a, b KillsEntry) int { return cmp.Compare(b.Kills, a.Kills) })
	slices.SortStableFunc(topGames, func(a, b ParticipationEntry) int { return cmp.Compare(b.Games, a.Games) })

	return Leaderboards{
		TopKills:          top(topKills, query, func(e KillsEntry) string { return e.Name }),
		TopParticipations: top(topGames, query, func(e ParticipationEntry) string { return e.Name }),
	}
}

func top[T any](sorted []T, query string, name func(T) string) []T {
	pool := sorted[:min(len(sorted), leaderboardPool)]
	out := make([]T, 0, leaderboardSize)
	for _, e := range pool {
		if len(out) == leaderboardSize {
			break
		}
		if query != "" && !strings.Contains(textutil.NormalizeName(name(e)), query) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Tournaments lists the distinct tournament labels in first-seen order.
func Tournaments(records []*model.AnalysisRecord) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, r := range records {
		t := r.TournamentLabel()
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
