// Package ranking turns the raw teams read off one or more screenshots
// into a priced, ordered result list.
package ranking

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/paytable"
)

// Assemble flattens batches in order, drops teams without a usable
// placement, prices the rest against table, and sorts them by placement,
// then by kills descending.
//
// IDs are the concatenated player names and the team's index among the
// kept teams.  They are not guaranteed unique.
func Assemble(batches [][]model.MatchResult, table *model.PrizeRules) []*model.RankedResult {
	results := []*model.RankedResult{}
	for _, batch := range batches {
		for _, mr := range batch {
			if mr.Placement == nil || *mr.Placement <= 0 {
				continue
			}
			mr := mr.Clone()
			results = append(results, &model.RankedResult{
				ID:          entryID(&mr, len(results)),
				MatchResult: mr,
				Earnings:    paytable.ComputeEarnings(&mr, table),
			})
		}
	}

	slices.SortStableFunc(results, compare)
	return results
}

func entryID(mr *model.MatchResult, index int) string {
	name := "unknown"
	if mr.PlayerNames != nil {
		name = strings.Join(mr.PlayerNames, "")
	}
	return fmt.Sprintf("%s-%d", name, index)
}

func compare(a, b *model.RankedResult) int {
	if pa, pb := a.MatchResult.PlacementOrZero(), b.MatchResult.PlacementOrZero(); pa != pb {
		return pa - pb
	}
	return b.MatchResult.KillsOrZero() - a.MatchResult.KillsOrZero()
}

// Ordered reports whether results are in ranking order.
func Ordered(results []*model.RankedResult) bool {
	return slices.IsSortedFunc(results, compare)
}
