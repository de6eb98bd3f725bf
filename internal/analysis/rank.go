package analysis

import "sort"

type RankedRun struct {
	Name string
	Summary
}

// RankRuns summarizes each run and sorts descending by total profit. Ties
// keep name order so output is stable.
func RankRuns(runs map[string][]DaySample) []RankedRun {
	out := make([]RankedRun, 0, len(runs))
	for name, days := range runs {
		out = append(out, RankedRun{Name: name, Summary: Summarize(days)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalProfit != out[j].TotalProfit {
			return out[i].TotalProfit > out[j].TotalProfit
		}
		return out[i].Name < out[j].Name
	})
	return out
}
