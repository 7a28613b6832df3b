package spc

// Rule identifies a Westgard multirule.
type Rule string

// Westgard rejection rules evaluated over a chronological deviation series.
const (
	Rule13s Rule = "1-3s" // one point at or beyond 3 SD
	Rule22s Rule = "2-2s" // two consecutive points beyond 2 SD, same side
	RuleR4s Rule = "R-4s" // two consecutive points beyond 2 SD, opposite sides
	Rule41s Rule = "4-1s" // four consecutive points beyond 1 SD, same side
	Rule10x Rule = "10-x" // ten consecutive points on the same side of the mean
)

// RuleHit records a rule completed by the point at Index.
type RuleHit struct {
	Rule      Rule    `json:"rule"`
	Index     int     `json:"index"`
	Deviation float64 `json:"sigma_deviation"`
}

// EvaluateWestgard scans series (sigma deviations in chronological order)
// and returns every rule hit in index order. Each hit is attributed to the
// point that completed the pattern, so a run longer than the rule's window
// produces one hit per additional point. NaN entries never satisfy a rule
// and break any run they fall into.
func EvaluateWestgard(series []float64) []RuleHit {
	var hits []RuleHit
	var above1, below1, aboveMean, belowMean int

	for i, d := range series {
		above1 = runLength(above1, d >= 1)
		below1 = runLength(below1, d <= -1)
		aboveMean = runLength(aboveMean, d > 0)
		belowMean = runLength(belowMean, d < 0)

		hit := func(r Rule) {
			hits = append(hits, RuleHit{Rule: r, Index: i, Deviation: d})
		}

		if d >= 3 || d <= -3 {
			hit(Rule13s)
		}
		if i > 0 {
			prev := series[i-1]
			if (prev >= 2 && d >= 2) || (prev <= -2 && d <= -2) {
				hit(Rule22s)
			}
			if (prev >= 2 && d <= -2) || (prev <= -2 && d >= 2) {
				hit(RuleR4s)
			}
		}
		if above1 >= 4 || below1 >= 4 {
			hit(Rule41s)
		}
		if aboveMean >= 10 || belowMean >= 10 {
			hit(Rule10x)
		}
	}
	return hits
}

func runLength(n int, cond bool) int {
	if cond {
		return n + 1
	}
	return 0
}
