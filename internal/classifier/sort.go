package classifier

import "sort"

// SortByProbability orders predictions by descending probability, keeping
// the relative order of equal-probability labels stable.
func SortByProbability(ps []Prediction) {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].Probability > ps[j].Probability
	})
}
