// Package stats provides the rank-based statistics used by the effect analyzer.
package stats

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrTooFewGroups is returned when fewer than two samples are compared.
var ErrTooFewGroups = errors.New("kruskal-wallis needs at least two groups")

// ErrEmptyGroup is returned when one of the compared samples has no observations.
var ErrEmptyGroup = errors.New("kruskal-wallis group is empty")

// Median returns the middle value of xs, averaging the two middle values when
// len(xs) is even. Returns NaN for an empty slice. xs is not modified.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	sorted := make([]float64, n)
	copy(sorted, xs)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Ranks assigns 1-based ranks to xs, giving tied values the mean of the ranks
// they span. It also returns the tie correction term sum(t^3 - t) over tie groups.
func Ranks(xs []float64) (ranks []float64, tieSum float64) {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	ranks = make([]float64, n)
	for i := 0; i < n; {
		j := i + 1
		for j < n && xs[idx[j]] == xs[idx[i]] {
			j++
		}
		// positions i..j-1 share the average of ranks i+1..j
		avg := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		if t := float64(j - i); t > 1 {
			tieSum += t*t*t - t
		}
		i = j
	}
	return ranks, tieSum
}

// KruskalResult holds the H statistic and its chi-squared p-value.
type KruskalResult struct {
	Statistic float64
	PValue    float64
	DF        int
}

// KruskalWallis runs the Kruskal-Wallis H test on two or more independent
// samples, with the standard correction for ties. When every observation is
// identical the ranks carry no information; the result is H=0, p=1.
func KruskalWallis(groups ...[]float64) (KruskalResult, error) {
	if len(groups) < 2 {
		return KruskalResult{}, ErrTooFewGroups
	}

	var pooled []float64
	for _, g := range groups {
		if len(g) == 0 {
			return KruskalResult{}, ErrEmptyGroup
		}
		pooled = append(pooled, g...)
	}

	n := float64(len(pooled))
	df := len(groups) - 1
	ranks, tieSum := Ranks(pooled)

	correction := 1 - tieSum/(n*n*n-n)
	if correction <= 0 {
		return KruskalResult{Statistic: 0, PValue: 1, DF: df}, nil
	}

	var sum float64
	offset := 0
	for _, g := range groups {
		r := floats.Sum(ranks[offset : offset+len(g)])
		sum += r * r / float64(len(g))
		offset += len(g)
	}

	h := 12/(n*(n+1))*sum - 3*(n+1)
	h /= correction
	if h < 0 {
		// rounding noise when all group mean ranks coincide
		h = 0
	}

	chi := distuv.ChiSquared{K: float64(df)}
	return KruskalResult{
		Statistic: h,
		PValue:    chi.Survival(h),
		DF:        df,
	}, nil
}
