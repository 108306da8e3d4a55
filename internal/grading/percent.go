package grading

import "math"

// percentOf rounds 100*score/total to the nearest integer and clamps it
// to [0,100]. A zero or negative total yields 0.
func percentOf(score, total float64) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * score / total))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// roundFloat rounds to the nearest integer, half away from zero.
func roundFloat(x float64) int {
	return int(math.Round(x))
}

// roundMean rounds the mean of xs to the nearest integer; 0 for an empty
// slice.
func roundMean(xs []int) int {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return int(math.Round(float64(sum) / float64(len(xs))))
}
