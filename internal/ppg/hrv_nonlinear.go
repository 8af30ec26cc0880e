package ppg

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Nonlinear metric parameters.
const (
	dfaAlpha1MinScale = 4
	dfaAlpha1MaxScale = 16
	dfaAlpha2MinScale = 16
	dfaAlpha2MaxScale = 64

	entropyDim       = 2   // embedding dimension m
	entropyTolerance = 0.2 // r = tolerance * std(series)
)

// computeNonLinear produces detrended fluctuation and entropy measures.
func computeNonLinear(rr []float64) NonLinearMetrics {
	return NonLinearMetrics{
		DFAAlpha1: dfaAlpha(rr, dfaAlpha1MinScale, dfaAlpha1MaxScale),
		DFAAlpha2: dfaAlpha(rr, dfaAlpha2MinScale, dfaAlpha2MaxScale),
		ApEn:      approximateEntropy(rr, entropyDim, entropyTolerance),
		SampEn:    sampleEntropy(rr, entropyDim, entropyTolerance),
	}
}

// dfaAlpha is the log-log slope of RMS fluctuation against box size
// over [minScale, maxScale] beats, computed on the cumulative-sum
// integrated, mean-removed series with box-wise linear detrending.
func dfaAlpha(rr []float64, minScale, maxScale int) float64 {
	n := len(rr)
	if n < 2*minScale {
		return 0
	}
	if maxScale > n/2 {
		maxScale = n / 2
	}
	if maxScale <= minScale {
		return 0
	}

	mean := stat.Mean(rr, nil)
	integrated := make([]float64, n)
	var cum float64
	for i, v := range rr {
		cum += v - mean
		integrated[i] = cum
	}

	var logScales, logFlucts []float64
	for scale := minScale; scale <= maxScale; scale += scaleStep(scale) {
		f := boxFluctuation(integrated, scale)
		if f <= 0 {
			continue
		}
		logScales = append(logScales, math.Log(float64(scale)))
		logFlucts = append(logFlucts, math.Log(f))
	}
	if len(logScales) < 2 {
		return 0
	}

	_, slope := stat.LinearRegression(logScales, logFlucts, nil, false)
	return slope
}

// scaleStep spaces scales roughly geometrically so long scales do not
// dominate the fit.
func scaleStep(scale int) int {
	step := scale / 4
	if step < 1 {
		step = 1
	}
	return step
}

// boxFluctuation is the RMS residual after linearly detrending each
// complete box of the given size.
func boxFluctuation(integrated []float64, scale int) float64 {
	n := len(integrated)
	boxes := n / scale
	if boxes < 1 {
		return 0
	}

	var sumSq float64
	var count int
	xs := make([]float64, scale)
	for i := range xs {
		xs[i] = float64(i)
	}
	for b := 0; b < boxes; b++ {
		seg := integrated[b*scale : (b+1)*scale]
		intercept, slope := stat.LinearRegression(xs, seg, nil, false)
		for i, v := range seg {
			resid := v - (intercept + slope*float64(i))
			sumSq += resid * resid
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(count))
}

// approximateEntropy computes ApEn(m, r·std). Self-matches are counted,
// which biases it low on short series; SampEn below is the more robust
// of the two.
func approximateEntropy(series []float64, m int, rFactor float64) float64 {
	n := len(series)
	if n <= m+1 {
		return 0
	}
	r := rFactor * popStdDev(series)
	if r <= 0 {
		return 0
	}

	phi := func(dim int) float64 {
		count := n - dim + 1
		var sum float64
		for i := 0; i < count; i++ {
			matches := 0
			for j := 0; j < count; j++ {
				if chebyshevWithin(series, i, j, dim, r) {
					matches++
				}
			}
			sum += math.Log(float64(matches) / float64(count))
		}
		return sum / float64(count)
	}

	return phi(m) - phi(m+1)
}

// sampleEntropy computes SampEn(m, r·std), excluding self-matches.
func sampleEntropy(series []float64, m int, rFactor float64) float64 {
	n := len(series)
	if n <= m+1 {
		return 0
	}
	r := rFactor * popStdDev(series)
	if r <= 0 {
		return 0
	}

	var a, b float64 // template matches at m+1 and m
	count := n - m
	for i := 0; i < count; i++ {
		for j := i + 1; j < count; j++ {
			if chebyshevWithin(series, i, j, m, r) {
				b++
				if chebyshevWithin(series, i, j, m+1, r) {
					a++
				}
			}
		}
	}
	if a == 0 || b == 0 {
		return 0
	}
	return -math.Log(a / b)
}

// chebyshevWithin reports whether the dim-length templates starting at
// i and j stay within distance r in the max norm.
func chebyshevWithin(series []float64, i, j, dim int, r float64) bool {
	for k := 0; k < dim; k++ {
		if math.Abs(series[i+k]-series[j+k]) > r {
			return false
		}
	}
	return true
}

func popStdDev(series []float64) float64 {
	n := len(series)
	if n == 0 {
		return 0
	}
	mean := stat.Mean(series, nil)
	var sumSq float64
	for _, v := range series {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}
