package rating

import "math"

// Standard normal pdf, cdf and inverse cdf. The inverse uses Acklam's
// rational approximation (relative error under 1.15e-9), which is more than
// enough precision for the draw-margin computation.

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// Acklam coefficients.
var (
	ppfA = [6]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02, 1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	ppfB = [5]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02, 6.680131188771972e+01, -1.328068155288572e+01}
	ppfC = [6]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00, -2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	ppfD = [4]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00, 3.754408661907416e+00}
)

const ppfLow = 0.02425

// normPPF returns the quantile x with normCDF(x) == p. Out-of-range p maps
// to +-Inf.
func normPPF(p float64) float64 {
	switch {
	case p <= 0:
		return math.Inf(-1)
	case p >= 1:
		return math.Inf(1)
	case p < ppfLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((ppfC[0]*q+ppfC[1])*q+ppfC[2])*q+ppfC[3])*q+ppfC[4])*q + ppfC[5]) /
			((((ppfD[0]*q+ppfD[1])*q+ppfD[2])*q+ppfD[3])*q + 1)
	case p > 1-ppfLow:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((ppfC[0]*q+ppfC[1])*q+ppfC[2])*q+ppfC[3])*q+ppfC[4])*q + ppfC[5]) /
			((((ppfD[0]*q+ppfD[1])*q+ppfD[2])*q+ppfD[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((ppfA[0]*r+ppfA[1])*r+ppfA[2])*r+ppfA[3])*r+ppfA[4])*r + ppfA[5]) * q /
			(((((ppfB[0]*r+ppfB[1])*r+ppfB[2])*r+ppfB[3])*r+ppfB[4])*r + 1)
	}
}
