package model

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Polynomials in the backshift operator B are stored by ascending power:
// p[0] + p[1]B + p[2]B^2 + ...

func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, av := range a {
		if av == 0 {
			continue
		}
		for j, bv := range b {
			out[i+j] += av * bv
		}
	}
	return out
}

// differencingPoly returns (1-B)^d (1-B^s)^D.
func differencingPoly(d, seasonalD, period int) []float64 {
	poly := []float64{1}
	for i := 0; i < d; i++ {
		poly = polyMul(poly, []float64{1, -1})
	}
	if period > 1 {
		seasonal := make([]float64, period+1)
		seasonal[0], seasonal[period] = 1, -1
		for i := 0; i < seasonalD; i++ {
			poly = polyMul(poly, seasonal)
		}
	}
	return poly
}

// arPoly builds 1 - sum phi_i B^i - ... with seasonal coefficients at lag
// multiples of period, multiplied out.
func arPoly(phi, sphi []float64, period int) []float64 {
	ns := make([]float64, len(phi)+1)
	ns[0] = 1
	for i, v := range phi {
		ns[i+1] = -v
	}
	s := []float64{1}
	if len(sphi) > 0 {
		s = make([]float64, len(sphi)*period+1)
		s[0] = 1
		for i, v := range sphi {
			s[(i+1)*period] = -v
		}
	}
	return polyMul(ns, s)
}

// maPoly builds 1 + sum theta_j B^j + ... multiplied with its seasonal part.
func maPoly(theta, stheta []float64, period int) []float64 {
	ns := make([]float64, len(theta)+1)
	ns[0] = 1
	copy(ns[1:], theta)
	s := []float64{1}
	if len(stheta) > 0 {
		s = make([]float64, len(stheta)*period+1)
		s[0] = 1
		for i, v := range stheta {
			s[(i+1)*period] = v
		}
	}
	return polyMul(ns, s)
}

// lagCoefficients turns 1 - a_1 B - a_2 B^2 ... into (a_1, a_2, ...).
func lagCoefficients(ar []float64) []float64 {
	out := make([]float64, len(ar)-1)
	for i := range out {
		out[i] = -ar[i+1]
	}
	return trimTrailingZeros(out)
}

func trimTrailingZeros(p []float64) []float64 {
	n := len(p)
	for n > 0 && p[n-1] == 0 {
		n--
	}
	return p[:n]
}

// maxInverseRoot returns the largest modulus among the inverse roots of
// 1 - c_1 B - ... - c_m B^m, i.e. the eigenvalues of the companion matrix.
// Values below 1 mean a stationary (or, for MA, invertible) polynomial.
func maxInverseRoot(c []float64) float64 {
	c = trimTrailingZeros(append([]float64(nil), c...))
	m := len(c)
	switch m {
	case 0:
		return 0
	case 1:
		return math.Abs(c[0])
	}

	comp := mat.NewDense(m, m, nil)
	for j := 0; j < m; j++ {
		comp.Set(0, j, c[j])
	}
	for i := 1; i < m; i++ {
		comp.Set(i, i-1, 1)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(comp, mat.EigenNone); !ok {
		return math.Inf(1)
	}
	maxMod := 0.0
	for _, v := range eig.Values(nil) {
		if a := cmplx.Abs(v); a > maxMod {
			maxMod = a
		}
	}
	return maxMod
}

// psiWeights returns the first n coefficients of theta(B)/phiStar(B) where
// phiStar includes the differencing polynomial. psi_0 = 1.
func psiWeights(phiStar, theta []float64, n int) []float64 {
	psi := make([]float64, n)
	if n == 0 {
		return psi
	}
	psi[0] = 1
	for j := 1; j < n; j++ {
		v := 0.0
		if j < len(theta) {
			v = theta[j]
		}
		for k := 1; k <= j && k < len(phiStar); k++ {
			v -= phiStar[k] * psi[j-k]
		}
		psi[j] = v
	}
	return psi
}
