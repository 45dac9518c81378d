package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// leastSquares solves X * beta ≈ y.
// First try: normal equations beta = (X'X)^(-1) X'y. When X'X is singular or
// badly conditioned it falls back to the minimum-norm SVD solution.
func leastSquares(X *mat.Dense, y []float64) ([]float64, error) {
	rows, m := X.Dims()
	if rows != len(y) {
		return nil, fmt.Errorf("least squares: %d rows but %d responses", rows, len(y))
	}
	Y := mat.NewDense(rows, 1, append([]float64(nil), y...))

	var B mat.Dense

	var xtx mat.Dense
	xtx.Mul(X.T(), X)

	var xtxInv mat.Dense
	xtxError := xtxInv.Inverse(&xtx)

	if xtxError == nil {
		var xty mat.Dense
		xty.Mul(X.T(), Y)
		B.Mul(&xtxInv, &xty)
	} else {
		var svd mat.SVD
		if ok := svd.Factorize(X, mat.SVDFullU|mat.SVDFullV); !ok {
			return nil, fmt.Errorf("least squares: X'X singular and SVD factorization failed: %v", xtxError)
		}

		// If rank == 0, X is (numerically) all-zero and beta = 0 is the
		// minimum-norm solution.
		rank := svd.Rank(1e-12)
		if rank == 0 {
			return make([]float64, m), nil
		}
		svd.SolveTo(&B, Y, rank)
	}

	beta := make([]float64, m)
	for i := range beta {
		beta[i] = B.At(i, 0)
	}
	return beta, nil
}

// regressionRSS returns the residual sum of squares of y on X.
func regressionRSS(X *mat.Dense, y []float64) (float64, []float64, error) {
	beta, err := leastSquares(X, y)
	if err != nil {
		return 0, nil, err
	}
	rows, _ := X.Dims()
	fitted := mat.NewVecDense(rows, nil)
	fitted.MulVec(X, mat.NewVecDense(len(beta), beta))

	rss := 0.0
	for t := 0; t < rows; t++ {
		u := y[t] - fitted.AtVec(t)
		rss += u * u
	}
	return rss, beta, nil
}
