package tensor

import "math"

// #region constants

// NormEps is the floor under normalization denominators. A row or grid whose
// magnitude falls below it is treated as degenerate and left all-zero rather
// than divided.
const NormEps = 1e-9

// #endregion constants

// #region row-normalize

// NormalizeRows scales each row of the flat [n, n] matrix m in place so it
// sums to 1. Rows whose sum is below NormEps are left untouched: a token
// that attends to nothing propagates nothing.
func NormalizeRows(m []float32, n int) {
	for i := 0; i < n; i++ {
		row := m[i*n : (i+1)*n]
		var sum float64
		for _, v := range row {
			sum += float64(v)
		}
		if sum < NormEps {
			continue
		}
		inv := float32(1.0 / sum)
		for j := range row {
			row[j] *= inv
		}
	}
}

// #endregion row-normalize

// #region blend-identity

// BlendIdentity mixes the flat [n, n] matrix m with the identity in place:
// m = alpha·I + (1−alpha)·m. This models the residual stream: a token's next
// representation is its current one plus an attention-weighted update.
func BlendIdentity(m []float32, n int, alpha float32) {
	keep := 1 - alpha
	for i := 0; i < n; i++ {
		row := m[i*n : (i+1)*n]
		for j := range row {
			row[j] *= keep
		}
		row[i] += alpha
	}
}

// #endregion blend-identity

// #region matmul

// MatMulSquare returns the product a·b of two flat [n, n] matrices.
func MatMulSquare(a, b []float32, n int) []float32 {
	out := make([]float32, n*n)
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			av := a[i*n+k]
			if av == 0 {
				continue
			}
			brow := b[k*n : (k+1)*n]
			orow := out[i*n : (i+1)*n]
			for j := range brow {
				orow[j] += av * brow[j]
			}
		}
	}
	return out
}

// #endregion matmul

// #region softmax

// Softmax returns the numerically stable softmax of z, subtracting the max
// before exponentiating and accumulating in float64.
func Softmax(z []float32) []float32 {
	out := make([]float32, len(z))
	if len(z) == 0 {
		return out
	}
	maxV := z[0]
	for _, v := range z[1:] {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for i, v := range z {
		e := math.Exp(float64(v - maxV))
		out[i] = float32(e)
		sum += e
	}
	inv := float32(1.0 / sum)
	for i := range out {
		out[i] *= inv
	}
	return out
}

// ArgMax returns the index of the largest element of v, or -1 if v is empty.
func ArgMax(v []float32) int {
	best := -1
	var bestV float32
	for i, x := range v {
		if best < 0 || x > bestV {
			best, bestV = i, x
		}
	}
	return best
}

// #endregion softmax
