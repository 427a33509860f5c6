package tensor

import (
	"math"
	"testing"
)

func TestAttentionStrides(t *testing.T) {
	a := NewAttention(2, 1, 3, 4)
	a.Set(0.5, 1, 0, 2, 3, 1)
	if got := a.At(1, 0, 2, 3, 1); got != 0.5 {
		t.Fatalf("At: got %f, want 0.5", got)
	}
	// Flat offset must match ((l*B+b)*H+h)*S*S + i*S + j
	off := ((1*1+0)*3+2)*16 + 3*4 + 1
	if a.Data[off] != 0.5 {
		t.Fatalf("flat offset %d: got %f, want 0.5", off, a.Data[off])
	}
}

func TestAttentionFromRejectsBadShape(t *testing.T) {
	if _, err := AttentionFrom(make([]float32, 10), 1, 1, 2, 4); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestHeadMean(t *testing.T) {
	a := NewAttention(1, 1, 2, 2)
	a.Set(1.0, 0, 0, 0, 0, 1)
	a.Set(3.0, 0, 0, 1, 0, 1)
	m := a.HeadMean(0)
	if got := m[0*2+1]; got != 2.0 {
		t.Fatalf("head mean: got %f, want 2.0", got)
	}
}

func TestNormalizeRows(t *testing.T) {
	n := 3
	m := []float32{
		2, 2, 4,
		0, 0, 0,
		1, 0, 0,
	}
	NormalizeRows(m, n)

	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += float64(m[i*n+j])
		}
		if i == 1 {
			if sum != 0 {
				t.Fatalf("zero row %d: sum %f, want 0", i, sum)
			}
			continue
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("row %d: sum %f, want 1", i, sum)
		}
	}
	if m[2] != 0.5 {
		t.Fatalf("m[0][2]: got %f, want 0.5", m[2])
	}
}

func TestBlendIdentitySelfWeightFloor(t *testing.T) {
	alphas := []float32{0, 0.2, 0.5, 0.9}
	for _, alpha := range alphas {
		n := 4
		m := make([]float32, n*n)
		for i := range m {
			m[i] = 0.25
		}
		NormalizeRows(m, n)
		BlendIdentity(m, n, alpha)
		for i := 0; i < n; i++ {
			if m[i*n+i] < alpha {
				t.Fatalf("alpha=%f: diag[%d]=%f below floor", alpha, i, m[i*n+i])
			}
			var sum float64
			for j := 0; j < n; j++ {
				sum += float64(m[i*n+j])
			}
			if math.Abs(sum-1) > 1e-6 {
				t.Fatalf("alpha=%f: row %d sum %f, want 1", alpha, i, sum)
			}
		}
	}
}

func TestMatMulSquare(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{5, 6, 7, 8}
	c := MatMulSquare(a, b, 2)
	want := []float32{19, 22, 43, 50}
	for i := range want {
		if c[i] != want[i] {
			t.Fatalf("c[%d]: got %f, want %f", i, c[i], want[i])
		}
	}
}

func TestSoftmax(t *testing.T) {
	tests := []struct {
		name string
		z    []float32
	}{
		{"plain", []float32{1, 2, 3}},
		{"large-values", []float32{1000, 1001, 1002}},
		{"uniform", []float32{0.5, 0.5, 0.5, 0.5}},
		{"single", []float32{42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Softmax(tt.z)
			var sum float64
			for _, v := range p {
				if v < 0 || v > 1 {
					t.Fatalf("probability %f out of range", v)
				}
				sum += float64(v)
			}
			if math.Abs(sum-1) > 1e-5 {
				t.Fatalf("sum %f, want 1", sum)
			}
		})
	}
}

func TestSoftmaxOrderPreserving(t *testing.T) {
	p := Softmax([]float32{0.1, 2.0, -1.0})
	if ArgMax(p) != 1 {
		t.Fatalf("argmax: got %d, want 1", ArgMax(p))
	}
}

func TestProject(t *testing.T) {
	// W [2,3]: rows are per-dimension class weights
	w, err := ClassifierWeightFrom([]float32{1, 0, 2, 0, 1, 1}, 2, 3)
	if err != nil {
		t.Fatalf("ClassifierWeightFrom: %v", err)
	}
	z := w.Project([]float32{2, 3})
	want := []float32{2, 3, 7}
	for i := range want {
		if z[i] != want[i] {
			t.Fatalf("z[%d]: got %f, want %f", i, z[i], want[i])
		}
	}
}

func TestVectorView(t *testing.T) {
	data := make([]float32, 2*1*3*4)
	for i := range data {
		data[i] = float32(i)
	}
	x, err := HiddenStatesFrom(data, 2, 1, 3, 4)
	if err != nil {
		t.Fatalf("HiddenStatesFrom: %v", err)
	}
	v := x.Vector(1, 0, 2)
	if len(v) != 4 {
		t.Fatalf("vector length: got %d, want 4", len(v))
	}
	if v[0] != float32(((1*1+0)*3+2)*4) {
		t.Fatalf("vector offset wrong: got %f", v[0])
	}
}
