package tensor

import "fmt"

// #region attention

// Attention holds the stacked per-layer attention weights from a single
// forward pass, shape [layers, batch, heads, seq, seq], as one contiguous
// buffer with explicit stride arithmetic. Data[...] at (l,b,h,i,j) is the
// weight token i places on token j at layer l, head h.
type Attention struct {
	Data   []float32
	Layers int
	Batch  int
	Heads  int
	Seq    int
}

// NewAttention allocates a zeroed attention tensor.
func NewAttention(layers, batch, heads, seq int) *Attention {
	return &Attention{
		Data:   make([]float32, layers*batch*heads*seq*seq),
		Layers: layers,
		Batch:  batch,
		Heads:  heads,
		Seq:    seq,
	}
}

// AttentionFrom wraps an existing flat buffer, validating its length
// against the declared shape.
func AttentionFrom(data []float32, layers, batch, heads, seq int) (*Attention, error) {
	want := layers * batch * heads * seq * seq
	if len(data) != want {
		return nil, fmt.Errorf("attention buffer: got %d elements, shape [%d,%d,%d,%d,%d] needs %d",
			len(data), layers, batch, heads, seq, seq, want)
	}
	return &Attention{Data: data, Layers: layers, Batch: batch, Heads: heads, Seq: seq}, nil
}

// At returns the attention weight at (layer, batch, head, i, j).
func (a *Attention) At(l, b, h, i, j int) float32 {
	return a.Data[(((l*a.Batch+b)*a.Heads+h)*a.Seq+i)*a.Seq+j]
}

// Set writes the attention weight at (layer, batch, head, i, j).
func (a *Attention) Set(v float32, l, b, h, i, j int) {
	a.Data[(((l*a.Batch+b)*a.Heads+h)*a.Seq+i)*a.Seq+j] = v
}

// Head copies the [seq, seq] matrix for one (layer, head) at batch 0.
func (a *Attention) Head(l, h int) []float32 {
	n := a.Seq * a.Seq
	off := ((l*a.Batch+0)*a.Heads + h) * n
	out := make([]float32, n)
	copy(out, a.Data[off:off+n])
	return out
}

// HeadMean returns the [seq, seq] matrix for one layer at batch 0,
// averaged over all heads.
func (a *Attention) HeadMean(l int) []float32 {
	n := a.Seq * a.Seq
	out := make([]float32, n)
	for h := 0; h < a.Heads; h++ {
		off := ((l*a.Batch+0)*a.Heads + h) * n
		for i := 0; i < n; i++ {
			out[i] += a.Data[off+i]
		}
	}
	inv := 1.0 / float32(a.Heads)
	for i := range out {
		out[i] *= inv
	}
	return out
}

// #endregion attention

// #region hidden-states

// HiddenStates holds the stacked per-layer hidden states, shape
// [layers+1, batch, seq, dim]. Row 0 is the embedding output; row l is the
// output of transformer layer l.
type HiddenStates struct {
	Data   []float32
	Layers int // number of rows, i.e. transformer layers + 1
	Batch  int
	Seq    int
	Dim    int
}

// HiddenStatesFrom wraps an existing flat buffer, validating its length.
func HiddenStatesFrom(data []float32, layers, batch, seq, dim int) (*HiddenStates, error) {
	want := layers * batch * seq * dim
	if len(data) != want {
		return nil, fmt.Errorf("hidden state buffer: got %d elements, shape [%d,%d,%d,%d] needs %d",
			len(data), layers, batch, seq, dim, want)
	}
	return &HiddenStates{Data: data, Layers: layers, Batch: batch, Seq: seq, Dim: dim}, nil
}

// Vector returns the hidden vector at (layer row, batch, position) as a
// view into the underlying buffer. Callers must not mutate it.
func (x *HiddenStates) Vector(l, b, pos int) []float32 {
	off := ((l*x.Batch+b)*x.Seq + pos) * x.Dim
	return x.Data[off : off+x.Dim]
}

// #endregion hidden-states

// #region classifier-weight

// ClassifierWeight is the final linear readout, shape [dim, classes].
// It is tied to the loaded model and constant across positions.
type ClassifierWeight struct {
	Data    []float32
	Dim     int
	Classes int
}

// ClassifierWeightFrom wraps an existing flat buffer, validating its length.
func ClassifierWeightFrom(data []float32, dim, classes int) (*ClassifierWeight, error) {
	if len(data) != dim*classes {
		return nil, fmt.Errorf("classifier weight buffer: got %d elements, shape [%d,%d] needs %d",
			len(data), dim, classes, dim*classes)
	}
	return &ClassifierWeight{Data: data, Dim: dim, Classes: classes}, nil
}

// Project computes z = h · W for a hidden vector h of length Dim,
// returning raw class scores of length Classes.
func (w *ClassifierWeight) Project(h []float32) []float32 {
	z := make([]float32, w.Classes)
	for d := 0; d < w.Dim; d++ {
		hv := h[d]
		if hv == 0 {
			continue
		}
		row := w.Data[d*w.Classes : (d+1)*w.Classes]
		for c, wv := range row {
			z[c] += hv * wv
		}
	}
	return z
}

// #endregion classifier-weight
