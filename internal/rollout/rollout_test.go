package rollout

import (
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/encoding"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/tensor"
)

// randomAttention fills an attention tensor with deterministic positive
// weights so every row normalizes cleanly.
func randomAttention(t *testing.T, layers, heads int, seed int64) *tensor.Attention {
	t.Helper()
	a := tensor.NewAttention(layers, 1, heads, encoding.SeqLen)
	rng := rand.New(rand.NewSource(seed))
	for i := range a.Data {
		a.Data[i] = rng.Float32()
	}
	return a
}

func TestComputeMeanMode(t *testing.T) {
	a := randomAttention(t, 6, 4, 1)
	res, err := Compute(a, Config{HeadMode: HeadModeMean, Alpha: 0.2})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	sawOne := false
	for i, v := range res.Board {
		if v < 0 || v > 1 {
			t.Fatalf("board[%d]=%f outside [0,1]", i, v)
		}
		if v == 1 {
			sawOne = true
		}
	}
	if !sawOne {
		t.Fatal("min-max normalization should pin at least one entry to 1")
	}
	for i, v := range res.Meta {
		if v < 0 || v > 1 {
			t.Fatalf("meta[%d]=%f outside [0,1]", i, v)
		}
	}
}

func TestComputeSingleHead(t *testing.T) {
	a := randomAttention(t, 3, 2, 2)
	res, err := Compute(a, Config{HeadMode: HeadModeSingle, Layer: 1, Head: 1, Alpha: 0.3})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	// Raw board values come straight from the blended single-head CLS row.
	m := a.Head(1, 1)
	tensor.NormalizeRows(m, a.Seq)
	tensor.BlendIdentity(m, a.Seq, 0.3)
	for i := 0; i < encoding.BoardTokens; i++ {
		want := m[encoding.CLSIndex*a.Seq+i]
		if math.Abs(float64(res.RawBoard[i]-want)) > 1e-6 {
			t.Fatalf("raw board[%d]: got %f, want %f", i, res.RawBoard[i], want)
		}
	}
}

func TestComputeDepthOne(t *testing.T) {
	// With depth 1 the rollout is exactly the first layer's blended matrix.
	a := randomAttention(t, 4, 2, 3)
	res, err := Compute(a, Config{HeadMode: HeadModeMean, Layers: 1, Alpha: 0.2})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	m := a.HeadMean(0)
	tensor.NormalizeRows(m, a.Seq)
	tensor.BlendIdentity(m, a.Seq, 0.2)
	for i := 0; i < encoding.BoardTokens; i++ {
		want := m[encoding.CLSIndex*a.Seq+i]
		if math.Abs(float64(res.RawBoard[i]-want)) > 1e-6 {
			t.Fatalf("raw board[%d]: got %f, want %f", i, res.RawBoard[i], want)
		}
	}
}

func TestComputeUniformAttentionIsDegenerate(t *testing.T) {
	// Identical weight everywhere: after normalization and blending, every
	// CLS-row board entry is equal, so min-max collapses to all zeros.
	a := tensor.NewAttention(2, 1, 2, encoding.SeqLen)
	for i := range a.Data {
		a.Data[i] = 0.5
	}
	res, err := Compute(a, Config{HeadMode: HeadModeMean, Alpha: 0.2})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for i, v := range res.Board {
		if v != 0 {
			t.Fatalf("board[%d]=%f, want 0 for degenerate grid", i, v)
		}
	}
	// Metadata normalizes by its own max, which is nonzero here.
	for i, v := range res.Meta {
		if v < 0 || v > 1 {
			t.Fatalf("meta[%d]=%f outside [0,1]", i, v)
		}
	}
}

func TestComputeIdempotent(t *testing.T) {
	a := randomAttention(t, 6, 4, 7)
	cfg := Config{HeadMode: HeadModeMean, Alpha: 0.25}
	r1, err := Compute(a, cfg)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	r2, err := Compute(a, cfg)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !reflect.DeepEqual(r1, r2) {
		t.Fatal("identical inputs should produce identical artifacts")
	}
}

func TestComputeRejectsBadConfig(t *testing.T) {
	a := randomAttention(t, 2, 2, 4)
	bad := []Config{
		{HeadMode: HeadModeMean, Alpha: -0.1},
		{HeadMode: HeadModeMean, Alpha: 1.0},
		{HeadMode: HeadModeMean, Layers: 3, Alpha: 0.2},
		{HeadMode: HeadModeMean, Layers: -1, Alpha: 0.2},
		{HeadMode: HeadModeSingle, Layer: 2, Alpha: 0.2},
		{HeadMode: HeadModeSingle, Head: 2, Alpha: 0.2},
		{HeadMode: "stacked", Alpha: 0.2},
	}
	for _, cfg := range bad {
		if _, err := Compute(a, cfg); err == nil {
			t.Fatalf("config %+v: expected error", cfg)
		}
	}
}

func TestComputeRejectsWrongSequenceLength(t *testing.T) {
	a := tensor.NewAttention(1, 1, 1, 10)
	if _, err := Compute(a, DefaultConfig()); err == nil {
		t.Fatal("expected sequence length error")
	}
}
