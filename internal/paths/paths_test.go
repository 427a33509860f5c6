package paths

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/encoding"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/tensor"
)

func randomAttention(t *testing.T, layers, heads int, seed int64) *tensor.Attention {
	t.Helper()
	a := tensor.NewAttention(layers, 1, heads, encoding.SeqLen)
	rng := rand.New(rand.NewSource(seed))
	for i := range a.Data {
		a.Data[i] = rng.Float32()
	}
	return a
}

func TestSearchTwoLayers(t *testing.T) {
	a := randomAttention(t, 2, 4, 1)
	got, err := Search(a, DefaultConfig())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(got) != 5 {
		t.Fatalf("paths: got %d, want 5", len(got))
	}
	for i, p := range got {
		// ℓ layers plus the forced terminal hop: ℓ+2 token indices.
		if len(p.Tokens) != 4 {
			t.Fatalf("path %d: %d tokens, want 4", i, len(p.Tokens))
		}
		if p.Tokens[0] < 0 || p.Tokens[0] >= encoding.BoardTokens {
			t.Fatalf("path %d starts at %d, want a board token", i, p.Tokens[0])
		}
		if p.Tokens[len(p.Tokens)-1] != encoding.CLSIndex {
			t.Fatalf("path %d ends at %d, want %d", i, p.Tokens[len(p.Tokens)-1], encoding.CLSIndex)
		}
		if i > 0 && got[i-1].Score < p.Score {
			t.Fatalf("scores not non-increasing at %d: %f < %f", i, got[i-1].Score, p.Score)
		}
		if p.Score < 0 {
			t.Fatalf("path %d has negative score %f", i, p.Score)
		}
	}
}

func TestSearchRespectsTopK(t *testing.T) {
	a := randomAttention(t, 3, 2, 2)
	cfg := DefaultConfig()
	cfg.TopK = 3
	got, err := Search(a, cfg)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("paths: got %d, want 3", len(got))
	}
}

func TestSearchDominantChain(t *testing.T) {
	// Build one layer with a dominant flow square 12 → token 40 → summary:
	// token 40 attends hard to square 12 and the summary token attends hard
	// to token 40. The best path must be exactly that chain.
	a := tensor.NewAttention(1, 1, 1, encoding.SeqLen)
	for i := 0; i < a.Seq; i++ {
		for j := 0; j < a.Seq; j++ {
			a.Set(0.001, 0, 0, 0, i, j)
		}
	}
	a.Set(10, 0, 0, 0, 40, 12)
	a.Set(10, 0, 0, 0, encoding.CLSIndex, 40)

	cfg := DefaultConfig()
	cfg.Alpha = 0 // no residual floor, pure attention edges
	got, err := Search(a, cfg)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no paths returned")
	}
	best := got[0]
	want := []int{12, 40, encoding.CLSIndex}
	if !reflect.DeepEqual(best.Tokens, want) {
		t.Fatalf("best path: got %v, want %v", best.Tokens, want)
	}
}

func TestSearchIdempotent(t *testing.T) {
	a := randomAttention(t, 2, 2, 9)
	p1, err := Search(a, DefaultConfig())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	p2, err := Search(a, DefaultConfig())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !reflect.DeepEqual(p1, p2) {
		t.Fatal("identical inputs should produce identical paths")
	}
}

func TestSearchRejectsBadConfig(t *testing.T) {
	a := randomAttention(t, 2, 2, 3)
	bad := []Config{
		{TopK: 0, FanOut: 8, BeamWidth: 40, Alpha: 0.2},
		{TopK: 5, FanOut: 0, BeamWidth: 40, Alpha: 0.2},
		{TopK: 5, FanOut: 8, BeamWidth: 0, Alpha: 0.2},
		{TopK: 5, FanOut: 8, BeamWidth: 40, Alpha: 1.0},
		{TopK: 5, FanOut: 8, BeamWidth: 40, Alpha: 0.2, Layers: 5},
	}
	for _, cfg := range bad {
		if _, err := Search(a, cfg); err == nil {
			t.Fatalf("config %+v: expected error", cfg)
		}
	}
}

func TestTopEdgesBounded(t *testing.T) {
	s := 6
	m := []float32{
		0, 1, 0, 0, 0, 0,
		2, 0, 0, 0, 0, 0,
		3, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0,
		5, 0, 0, 0, 0, 0,
		4, 0, 0, 0, 0, 0,
	}
	edges := topEdges(m, s, 0, 3)
	if len(edges) != 3 {
		t.Fatalf("edges: got %d, want 3", len(edges))
	}
	// Column 0 holds the outgoing weights of token 0: strongest first.
	want := []edge{{to: 4, weight: 5}, {to: 5, weight: 4}, {to: 2, weight: 3}}
	for i := range want {
		if edges[i] != want[i] {
			t.Fatalf("edge %d: got %+v, want %+v", i, edges[i], want[i])
		}
	}
}
