package paths

import (
	"fmt"
	"sort"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/encoding"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/tensor"
)

// #region config

// Config bounds the beam search. The defaults reproduce the demo's observed
// behavior; they are heuristics, not invariants, and are deliberately
// tunable.
type Config struct {
	// Layers is the attention depth to traverse; 0 means all layers.
	Layers int `json:"layers"`
	// TopK is the number of paths returned.
	TopK int `json:"top_k"`
	// FanOut is the number of outgoing edges expanded per candidate per layer.
	FanOut int `json:"fan_out"`
	// BeamWidth is the global candidate cap after each layer.
	BeamWidth int `json:"beam_width"`
	// Alpha is the residual-mixing coefficient, shared with the rollout.
	Alpha float32 `json:"alpha"`
}

// DefaultConfig returns the demo's beam constants.
func DefaultConfig() Config {
	return Config{TopK: 5, FanOut: 8, BeamWidth: 40, Alpha: 0.2}
}

// #endregion config

// #region path

// Path is one information-flow route through the attention graph: a token
// index per hop, ending at the summary token, with the product of traversed
// edge weights as its score.
type Path struct {
	Tokens []int   `json:"tokens"`
	Score  float32 `json:"score"`
}

// #endregion path

// #region search

type candidate struct {
	tokens []int
	score  float32
}

// Search finds the highest-scoring multi-hop routes from board tokens to
// the summary token. One edge is traversed per layer through that layer's
// row-normalized, residual-blended head-mean matrix; a final hop to the
// summary token is always appended using the last layer's matrix, so every
// returned path ends there. Exhaustive search is O(S^ℓ); the beam bounds
// work to a small constant.
func Search(a *tensor.Attention, cfg Config) ([]Path, error) {
	if a.Seq != encoding.SeqLen {
		return nil, fmt.Errorf("attention tensor has sequence length %d, want %d", a.Seq, encoding.SeqLen)
	}
	if cfg.Alpha < 0 || cfg.Alpha >= 1 {
		return nil, fmt.Errorf("alpha %f outside [0,1)", cfg.Alpha)
	}
	if cfg.TopK < 1 || cfg.FanOut < 1 || cfg.BeamWidth < 1 {
		return nil, fmt.Errorf("beam bounds must be positive: topK=%d fanOut=%d beamWidth=%d",
			cfg.TopK, cfg.FanOut, cfg.BeamWidth)
	}
	depth := cfg.Layers
	if depth == 0 {
		depth = a.Layers
	}
	if depth < 1 || depth > a.Layers {
		return nil, fmt.Errorf("layer depth %d outside [1,%d]", depth, a.Layers)
	}

	s := a.Seq
	layerMats := make([][]float32, depth)
	for l := 0; l < depth; l++ {
		m := a.HeadMean(l)
		tensor.NormalizeRows(m, s)
		tensor.BlendIdentity(m, s, cfg.Alpha)
		layerMats[l] = m
	}

	// One seed per board token.
	beam := make([]candidate, 0, encoding.BoardTokens)
	for sq := 0; sq < encoding.BoardTokens; sq++ {
		beam = append(beam, candidate{tokens: []int{sq}, score: 1})
	}

	for _, m := range layerMats {
		expanded := make([]candidate, 0, len(beam)*cfg.FanOut)
		for _, c := range beam {
			u := c.tokens[len(c.tokens)-1]
			for _, e := range topEdges(m, s, u, cfg.FanOut) {
				tokens := make([]int, len(c.tokens)+1)
				copy(tokens, c.tokens)
				tokens[len(c.tokens)] = e.to
				expanded = append(expanded, candidate{tokens: tokens, score: c.score * e.weight})
			}
		}
		sort.SliceStable(expanded, func(i, j int) bool {
			return expanded[i].score > expanded[j].score
		})
		if len(expanded) > cfg.BeamWidth {
			expanded = expanded[:cfg.BeamWidth]
		}
		beam = expanded
	}

	// Force the terminal hop to the summary token, whether or not it was a
	// candidate's top edge, so every survivor ends there.
	last := layerMats[depth-1]
	out := make([]Path, 0, len(beam))
	for _, c := range beam {
		u := c.tokens[len(c.tokens)-1]
		w := edgeWeight(last, s, u, encoding.CLSIndex)
		tokens := make([]int, len(c.tokens)+1)
		copy(tokens, c.tokens)
		tokens[len(c.tokens)] = encoding.CLSIndex
		out = append(out, Path{Tokens: tokens, Score: c.score * w})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > cfg.TopK {
		out = out[:cfg.TopK]
	}
	return out, nil
}

// #endregion search

// #region edges

type edge struct {
	to     int
	weight float32
}

// edgeWeight is the flow weight from token u to token v through matrix m:
// the attention the destination places on the current token.
func edgeWeight(m []float32, s, u, v int) float32 {
	return m[v*s+u]
}

// topEdges returns the fanOut strongest outgoing edges from token u.
func topEdges(m []float32, s, u, fanOut int) []edge {
	edges := make([]edge, 0, s)
	for v := 0; v < s; v++ {
		if w := edgeWeight(m, s, u, v); w > 0 {
			edges = append(edges, edge{to: v, weight: w})
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].weight > edges[j].weight
	})
	if len(edges) > fanOut {
		edges = edges[:fanOut]
	}
	return edges
}

// #endregion edges
