package rollout

import (
	"fmt"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/encoding"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/tensor"
)

// #region config

// Head-selection modes.
const (
	HeadModeMean   = "mean"   // arithmetic mean over all heads, rolled through layers
	HeadModeSingle = "single" // one (layer, head) matrix, no composition
)

// Config controls the attention rollout.
type Config struct {
	// Layers is the depth to roll through in mean mode; 0 means all layers.
	Layers int `json:"layers"`
	// HeadMode is HeadModeMean or HeadModeSingle.
	HeadMode string `json:"head_mode"`
	// Layer and Head select the matrix in single mode.
	Layer int `json:"layer"`
	Head  int `json:"head"`
	// Alpha in [0,1) is the residual-mixing coefficient.
	Alpha float32 `json:"alpha"`
}

// DefaultConfig rolls the head mean through all layers with a 0.2 residual mix.
func DefaultConfig() Config {
	return Config{HeadMode: HeadModeMean, Alpha: 0.2}
}

// #endregion config

// #region result

// Result is the saliency artifact: board and metadata relevance seen from
// the summary token, both raw and normalized to [0,1].
type Result struct {
	Board    [encoding.BoardTokens]float32 `json:"board"`
	Meta     [encoding.MetaTokens]float32  `json:"meta"`
	RawBoard [encoding.BoardTokens]float32 `json:"raw_board"`
	RawMeta  [encoding.MetaTokens]float32  `json:"raw_meta"`
}

// #endregion result

// #region compute

// Compute derives the saliency grid from an attention tensor. In mean mode
// it composes the residual-blended, row-normalized head-mean matrices of
// layers 1..ℓ and reads the summary token's row of the product; in single
// mode it reads the summary row of one head's blended matrix directly.
func Compute(a *tensor.Attention, cfg Config) (*Result, error) {
	if a.Seq != encoding.SeqLen {
		return nil, fmt.Errorf("attention tensor has sequence length %d, want %d", a.Seq, encoding.SeqLen)
	}
	if cfg.Alpha < 0 || cfg.Alpha >= 1 {
		return nil, fmt.Errorf("alpha %f outside [0,1)", cfg.Alpha)
	}

	var acc []float32
	switch cfg.HeadMode {
	case HeadModeSingle:
		if cfg.Layer < 0 || cfg.Layer >= a.Layers {
			return nil, fmt.Errorf("layer %d outside [0,%d)", cfg.Layer, a.Layers)
		}
		if cfg.Head < 0 || cfg.Head >= a.Heads {
			return nil, fmt.Errorf("head %d outside [0,%d)", cfg.Head, a.Heads)
		}
		acc = a.Head(cfg.Layer, cfg.Head)
		tensor.NormalizeRows(acc, a.Seq)
		tensor.BlendIdentity(acc, a.Seq, cfg.Alpha)

	case HeadModeMean, "":
		depth := cfg.Layers
		if depth == 0 {
			depth = a.Layers
		}
		if depth < 1 || depth > a.Layers {
			return nil, fmt.Errorf("layer depth %d outside [1,%d]", depth, a.Layers)
		}
		for l := 0; l < depth; l++ {
			m := a.HeadMean(l)
			tensor.NormalizeRows(m, a.Seq)
			tensor.BlendIdentity(m, a.Seq, cfg.Alpha)
			if acc == nil {
				acc = m
			} else {
				// Relevance after layer l is Ã_l applied to the rollout so far.
				acc = tensor.MatMulSquare(m, acc, a.Seq)
			}
		}

	default:
		return nil, fmt.Errorf("head mode %q", cfg.HeadMode)
	}

	row := acc[encoding.CLSIndex*a.Seq : encoding.CLSIndex*a.Seq+a.Seq]

	res := &Result{}
	copy(res.RawBoard[:], row[:encoding.BoardTokens])
	copy(res.RawMeta[:], row[encoding.SideToMoveIndex:encoding.SideToMoveIndex+encoding.MetaTokens])
	normalizeBoard(&res.Board, &res.RawBoard)
	normalizeMeta(&res.Meta, &res.RawMeta)
	return res, nil
}

// #endregion compute

// #region normalize

// normalizeBoard min-max scales the 64 board values to [0,1] using their own
// observed range. An all-equal grid is degenerate and comes out all-zero.
func normalizeBoard(dst, src *[encoding.BoardTokens]float32) {
	minV, maxV := src[0], src[0]
	for _, v := range src[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	span := maxV - minV
	if float64(span) < tensor.NormEps {
		return
	}
	for i, v := range src {
		dst[i] = (v - minV) / span
	}
}

// normalizeMeta divides the 13 metadata values by their own maximum,
// flooring negatives at 0. The board and metadata groups normalize
// independently: board entries sit on a structurally larger baseline.
func normalizeMeta(dst, src *[encoding.MetaTokens]float32) {
	var maxV float32
	for _, v := range src {
		if v > maxV {
			maxV = v
		}
	}
	if float64(maxV) < tensor.NormEps {
		return
	}
	for i, v := range src {
		if v < 0 {
			v = 0
		}
		dst[i] = v / maxV
	}
}

// #endregion normalize
