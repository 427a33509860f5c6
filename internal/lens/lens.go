package lens

import (
	"fmt"
	"sort"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/tensor"
)

// #region config

// Config controls the logit-lens readout.
type Config struct {
	// Layers is the deepest layer to read out; 0 means all layers.
	Layers int `json:"layers"`
	// TopN is the number of classes reported per layer.
	TopN int `json:"top_n"`
}

// DefaultConfig reads out all layers, top 5 classes each.
func DefaultConfig() Config {
	return Config{TopN: 5}
}

// #endregion config

// #region types

// Entry is one (class, label, probability) readout.
type Entry struct {
	Class int     `json:"class"`
	Label string  `json:"label"`
	Prob  float32 `json:"prob"`
}

// LayerRow is the early-guess distribution at one layer: what the model
// would predict if classification were read out there instead of at the
// final layer.
type LayerRow struct {
	Layer int     `json:"layer"`
	Top   []Entry `json:"top"`
}

// #endregion types

// #region compute

// Compute projects each layer's summary-token hidden state through the
// final classifier weights and reports the top classes per layer. The
// readout applies final-layer weights to intermediate representations, so
// its fidelity degrades for early layers; that is expected, not a defect.
func Compute(x *tensor.HiddenStates, w *tensor.ClassifierWeight, labels []string, cfg Config) ([]LayerRow, error) {
	if x.Dim != w.Dim {
		return nil, fmt.Errorf("hidden width %d does not match classifier input %d", x.Dim, w.Dim)
	}
	if len(labels) > 0 && len(labels) != w.Classes {
		return nil, fmt.Errorf("classifier has %d classes, label vocabulary has %d", w.Classes, len(labels))
	}
	topN := cfg.TopN
	if topN == 0 {
		topN = DefaultConfig().TopN
	}
	if topN < 1 {
		return nil, fmt.Errorf("top-n %d must be positive", topN)
	}
	// x has layers+1 rows; row 0 is the embedding, rows 1..L the layer outputs.
	depth := cfg.Layers
	if depth == 0 {
		depth = x.Layers - 1
	}
	if depth < 1 || depth > x.Layers-1 {
		return nil, fmt.Errorf("layer depth %d outside [1,%d]", depth, x.Layers-1)
	}

	rows := make([]LayerRow, 0, depth)
	for l := 1; l <= depth; l++ {
		h := x.Vector(l, 0, x.Seq-1)
		probs := tensor.Softmax(w.Project(h))
		rows = append(rows, LayerRow{Layer: l, Top: TopEntries(probs, labels, topN)})
	}
	return rows, nil
}

// TopEntries returns the n highest-probability classes, labeled.
func TopEntries(probs []float32, labels []string, n int) []Entry {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return probs[idx[i]] > probs[idx[j]]
	})
	if n > len(idx) {
		n = len(idx)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		c := idx[i]
		out[i] = Entry{Class: c, Label: Label(labels, c), Prob: probs[c]}
	}
	return out
}

// Label names class c, falling back to a numeric form when no vocabulary
// is loaded.
func Label(labels []string, c int) string {
	if c >= 0 && c < len(labels) {
		return labels[c]
	}
	return fmt.Sprintf("class_%d", c)
}

// #endregion compute
