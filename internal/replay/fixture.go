package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/backend"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/engine"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/tensor"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: one
// position's recorded model outputs plus the analysis config, enough to
// reproduce a full report without the model.
type Fixture struct {
	Description string            `json:"description"`
	FEN         string            `json:"fen"`
	Config      engine.Config     `json:"config"`
	Baseline    FixtureForward    `json:"baseline"`
	Ablations   []FixtureAblation `json:"ablations,omitempty"`
	Expected    *FixtureExpected  `json:"expected,omitempty"`
}

// FixtureTensor is a shape-tagged float buffer.
type FixtureTensor struct {
	Shape []int64   `json:"shape"`
	Data  []float32 `json:"data"`
}

// FixtureForward captures one forward pass's outputs.
type FixtureForward struct {
	ClassScores      []float32     `json:"class_scores"`
	Labels           []string      `json:"labels"`
	Attentions       FixtureTensor `json:"attentions"`
	HiddenStates     FixtureTensor `json:"hidden_states"`
	ClassifierWeight FixtureTensor `json:"classifier_weight"`
}

// FixtureAblation is the recorded class scores for one masked square.
type FixtureAblation struct {
	Square      int       `json:"square"`
	ClassScores []float32 `json:"class_scores"`
}

// FixtureExpected captures the artifacts a replay must reproduce.
type FixtureExpected struct {
	TopMove        string    `json:"top_move,omitempty"`
	RolloutBoard   []float32 `json:"rollout_board,omitempty"`
	OcclusionBoard []float32 `json:"occlusion_board,omitempty"`
	PathScores     []float32 `json:"path_scores,omitempty"`
}

// #endregion fixture-types

// #region fixture-io

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// SaveFixture writes a fixture as indented JSON.
func SaveFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-io

// #region fixture-conversion

// ToForwardResult rebuilds the typed tensors from the fixture buffers.
func (ff *FixtureForward) ToForwardResult() (*backend.ForwardResult, error) {
	as := ff.Attentions.Shape
	if len(as) != 5 {
		return nil, fmt.Errorf("attention tensor has rank %d, want 5", len(as))
	}
	att, err := tensor.AttentionFrom(ff.Attentions.Data, int(as[0]), int(as[1]), int(as[2]), int(as[3]))
	if err != nil {
		return nil, fmt.Errorf("attention tensor: %w", err)
	}

	hs := ff.HiddenStates.Shape
	if len(hs) != 4 {
		return nil, fmt.Errorf("hidden-state tensor has rank %d, want 4", len(hs))
	}
	hidden, err := tensor.HiddenStatesFrom(ff.HiddenStates.Data, int(hs[0]), int(hs[1]), int(hs[2]), int(hs[3]))
	if err != nil {
		return nil, fmt.Errorf("hidden-state tensor: %w", err)
	}

	ws := ff.ClassifierWeight.Shape
	if len(ws) != 2 {
		return nil, fmt.Errorf("classifier weight has rank %d, want 2", len(ws))
	}
	w, err := tensor.ClassifierWeightFrom(ff.ClassifierWeight.Data, int(ws[0]), int(ws[1]))
	if err != nil {
		return nil, fmt.Errorf("classifier weight: %w", err)
	}

	return &backend.ForwardResult{
		ClassScores:      ff.ClassScores,
		Attentions:       att,
		HiddenStates:     hidden,
		ClassifierWeight: w,
	}, nil
}

// FromForwardResult flattens a live forward pass into fixture buffers.
func FromForwardResult(fwd *backend.ForwardResult, labels []string) FixtureForward {
	a := fwd.Attentions
	x := fwd.HiddenStates
	w := fwd.ClassifierWeight
	return FixtureForward{
		ClassScores: fwd.ClassScores,
		Labels:      labels,
		Attentions: FixtureTensor{
			Shape: []int64{int64(a.Layers), int64(a.Batch), int64(a.Heads), int64(a.Seq), int64(a.Seq)},
			Data:  a.Data,
		},
		HiddenStates: FixtureTensor{
			Shape: []int64{int64(x.Layers), int64(x.Batch), int64(x.Seq), int64(x.Dim)},
			Data:  x.Data,
		},
		ClassifierWeight: FixtureTensor{
			Shape: []int64{int64(w.Dim), int64(w.Classes)},
			Data:  w.Data,
		},
	}
}

// #endregion fixture-conversion
