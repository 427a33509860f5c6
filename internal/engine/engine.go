package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/backend"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/encoding"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/lens"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/occlusion"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/paths"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/rollout"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/tensor"
)

// #region config

// Config aggregates the per-analysis knobs for one run. The zero value is
// not usable; start from DefaultConfig.
type Config struct {
	Rollout   rollout.Config   `json:"rollout"`
	Paths     paths.Config     `json:"paths"`
	Lens      lens.Config      `json:"lens"`
	Occlusion occlusion.Config `json:"occlusion"`
}

// DefaultConfig mirrors each analysis package's defaults.
func DefaultConfig() Config {
	return Config{
		Rollout:   rollout.DefaultConfig(),
		Paths:     paths.DefaultConfig(),
		Lens:      lens.DefaultConfig(),
		Occlusion: occlusion.DefaultConfig(),
	}
}

// #endregion config

// #region report

// Report bundles every artifact produced from a single forward pass.
type Report struct {
	RunID      string            `json:"run_id"`
	FEN        string            `json:"fen"`
	Tokens     []int64           `json:"tokens"`
	Prediction []lens.Entry      `json:"prediction"`
	Rollout    *rollout.Result   `json:"rollout"`
	Paths      []paths.Path      `json:"paths"`
	Lens       []lens.LayerRow   `json:"lens"`
	Occlusion  *occlusion.Result `json:"occlusion,omitempty"`
	ElapsedMs  int64             `json:"elapsed_ms"`

	// Forward keeps the raw tensors for fixture export; it is not part of
	// the persisted report.
	Forward *backend.ForwardResult `json:"-"`
}

// #endregion report

// #region engine

// Engine drives one forward pass through a Runner and derives every
// interpretability artifact from its tensors.
type Engine struct {
	runner backend.Runner
}

// New wraps a model runner. The engine owns no resources; closing the
// runner remains the caller's job.
func New(runner backend.Runner) *Engine {
	return &Engine{runner: runner}
}

// Analyze encodes the position, runs the model once, and computes the
// rollout, path, lens and occlusion artifacts. The occlusion sweep re-runs
// the model per occupied square unless disabled; everything else reuses the
// baseline tensors.
func (e *Engine) Analyze(ctx context.Context, fen string, cfg Config) (*Report, error) {
	started := time.Now()
	runID := uuid.NewString()

	tokens, err := encoding.Encode(fen)
	if err != nil {
		return nil, fmt.Errorf("encode position: %w", err)
	}

	fwd, err := e.runner.Forward(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("baseline forward: %w", err)
	}
	if fwd.Attentions == nil || fwd.HiddenStates == nil || fwd.ClassifierWeight == nil {
		return nil, backend.Errorf("forward", "runner returned no interpretability tensors")
	}
	log.Printf("[ENGINE] run %s: forward done in %s (%d classes, %d layers)",
		runID, time.Since(started).Round(time.Millisecond), len(fwd.ClassScores), fwd.Attentions.Layers)

	labels := e.runner.Labels()
	topN := cfg.Lens.TopN
	if topN < 1 {
		topN = lens.DefaultConfig().TopN
	}
	report := &Report{
		RunID:      runID,
		FEN:        fen,
		Tokens:     tokens,
		Prediction: lens.TopEntries(tensor.Softmax(fwd.ClassScores), labels, topN),
		Forward:    fwd,
	}

	if report.Rollout, err = rollout.Compute(fwd.Attentions, cfg.Rollout); err != nil {
		return nil, fmt.Errorf("rollout: %w", err)
	}
	if report.Paths, err = paths.Search(fwd.Attentions, cfg.Paths); err != nil {
		return nil, fmt.Errorf("path search: %w", err)
	}
	if report.Lens, err = lens.Compute(fwd.HiddenStates, fwd.ClassifierWeight, labels, cfg.Lens); err != nil {
		return nil, fmt.Errorf("logit lens: %w", err)
	}

	if !cfg.Occlusion.Disabled {
		occStart := time.Now()
		report.Occlusion, err = occlusion.Run(ctx, e.runner, tokens, fwd.ClassScores, cfg.Occlusion)
		if err != nil {
			return nil, fmt.Errorf("occlusion: %w", err)
		}
		log.Printf("[ENGINE] run %s: occlusion sweep done in %s (target %s)",
			runID, time.Since(occStart).Round(time.Millisecond), report.Occlusion.TargetLabel)
	}

	report.ElapsedMs = time.Since(started).Milliseconds()
	log.Printf("[ENGINE] run %s: analysis complete in %dms", runID, report.ElapsedMs)
	return report, nil
}

// #endregion engine
