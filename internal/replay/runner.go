package replay

import (
	"context"
	"fmt"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/backend"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/encoding"
)

// #region fixture-runner

// FixtureRunner answers forward passes from recorded fixture data instead
// of a model session. The baseline encoding gets the full tensor set; a
// masked-square encoding gets the recorded ablation scores. Anything else
// is an error, which keeps replays honest about what was recorded.
type FixtureRunner struct {
	base      []int64
	baseline  *backend.ForwardResult
	labels    []string
	ablations map[int][]float32
}

// NewFixtureRunner validates the fixture and prebuilds the typed tensors.
func NewFixtureRunner(f *Fixture) (*FixtureRunner, error) {
	base, err := encoding.Encode(f.FEN)
	if err != nil {
		return nil, fmt.Errorf("encode fixture position: %w", err)
	}
	baseline, err := f.Baseline.ToForwardResult()
	if err != nil {
		return nil, fmt.Errorf("fixture baseline: %w", err)
	}
	ablations := make(map[int][]float32, len(f.Ablations))
	for _, ab := range f.Ablations {
		if ab.Square < 0 || ab.Square >= encoding.BoardTokens {
			return nil, fmt.Errorf("ablation square %d out of range", ab.Square)
		}
		ablations[ab.Square] = ab.ClassScores
	}
	return &FixtureRunner{
		base:      base,
		baseline:  baseline,
		labels:    f.Baseline.Labels,
		ablations: ablations,
	}, nil
}

// Labels returns the recorded class vocabulary.
func (r *FixtureRunner) Labels() []string {
	return r.labels
}

// Forward resolves a pass against the recording.
func (r *FixtureRunner) Forward(ctx context.Context, tokens []int64) (*backend.ForwardResult, error) {
	if err := encoding.ValidateLength(tokens); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, backend.Errorf("replay", "forward cancelled: %v", err)
	}

	masked := -1
	for i := range tokens {
		if tokens[i] == r.base[i] {
			continue
		}
		if i >= encoding.BoardTokens || tokens[i] != encoding.EmptySquareID || masked >= 0 {
			return nil, backend.Errorf("replay", "encoding not in recording (differs at token %d)", i)
		}
		masked = i
	}

	if masked < 0 {
		return r.baseline, nil
	}
	scores, ok := r.ablations[masked]
	if !ok {
		return nil, backend.Errorf("replay", "no recorded ablation for square %s", encoding.SquareName(masked))
	}
	return &backend.ForwardResult{ClassScores: scores}, nil
}

// #endregion fixture-runner
