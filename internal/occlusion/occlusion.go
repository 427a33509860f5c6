package occlusion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/backend"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/encoding"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/tensor"
)

// #region config

// Config controls the ablation sweep.
type Config struct {
	// Target is the class label whose score drop is measured; empty means
	// the baseline top-1 class.
	Target string `json:"target,omitempty"`
	// Disabled skips the sweep entirely (it costs up to 64 forward passes).
	Disabled bool `json:"disabled,omitempty"`
	// RecordScores keeps each ablation's full class-score vector on the
	// result, so a run can be exported and replayed without the model.
	RecordScores bool `json:"record_scores,omitempty"`
}

// DefaultConfig measures the top-1 class.
func DefaultConfig() Config {
	return Config{}
}

// #endregion config

// #region errors

// ErrAborted marks a sweep cancelled between ablation steps. An aborted
// sweep yields no artifact; this is distinct from a completed sweep whose
// grid happens to be all-zero.
var ErrAborted = errors.New("occlusion sweep aborted")

// UnknownClassError reports a requested target label missing from the
// model's class vocabulary. No forward passes are issued.
type UnknownClassError struct {
	Label string
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("target class %q not in model vocabulary", e.Label)
}

// #endregion errors

// #region types

// Step reports one square's ablation outcome as the sweep advances.
type Step struct {
	Square  int
	Skipped bool // square was already empty; no forward pass issued
	Drop    float32
}

// Result is the completed occlusion artifact. Board entry i is the drop in
// the target class's score caused by ablating square i, normalized by the
// maximum drop.
type Result struct {
	Board       [encoding.BoardTokens]float32 `json:"board"`
	Raw         [encoding.BoardTokens]float32 `json:"raw"`
	TargetClass int                           `json:"target_class"`
	TargetLabel string                        `json:"target_label"`
	// AblationScores holds each square's full class-score vector when
	// recording was requested; entries for skipped squares are nil.
	AblationScores [][]float32 `json:"-"`
}

// #endregion types

// #region sweep

// Sweep ablates one board square at a time, re-running the model and
// measuring the target class's score drop. Steps are issued sequentially,
// never concurrently, to bound peak load on the execution backend; the
// caller pulls steps at its own pace and may cancel between any two.
type Sweep struct {
	runner      backend.Runner
	tokens      []int64 // baseline encoding, never mutated
	s0          float32
	targetClass int
	targetLabel string

	raw    [encoding.BoardTokens]float32
	scores [][]float32
	next   int
	err    error
}

// NewSweep resolves the target class against the baseline scores and
// prepares a sweep. It issues no forward passes itself.
func NewSweep(runner backend.Runner, tokens []int64, baseline []float32, cfg Config) (*Sweep, error) {
	if err := encoding.ValidateLength(tokens); err != nil {
		return nil, err
	}
	if len(baseline) == 0 {
		return nil, fmt.Errorf("baseline class scores are empty")
	}

	target := -1
	label := cfg.Target
	if label == "" {
		target = tensor.ArgMax(baseline)
		label = classLabel(runner.Labels(), target)
	} else {
		for i, l := range runner.Labels() {
			if l == label {
				target = i
				break
			}
		}
		if target < 0 {
			return nil, &UnknownClassError{Label: label}
		}
	}
	if target >= len(baseline) {
		return nil, backend.Errorf("baseline", "target class %d outside %d scores", target, len(baseline))
	}

	s := &Sweep{
		runner:      runner,
		tokens:      tokens,
		s0:          baseline[target],
		targetClass: target,
		targetLabel: label,
	}
	if cfg.RecordScores {
		s.scores = make([][]float32, encoding.BoardTokens)
	}
	return s, nil
}

func classLabel(labels []string, c int) string {
	if c >= 0 && c < len(labels) {
		return labels[c]
	}
	return fmt.Sprintf("class_%d", c)
}

// Next performs one ablation step. It returns ok=false when the sweep has
// covered all 64 squares or has failed; a failed or cancelled sweep
// discards everything computed so far, since a partial grid would silently
// misrepresent relative importance.
func (s *Sweep) Next(ctx context.Context) (Step, bool, error) {
	if s.err != nil {
		return Step{}, false, s.err
	}
	if s.next >= encoding.BoardTokens {
		return Step{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		s.fail(fmt.Errorf("%w after %d of %d squares: %v", ErrAborted, s.next, encoding.BoardTokens, err))
		return Step{}, false, s.err
	}

	sq := s.next
	s.next++

	if encoding.IsEmptySquare(s.tokens, sq) {
		// Nothing to ablate; defined as zero contribution.
		return Step{Square: sq, Skipped: true}, true, nil
	}

	res, err := s.runner.Forward(ctx, encoding.MaskSquare(s.tokens, sq))
	if err != nil {
		s.fail(fmt.Errorf("ablate %s: %w", encoding.SquareName(sq), err))
		return Step{}, false, s.err
	}
	if s.targetClass >= len(res.ClassScores) {
		s.fail(backend.Errorf("ablate", "square %s returned %d scores, target class is %d",
			encoding.SquareName(sq), len(res.ClassScores), s.targetClass))
		return Step{}, false, s.err
	}

	// Only positive drops count: this measures how much the square supports
	// the prediction, not bidirectional sensitivity.
	drop := s.s0 - res.ClassScores[s.targetClass]
	if drop < 0 {
		drop = 0
	}
	s.raw[sq] = drop
	if s.scores != nil {
		s.scores[sq] = res.ClassScores
	}
	return Step{Square: sq, Drop: drop}, true, nil
}

// fail poisons the sweep and discards partial results.
func (s *Sweep) fail(err error) {
	s.err = err
	s.raw = [encoding.BoardTokens]float32{}
	s.scores = nil
}

// Done reports whether all squares have been processed successfully.
func (s *Sweep) Done() bool {
	return s.err == nil && s.next >= encoding.BoardTokens
}

// Result returns the completed artifact. It fails on an unfinished or
// aborted sweep.
func (s *Sweep) Result() (*Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !s.Done() {
		return nil, fmt.Errorf("sweep incomplete: %d of %d squares", s.next, encoding.BoardTokens)
	}
	res := &Result{
		Raw:            s.raw,
		TargetClass:    s.targetClass,
		TargetLabel:    s.targetLabel,
		AblationScores: s.scores,
	}
	var maxV float32
	for _, v := range s.raw {
		if v > maxV {
			maxV = v
		}
	}
	if float64(maxV) >= tensor.NormEps {
		for i, v := range s.raw {
			res.Board[i] = v / maxV
		}
	}
	return res, nil
}

// Run drives a sweep to completion.
func Run(ctx context.Context, runner backend.Runner, tokens []int64, baseline []float32, cfg Config) (*Result, error) {
	s, err := NewSweep(runner, tokens, baseline, cfg)
	if err != nil {
		return nil, err
	}
	for {
		_, ok, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	return s.Result()
}

// #endregion sweep
