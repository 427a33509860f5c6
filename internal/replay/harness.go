package replay

import (
	"context"
	"fmt"
	"math"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/engine"
)

// #region types

// DefaultTolerance absorbs float drift between the recording environment
// and the replaying one.
const DefaultTolerance = 1e-4

// Mismatch is one expected-vs-replayed disagreement.
type Mismatch struct {
	Field string
	Index int // -1 for scalar fields
	Got   string
	Want  string
}

// Outcome is the result of replaying one fixture.
type Outcome struct {
	Report     *engine.Report
	Mismatches []Mismatch
}

// Passed reports whether every expected artifact was reproduced.
func (o *Outcome) Passed() bool {
	return len(o.Mismatches) == 0
}

// #endregion types

// #region replay

// Replay runs the full analysis against a fixture's recorded tensors and
// diffs the artifacts against the fixture's expectations. Operates entirely
// in-memory; a fixture without expectations replays but trivially passes.
func Replay(ctx context.Context, f *Fixture, tolerance float64) (*Outcome, error) {
	runner, err := NewFixtureRunner(f)
	if err != nil {
		return nil, err
	}
	report, err := engine.New(runner).Analyze(ctx, f.FEN, f.Config)
	if err != nil {
		return nil, fmt.Errorf("replay analysis: %w", err)
	}

	out := &Outcome{Report: report}
	if f.Expected == nil {
		return out, nil
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	exp := f.Expected
	if exp.TopMove != "" {
		got := ""
		if len(report.Prediction) > 0 {
			got = report.Prediction[0].Label
		}
		if got != exp.TopMove {
			out.Mismatches = append(out.Mismatches, Mismatch{
				Field: "top_move", Index: -1, Got: got, Want: exp.TopMove,
			})
		}
	}
	if len(exp.RolloutBoard) > 0 {
		diffGrid(out, "rollout_board", report.Rollout.Board[:], exp.RolloutBoard, tolerance)
	}
	if len(exp.OcclusionBoard) > 0 {
		var got []float32
		if report.Occlusion != nil {
			got = report.Occlusion.Board[:]
		}
		diffGrid(out, "occlusion_board", got, exp.OcclusionBoard, tolerance)
	}
	if len(exp.PathScores) > 0 {
		got := make([]float32, len(report.Paths))
		for i, p := range report.Paths {
			got[i] = p.Score
		}
		diffGrid(out, "path_scores", got, exp.PathScores, tolerance)
	}
	return out, nil
}

func diffGrid(out *Outcome, field string, got, want []float32, tolerance float64) {
	if len(got) != len(want) {
		out.Mismatches = append(out.Mismatches, Mismatch{
			Field: field, Index: -1,
			Got:  fmt.Sprintf("%d values", len(got)),
			Want: fmt.Sprintf("%d values", len(want)),
		})
		return
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > tolerance {
			out.Mismatches = append(out.Mismatches, Mismatch{
				Field: field, Index: i,
				Got:  fmt.Sprintf("%g", got[i]),
				Want: fmt.Sprintf("%g", want[i]),
			})
		}
	}
}

// #endregion replay
