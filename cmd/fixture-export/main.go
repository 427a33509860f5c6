package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/backend"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/engine"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/replay"
)

const startPosition = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// #region main

func main() {
	fen := flag.String("fen", startPosition, "position to record, FEN notation")
	modelPath := flag.String("model", envOr("ROOK_MODEL", "rook_clf_interp.onnx"), "interpretability ONNX export")
	labelsPath := flag.String("labels", envOr("ROOK_LABELS", ""), "id2label JSON sidecar")
	ortLib := flag.String("ort", "", "path to the onnxruntime shared library")
	outPath := flag.String("out", "", "output fixture JSON path")
	description := flag.String("description", "", "fixture description")
	target := flag.String("target", "", "occlusion target move (default: predicted top move)")
	timeout := flag.Duration("timeout", 2*time.Minute, "recording deadline")
	flag.Parse()

	if *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --out path/to/fixture.json [--fen position] [--model path]")
		os.Exit(2)
	}

	if err := run(*fen, *modelPath, *labelsPath, *ortLib, *outPath, *description, *target, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region record

func run(fen, modelPath, labelsPath, ortLib, outPath, description, target string, timeout time.Duration) error {
	runner, err := backend.NewORTRunner(backend.ORTConfig{
		ModelPath:   modelPath,
		LabelsPath:  labelsPath,
		LibraryPath: ortLib,
	})
	if err != nil {
		return fmt.Errorf("open model: %w", err)
	}
	defer runner.Close()

	cfg := engine.DefaultConfig()
	cfg.Occlusion.Target = target
	cfg.Occlusion.RecordScores = true

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report, err := engine.New(runner).Analyze(ctx, fen, cfg)
	if err != nil {
		return fmt.Errorf("record analysis: %w", err)
	}
	if report.Occlusion == nil || report.Occlusion.AblationScores == nil {
		return fmt.Errorf("analysis recorded no ablation scores")
	}

	var ablations []replay.FixtureAblation
	for sq, scores := range report.Occlusion.AblationScores {
		if scores == nil {
			continue
		}
		ablations = append(ablations, replay.FixtureAblation{Square: sq, ClassScores: scores})
	}

	pathScores := make([]float32, len(report.Paths))
	for i, p := range report.Paths {
		pathScores[i] = p.Score
	}

	if description == "" {
		description = fmt.Sprintf("recorded %s at %s", fen, time.Now().UTC().Format(time.RFC3339))
	}
	f := &replay.Fixture{
		Description: description,
		FEN:         fen,
		Config:      cfg,
		Baseline:    replay.FromForwardResult(report.Forward, runner.Labels()),
		Ablations:   ablations,
		Expected: &replay.FixtureExpected{
			TopMove:        report.Prediction[0].Label,
			RolloutBoard:   report.Rollout.Board[:],
			OcclusionBoard: report.Occlusion.Board[:],
			PathScores:     pathScores,
		},
	}
	if err := replay.SaveFixture(outPath, f); err != nil {
		return err
	}

	fmt.Printf("fixture written to %s\n", outPath)
	fmt.Printf("  position:  %s\n", fen)
	fmt.Printf("  top move:  %s\n", report.Prediction[0].Label)
	fmt.Printf("  ablations: %d squares recorded\n", len(ablations))
	return nil
}

// #endregion record

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
