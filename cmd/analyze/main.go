package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/backend"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/encoding"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/engine"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/logging"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/rollout"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/store"
)

const startPosition = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// #region main

func main() {
	fen := flag.String("fen", startPosition, "position to analyze, FEN notation")
	modelPath := flag.String("model", envOr("ROOK_MODEL", "rook_clf_interp.onnx"), "interpretability ONNX export")
	labelsPath := flag.String("labels", envOr("ROOK_LABELS", ""), "id2label JSON sidecar")
	ortLib := flag.String("ort", "", "path to the onnxruntime shared library")
	dbPath := flag.String("db", "", "persist the run to this SQLite database")
	target := flag.String("target", "", "occlusion target move (default: predicted top move)")
	layers := flag.Int("layers", 0, "analysis depth in layers (0 = all)")
	headMode := flag.String("head-mode", rollout.HeadModeMean, "rollout head mode: mean or single")
	layer := flag.Int("layer", 0, "layer for single head mode")
	head := flag.Int("head", 0, "head for single head mode")
	alpha := flag.Float64("alpha", 0.2, "residual-mixing coefficient in [0,1)")
	noOcclusion := flag.Bool("no-occlusion", false, "skip the per-square ablation sweep")
	jsonOut := flag.Bool("json", false, "output the full report as JSON")
	timeout := flag.Duration("timeout", 2*time.Minute, "analysis deadline")
	flag.Parse()

	if *fen == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze --fen <position> [--model path] [--labels path] [--db path] [--json]")
		os.Exit(2)
	}

	cfg := engine.DefaultConfig()
	cfg.Rollout.Layers = *layers
	cfg.Paths.Layers = *layers
	cfg.Lens.Layers = *layers
	cfg.Rollout.HeadMode = *headMode
	cfg.Rollout.Layer = *layer
	cfg.Rollout.Head = *head
	cfg.Rollout.Alpha = float32(*alpha)
	cfg.Paths.Alpha = float32(*alpha)
	cfg.Occlusion.Target = *target
	cfg.Occlusion.Disabled = *noOcclusion

	runner, err := backend.NewORTRunner(backend.ORTConfig{
		ModelPath:   *modelPath,
		LabelsPath:  *labelsPath,
		LibraryPath: *ortLib,
	})
	if err != nil {
		log.Fatalf("failed to open model: %v", err)
	}
	defer runner.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, err := engine.New(runner).Analyze(ctx, *fen, cfg)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}

	if *dbPath != "" {
		if err := persistRun(*dbPath, report, cfg); err != nil {
			log.Fatalf("persist run: %v", err)
		}
		fmt.Printf("run %s saved to %s\n", report.RunID, *dbPath)
	}

	if *jsonOut {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatalf("marshal report: %v", err)
		}
		fmt.Println(string(out))
		return
	}
	printReport(report)
}

// #endregion main

// #region persist

func persistRun(dbPath string, report *engine.Report, cfg engine.Config) error {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	rec := store.RunRecord{
		RunID:      report.RunID,
		FEN:        report.FEN,
		ConfigJSON: string(cfgJSON),
		ReportJSON: string(reportJSON),
		CreatedAt:  time.Now().UTC(),
	}
	tensors := []store.TensorRecord{
		{
			Name:  "class_scores",
			Shape: []int64{int64(len(report.Forward.ClassScores))},
			Data:  report.Forward.ClassScores,
		},
	}
	if report.Occlusion != nil {
		tensors = append(tensors, store.TensorRecord{
			Name:  "occlusion_raw",
			Shape: []int64{encoding.BoardTokens},
			Data:  report.Occlusion.Raw[:],
		})
	}
	if err := s.RecordRun(rec, tensors); err != nil {
		return err
	}
	return logging.LogDecision(s.DB(), logging.ProvenanceEntry{
		RunID:    report.RunID,
		Stage:    "persist",
		Decision: "ok",
		Reason:   fmt.Sprintf("analysis completed in %dms", report.ElapsedMs),
	})
}

// #endregion persist

// #region output

func printReport(report *engine.Report) {
	fmt.Printf("position: %s\n\n", report.FEN)

	fmt.Println("prediction:")
	for i, e := range report.Prediction {
		fmt.Printf("  %d. %-8s %.4f\n", i+1, e.Label, e.Prob)
	}

	fmt.Println("\nattention rollout (summary-token saliency):")
	printBoard(report.Rollout.Board)
	fmt.Println("\nmetadata attention:")
	for i, v := range report.Rollout.Meta {
		fmt.Printf("  %-12s %.3f\n", encoding.MetaName(i), v)
	}

	fmt.Println("\ntop attention paths:")
	for i, p := range report.Paths {
		fmt.Printf("  %d. score=%.6f  %s\n", i+1, p.Score, pathString(p.Tokens))
	}

	fmt.Println("\nlogit lens (per-layer top move):")
	for _, row := range report.Lens {
		if len(row.Top) == 0 {
			continue
		}
		fmt.Printf("  layer %2d: %-8s %.4f\n", row.Layer, row.Top[0].Label, row.Top[0].Prob)
	}

	if report.Occlusion != nil {
		fmt.Printf("\nocclusion saliency (target %s):\n", report.Occlusion.TargetLabel)
		printBoard(report.Occlusion.Board)
	}
	fmt.Printf("\nelapsed: %dms\n", report.ElapsedMs)
}

// printBoard renders a 64-value grid rank by rank, a8 top-left.
func printBoard(vals [encoding.BoardTokens]float32) {
	for rank := 0; rank < 8; rank++ {
		fmt.Printf("  %d ", 8-rank)
		for file := 0; file < 8; file++ {
			fmt.Printf(" %.2f", vals[rank*8+file])
		}
		fmt.Println()
	}
	fmt.Println("      a    b    c    d    e    f    g    h")
}

func pathString(tokens []int) string {
	out := ""
	for i, tok := range tokens {
		if i > 0 {
			out += " -> "
		}
		switch {
		case tok < encoding.BoardTokens:
			out += encoding.SquareName(tok)
		case tok == encoding.CLSIndex:
			out += "CLS"
		default:
			out += encoding.MetaName(tok - encoding.BoardTokens)
		}
	}
	return out
}

// #endregion output

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
