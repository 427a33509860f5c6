package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/engine"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/store"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the analysis run database")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show single run detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/runs.db [--last N] [--run id] [--json]")
		os.Exit(2)
	}

	s, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if *runID != "" {
		if err := runDetailMode(s, *runID, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		if err := runListMode(s, *last, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID     string `json:"run_id"`
	FEN       string `json:"fen"`
	TopMove   string `json:"top_move,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
	CreatedAt string `json:"created_at"`
}

func runListMode(s *store.Store, last int, jsonOut bool) error {
	runs, err := s.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	rows := make([]listRow, len(runs))
	for i, rec := range runs {
		lr := listRow{
			RunID:     rec.RunID,
			FEN:       rec.FEN,
			CreatedAt: rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
		var report engine.Report
		if err := json.Unmarshal([]byte(rec.ReportJSON), &report); err == nil {
			if len(report.Prediction) > 0 {
				lr.TopMove = report.Prediction[0].Label
			}
			lr.ElapsedMs = report.ElapsedMs
		}
		rows[i] = lr
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-40s  %-8s  %8s  %s\n", "Run", "Position", "Top Move", "Elapsed", "Time")
	fmt.Printf("%-10s+-%-40s+-%-8s+-%8s+-%s\n",
		"----------", "----------------------------------------", "--------", "--------", "--------------------")
	for _, r := range rows {
		fen := r.FEN
		if len(fen) > 40 {
			fen = fen[:37] + "..."
		}
		top := r.TopMove
		if top == "" {
			top = "—"
		}
		fmt.Printf("%-10s  %-40s  %-8s  %6dms  %s\n", shortID(r.RunID), fen, top, r.ElapsedMs, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(s *store.Store, runID string, jsonOut bool) error {
	rec, err := s.GetRun(runID)
	if err != nil {
		return err
	}

	if jsonOut {
		var raw json.RawMessage = []byte(rec.ReportJSON)
		return printJSON(map[string]interface{}{
			"run_id":     rec.RunID,
			"fen":        rec.FEN,
			"created_at": rec.CreatedAt,
			"config":     json.RawMessage(rec.ConfigJSON),
			"report":     raw,
		})
	}

	var report engine.Report
	if err := json.Unmarshal([]byte(rec.ReportJSON), &report); err != nil {
		return fmt.Errorf("parse stored report: %w", err)
	}

	fmt.Printf("run:      %s\n", rec.RunID)
	fmt.Printf("position: %s\n", rec.FEN)
	fmt.Printf("created:  %s\n\n", rec.CreatedAt.Format("2006-01-02T15:04:05Z"))

	fmt.Println("prediction:")
	for i, e := range report.Prediction {
		fmt.Printf("  %d. %-8s %.4f\n", i+1, e.Label, e.Prob)
	}
	fmt.Println("\ntop attention paths:")
	for i, p := range report.Paths {
		fmt.Printf("  %d. score=%.6f  tokens=%v\n", i+1, p.Score, p.Tokens)
	}
	if report.Occlusion != nil {
		fmt.Printf("\nocclusion target: %s\n", report.Occlusion.TargetLabel)
	}
	fmt.Printf("\nelapsed: %dms\n", report.ElapsedMs)
	return nil
}

// #endregion detail-mode

// #region helpers

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

// #endregion helpers
