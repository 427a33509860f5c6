package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	tolerance := flag.Float64("tolerance", replay.DefaultTolerance, "max per-value drift against expectations")
	jsonOut := flag.Bool("json", false, "output the replayed report as JSON")
	timeout := flag.Duration("timeout", time.Minute, "replay deadline")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--tolerance f] [--json]")
		os.Exit(2)
	}

	f, err := replay.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := replay.Replay(ctx, f, *tolerance)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		data, err := json.MarshalIndent(out.Report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshal report: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	}

	if f.Description != "" {
		fmt.Printf("fixture: %s\n", f.Description)
	}
	fmt.Printf("position: %s\n", f.FEN)
	if len(out.Report.Prediction) > 0 {
		top := out.Report.Prediction[0]
		fmt.Printf("replayed top move: %s (%.4f)\n", top.Label, top.Prob)
	}

	if f.Expected == nil {
		fmt.Println("no expectations recorded; replay completed")
		return
	}
	if out.Passed() {
		fmt.Println("PASS: all expected artifacts reproduced")
		return
	}
	fmt.Printf("FAIL: %d mismatches\n", len(out.Mismatches))
	for _, m := range out.Mismatches {
		if m.Index < 0 {
			fmt.Printf("  %-16s got %s, want %s\n", m.Field, m.Got, m.Want)
		} else {
			fmt.Printf("  %-16s [%d] got %s, want %s\n", m.Field, m.Index, m.Got, m.Want)
		}
	}
	os.Exit(1)
}

// #endregion main
