package replay

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/encoding"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/engine"
)

const (
	startFEN   = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	testLayers = 3
	testHeads  = 2
	testDim    = 5
)

var testLabels = []string{"e2e4", "d2d4", "g1f3"}

// testFixture builds a synthetic recording of the initial position with an
// ablation entry for every occupied square.
func testFixture(t *testing.T) *Fixture {
	t.Helper()
	rng := rand.New(rand.NewSource(11))

	attData := make([]float32, testLayers*testHeads*encoding.SeqLen*encoding.SeqLen)
	for i := range attData {
		attData[i] = rng.Float32()
	}
	hsData := make([]float32, (testLayers+1)*encoding.SeqLen*testDim)
	for i := range hsData {
		hsData[i] = rng.Float32() - 0.5
	}
	wData := make([]float32, testDim*len(testLabels))
	for i := range wData {
		wData[i] = rng.Float32() - 0.5
	}

	tokens, err := encoding.Encode(startFEN)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var ablations []FixtureAblation
	for sq := 0; sq < encoding.BoardTokens; sq++ {
		if encoding.IsEmptySquare(tokens, sq) {
			continue
		}
		ablations = append(ablations, FixtureAblation{
			Square:      sq,
			ClassScores: []float32{1.0, 3.0 - float32(sq%8)*0.1, 2.0},
		})
	}

	return &Fixture{
		Description: "synthetic initial-position recording",
		FEN:         startFEN,
		Config:      engine.DefaultConfig(),
		Baseline: FixtureForward{
			ClassScores: []float32{1.0, 3.0, 2.0},
			Labels:      testLabels,
			Attentions: FixtureTensor{
				Shape: []int64{testLayers, 1, testHeads, encoding.SeqLen, encoding.SeqLen},
				Data:  attData,
			},
			HiddenStates: FixtureTensor{
				Shape: []int64{testLayers + 1, 1, encoding.SeqLen, testDim},
				Data:  hsData,
			},
			ClassifierWeight: FixtureTensor{
				Shape: []int64{testDim, int64(len(testLabels))},
				Data:  wData,
			},
		},
		Ablations: ablations,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	f := testFixture(t)
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := SaveFixture(path, f); err != nil {
		t.Fatalf("SaveFixture: %v", err)
	}

	got, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if got.FEN != f.FEN || got.Description != f.Description {
		t.Fatalf("round-trip header mismatch: %+v", got)
	}
	if len(got.Ablations) != len(f.Ablations) {
		t.Fatalf("ablations = %d, want %d", len(got.Ablations), len(f.Ablations))
	}
	if len(got.Baseline.Attentions.Data) != len(f.Baseline.Attentions.Data) {
		t.Fatal("attention buffer truncated")
	}
	if got.Config.Paths.BeamWidth != f.Config.Paths.BeamWidth {
		t.Fatal("config not preserved")
	}
}

func TestLoadFixtureMissing(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestToForwardResult(t *testing.T) {
	f := testFixture(t)
	fwd, err := f.Baseline.ToForwardResult()
	if err != nil {
		t.Fatalf("ToForwardResult: %v", err)
	}
	if fwd.Attentions.Layers != testLayers || fwd.Attentions.Seq != encoding.SeqLen {
		t.Fatalf("attention shape %d/%d", fwd.Attentions.Layers, fwd.Attentions.Seq)
	}
	if fwd.HiddenStates.Layers != testLayers+1 || fwd.HiddenStates.Dim != testDim {
		t.Fatalf("hidden shape %d/%d", fwd.HiddenStates.Layers, fwd.HiddenStates.Dim)
	}
	if fwd.ClassifierWeight.Classes != len(testLabels) {
		t.Fatalf("classes = %d", fwd.ClassifierWeight.Classes)
	}
}

func TestToForwardResultBadShapes(t *testing.T) {
	f := testFixture(t)
	f.Baseline.Attentions.Shape = []int64{testLayers, 1, testHeads}
	if _, err := f.Baseline.ToForwardResult(); err == nil {
		t.Fatal("expected rank error")
	}

	f = testFixture(t)
	f.Baseline.HiddenStates.Data = f.Baseline.HiddenStates.Data[:10]
	if _, err := f.Baseline.ToForwardResult(); err == nil {
		t.Fatal("expected buffer-length error")
	}
}

func TestFromForwardResultRoundTrip(t *testing.T) {
	f := testFixture(t)
	fwd, err := f.Baseline.ToForwardResult()
	if err != nil {
		t.Fatalf("ToForwardResult: %v", err)
	}
	back := FromForwardResult(fwd, testLabels)
	if len(back.Attentions.Shape) != 5 || back.Attentions.Shape[3] != encoding.SeqLen {
		t.Fatalf("attention shape = %v", back.Attentions.Shape)
	}
	if _, err := back.ToForwardResult(); err != nil {
		t.Fatalf("re-converted fixture rejected: %v", err)
	}
}
