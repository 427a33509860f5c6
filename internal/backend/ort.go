package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/encoding"
	"github.com/rooklens/rook-clf-demo/go-engine/internal/tensor"
)

// #region config

// ORTConfig locates the exported interpretability model and its label
// vocabulary. The ONNX graph must expose the five outputs of the
// interpretability export: logits, decision_hidden, classifier_weight,
// attentions, hidden_states.
type ORTConfig struct {
	ModelPath      string
	LabelsPath     string // id2label JSON sidecar
	LibraryPath    string // empty = auto-detect libonnxruntime
	IntraOpThreads int
}

// DefaultORTConfig returns CPU-oriented defaults.
func DefaultORTConfig() ORTConfig {
	return ORTConfig{IntraOpThreads: 4}
}

// outputNames is the fixed output order requested from the session.
var outputNames = []string{
	"logits",
	"decision_hidden",
	"classifier_weight",
	"attentions",
	"hidden_states",
}

// #endregion config

// #region library-detect

// findORTLibrary looks for libonnxruntime in common install locations.
func findORTLibrary() string {
	if p := os.Getenv("ORT_LIB"); p != "" {
		return p
	}
	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.dylib",
		"/opt/homebrew/lib/libonnxruntime.dylib",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// #endregion library-detect

// #region runner

// ORTRunner executes forward passes through ONNX Runtime. It owns the
// session handle; Forward may not be called concurrently.
type ORTRunner struct {
	session *ort.DynamicAdvancedSession
	labels  []string
}

// NewORTRunner loads the model, validates its output surface, and loads the
// move-label vocabulary.
func NewORTRunner(cfg ORTConfig) (*ORTRunner, error) {
	lib := cfg.LibraryPath
	if lib == "" {
		lib = findORTLibrary()
	}
	if lib == "" {
		return nil, &Error{Op: "init", Err: fmt.Errorf("libonnxruntime not found; set ORT_LIB")}
	}
	ort.SetSharedLibraryPath(lib)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, &Error{Op: "init", Err: err}
		}
	}
	log.Printf("[ORT] library: %s", lib)

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, &Error{Op: "session options", Err: err}
	}
	defer opts.Destroy()
	opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll)
	if cfg.IntraOpThreads > 0 {
		opts.SetIntraOpNumThreads(cfg.IntraOpThreads)
		opts.SetInterOpNumThreads(1)
	}

	start := time.Now()
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, &Error{Op: "model info", Err: err}
	}
	inNames := make([]string, len(inputs))
	for i, in := range inputs {
		inNames[i] = in.Name
	}
	have := make(map[string]bool, len(outputs))
	for _, out := range outputs {
		have[out.Name] = true
	}
	for _, name := range outputNames {
		if !have[name] {
			return nil, Errorf("model info", "model %s lacks output %q; not an interpretability export", cfg.ModelPath, name)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inNames, outputNames, opts)
	if err != nil {
		return nil, &Error{Op: "open session", Err: err}
	}
	log.Printf("[ORT] model loaded: %s (%v)", cfg.ModelPath, time.Since(start))

	labels, err := loadLabels(cfg.LabelsPath)
	if err != nil {
		session.Destroy()
		return nil, err
	}
	log.Printf("[ORT] labels: %d classes", len(labels))

	return &ORTRunner{session: session, labels: labels}, nil
}

// Labels returns the candidate-move vocabulary.
func (r *ORTRunner) Labels() []string {
	return r.labels
}

// Close destroys the session and tears down the ORT environment.
func (r *ORTRunner) Close() error {
	if r.session != nil {
		r.session.Destroy()
		r.session = nil
	}
	return ort.DestroyEnvironment()
}

// #endregion runner

// #region forward

// Forward runs one forward pass over an encoded position and snapshots all
// interpretability outputs into Go-owned buffers.
func (r *ORTRunner) Forward(ctx context.Context, tokens []int64) (*ForwardResult, error) {
	if err := encoding.ValidateLength(tokens); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "forward", Err: err}
	}

	shape := ort.NewShape(1, int64(len(tokens)))
	ids := make([]int64, len(tokens))
	copy(ids, tokens)
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, &Error{Op: "input tensor", Err: err}
	}
	defer idsTensor.Destroy()

	mask := make([]int64, len(tokens))
	for i := range mask {
		mask[i] = 1
	}
	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, &Error{Op: "mask tensor", Err: err}
	}
	defer maskTensor.Destroy()

	outputs := make([]ort.Value, len(outputNames))
	if err := r.session.Run([]ort.Value{idsTensor, maskTensor}, outputs); err != nil {
		return nil, &Error{Op: "run", Err: err}
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	logits, _, err := extractFloat32(outputs[0], "logits")
	if err != nil {
		return nil, err
	}
	clfData, clfShape, err := extractFloat32(outputs[2], "classifier_weight")
	if err != nil {
		return nil, err
	}
	attData, attShape, err := extractFloat32(outputs[3], "attentions")
	if err != nil {
		return nil, err
	}
	hsData, hsShape, err := extractFloat32(outputs[4], "hidden_states")
	if err != nil {
		return nil, err
	}

	return assembleResult(logits, clfData, clfShape, attData, attShape, hsData, hsShape, len(r.labels))
}

// assembleResult shape-checks the raw output buffers and wraps them in
// typed tensors.
func assembleResult(logits, clfData []float32, clfShape []int64,
	attData []float32, attShape []int64,
	hsData []float32, hsShape []int64, numLabels int) (*ForwardResult, error) {

	if len(attShape) != 5 || attShape[1] != 1 {
		return nil, Errorf("forward", "attentions shape %v, want [L,1,H,S,S]", attShape)
	}
	if len(hsShape) != 4 || hsShape[1] != 1 {
		return nil, Errorf("forward", "hidden_states shape %v, want [L+1,1,S,D]", hsShape)
	}
	if len(clfShape) != 2 {
		return nil, Errorf("forward", "classifier_weight shape %v, want [D,C]", clfShape)
	}
	if attShape[3] != int64(encoding.SeqLen) || attShape[4] != int64(encoding.SeqLen) {
		return nil, Errorf("forward", "attentions sequence dims %v, want %d", attShape, encoding.SeqLen)
	}
	if hsShape[0] != attShape[0]+1 {
		return nil, Errorf("forward", "hidden_states has %d rows for %d attention layers", hsShape[0], attShape[0])
	}
	if hsShape[3] != clfShape[0] {
		return nil, Errorf("forward", "hidden width %d does not match classifier input %d", hsShape[3], clfShape[0])
	}
	if numLabels > 0 && clfShape[1] != int64(numLabels) {
		return nil, Errorf("forward", "classifier has %d classes, label vocabulary has %d", clfShape[1], numLabels)
	}
	if len(logits) != int(clfShape[1]) {
		return nil, Errorf("forward", "logits length %d, want %d", len(logits), clfShape[1])
	}

	att, err := tensor.AttentionFrom(attData, int(attShape[0]), 1, int(attShape[2]), int(attShape[3]))
	if err != nil {
		return nil, &Error{Op: "forward", Err: err}
	}
	hs, err := tensor.HiddenStatesFrom(hsData, int(hsShape[0]), 1, int(hsShape[2]), int(hsShape[3]))
	if err != nil {
		return nil, &Error{Op: "forward", Err: err}
	}
	clf, err := tensor.ClassifierWeightFrom(clfData, int(clfShape[0]), int(clfShape[1]))
	if err != nil {
		return nil, &Error{Op: "forward", Err: err}
	}

	return &ForwardResult{
		ClassScores:      logits,
		Attentions:       att,
		HiddenStates:     hs,
		ClassifierWeight: clf,
	}, nil
}

// extractFloat32 copies a float32 output tensor and its shape out of ORT
// memory before the Value is destroyed.
func extractFloat32(v ort.Value, name string) ([]float32, []int64, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, nil, Errorf("forward", "output %q has unexpected tensor type %T", name, v)
	}
	src := t.GetData()
	data := make([]float32, len(src))
	copy(data, src)
	shape := t.GetShape()
	dims := make([]int64, len(shape))
	copy(dims, shape)
	return data, dims, nil
}

// #endregion forward

// #region labels

// loadLabels reads an id2label JSON sidecar: either a {"0": "e2e4", ...}
// object or a plain array of labels.
func loadLabels(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		return asList, nil
	}

	var asMap map[string]string
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("parse labels %s: %w", path, err)
	}
	ids := make([]int, 0, len(asMap))
	byID := make(map[int]string, len(asMap))
	for k, v := range asMap {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("parse labels %s: bad id %q", path, k)
		}
		ids = append(ids, id)
		byID[id] = v
	}
	sort.Ints(ids)
	labels := make([]string, len(ids))
	for i, id := range ids {
		if id != i {
			return nil, fmt.Errorf("parse labels %s: ids not contiguous at %d", path, id)
		}
		labels[i] = byID[id]
	}
	return labels, nil
}

// #endregion labels
