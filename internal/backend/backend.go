package backend

import (
	"context"
	"fmt"

	"github.com/rooklens/rook-clf-demo/go-engine/internal/tensor"
)

// #region forward-result

// ForwardResult bundles everything one forward pass produces for the
// interpretability analyses. All tensors are read-only snapshots: analyses
// never mutate them, and a result never outlives its analysis request.
type ForwardResult struct {
	// ClassScores are the raw (pre-softmax) logits, one per candidate move.
	ClassScores []float32
	// Attentions is [L, 1, H, S, S]. Nil on results produced by ablation
	// replay, which records class scores only.
	Attentions *tensor.Attention
	// HiddenStates is [L+1, 1, S, D], embedding row included.
	HiddenStates *tensor.HiddenStates
	// ClassifierWeight is [D, C], constant per loaded model.
	ClassifierWeight *tensor.ClassifierWeight
}

// #endregion forward-result

// #region runner

// Runner executes forward passes against a loaded model. Implementations
// own the model/session handle and its concurrent-access contract; the
// analyses only ever call Forward sequentially within one request.
type Runner interface {
	// Forward runs one forward pass over an encoded position. The engine
	// never retries a failed call.
	Forward(ctx context.Context, tokens []int64) (*ForwardResult, error)
	// Labels returns the candidate-move vocabulary, index-aligned with
	// ClassScores.
	Labels() []string
}

// #endregion runner

// #region error

// Error reports a model-execution failure: backend unavailable, a failed
// run, or malformed output shapes. It is surfaced verbatim to the caller;
// nothing in this engine retries it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf wraps a failure as a *Error.
func Errorf(op, format string, args ...interface{}) *Error {
	return &Error{Op: op, Err: fmt.Errorf(format, args...)}
}

// #endregion error
