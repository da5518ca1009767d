package tool

import (
	"context"
	"fmt"
)

// DefaultMaxAttempts is the attempt budget used when a Loop leaves MaxAttempts unset.
const DefaultMaxAttempts = 3

// Phase names one step of a Ralph Loop attempt.
type Phase string

const (
	PhaseObserve     Phase = "observe"
	PhaseExecute     Phase = "execute"
	PhaseVerify      Phase = "verify"
	PhaseSelfCorrect Phase = "self_correct"
)

// TraceEntry records one executed phase.
type TraceEntry struct {
	Step Phase  `json:"step"`
	Note string `json:"note"`
}

// LoopStatus is the terminal state of a loop run.
type LoopStatus string

const (
	LoopSuccess LoopStatus = "success"
	LoopFailed  LoopStatus = "failed"
)

// CorrectionFunc derives the next attempt's parameters after a failed
// verification. Returning false means no further attempt is possible.
type CorrectionFunc[P any] func(params P, reason string) (P, bool)

// Loop is a bounded observe/execute/verify/self-correct executor.
//
// P is the per-attempt parameter set and must be comparable so the loop can
// refuse a correction that repeats an already-tried set. S is the observed
// state and O the produced output.
type Loop[P comparable, S any, O any] struct {
	Name        string
	MaxAttempts int

	Observe func(ctx context.Context, attempt int, params P) (S, error)
	Execute func(ctx context.Context, params P, observed S) O
	Verify  func(output O) error
	Correct CorrectionFunc[P]

	// Optional trace wording.
	ObserveNote func(attempt int, params P) string
	ExecuteNote func(observed S) string
	VerifyNote  string
}

// LoopResult is the typed outcome of Loop.Run. A failed run is a normal
// result, never an error.
type LoopResult[P any, O any] struct {
	Status   LoopStatus
	Output   O
	Params   P
	Attempts int
	Reason   string
	Trace    []TraceEntry
}

// Succeeded reports whether verification passed on some attempt.
func (r LoopResult[P, O]) Succeeded() bool {
	return r.Status == LoopSuccess
}

// Run executes the loop starting from initial. It returns as soon as one
// attempt verifies. An observe error is absorbed once per run as a retry with
// the same parameters; it still consumes an attempt.
func (l Loop[P, S, O]) Run(ctx context.Context, initial P) LoopResult[P, O] {
	maxAttempts := l.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	result := LoopResult[P, O]{
		Status: LoopFailed,
		Params: initial,
		Trace:  make([]TraceEntry, 0, maxAttempts*4),
	}
	tried := make(map[P]struct{}, maxAttempts)
	params := initial
	transientUsed := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			result.Reason = err.Error()
			result.trace(PhaseSelfCorrect, "context done: "+err.Error())
			break
		}
		result.Attempts = attempt
		result.Params = params
		tried[params] = struct{}{}

		result.trace(PhaseObserve, l.observeNote(attempt, params))
		observed, err := l.Observe(ctx, attempt, params)
		if err != nil {
			reason := "observe failed: " + err.Error()
			result.Reason = reason
			l.emit(attempt, false, reason)
			if transientUsed || attempt == maxAttempts {
				result.trace(PhaseSelfCorrect, reason+"; giving up")
				break
			}
			transientUsed = true
			result.trace(PhaseSelfCorrect, reason+"; retrying")
			continue
		}

		result.trace(PhaseExecute, l.executeNote(observed))
		output := l.Execute(ctx, params, observed)
		result.Output = output

		result.trace(PhaseVerify, l.verifyNote())
		verifyErr := l.verify(output)
		if verifyErr == nil {
			result.Status = LoopSuccess
			result.Reason = ""
			l.emit(attempt, true, "")
			return result
		}

		reason := verifyErr.Error()
		result.Reason = reason
		l.emit(attempt, false, reason)
		if attempt == maxAttempts {
			result.trace(PhaseSelfCorrect, "verify failed: "+reason+"; attempts exhausted")
			break
		}

		next, ok := l.correct(params, reason)
		if !ok {
			result.trace(PhaseSelfCorrect, "verify failed: "+reason+"; no further correction")
			break
		}
		if _, seen := tried[next]; seen {
			result.trace(PhaseSelfCorrect, "verify failed: "+reason+"; correction repeats a tried parameter set")
			break
		}
		result.trace(PhaseSelfCorrect, "verify failed: "+reason+"; retrying")
		params = next
	}

	return result
}

func (r *LoopResult[P, O]) trace(step Phase, note string) {
	r.Trace = append(r.Trace, TraceEntry{Step: step, Note: note})
}

func (l Loop[P, S, O]) verify(output O) error {
	if l.Verify == nil {
		return nil
	}
	return l.Verify(output)
}

func (l Loop[P, S, O]) correct(params P, reason string) (P, bool) {
	if l.Correct == nil {
		var zero P
		return zero, false
	}
	return l.Correct(params, reason)
}

func (l Loop[P, S, O]) observeNote(attempt int, params P) string {
	if l.ObserveNote != nil {
		return l.ObserveNote(attempt, params)
	}
	return fmt.Sprintf("observe (attempt %d)", attempt)
}

func (l Loop[P, S, O]) executeNote(observed S) string {
	if l.ExecuteNote != nil {
		return l.ExecuteNote(observed)
	}
	return "execute"
}

func (l Loop[P, S, O]) verifyNote() string {
	if l.VerifyNote != "" {
		return l.VerifyNote
	}
	return "verify output"
}

func (l Loop[P, S, O]) emit(attempt int, passed bool, reason string) {
	emitAttemptObservation(AttemptObservation{
		Loop:    l.Name,
		Attempt: attempt,
		Passed:  passed,
		Reason:  reason,
	})
}
