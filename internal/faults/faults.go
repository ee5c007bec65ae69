// Package faults defines the named fault kinds of the message pipeline and
// the recovery policy attached to each. Components wrap failures in exactly
// one of these kinds instead of improvising fallbacks at every call site.
//
// Recovery policy per kind:
//   - ClassificationError: the owning layer substitutes a conservative
//     default (topic gate: out-of-scope; emotion: neutral/1).
//   - GenerationError: the orchestrator attempts a personalized apology via
//     a second model call, then a static apology.
//   - StoreError: logged, treated as best-effort, never surfaced to the user.
//   - CrisisPathError: always recovered with the static resource fallback;
//     this path never degrades to silence.
package faults

import "fmt"

// ClassificationError reports that an external classifier returned no
// parseable answer for the given stage (topic gate, emotion, extraction).
type ClassificationError struct {
	Stage string
	Cause error
}

func (e *ClassificationError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("classification failed at %s", e.Stage)
	}
	return fmt.Sprintf("classification failed at %s: %v", e.Stage, e.Cause)
}

func (e *ClassificationError) Unwrap() error { return e.Cause }

// GenerationError reports that the model failed during reply synthesis.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("reply generation failed: %v", e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// StoreError reports a failed read or write against the document store.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// CrisisPathError reports a failure inside the tier-5 branch.
type CrisisPathError struct {
	Cause error
}

func (e *CrisisPathError) Error() string {
	return fmt.Sprintf("crisis path failed: %v", e.Cause)
}

func (e *CrisisPathError) Unwrap() error { return e.Cause }
