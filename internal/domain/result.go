package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResultKind discriminates the cases of a task Result.
type ResultKind string

// Result kinds.
const (
	// ResultKindOutput is the final output of a successful execution.
	ResultKindOutput ResultKind = "output"
	// ResultKindPartial is intermediate output recorded while a task runs,
	// such as the plan produced in the PLANNING phase.
	ResultKindPartial ResultKind = "partial"
	// ResultKindKilled records an administrative kill and whatever result
	// the task held when it was killed.
	ResultKindKilled ResultKind = "killed"
)

// Result is the task payload as a tagged union. Exactly one of Output or
// Killed is populated, selected by Kind.
type Result struct {
	Kind   ResultKind      `json:"kind"`
	Output json.RawMessage `json:"output,omitempty"`
	Killed *Kill           `json:"killed,omitempty"`
}

// Kill describes an administrative kill.
type Kill struct {
	By     string    `json:"killed_by"`
	Reason string    `json:"kill_reason"`
	At     time.Time `json:"killed_at"`
	// Prior is the result the task held before the kill, if any.
	Prior *Result `json:"prior,omitempty"`
}

// OutputResult wraps a final execution output.
func OutputResult(output json.RawMessage) *Result {
	return &Result{Kind: ResultKindOutput, Output: output}
}

// PartialResult wraps intermediate output of a running task.
func PartialResult(output json.RawMessage) *Result {
	return &Result{Kind: ResultKindPartial, Output: output}
}

// KilledResult records a kill on top of the prior result. A prior kill is
// never nested: killing is only possible from a running status.
func KilledResult(by, reason string, at time.Time, prior *Result) *Result {
	return &Result{
		Kind: ResultKindKilled,
		Killed: &Kill{
			By:     by,
			Reason: reason,
			At:     at,
			Prior:  prior,
		},
	}
}

// Validate checks that the populated fields match the kind.
func (r *Result) Validate() error {
	switch r.Kind {
	case ResultKindOutput, ResultKindPartial:
		if r.Killed != nil {
			return fmt.Errorf("%w: %s result carries kill data", ErrInvalidResult, r.Kind)
		}
		if len(r.Output) > 0 && !json.Valid(r.Output) {
			return fmt.Errorf("%w: output is not valid JSON", ErrInvalidResult)
		}
	case ResultKindKilled:
		if r.Killed == nil {
			return fmt.Errorf("%w: killed result without kill data", ErrInvalidResult)
		}
		if len(r.Output) > 0 {
			return fmt.Errorf("%w: killed result carries output", ErrInvalidResult)
		}
		if r.Killed.Prior != nil {
			if r.Killed.Prior.Kind == ResultKindKilled {
				return fmt.Errorf("%w: nested kill", ErrInvalidResult)
			}
			return r.Killed.Prior.Validate()
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidResult, r.Kind)
	}
	return nil
}

// MarshalResult encodes a result for storage. A nil result encodes as nil.
func MarshalResult(r *Result) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// UnmarshalResult decodes a stored result. Empty input yields nil.
func UnmarshalResult(data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
