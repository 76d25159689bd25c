// Defines the trial state machine that turns a sequence of two-dice rolls
// into a terminal outcome and the chain of rolls that produced it.

package sim

import (
	"errors"
	"fmt"
)

// Roll is the sum of two six-sided dice, in [2,12].
type Roll = int

// Chain is the ordered list of rolls consumed by one trial.
type Chain []Roll

// Outcome is the terminal label of a trial.
type Outcome string

const (
	OutcomeSuccess Outcome = "Success"
	OutcomeFail    Outcome = "Fail"
)

// Outcomes lists the known outcomes in report order.
var Outcomes = []Outcome{OutcomeFail, OutcomeSuccess}

// IsValidOutcome returns true if label names a known outcome (case-sensitive).
func IsValidOutcome(label string) bool {
	switch Outcome(label) {
	case OutcomeSuccess, OutcomeFail:
		return true
	}
	return false
}

// Phase is the lifecycle position of a trial.
type Phase int

const (
	PhaseStart Phase = iota
	PhasePoint
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhasePoint:
		return "point"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is one node of the trial state machine.
// Point is only meaningful when Phase == PhasePoint.
type State struct {
	Phase Phase
	Point Roll
}

// StartState is the initial state of every trial.
var StartState = State{Phase: PhaseStart}

// Terminal returns true once the trial has succeeded or failed.
func (s State) Terminal() bool {
	return s.Phase == PhaseSucceeded || s.Phase == PhaseFailed
}

func (s State) String() string {
	if s.Phase == PhasePoint {
		return fmt.Sprintf("point(%d)", s.Point)
	}
	return s.Phase.String()
}

// Step computes the next state for one roll and reports whether it is terminal.
// Step is pure. Stepping a terminal state returns it unchanged.
func Step(s State, roll Roll) (State, bool) {
	switch s.Phase {
	case PhaseStart:
		switch roll {
		case 7, 11:
			return State{Phase: PhaseSucceeded}, true
		case 2, 3, 12:
			return State{Phase: PhaseFailed}, true
		default:
			return State{Phase: PhasePoint, Point: roll}, false
		}
	case PhasePoint:
		switch roll {
		case 7:
			return State{Phase: PhaseFailed}, true
		case s.Point:
			return State{Phase: PhaseSucceeded}, true
		default:
			return s, false
		}
	}
	return s, true
}

// TrialResult is the terminal outcome of one trial with its full chain.
// Chain is non-empty and its last roll caused termination.
type TrialResult struct {
	Outcome Outcome
	Chain   Chain
}

// Len returns the number of rolls in the chain.
func (r TrialResult) Len() int {
	return len(r.Chain)
}

// DefaultMaxRolls is the safety bound used by tests and replays of recorded
// roll sequences.
const DefaultMaxRolls = 10_000

// ErrTrialDidNotTerminate reports that a roll source kept a trial alive past
// its safety bound. It signals a broken source, never a legitimate outcome.
var ErrTrialDidNotTerminate = errors.New("trial did not terminate")

// RunTrial rolls src until the state machine reaches a terminal state.
// There is no bound on chain length.
func RunTrial(src RollSource) TrialResult {
	result, _ := runTrial(src, 0)
	return result
}

// RunTrialBounded is RunTrial with a safety guard: if maxRolls rolls are
// consumed without termination it returns ErrTrialDidNotTerminate and no result.
// maxRolls <= 0 disables the guard.
func RunTrialBounded(src RollSource, maxRolls int) (TrialResult, error) {
	return runTrial(src, maxRolls)
}

func runTrial(src RollSource, maxRolls int) (TrialResult, error) {
	state := StartState
	chain := make(Chain, 0, 4)
	for {
		if maxRolls > 0 && len(chain) >= maxRolls {
			return TrialResult{}, fmt.Errorf("%w after %d rolls (state %s)", ErrTrialDidNotTerminate, len(chain), state)
		}
		roll := src.Roll()
		chain = append(chain, roll)
		var done bool
		state, done = Step(state, roll)
		if done {
			break
		}
	}
	outcome := OutcomeFail
	if state.Phase == PhaseSucceeded {
		outcome = OutcomeSuccess
	}
	return TrialResult{Outcome: outcome, Chain: chain}, nil
}
