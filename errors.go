package hsm

import (
	"fmt"
	"runtime"
)

// AlreadyHasInitialError is raised when a second child of a compound,
// non-parallel parent is flagged initial.
type AlreadyHasInitialError struct {
	Parent string
}

func (e *AlreadyHasInitialError) Error() string {
	return fmt.Sprintf("state %q already has an initial child", e.Parent)
}

// NoInitialStateError is raised when a compound, non-parallel parent with at
// least one child has no child flagged initial.
type NoInitialStateError struct {
	Parent string
}

func (e *NoInitialStateError) Error() string {
	return fmt.Sprintf("state %q has children but no initial child", e.Parent)
}

// DuplicateStateIdentifierError is raised when two states share a name.
type DuplicateStateIdentifierError struct {
	Name string
}

func (e *DuplicateStateIdentifierError) Error() string {
	return fmt.Sprintf("state %q already defined", e.Name)
}

// NoSuchStateError is raised when a transition target names a state that
// does not exist.
type NoSuchStateError struct {
	Target string
}

func (e *NoSuchStateError) Error() string {
	return fmt.Sprintf("no such state %q", e.Target)
}

// TargetAlreadySpecifiedError is raised when a transition declares two targets.
type TargetAlreadySpecifiedError struct {
	Target string
}

func (e *TargetAlreadySpecifiedError) Error() string {
	return fmt.Sprintf("transition already has a target, cannot also target %q", e.Target)
}

// ActionAlreadySpecifiedError is raised when a transition declares two actions.
type ActionAlreadySpecifiedError struct{}

func (e *ActionAlreadySpecifiedError) Error() string {
	return "transition already has an action"
}

// ConditionAlreadySpecifiedError is raised when a transition declares two guards.
type ConditionAlreadySpecifiedError struct{}

func (e *ConditionAlreadySpecifiedError) Error() string {
	return "transition already has a condition"
}

// EventAlreadySpecifiedError is raised when a transition declares two events.
type EventAlreadySpecifiedError struct {
	Event string
}

func (e *EventAlreadySpecifiedError) Error() string {
	return fmt.Sprintf("transition already has an event, cannot also bind %q", e.Event)
}

// traceback returns a closure that panics with the call site of the builder
// function two frames up, wrapped around err so errors.As still reaches the
// typed cause. New recovers it and turns it back into a returned error.
func traceback() func(err error) {
	_, file, line, _ := runtime.Caller(2)
	return func(err error) {
		panic(fmt.Errorf("%s:%d: %w", file, line, err))
	}
}
