// Package hsm implements an embeddable hierarchical state machine engine in
// the Harel/SCXML tradition: compound states, orthogonal (parallel) regions,
// initial-child designation, entry/exit actions, and guarded event-driven
// transitions, interpreted against a user-declared state tree.
package hsm

import "github.com/orthohsm/hsm/internal/kind"

// Kind tags a StateNode's structural role. Atomic/compound/parallel is a
// field, not a class hierarchy: ParallelKind inherits from CompoundKind so
// kind.Is(n.kind, CompoundKind) reports true for both.
//
// NullKind must be minted first: kind.Make's first return value is 0, which
// internal/kind also treats as the base-list terminator, so a real kind can
// never be 0 or Is(_, 0) matches every kind. Reserving it here as a sentinel
// keeps AtomicKind, CompoundKind, and ParallelKind off that value.
var (
	NullKind = kind.Make()

	AtomicKind   = kind.Make()
	CompoundKind = kind.Make()
	ParallelKind = kind.Make(CompoundKind)
)

// Event is pushed into a Machine and carries an optional payload. The
// engine treats Data opaquely; actions and guards type-assert it themselves.
type Event struct {
	Name string
	Data any
}

// ActionFunc is invoked for entry, exit, and transition actions. The
// declaration surface also accepts nullary callbacks via Nullary, which
// adapts them to this signature.
type ActionFunc func(m *Machine, e Event)

// GuardFunc evaluates a transition's condition. Absent guard means
// "always true". The declaration surface also accepts nullary predicates
// via NullaryGuard.
type GuardFunc func(m *Machine, e Event) bool

// Nullary adapts a callback that ignores the machine and event into an
// ActionFunc, for callers who don't need either.
func Nullary(fn func()) ActionFunc {
	return func(*Machine, Event) { fn() }
}

// NullaryGuard adapts a predicate that ignores the machine and event into a
// GuardFunc.
func NullaryGuard(fn func() bool) GuardFunc {
	return func(*Machine, Event) bool { return fn() }
}
