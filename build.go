package hsm

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/orthohsm/hsm/internal/kind"
	"github.com/orthohsm/hsm/internal/muid"
)

// nodeDef is the raw, unresolved form of a declared state, before names have
// been checked for uniqueness and transition targets resolved.
type nodeDef struct {
	name        string
	initial     bool
	parallel    bool
	children    []*nodeDef
	onEntry     []ActionFunc
	onExit      []ActionFunc
	transitions []*transitionDef
}

type transitionDef struct {
	event      string
	hasEvent   bool
	targetName string
	hasTarget  bool
	guard      GuardFunc
	action     ActionFunc
}

// StateOption mutates the node it is declared within: applied to the node
// itself for flags and callbacks (Initial, Parallel, OnEntry, ...), applied
// to the enclosing node for State, which appends a new child.
type StateOption func(n *nodeDef)

// TransitionOption mutates the transition it is declared within.
type TransitionOption func(t *transitionDef)

// State declares a child state named name. Order among siblings determines
// entry/exit ordering.
func State(name string, opts ...StateOption) StateOption {
	return func(parent *nodeDef) {
		child := &nodeDef{name: name}
		for _, o := range opts {
			o(child)
		}
		parent.children = append(parent.children, child)
	}
}

// Initial flags the state it's declared within as its parent's initial
// child. At most one child of a non-parallel compound parent may carry it.
func Initial() StateOption {
	return func(n *nodeDef) { n.initial = true }
}

// Parallel flags the state it's declared within as an orthogonal-region
// container: all of its children are active whenever it is.
func Parallel() StateOption {
	return func(n *nodeDef) { n.parallel = true }
}

// OnEntry attaches an entry action to the enclosing state, run outer before
// inner when the state is entered.
func OnEntry(fn ActionFunc) StateOption {
	return func(n *nodeDef) { n.onEntry = append(n.onEntry, fn) }
}

// OnExit attaches an exit action to the enclosing state, run innermost
// first when the state is exited.
func OnExit(fn ActionFunc) StateOption {
	return func(n *nodeDef) { n.onExit = append(n.onExit, fn) }
}

// On attaches a targetless transition on event to the enclosing state: fn
// runs when event matches while the state is active, and configuration is
// unchanged. Equivalent to Transition(Event(event), Action(fn)).
func On(event string, fn ActionFunc) StateOption {
	return func(n *nodeDef) {
		n.transitions = append(n.transitions, &transitionDef{event: event, hasEvent: true, action: fn})
	}
}

// Transition attaches an outgoing transition to the enclosing state, built
// from Event, Target, Action, and Condition fragments.
func Transition(opts ...TransitionOption) StateOption {
	return func(n *nodeDef) {
		t := &transitionDef{}
		for _, o := range opts {
			o(t)
		}
		if !t.hasEvent {
			traceback()(errors.New("transition must declare an event"))
		}
		n.transitions = append(n.transitions, t)
	}
}

// Event binds the event name a transition fires on.
func Event(name string) TransitionOption {
	return func(t *transitionDef) {
		if t.hasEvent {
			traceback()(&EventAlreadySpecifiedError{Event: name})
		}
		t.event, t.hasEvent = name, true
	}
}

// Target names the state a transition moves into. Omitting Target makes
// the transition targetless: its action runs without changing configuration.
func Target(name string) TransitionOption {
	return func(t *transitionDef) {
		if t.hasTarget {
			traceback()(&TargetAlreadySpecifiedError{Target: name})
		}
		t.targetName, t.hasTarget = name, true
	}
}

// Action attaches the callback a transition runs after the exit phase and
// before the entry phase of the microstep that accepts it.
func Action(fn ActionFunc) TransitionOption {
	return func(t *transitionDef) {
		if t.action != nil {
			traceback()(&ActionAlreadySpecifiedError{})
		}
		t.action = fn
	}
}

// Condition attaches a guard; a false result disables the transition for
// the event that would otherwise select it.
func Condition(fn GuardFunc) TransitionOption {
	return func(t *transitionDef) {
		if t.guard != nil {
			traceback()(&ConditionAlreadySpecifiedError{})
		}
		t.guard = fn
	}
}

// Config configures a Machine at construction time.
type Config struct {
	// Name identifies the machine instance in log records; defaults to its
	// muid-generated ID's string form when empty.
	Name string
	// Logger receives Debug-level records for every state entered, state
	// exited, and transition fired. Defaults to slog.Default().
	Logger *slog.Logger
}

// New builds a Machine from a declaration rooted at a synthetic "root"
// state. Declaration errors are returned rather than panicking; see the
// error types in errors.go for the taxonomy.
func New(cfg Config, opts ...StateOption) (m *Machine, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()

	root := &nodeDef{name: "root"}
	for _, o := range opts {
		o(root)
	}

	names := map[string]*nodeDef{}
	var registerNames func(n *nodeDef)
	registerNames = func(n *nodeDef) {
		if _, exists := names[n.name]; exists {
			traceback()(&DuplicateStateIdentifierError{Name: n.name})
		}
		names[n.name] = n
		for _, c := range n.children {
			registerNames(c)
		}
	}
	registerNames(root)

	byName := map[string]*StateNode{}
	var buildNode func(n *nodeDef, parent *StateNode) *StateNode
	buildNode = func(n *nodeDef, parent *StateNode) *StateNode {
		sn := &StateNode{
			name:        n.name,
			parent:      parent,
			onEntry:     n.onEntry,
			onExit:      n.onExit,
			transitions: map[string][]*Transition{},
		}
		if parent == nil {
			sn.qualifiedName = "/" + n.name
		} else {
			sn.qualifiedName = parent.qualifiedName + "/" + n.name
		}
		byName[n.name] = sn

		for _, c := range n.children {
			sn.children = append(sn.children, buildNode(c, sn))
		}

		switch {
		case len(sn.children) == 0:
			sn.kind = AtomicKind
		case n.parallel:
			sn.kind = ParallelKind
		default:
			sn.kind = CompoundKind
		}

		if !n.parallel && len(sn.children) > 0 {
			var initial *StateNode
			for i, c := range n.children {
				if c.initial {
					if initial != nil {
						traceback()(&AlreadyHasInitialError{Parent: n.name})
					}
					initial = sn.children[i]
				}
			}
			if initial == nil {
				traceback()(&NoInitialStateError{Parent: n.name})
			}
			sn.initialChild = initial
		}

		return sn
	}
	root2 := buildNode(root, nil)

	var resolveTransitions func(n *nodeDef, sn *StateNode)
	resolveTransitions = func(n *nodeDef, sn *StateNode) {
		for _, td := range n.transitions {
			tr := &Transition{source: sn, event: td.event, guard: td.guard, action: td.action}
			if td.hasTarget {
				target, ok := byName[td.targetName]
				if !ok {
					traceback()(&NoSuchStateError{Target: td.targetName})
				}
				tr.target = target
			}
			sn.transitions[td.event] = append(sn.transitions[td.event], tr)
		}
		for i, c := range n.children {
			resolveTransitions(c, sn.children[i])
		}
	}
	resolveTransitions(root, root2)

	id := muid.Make()
	name := cfg.Name
	if name == "" {
		name = id.String()
	}
	m = &Machine{
		root:        root2,
		byName:      byName,
		active:      map[*StateNode]bool{},
		activeChild: map[*StateNode]*StateNode{},
		logger:      resolveLogger(cfg.Logger),
		id:          id,
		name:        name,
	}
	return m, nil
}

// IsAtomic reports whether n is a leaf state. Structural, not kind-tag
// based: a leaf is exactly a node with no children.
func (n *StateNode) IsAtomic() bool { return len(n.children) == 0 }

// IsParallel reports whether n is an orthogonal-region container.
func (n *StateNode) IsParallel() bool { return kind.Is(n.kind, ParallelKind) }

// IsCompound reports whether n has children (parallel states are compound).
func (n *StateNode) IsCompound() bool { return kind.Is(n.kind, CompoundKind) }
