package hsm

import (
	"log/slog"

	"github.com/orthohsm/hsm/internal/kind"
	"github.com/orthohsm/hsm/internal/muid"
)

// StateNode is an immutable, post-build node in the state tree: identity,
// structural kind, children, entry/exit actions, and outgoing transitions.
// The machine that built it is the sole owner; a StateNode outlives every
// Transition that references it.
type StateNode struct {
	name          string
	qualifiedName string
	parent        *StateNode
	kind          kind.Kind
	children      []*StateNode
	initialChild  *StateNode
	onEntry       []ActionFunc
	onExit        []ActionFunc
	transitions   map[string][]*Transition
}

func (n *StateNode) Name() string          { return n.name }
func (n *StateNode) QualifiedName() string { return n.qualifiedName }
func (n *StateNode) Parent() *StateNode    { return n.parent }
func (n *StateNode) Children() []*StateNode {
	return append([]*StateNode(nil), n.children...)
}

// TransitionsByEvent exposes n's outgoing transitions grouped by event
// name, in declaration order, for tooling such as pkg/dot.
func (n *StateNode) TransitionsByEvent() map[string][]*Transition { return n.transitions }

// Transition holds a source pointer, an optional target pointer, the event
// name it fires on, and optional guard/action. A nil target marks it
// targetless: it runs its action without changing configuration.
type Transition struct {
	source *StateNode
	target *StateNode
	event  string
	guard  GuardFunc
	action ActionFunc
}

func (t *Transition) Source() *StateNode { return t.source }
func (t *Transition) Target() *StateNode { return t.target }
func (t *Transition) Event() string      { return t.event }

// Machine is a built, runnable state machine instance. It exclusively owns
// its StateNode/Transition graph and its current configuration. Machine is
// not safe for concurrent use: the engine is single-threaded and
// cooperative, exactly like the state tree it interprets; callers must
// serialize access externally.
type Machine struct {
	root        *StateNode
	byName      map[string]*StateNode
	active      map[*StateNode]bool
	activeChild map[*StateNode]*StateNode
	running     bool
	queue       []Event
	processing  bool
	logger      *slog.Logger
	id          muid.MUID
	name        string
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// ID returns the machine instance's monotonic identifier.
func (m *Machine) ID() string { return m.id.String() }

// IsActive reports whether the machine has been entered and not yet left.
func (m *Machine) IsActive() bool { return m.running }

// InState reports whether the named state is currently active. The
// synthetic root ("root") tracks the machine's active flag.
func (m *Machine) InState(name string) bool {
	n, ok := m.byName[name]
	if !ok {
		return false
	}
	if n == m.root {
		return m.running
	}
	return m.active[n]
}

// Root returns the synthetic root node wrapping the declared tree.
func (m *Machine) Root() *StateNode { return m.root }

func (m *Machine) log(msg string, args ...any) {
	m.logger.Debug(msg, append([]any{"machine", m.name, "id", m.id.String()}, args...)...)
}

// Enter establishes the initial configuration: root, then its initial
// child (or all children if parallel), recursively. Idempotent.
func (m *Machine) Enter() {
	if m.running {
		return
	}
	m.running = true
	m.enterNode(m.root, Event{})
}

// Leave tears down the current configuration bottom-up: leaves first, root
// last. Idempotent. Further PushEvent calls are queued but produce no
// effect until Enter is called again.
func (m *Machine) Leave() {
	if !m.running {
		return
	}
	order := m.orderedSubset(m.active)
	for _, n := range order {
		for _, fn := range n.onExit {
			fn(m, Event{})
		}
		m.log("exit", "state", n.qualifiedName)
	}
	m.active = map[*StateNode]bool{}
	m.activeChild = map[*StateNode]*StateNode{}
	m.running = false
}

// PushEvent enqueues an event for processing. If no top-level processing
// loop is already running, this call drives it synchronously: it drains
// the queue one event at a time until empty, running a full microstep per
// event. Events enqueued by actions during that drain are processed by the
// same loop, never by a nested one.
func (m *Machine) PushEvent(name string, data any) {
	m.queue = append(m.queue, Event{Name: name, Data: data})
	if m.processing || !m.running {
		return
	}
	m.processing = true
	defer func() { m.processing = false }()
	for len(m.queue) > 0 {
		e := m.queue[0]
		m.queue = m.queue[1:]
		m.microstep(e)
	}
}

// markEnter marks n active and runs its entry actions, without recursing
// into default descendants.
func (m *Machine) markEnter(n *StateNode, e Event) {
	if m.active[n] {
		return
	}
	m.active[n] = true
	if n.parent != nil && !kind.Is(n.parent.kind, ParallelKind) {
		m.activeChild[n.parent] = n
	}
	for _, fn := range n.onEntry {
		fn(m, e)
	}
	m.log("enter", "state", n.qualifiedName)
}

// enterDefaults recurses into n's default descendants: its initial child
// for a compound state, or every child (in declaration order) for a
// parallel state.
func (m *Machine) enterDefaults(n *StateNode, e Event) {
	switch {
	case kind.Is(n.kind, ParallelKind):
		for _, c := range n.children {
			m.enterNode(c, e)
		}
	case kind.Is(n.kind, CompoundKind):
		if n.initialChild != nil {
			m.enterNode(n.initialChild, e)
		}
	}
}

// enterNode enters n and its default descendants.
func (m *Machine) enterNode(n *StateNode, e Event) {
	m.markEnter(n, e)
	m.enterDefaults(n, e)
}

// enterTransitionTarget performs the entry phase for a single accepted,
// targeted transition: ancestors of the target not already active
// (topmost first, including the transition's LCA), then the target, then
// its default descendants. Whenever the walk passes through a parallel
// ancestor, every other child of that ancestor is entered in full too.
func (m *Machine) enterTransitionTarget(tr *Transition, e Event) {
	lca := m.leastCommonAncestor(tr.source, tr.target)

	var path []*StateNode
	for n := tr.target; n != nil; n = n.parent {
		path = append([]*StateNode{n}, path...)
		if n == lca {
			break
		}
	}

	var prev *StateNode
	for _, next := range path {
		if prev != nil && kind.Is(prev.kind, ParallelKind) {
			for _, sib := range prev.children {
				if sib != next && !m.active[sib] {
					m.enterNode(sib, e)
				}
			}
		}
		m.markEnter(next, e)
		prev = next
	}
	m.enterDefaults(prev, e)
}

// orderedSubset returns the nodes of the current configuration that are in
// set, ordered leaves-first / root-last: a parallel node's children exit in
// reverse declaration order, ahead of the parent; a compound node's active
// child exits before the parent.
func (m *Machine) orderedSubset(set map[*StateNode]bool) []*StateNode {
	var list []*StateNode
	var walk func(n *StateNode)
	walk = func(n *StateNode) {
		if set[n] {
			list = append([]*StateNode{n}, list...)
		}
		if kind.Is(n.kind, ParallelKind) {
			for _, c := range n.children {
				if m.active[c] {
					walk(c)
				}
			}
		} else if kind.Is(n.kind, CompoundKind) {
			if ac, ok := m.activeChild[n]; ok {
				walk(ac)
			}
		}
	}
	walk(m.root)
	return list
}

// activeAtomicStates enumerates the currently active atomic states in
// deterministic depth-first pre-order.
func (m *Machine) activeAtomicStates() []*StateNode {
	var result []*StateNode
	var walk func(n *StateNode)
	walk = func(n *StateNode) {
		if !m.active[n] {
			return
		}
		if len(n.children) == 0 {
			result = append(result, n)
			return
		}
		if kind.Is(n.kind, ParallelKind) {
			for _, c := range n.children {
				walk(c)
			}
			return
		}
		if ac, ok := m.activeChild[n]; ok {
			walk(ac)
		}
	}
	walk(m.root)
	return result
}

// isDescendant reports whether against is a (strict or non-strict, per
// orSelf) ancestor of check.
func isDescendant(check, against *StateNode, orSelf bool) bool {
	if orSelf && check == against {
		return true
	}
	for p := check.parent; p != nil; p = p.parent {
		if p == against {
			return true
		}
	}
	return false
}

// leastCommonAncestor ascends a's parent chain, then b's, stopping at the
// first node common to both. Two nodes in the same machine always share
// the root.
func (m *Machine) leastCommonAncestor(a, b *StateNode) *StateNode {
	ancestors := map[*StateNode]bool{}
	for n := a; n != nil; n = n.parent {
		ancestors[n] = true
	}
	for n := b; n != nil; n = n.parent {
		if ancestors[n] {
			return n
		}
	}
	return m.root
}

// exitSet computes the set of currently active descendants of a
// transition's LCA(source, target), plus the LCA itself if active.
// Targetless transitions have an empty exit set.
//
// Including the LCA is specification-literal (an intra-compound transition
// re-enters, and so re-runs entry/exit actions on, its own parent) and
// diverges from instantFSM.h's listExitStates, which only ever uses the
// common ancestor as a BFS root and adds its active descendants to the exit
// list, never the ancestor itself.
func (m *Machine) exitSet(tr *Transition) map[*StateNode]bool {
	set := map[*StateNode]bool{}
	if tr.target == nil {
		return set
	}
	lca := m.leastCommonAncestor(tr.source, tr.target)
	if m.active[lca] {
		set[lca] = true
	}
	var collect func(n *StateNode)
	collect = func(n *StateNode) {
		for _, c := range n.children {
			if m.active[c] {
				set[c] = true
				collect(c)
			}
		}
	}
	collect(lca)
	return set
}

func disjoint(a, b map[*StateNode]bool) bool {
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	for n := range small {
		if big[n] {
			return false
		}
	}
	return true
}

// selectCandidates finds, for each active atomic state, every transition
// bound to e.Name at the first ancestor level (starting at the state
// itself) where at least one such transition's guard passes. Multiple
// transitions at that same level may all match; once any of them does, the
// ascent for that atomic state stops.
func (m *Machine) selectCandidates(e Event) []*Transition {
	var candidates []*Transition
	for _, atomic := range m.activeAtomicStates() {
		for anc := atomic; anc != nil; anc = anc.parent {
			matched := false
			for _, tr := range anc.transitions[e.Name] {
				if tr.guard == nil || tr.guard(m, e) {
					candidates = append(candidates, tr)
					matched = true
				}
			}
			if matched {
				break
			}
		}
	}
	return candidates
}

// resolveConflicts walks candidates in discovery order, keeping an
// accepted set whose exit sets are pairwise disjoint. A candidate that
// conflicts with an accepted transition replaces it if its target is a
// descendant of the accepted transition's target; otherwise it is
// preempted and dropped.
func (m *Machine) resolveConflicts(candidates []*Transition) []*Transition {
	var accepted []*Transition
	exitSets := map[*Transition]map[*StateNode]bool{}

	for _, c := range candidates {
		cExit := m.exitSet(c)
		conflict := -1
		for i, a := range accepted {
			if !disjoint(cExit, exitSets[a]) {
				conflict = i
				break
			}
		}
		if conflict == -1 {
			accepted = append(accepted, c)
			exitSets[c] = cExit
			continue
		}
		a := accepted[conflict]
		if c.target != nil && a.target != nil && isDescendant(c.target, a.target, false) {
			delete(exitSets, a)
			accepted[conflict] = c
			exitSets[c] = cExit
		}
	}
	return accepted
}

// microstep runs the full select -> resolve -> exit -> action -> enter
// cycle for a single event.
func (m *Machine) microstep(e Event) {
	accepted := m.resolveConflicts(m.selectCandidates(e))
	if len(accepted) == 0 {
		return
	}

	union := map[*StateNode]bool{}
	for _, tr := range accepted {
		for n := range m.exitSet(tr) {
			union[n] = true
		}
	}
	for _, n := range m.orderedSubset(union) {
		for _, fn := range n.onExit {
			fn(m, e)
		}
		m.log("exit", "state", n.qualifiedName, "event", e.Name)
		delete(m.active, n)
		if ac, ok := m.activeChild[n.parent]; n.parent != nil && ok && ac == n {
			delete(m.activeChild, n.parent)
		}
	}

	for _, tr := range accepted {
		if tr.action != nil {
			tr.action(m, e)
		}
		m.log("transition", "event", e.Name, "source", tr.source.qualifiedName)
	}

	for _, tr := range accepted {
		if tr.target != nil {
			m.enterTransitionTarget(tr, e)
		}
	}
}
