package hsm_test

import (
	"slices"
	"testing"

	"github.com/orthohsm/hsm"
)

// trace records callback firing order. The engine is single-threaded and
// cooperative, so unlike a concurrent test harness this needs no locking.
type trace struct {
	events []string
}

func (t *trace) record(name string) hsm.ActionFunc {
	return func(*hsm.Machine, hsm.Event) { t.events = append(t.events, name) }
}

func (t *trace) reset() { t.events = nil }

func mustBuild(t *testing.T, opts ...hsm.StateOption) *hsm.Machine {
	t.Helper()
	m, err := hsm.New(hsm.Config{Name: t.Name()}, opts...)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return m
}

func TestCanonical(t *testing.T) {
	m := mustBuild(t)
	if m.InState("root") {
		t.Fatal("root should be inactive before Enter")
	}
	m.Enter()
	if !m.InState("root") {
		t.Fatal("root should be active after Enter")
	}
	m.Leave()
	if m.InState("root") {
		t.Fatal("root should be inactive after Leave")
	}
}

func TestNestedEntryOrder(t *testing.T) {
	tr := &trace{}
	m := mustBuild(t,
		hsm.State("S1", hsm.Initial(), hsm.OnEntry(tr.record("S1 entry")),
			hsm.State("S1A", hsm.Initial(), hsm.OnEntry(tr.record("S1A entry")),
				hsm.State("S1Ai", hsm.Initial(), hsm.OnEntry(tr.record("S1Ai entry"))),
			),
		),
	)
	m.Enter()
	want := []string{"S1 entry", "S1A entry", "S1Ai entry"}
	if !slices.Equal(tr.events, want) {
		t.Fatalf("got %v, want %v", tr.events, want)
	}
}

func TestNestedExitOrder(t *testing.T) {
	tr := &trace{}
	m := mustBuild(t,
		hsm.State("S1", hsm.Initial(),
			hsm.State("S1A", hsm.Initial(),
				hsm.State("S1Ai", hsm.Initial(), hsm.OnExit(tr.record("S1Ai exit"))),
				hsm.State("S1Aother"),
				hsm.OnExit(tr.record("S1A exit")),
			),
			hsm.State("S1other"),
			hsm.OnExit(tr.record("S1 exit")),
		),
		hsm.State("S2"),
	)
	m.Enter()
	tr.reset()
	m.Leave()
	want := []string{"S1Ai exit", "S1A exit", "S1 exit"}
	if !slices.Equal(tr.events, want) {
		t.Fatalf("got %v, want %v", tr.events, want)
	}
}

func TestTransitionIntoParallel(t *testing.T) {
	m := mustBuild(t,
		hsm.State("S1", hsm.Initial(),
			hsm.Transition(hsm.Event("event"), hsm.Target("S2B")),
		),
		hsm.State("S2", hsm.Parallel(),
			hsm.State("S2A"),
			hsm.State("S2B"),
		),
	)
	m.Enter()
	if !m.InState("S1") || m.InState("S2") {
		t.Fatalf("expected only S1 active before event")
	}
	m.PushEvent("event", nil)
	if m.InState("S1") {
		t.Fatal("S1 should have exited")
	}
	if !m.InState("S2") || !m.InState("S2A") || !m.InState("S2B") {
		t.Fatal("S2, S2A, and S2B should all be active")
	}
}

func TestParallelConflict(t *testing.T) {
	tr := &trace{}
	m := mustBuild(t,
		hsm.State("S1", hsm.Initial(), hsm.Parallel(),
			hsm.OnEntry(tr.record("S1 entry")),
			hsm.OnExit(tr.record("S1 exit")),
			hsm.State("SA",
				hsm.OnEntry(tr.record("SA entry")),
				hsm.OnExit(tr.record("SA exit")),
				hsm.Transition(hsm.Event("event"), hsm.Target("S2"), hsm.Action(tr.record("event"))),
			),
			hsm.State("SB",
				hsm.OnEntry(tr.record("SB entry")),
				hsm.OnExit(tr.record("SB exit")),
				hsm.Transition(hsm.Event("event"), hsm.Target("S3")),
			),
		),
		hsm.State("S2", hsm.OnEntry(tr.record("S2 entry"))),
		hsm.State("S3", hsm.OnEntry(tr.record("S3 entry"))),
	)
	m.Enter()
	tr.reset()
	m.PushEvent("event", nil)
	want := []string{"SB exit", "SA exit", "S1 exit", "event", "S2 entry"}
	if !slices.Equal(tr.events, want) {
		t.Fatalf("got %v, want %v", tr.events, want)
	}
	if !m.InState("S2") || m.InState("S3") {
		t.Fatal("only S2 should be active: the first-discovered transition wins")
	}
}

func TestTargetlessUnderParallel(t *testing.T) {
	tr := &trace{}
	m := mustBuild(t,
		hsm.State("root_parallel", hsm.Initial(), hsm.Parallel(),
			hsm.State("S1",
				hsm.Transition(hsm.Event("event"), hsm.Action(tr.record("targetless in S1"))),
				hsm.On("event", tr.record("OnEvent in S1")),
			),
			hsm.State("S2",
				hsm.State("S2A", hsm.Initial(),
					hsm.Transition(hsm.Event("event"), hsm.Action(tr.record("targetless in S2A"))),
					hsm.On("event", tr.record("OnEvent in S2A")),
				),
				hsm.State("S2B"),
			),
		),
	)
	m.Enter()
	tr.reset()
	m.PushEvent("event", nil)
	want := []string{"targetless in S1", "OnEvent in S1", "targetless in S2A", "OnEvent in S2A"}
	if !slices.Equal(tr.events, want) {
		t.Fatalf("got %v, want %v", tr.events, want)
	}
	if !m.InState("S1") || !m.InState("S2") || !m.InState("S2A") || m.InState("S2B") {
		t.Fatal("configuration should be unchanged by targetless transitions")
	}
}

func TestGuardSuppression(t *testing.T) {
	tr := &trace{}
	m := mustBuild(t,
		hsm.State("S1", hsm.Initial(),
			hsm.Transition(hsm.Event("event"), hsm.Target("S2"),
				hsm.Condition(hsm.NullaryGuard(func() bool { return false })),
				hsm.Action(tr.record("should not fire")),
			),
		),
		hsm.State("S2"),
	)
	m.Enter()
	m.PushEvent("event", nil)
	if len(tr.events) != 0 {
		t.Fatalf("guard should have suppressed the transition, got %v", tr.events)
	}
	if !m.InState("S1") || m.InState("S2") {
		t.Fatal("configuration should be unchanged")
	}
}

func TestEnterLeaveIdempotent(t *testing.T) {
	tr := &trace{}
	m := mustBuild(t, hsm.State("S1", hsm.Initial(), hsm.OnEntry(tr.record("entry")), hsm.OnExit(tr.record("exit"))))
	m.Enter()
	m.Enter()
	if len(tr.events) != 1 {
		t.Fatalf("second Enter should be a no-op, got %v", tr.events)
	}
	m.Leave()
	m.Leave()
	if len(tr.events) != 2 {
		t.Fatalf("second Leave should be a no-op, got %v", tr.events)
	}
}

func TestEntryExitSymmetry(t *testing.T) {
	tr := &trace{}
	build := func() *hsm.Machine {
		return mustBuild(t,
			hsm.State("S1", hsm.Initial(), hsm.OnEntry(tr.record("S1")), hsm.OnExit(tr.record("S1")),
				hsm.State("S1A", hsm.Initial(), hsm.OnEntry(tr.record("S1A")), hsm.OnExit(tr.record("S1A"))),
				hsm.State("S1B"),
			),
		)
	}
	m := build()
	m.Enter()
	entryOrder := append([]string(nil), tr.events...)
	tr.reset()
	m.Leave()
	exitOrder := tr.events
	reversed := append([]string(nil), entryOrder...)
	slices.Reverse(reversed)
	if !slices.Equal(exitOrder, reversed) {
		t.Fatalf("exit order %v should be the reverse of entry order %v", exitOrder, entryOrder)
	}
}
