package muid

import "testing"

func TestMUIDUnique(t *testing.T) {
	const total = 10_000
	seen := make(map[MUID]bool, total)
	for i := 0; i < total; i++ {
		id := Make()
		if seen[id] {
			t.Fatalf("collision after %d ids", i)
		}
		seen[id] = true
	}
}

func TestMUIDStringNonEmpty(t *testing.T) {
	if Make().String() == "" {
		t.Fatal("String() should not be empty")
	}
}
