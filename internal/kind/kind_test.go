package kind

import "testing"

func TestIsDirect(t *testing.T) {
	base := Make()
	derived := Make(base)
	if !Is(derived, base) {
		t.Errorf("derived should be a base")
	}
	if Is(base, derived) {
		t.Errorf("base should not be a derived")
	}
}

func TestIsUnrelated(t *testing.T) {
	a := Make()
	b := Make()
	if Is(a, b) {
		t.Errorf("unrelated kinds should not match")
	}
}

func TestIsSelf(t *testing.T) {
	k := Make()
	if !Is(k, k) {
		t.Errorf("a kind should match itself")
	}
}

func TestMultipleBases(t *testing.T) {
	a := Make()
	b := Make()
	c := Make(a, b)
	if !Is(c, a) {
		t.Errorf("c should be an a")
	}
	if !Is(c, b) {
		t.Errorf("c should be a b")
	}
}
