package ir

import "testing"

func TestMustCallSetDedupAndSort(t *testing.T) {
	s := NewMustCallSet("close", "open", "close")
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if got := s.Methods(); got[0] != "close" || got[1] != "open" {
		t.Fatalf("Methods() = %v, want sorted [close open]", got)
	}
}

func TestMustCallSetContains(t *testing.T) {
	s := NewMustCallSet("close", "flush")
	if !s.Contains("close") {
		t.Errorf("expected Contains(close)")
	}
	if s.Contains("open") {
		t.Errorf("did not expect Contains(open)")
	}
}

func TestMustCallSetUnion(t *testing.T) {
	a := NewMustCallSet("close")
	b := NewMustCallSet("flush")
	u := a.Union(b)
	if !u.Contains("close") || !u.Contains("flush") {
		t.Fatalf("Union missing members: %v", u.Methods())
	}
}

func TestMustCallSetWithout(t *testing.T) {
	a := NewMustCallSet("close", "flush")
	b := NewMustCallSet("flush")
	got := a.Without(b)
	if !got.Contains("close") || got.Contains("flush") {
		t.Fatalf("Without() = %v, want [close]", got.Methods())
	}
}

func TestMustCallSetSubsetAndEqual(t *testing.T) {
	small := NewMustCallSet("close")
	big := NewMustCallSet("close", "flush")
	if !small.Subset(big) {
		t.Errorf("expected small.Subset(big)")
	}
	if big.Subset(small) {
		t.Errorf("did not expect big.Subset(small)")
	}
	if !small.Equal(NewMustCallSet("close")) {
		t.Errorf("expected Equal for identical sets")
	}
}

func TestMustCallSetEmpty(t *testing.T) {
	var zero MustCallSet
	if !zero.Empty() {
		t.Errorf("zero value should be empty")
	}
	if NewMustCallSet().Empty() != true {
		t.Errorf("NewMustCallSet() should be empty")
	}
}
