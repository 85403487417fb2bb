package pin

import (
	"regexp"
	"testing"
)

var pinFormat = regexp.MustCompile(`^\d{6}$`)

func TestGetFormat(t *testing.T) {
	g := NewGenerator()
	for range 100 {
		p := g.Get()
		if !pinFormat.MatchString(p) {
			t.Fatalf("pin %q is not 6 zero-padded digits", p)
		}
	}
}

func TestGetUnique(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]struct{})
	for range 10000 {
		p := g.Get()
		if _, dup := seen[p]; dup {
			t.Fatalf("duplicate pin issued: %q", p)
		}
		seen[p] = struct{}{}
	}
}

func TestSeedPreventsReissue(t *testing.T) {
	g := NewGenerator()
	issued := make([]string, 0, 500)
	for range 500 {
		issued = append(issued, g.Get())
	}

	// A fresh generator seeded with the issued set must never hand any of
	// them out again.
	restarted := NewGenerator()
	restarted.Seed(issued...)

	taken := make(map[string]struct{}, len(issued))
	for _, p := range issued {
		taken[p] = struct{}{}
	}
	for range 5000 {
		p := restarted.Get()
		if _, clash := taken[p]; clash {
			t.Fatalf("seeded generator reissued pin %q", p)
		}
	}
}

func TestSeedIgnoresGarbage(t *testing.T) {
	g := NewGenerator()
	g.Seed("not-a-pin", "")
	if p := g.Get(); !pinFormat.MatchString(p) {
		t.Errorf("pin %q is not 6 digits", p)
	}
}
