package phrase

import (
	"testing"

	"github.com/ekurs/phrasevault/internal/shared"
)

func newDeriver(t *testing.T) *TagIdentifier {
	t.Helper()
	d, err := NewTagIdentifier(shared.GenerateRandByteArray(32))
	if err != nil {
		t.Fatalf("NewTagIdentifier error: %v", err)
	}
	return d
}

func TestIdentify_DeterministicAndStable(t *testing.T) {
	d := newDeriver(t)

	n := Normalize("My Secret, Phrase!")
	first := d.Identify(n)
	for i := 0; i < 10; i++ {
		if got := d.Identify(n); got != first {
			t.Fatalf("identifier not stable: %s vs %s", got, first)
		}
	}
}

func TestIdentify_DistinctPhrases(t *testing.T) {
	d := newDeriver(t)

	a := d.Identify("my secret phrase")
	b := d.Identify("my secret phrases")
	if a == b {
		t.Errorf("distinct phrases must not collide")
	}
}

func TestIdentify_KeyedDerivation(t *testing.T) {
	d1 := newDeriver(t)
	d2 := newDeriver(t)

	if d1.Identify("my secret phrase") == d2.Identify("my secret phrase") {
		t.Errorf("different keys must derive different identifiers")
	}
}

func TestNewTagIdentifier_KeyBounds(t *testing.T) {
	if _, err := NewTagIdentifier(nil); err == nil {
		t.Errorf("empty key must be rejected")
	}
	if _, err := NewTagIdentifier(make([]byte, 65)); err == nil {
		t.Errorf("oversized key must be rejected")
	}
	if _, err := NewTagIdentifier(make([]byte, 32)); err != nil {
		t.Errorf("32-byte key rejected: %v", err)
	}
}

func TestIdentifier_HexRoundTrip(t *testing.T) {
	d := newDeriver(t)
	id := d.Identify("my secret phrase")

	parsed, err := ParseIdentifier(id.String())
	if err != nil {
		t.Fatalf("ParseIdentifier error: %v", err)
	}
	if parsed != id {
		t.Errorf("round trip mismatch")
	}

	if _, err := ParseIdentifier("zz"); err == nil {
		t.Errorf("bad hex must be rejected")
	}
	if _, err := ParseIdentifier("abcd"); err == nil {
		t.Errorf("short identifier must be rejected")
	}
}

func TestIdentifierFromBytes(t *testing.T) {
	d := newDeriver(t)
	id := d.Identify("my secret phrase")

	got, err := IdentifierFromBytes(id.Bytes())
	if err != nil {
		t.Fatalf("IdentifierFromBytes error: %v", err)
	}
	if got != id {
		t.Errorf("round trip mismatch")
	}

	if _, err := IdentifierFromBytes([]byte{1, 2}); err == nil {
		t.Errorf("wrong width must be rejected")
	}
}
