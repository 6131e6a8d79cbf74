package ids

import "testing"

func TestNewProducesValidSortableIDs(t *testing.T) {
	a := New()
	b := New()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected lengths: %q %q", a, b)
	}
	if a == b {
		t.Fatal("two ids must differ")
	}
	if !(a < b) {
		t.Fatalf("ids not monotonic: %q then %q", a, b)
	}
	if !Valid(a) || !Valid(b) {
		t.Fatalf("generated ids must validate: %q %q", a, b)
	}
	if Valid("not-a-ulid") {
		t.Fatal("garbage must not validate")
	}
}
