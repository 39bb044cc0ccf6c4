package contest

import (
	"errors"
	"testing"
)

func TestRegistrySwapRemove(t *testing.T) {
	r := NewRegistry()
	for _, p := range []ParticipantID{"a", "b", "c", "d"} {
		r.Register(p)
	}

	r.Unregister("b")

	if got := r.IndexOf("b"); got != 0 {
		t.Fatalf("removed participant index = %d, want 0", got)
	}
	if got := r.IndexOf("d"); got != 2 {
		t.Fatalf("last participant should move into slot 2, got %d", got)
	}
	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3", r.Len())
	}

	want := []ParticipantID{"a", "d", "c"}
	var got []ParticipantID
	r.Each(func(i int, p ParticipantID) bool {
		got = append(got, p)
		return true
	})
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestRegistryUnregisterLast(t *testing.T) {
	r := NewRegistry()
	r.Register("a")
	r.Register("b")
	r.Unregister("b")
	r.Unregister("missing")

	if r.Len() != 1 || r.IndexOf("a") != 1 {
		t.Fatalf("unexpected registry state: len=%d index(a)=%d", r.Len(), r.IndexOf("a"))
	}
}

func TestRegistryAtBounds(t *testing.T) {
	r := NewRegistry()
	r.Register("a")

	for _, i := range []int{0, 2, -1} {
		if _, err := r.At(i); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("At(%d) error = %v, want out of range", i, err)
		}
	}
	if p, err := r.At(1); err != nil || p != "a" {
		t.Errorf("At(1) = %q, %v", p, err)
	}
}

func TestRegistryRegisterIdempotent(t *testing.T) {
	r := NewRegistry()
	first := r.Register("a")
	second := r.Register("a")
	if first != second || r.Len() != 1 {
		t.Fatalf("double register changed registry: %d %d len=%d", first, second, r.Len())
	}
}
