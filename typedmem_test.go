package walloc_test

import (
	"testing"

	"walloc"
)

type vec3 struct {
	X, Y, Z float32
}

type withSlice struct {
	Data []byte
}

func TestAllocateValueReadValueRoundTrip(t *testing.T) {
	a := newTestAllocator(t)
	v := vec3{X: 1, Y: 2, Z: 3}

	h, err := walloc.AllocateValue(a, walloc.TierBottom, &v)
	if err != nil {
		t.Fatalf("AllocateValue: %v", err)
	}

	got, err := walloc.ReadValue[vec3](a, h)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if *got != v {
		t.Fatalf("got %+v, want %+v", *got, v)
	}
}

func TestAllocateValueRejectsPointerLikeFields(t *testing.T) {
	a := newTestAllocator(t)
	v := withSlice{Data: []byte("x")}
	if _, err := walloc.AllocateValue(a, walloc.TierBottom, &v); err == nil {
		t.Fatal("expected an error for a type containing a slice field")
	}
}

func TestFreeValueRecyclesBlockForNextAllocateValue(t *testing.T) {
	a := newTestAllocator(t)
	v1 := vec3{X: 1, Y: 2, Z: 3}

	h1, err := walloc.AllocateValue(a, walloc.TierBottom, &v1)
	if err != nil {
		t.Fatalf("AllocateValue: %v", err)
	}
	if !walloc.FreeValue[vec3](a, h1) {
		t.Fatal("FreeValue failed")
	}

	v2 := vec3{X: 4, Y: 5, Z: 6}
	h2, err := walloc.AllocateValue(a, walloc.TierBottom, &v2)
	if err != nil {
		t.Fatalf("AllocateValue after free: %v", err)
	}
	if h2 != h1 {
		t.Fatalf("expected free-list reuse at %d, got %d", h1, h2)
	}

	got, err := walloc.ReadValue[vec3](a, h2)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if *got != v2 {
		t.Fatalf("got %+v, want %+v", *got, v2)
	}
}
