package irreps

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		dim     int
		scalars int
		hasErr  bool
	}{
		{name: "single-scalar", in: "32x0e", want: "32x0e", dim: 32, scalars: 32},
		{name: "two-blocks", in: "32x0e + 32x1o", want: "32x0e + 32x1o", dim: 128, scalars: 32},
		{name: "three-blocks", in: "32x0e + 32x1o + 32x2e", want: "32x0e + 32x1o + 32x2e", dim: 288, scalars: 32},
		{name: "implicit-mul", in: "0e", want: "1x0e", dim: 1, scalars: 1},
		{name: "odd-scalar", in: "8x0o", want: "8x0o", dim: 8, scalars: 0},
		{name: "empty", in: "", hasErr: true},
		{name: "bad-parity", in: "32x0x", hasErr: true},
		{name: "bad-mul", in: "ax0e", hasErr: true},
		{name: "negative-l", in: "4x-1e", hasErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.in)
			if tc.hasErr {
				if err == nil {
					t.Fatalf("expected parse error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse %q: %v", tc.in, err)
			}
			if got.String() != tc.want {
				t.Fatalf("unexpected string: got=%q want=%q", got.String(), tc.want)
			}
			if got.Dim() != tc.dim {
				t.Fatalf("unexpected dim: got=%d want=%d", got.Dim(), tc.dim)
			}
			if got.ScalarChannels() != tc.scalars {
				t.Fatalf("unexpected scalar channels: got=%d want=%d", got.ScalarChannels(), tc.scalars)
			}
		})
	}
}

func TestScalarOnly(t *testing.T) {
	if !MustParse("32x0e").ScalarOnly() {
		t.Fatal("32x0e should be scalar-only")
	}
	if MustParse("32x0e + 32x1o").ScalarOnly() {
		t.Fatal("layout with 1o should not be scalar-only")
	}
	if MustParse("8x0o").ScalarOnly() {
		t.Fatal("odd scalars are not 0e")
	}
}

func TestSegments(t *testing.T) {
	segs := MustParse("4x0e + 2x1o").Segments()
	if len(segs) != 2 {
		t.Fatalf("unexpected segment count: %d", len(segs))
	}
	if segs[0].Offset != 0 || segs[0].Width != 4 {
		t.Fatalf("unexpected first segment: %+v", segs[0])
	}
	if segs[1].Offset != 4 || segs[1].Width != 6 {
		t.Fatalf("unexpected second segment: %+v", segs[1])
	}
}

func TestSortedPermutation(t *testing.T) {
	irs := MustParse("2x1o + 4x0e + 3x1e")
	perm := irs.SortedPermutation()
	want := []int{1, 2, 0}
	if len(perm) != len(want) {
		t.Fatalf("unexpected perm length: %d", len(perm))
	}
	for i := range want {
		if perm[i] != want[i] {
			t.Fatalf("unexpected permutation: got=%v want=%v", perm, want)
		}
	}
}

func TestEqual(t *testing.T) {
	a := MustParse("32x0e + 16x1o")
	b := MustParse("32x0e + 16x1o")
	c := MustParse("32x0e")
	if !a.Equal(b) {
		t.Fatal("identical layouts should be equal")
	}
	if a.Equal(c) {
		t.Fatal("different layouts should not be equal")
	}
}
