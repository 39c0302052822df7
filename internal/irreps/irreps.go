// Package irreps describes the irreducible-representation layout of feature
// vectors: an ordered sequence of (multiplicity, representation) pairs such
// as "32x0e + 32x1o". The layout determines tensor shapes throughout the
// model and drives parameter-layout transforms during backend conversion.
package irreps

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrParse = errors.New("invalid irreps descriptor")
)

// Irrep is a single irreducible representation of O(3): angular order L and
// parity (+1 even, -1 odd).
type Irrep struct {
	L      int
	Parity int
}

func (ir Irrep) Dim() int {
	return 2*ir.L + 1
}

func (ir Irrep) String() string {
	if ir.Parity >= 0 {
		return fmt.Sprintf("%de", ir.L)
	}
	return fmt.Sprintf("%do", ir.L)
}

// MulIrrep is an irrep with a channel multiplicity.
type MulIrrep struct {
	Mul   int
	Irrep Irrep
}

func (mi MulIrrep) Dim() int {
	return mi.Mul * mi.Irrep.Dim()
}

// Irreps is an ordered layout of multiplicities and irreps.
type Irreps []MulIrrep

// Parse reads a descriptor like "32x0e + 32x1o + 16x2e".
func Parse(s string) (Irreps, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty descriptor", ErrParse)
	}

	var out Irreps
	for _, part := range strings.Split(trimmed, "+") {
		mi, err := parseTerm(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, mi)
	}
	return out, nil
}

// MustParse is for compile-time-known descriptors.
func MustParse(s string) Irreps {
	out, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return out
}

func parseTerm(term string) (MulIrrep, error) {
	if term == "" {
		return MulIrrep{}, fmt.Errorf("%w: empty term", ErrParse)
	}

	mul := 1
	rest := term
	if idx := strings.IndexByte(term, 'x'); idx >= 0 {
		m, err := strconv.Atoi(strings.TrimSpace(term[:idx]))
		if err != nil || m <= 0 {
			return MulIrrep{}, fmt.Errorf("%w: multiplicity in %q", ErrParse, term)
		}
		mul = m
		rest = strings.TrimSpace(term[idx+1:])
	}

	if len(rest) < 2 {
		return MulIrrep{}, fmt.Errorf("%w: irrep in %q", ErrParse, term)
	}
	parity := 0
	switch rest[len(rest)-1] {
	case 'e':
		parity = 1
	case 'o':
		parity = -1
	default:
		return MulIrrep{}, fmt.Errorf("%w: parity in %q", ErrParse, term)
	}
	l, err := strconv.Atoi(rest[:len(rest)-1])
	if err != nil || l < 0 {
		return MulIrrep{}, fmt.Errorf("%w: angular order in %q", ErrParse, term)
	}

	return MulIrrep{Mul: mul, Irrep: Irrep{L: l, Parity: parity}}, nil
}

func (irs Irreps) String() string {
	parts := make([]string, 0, len(irs))
	for _, mi := range irs {
		parts = append(parts, fmt.Sprintf("%dx%s", mi.Mul, mi.Irrep))
	}
	return strings.Join(parts, " + ")
}

// Dim is the total feature width of the layout.
func (irs Irreps) Dim() int {
	total := 0
	for _, mi := range irs {
		total += mi.Dim()
	}
	return total
}

// ScalarChannels counts the even-scalar (0e) channels.
func (irs Irreps) ScalarChannels() int {
	total := 0
	for _, mi := range irs {
		if mi.Irrep.L == 0 && mi.Irrep.Parity > 0 {
			total += mi.Mul
		}
	}
	return total
}

// ScalarOnly reports whether every block is a 0e block.
func (irs Irreps) ScalarOnly() bool {
	for _, mi := range irs {
		if mi.Irrep.L != 0 || mi.Irrep.Parity <= 0 {
			return false
		}
	}
	return true
}

func (irs Irreps) Equal(other Irreps) bool {
	if len(irs) != len(other) {
		return false
	}
	for i := range irs {
		if irs[i] != other[i] {
			return false
		}
	}
	return true
}

// Segment is a contiguous slice of the flattened layout belonging to one
// (mul, irrep) block.
type Segment struct {
	Offset int
	Width  int
	Irrep  Irrep
	Mul    int
}

func (irs Irreps) Segments() []Segment {
	segs := make([]Segment, 0, len(irs))
	offset := 0
	for _, mi := range irs {
		segs = append(segs, Segment{Offset: offset, Width: mi.Dim(), Irrep: mi.Irrep, Mul: mi.Mul})
		offset += mi.Dim()
	}
	return segs
}

// SortedPermutation returns the segment order a fused layout uses: blocks
// sorted by (L, parity), stable over the original order. The returned slice
// maps target segment position to source segment index.
func (irs Irreps) SortedPermutation() []int {
	perm := make([]int, len(irs))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		ia, ib := irs[perm[a]].Irrep, irs[perm[b]].Irrep
		if ia.L != ib.L {
			return ia.L < ib.L
		}
		return ia.Parity > ib.Parity
	})
	return perm
}
