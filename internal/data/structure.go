// Package data builds the atomic structures and graph batches consumed by
// the model: periodic cells, supercell repetition, random displacement, and
// neighbor lists with explicit periodic shift vectors.
package data

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

var ErrUnknownElement = errors.New("atomic number not in table")

// Structure is a periodic collection of atoms. Cell rows are the three
// lattice vectors; Positions are Cartesian.
type Structure struct {
	AtomicNumbers []int
	Positions     [][3]float64
	Cell          [3][3]float64
}

// Diamond builds the conventional cubic diamond cell (8 atoms) for one
// element with lattice constant a.
func Diamond(atomicNumber int, a float64) Structure {
	fractional := [][3]float64{
		{0, 0, 0},
		{0, 0.5, 0.5},
		{0.5, 0, 0.5},
		{0.5, 0.5, 0},
		{0.25, 0.25, 0.25},
		{0.25, 0.75, 0.75},
		{0.75, 0.25, 0.75},
		{0.75, 0.75, 0.25},
	}

	s := Structure{
		Cell: [3][3]float64{{a, 0, 0}, {0, a, 0}, {0, 0, a}},
	}
	for _, f := range fractional {
		s.AtomicNumbers = append(s.AtomicNumbers, atomicNumber)
		s.Positions = append(s.Positions, [3]float64{f[0] * a, f[1] * a, f[2] * a})
	}
	return s
}

// Repeat tiles the structure nx*ny*nz times along its lattice vectors.
func Repeat(s Structure, nx, ny, nz int) Structure {
	out := Structure{}
	for d := 0; d < 3; d++ {
		out.Cell[0][d] = s.Cell[0][d] * float64(nx)
		out.Cell[1][d] = s.Cell[1][d] * float64(ny)
		out.Cell[2][d] = s.Cell[2][d] * float64(nz)
	}

	for ix := 0; ix < nx; ix++ {
		for iy := 0; iy < ny; iy++ {
			for iz := 0; iz < nz; iz++ {
				for i, p := range s.Positions {
					var q [3]float64
					for d := 0; d < 3; d++ {
						q[d] = p[d] + float64(ix)*s.Cell[0][d] + float64(iy)*s.Cell[1][d] + float64(iz)*s.Cell[2][d]
					}
					out.AtomicNumbers = append(out.AtomicNumbers, s.AtomicNumbers[i])
					out.Positions = append(out.Positions, q)
				}
			}
		}
	}
	return out
}

// Displace adds a uniform random offset in [-delta, delta] to every
// coordinate. The caller seeds the generator for reproducible batches.
func Displace(s Structure, delta float64, rng *rand.Rand) Structure {
	out := s
	out.Positions = make([][3]float64, len(s.Positions))
	for i, p := range s.Positions {
		for d := 0; d < 3; d++ {
			out.Positions[i][d] = p[d] + (rng.Float64()*2-1)*delta
		}
	}
	return out
}

// AtomicNumberTable maps atomic numbers to contiguous species indices.
type AtomicNumberTable struct {
	zs []int
}

func NewAtomicNumberTable(zs []int) AtomicNumberTable {
	sorted := append([]int(nil), zs...)
	sort.Ints(sorted)
	return AtomicNumberTable{zs: sorted}
}

func (t AtomicNumberTable) Zs() []int {
	return append([]int(nil), t.zs...)
}

func (t AtomicNumberTable) Len() int {
	return len(t.zs)
}

func (t AtomicNumberTable) IndexOf(z int) (int, error) {
	for i, candidate := range t.zs {
		if candidate == z {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownElement, z)
}
