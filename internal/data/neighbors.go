package data

import (
	"math"

	"gorgonia.org/tensor"

	"github.com/bluehope/mace/internal/autograd"
)

// Batch is one evaluation graph: node positions and species plus the edge
// list within the cutoff. Shifts holds the Cartesian periodic offset of each
// edge so that the displacement vector of edge e is
//
//	positions[senders[e]] - positions[receivers[e]] + shifts[e].
type Batch struct {
	NumNodes  int
	Species   []int
	Positions *tensor.Dense
	Senders   []int
	Receivers []int
	Shifts    *tensor.Dense
}

// NewBatch builds a batch from a structure: species indices from the table
// and a periodic neighbor list within the cutoff. Edge enumeration order is
// deterministic for a given structure.
func NewBatch(s Structure, table AtomicNumberTable, cutoff float64) (Batch, error) {
	n := len(s.Positions)
	species := make([]int, n)
	for i, z := range s.AtomicNumbers {
		idx, err := table.IndexOf(z)
		if err != nil {
			return Batch{}, err
		}
		species[i] = idx
	}

	senders, receivers, shifts := neighborList(s, cutoff)

	posBacking := make([]float64, n*3)
	for i, p := range s.Positions {
		posBacking[i*3] = p[0]
		posBacking[i*3+1] = p[1]
		posBacking[i*3+2] = p[2]
	}

	return Batch{
		NumNodes:  n,
		Species:   species,
		Positions: autograd.New([]int{n, 3}, posBacking),
		Senders:   senders,
		Receivers: receivers,
		Shifts:    autograd.New([]int{len(senders), 3}, shifts),
	}, nil
}

func (b Batch) NumEdges() int {
	return len(b.Senders)
}

// neighborList enumerates all periodic images within the cutoff. The cutoff
// may exceed half the box, so every image shell up to
// ceil(cutoff/|cell_d|) is searched per axis.
func neighborList(s Structure, cutoff float64) (senders, receivers []int, shifts []float64) {
	var images [3]int
	for d := 0; d < 3; d++ {
		length := math.Sqrt(s.Cell[d][0]*s.Cell[d][0] + s.Cell[d][1]*s.Cell[d][1] + s.Cell[d][2]*s.Cell[d][2])
		if length > 0 {
			images[d] = int(math.Ceil(cutoff / length))
		}
	}

	cutoffSq := cutoff * cutoff
	for recv := range s.Positions {
		for send := range s.Positions {
			for sx := -images[0]; sx <= images[0]; sx++ {
				for sy := -images[1]; sy <= images[1]; sy++ {
					for sz := -images[2]; sz <= images[2]; sz++ {
						if recv == send && sx == 0 && sy == 0 && sz == 0 {
							continue
						}
						var shift [3]float64
						for d := 0; d < 3; d++ {
							shift[d] = float64(sx)*s.Cell[0][d] + float64(sy)*s.Cell[1][d] + float64(sz)*s.Cell[2][d]
						}
						distSq := 0.0
						for d := 0; d < 3; d++ {
							diff := s.Positions[send][d] - s.Positions[recv][d] + shift[d]
							distSq += diff * diff
						}
						if distSq >= cutoffSq {
							continue
						}
						senders = append(senders, send)
						receivers = append(receivers, recv)
						shifts = append(shifts, shift[0], shift[1], shift[2])
					}
				}
			}
		}
	}
	return senders, receivers, shifts
}
