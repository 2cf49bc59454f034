package nn

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NewRand returns the random source used for weight initialisation, dropout and shuffling.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// fillUniform sets every element of m to a value drawn from U(-1, 1).
func fillUniform(m *mat.Dense, src rand.Source) {
	dist := distuv.Uniform{Min: -1, Max: 1, Src: src}
	rows, _ := m.Dims()
	for r := 0; r < rows; r++ {
		row := m.RawRowView(r)
		for i := range row {
			row[i] = dist.Rand()
		}
	}
}

// fillGaussian draws N(0,1)/sqrt(fanIn) for every row but the last (bias) row, which gets
// plain N(0,1).
func fillGaussian(m *mat.Dense, fanIn int, src rand.Source) {
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	scale := 1 / math.Sqrt(float64(fanIn))
	rows, _ := m.Dims()
	for r := 0; r < rows; r++ {
		row := m.RawRowView(r)
		s := scale
		if r == rows-1 {
			s = 1
		}
		for i := range row {
			row[i] = dist.Rand() * s
		}
	}
}
