package decoder

import "github.com/alloynmt/alloy/internal/tensor"

// BuildDomainMask returns the constant lookup table mapping a domain id to
// its selection vector over the adapter parameter bank.  Row d is zero
// everywhere except the numDomainUnits slots owned by domain d, which are
// one.  The table is built once at construction and never mutated.
func BuildDomainMask(numDomains, numDomainUnits int) tensor.Mat {
	m := tensor.NewMat(numDomains, numDomains*numDomainUnits)
	for d := 0; d < numDomains; d++ {
		row := m.Row(d)
		for u := 0; u < numDomainUnits; u++ {
			row[d*numDomainUnits+u] = 1
		}
	}
	return m
}
