package decoder

import (
	"math/rand"

	"github.com/alloynmt/alloy/internal/tensor"
)

// runAdapter computes the domain-specialised feed-forward transform added
// residually after each decoder layer.  The parameter bank covers every
// domain at once; domainMask holds one gathered mask row per example and
// zeroes the bank slices of all other domains, so a mixed-domain batch runs
// in a single pass.  The caller adds the result to the residual stream.
func (d *Decoder) runAdapter(w *adapterWeights, x []float32, batch, time int, domainMask []float32, rng *rand.Rand) []float32 {
	width := d.cfg.NumUnits
	bank := d.cfg.BankUnits()
	rows := batch * time

	normed := make([]float32, rows*width)
	layerNormRows(normed, x, rows, width, &w.norm)

	h := make([]float32, rows*bank)
	tensor.MatVecRows(h, &w.up, normed, rows)
	addBiasRows(h, rows, w.bup)
	d.activate(h)
	for r := 0; r < rows; r++ {
		b := r / time
		row := h[r*bank : (r+1)*bank]
		mask := domainMask[b*bank : (b+1)*bank]
		for j := range row {
			row[j] *= mask[j]
		}
	}
	tensor.Dropout(h, d.cfg.FFNDropout, rng)

	y := make([]float32, rows*width)
	tensor.MatVecRows(y, &w.down, h, rows)
	addBiasRows(y, rows, w.bdown)
	return y
}
