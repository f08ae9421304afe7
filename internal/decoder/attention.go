package decoder

import (
	"math"
	"math/rand"

	"github.com/alloynmt/alloy/internal/tensor"
)

const layerNormEps = 1e-6

func layerNormRows(dst, src []float32, rows, width int, w *normWeights) {
	for r := 0; r < rows; r++ {
		tensor.LayerNorm(dst[r*width:(r+1)*width], src[r*width:(r+1)*width], w.gamma, w.beta, layerNormEps)
	}
}

func addBiasRows(x []float32, rows int, bias []float32) {
	n := len(bias)
	for r := 0; r < rows; r++ {
		tensor.Add(x[r*n:(r+1)*n], bias)
	}
}

func (d *Decoder) activate(x []float32) {
	switch d.cfg.Activation {
	case ActGELU:
		tensor.GELU(x)
	default:
		tensor.ReLU(x)
	}
}

// toTimeMajor rearranges rows*width values from example-major [b][t] order
// into the cache's time-major [t][b] order.
func toTimeMajor(dst, src []float32, batch, time, width int) {
	for b := 0; b < batch; b++ {
		for t := 0; t < time; t++ {
			copy(dst[(t*batch+b)*width:(t*batch+b+1)*width], src[(b*time+t)*width:(b*time+t+1)*width])
		}
	}
}

// selfAttention runs the masked multi-head self-attention sub-layer.  It
// appends this call's key/value projections to lc (one timestep per Step
// call, the whole sequence in batch mode) and attends each query over the
// accumulated history.  causal is the full-sequence mask from FutureMask,
// nil in step mode where a single query attends to every cached key by
// construction.  rng, when non-nil, drives attention dropout.  The
// returned sub-layer output has not yet been added to the residual stream.
func (d *Decoder) selfAttention(w *attnWeights, x []float32, batch, time int, lc *LayerCache, causal []bool, rng *rand.Rand) []float32 {
	width := d.cfg.NumUnits
	heads := d.cfg.NumHeads
	headDim := d.cfg.HeadDim()
	rows := batch * time

	normed := make([]float32, rows*width)
	layerNormRows(normed, x, rows, width, &w.norm)

	q := make([]float32, rows*width)
	k := make([]float32, rows*width)
	v := make([]float32, rows*width)
	tensor.MatVecRows(q, &w.wq, normed, rows)
	tensor.MatVecRows(k, &w.wk, normed, rows)
	tensor.MatVecRows(v, &w.wv, normed, rows)
	addBiasRows(q, rows, w.bq)
	addBiasRows(k, rows, w.bk)
	addBiasRows(v, rows, w.bv)
	tensor.Scale(q, float32(1.0/math.Sqrt(float64(headDim))))

	base := lc.Steps
	kt := make([]float32, rows*width)
	vt := make([]float32, rows*width)
	toTimeMajor(kt, k, batch, time, width)
	toTimeMajor(vt, v, batch, time, width)
	lc.appendSelf(kt, vt, time)

	out := make([]float32, rows*width)
	scores := make([]float32, lc.Steps)
	for b := 0; b < batch; b++ {
		for tq := 0; tq < time; tq++ {
			qrow := (b*time + tq) * width
			n := base + tq + 1
			var valid []bool
			if causal != nil {
				valid = causal[(b*time+tq)*time:][:n]
			}
			for h := 0; h < heads; h++ {
				qh := q[qrow+h*headDim : qrow+(h+1)*headDim]
				for tk := 0; tk < n; tk++ {
					koff := (tk*batch+b)*width + h*headDim
					scores[tk] = tensor.Dot(qh, lc.SelfK[koff:koff+headDim])
				}
				maskedSoftmax(scores[:n], valid)
				tensor.Dropout(scores[:n], d.cfg.AttentionDropout, rng)
				oh := out[qrow+h*headDim : qrow+(h+1)*headDim]
				for c := 0; c < headDim; c++ {
					var sum float32
					for tk := 0; tk < n; tk++ {
						sum += scores[tk] * lc.SelfV[(tk*batch+b)*width+h*headDim+c]
					}
					oh[c] = sum
				}
			}
		}
	}

	y := make([]float32, rows*width)
	tensor.MatVecRows(y, &w.wo, out, rows)
	addBiasRows(y, rows, w.bo)
	return y
}

// crossAttention runs one memory source's multi-head attention sub-layer.
// The source's key/value projections are computed on the first call that
// sees the memory and reused from mkv on every later step.  keyMask is the
// source's padding mask from SequenceMask (nil means full attention).  When
// wantAttn is set the second result holds the head-averaged attention
// weights, one [time, memTime] block per example.  Returns a nil output
// when no memory has ever been provided for this source.
func (d *Decoder) crossAttention(w *attnWeights, x []float32, batch, time int, mem Memory, mkv *MemoryKV, keyMask []bool, wantAttn bool, rng *rand.Rand) ([]float32, []float32) {
	width := d.cfg.NumUnits
	heads := d.cfg.NumHeads
	headDim := d.cfg.HeadDim()
	rows := batch * time

	if mkv.Time == 0 {
		if mem.Time == 0 {
			return nil, nil
		}
		memRows := batch * mem.Time
		k := make([]float32, memRows*width)
		v := make([]float32, memRows*width)
		tensor.MatVecRows(k, &w.wk, mem.Values, memRows)
		tensor.MatVecRows(v, &w.wv, mem.Values, memRows)
		addBiasRows(k, memRows, w.bk)
		addBiasRows(v, memRows, w.bv)
		mkv.K = make([]float32, memRows*width)
		mkv.V = make([]float32, memRows*width)
		toTimeMajor(mkv.K, k, batch, mem.Time, width)
		toTimeMajor(mkv.V, v, batch, mem.Time, width)
		mkv.Time = mem.Time
	}
	memTime := mkv.Time
	var attnOut []float32
	if wantAttn {
		attnOut = make([]float32, rows*memTime)
	}

	normed := make([]float32, rows*width)
	layerNormRows(normed, x, rows, width, &w.norm)
	q := make([]float32, rows*width)
	tensor.MatVecRows(q, &w.wq, normed, rows)
	addBiasRows(q, rows, w.bq)
	tensor.Scale(q, float32(1.0/math.Sqrt(float64(headDim))))

	out := make([]float32, rows*width)
	scores := make([]float32, memTime)
	invHeads := float32(1.0 / float64(heads))
	for b := 0; b < batch; b++ {
		var valid []bool
		if keyMask != nil {
			valid = keyMask[b*memTime : (b+1)*memTime]
		}
		for tq := 0; tq < time; tq++ {
			qrow := (b*time + tq) * width
			for h := 0; h < heads; h++ {
				qh := q[qrow+h*headDim : qrow+(h+1)*headDim]
				for tk := 0; tk < memTime; tk++ {
					koff := (tk*batch+b)*width + h*headDim
					scores[tk] = tensor.Dot(qh, mkv.K[koff:koff+headDim])
				}
				maskedSoftmax(scores, valid)
				if attnOut != nil {
					aw := attnOut[(b*time+tq)*memTime : (b*time+tq+1)*memTime]
					for tk := 0; tk < memTime; tk++ {
						aw[tk] += scores[tk] * invHeads
					}
				}
				tensor.Dropout(scores, d.cfg.AttentionDropout, rng)
				oh := out[qrow+h*headDim : qrow+(h+1)*headDim]
				for c := 0; c < headDim; c++ {
					var sum float32
					for tk := 0; tk < memTime; tk++ {
						sum += scores[tk] * mkv.V[(tk*batch+b)*width+h*headDim+c]
					}
					oh[c] = sum
				}
			}
		}
	}

	y := make([]float32, rows*width)
	tensor.MatVecRows(y, &w.wo, out, rows)
	addBiasRows(y, rows, w.bo)
	return y, attnOut
}

// feedForward runs the position-wise feed-forward sub-layer.
func (d *Decoder) feedForward(w *ffnWeights, x []float32, rows int, rng *rand.Rand) []float32 {
	width := d.cfg.NumUnits
	inner := d.cfg.FFNInnerDim

	normed := make([]float32, rows*width)
	layerNormRows(normed, x, rows, width, &w.norm)

	h := make([]float32, rows*inner)
	tensor.MatVecRows(h, &w.w1, normed, rows)
	addBiasRows(h, rows, w.b1)
	d.activate(h)
	tensor.Dropout(h, d.cfg.FFNDropout, rng)

	y := make([]float32, rows*width)
	tensor.MatVecRows(y, &w.w2, h, rows)
	addBiasRows(y, rows, w.b2)
	return y
}
