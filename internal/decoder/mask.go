package decoder

import "math"

func expf(x float32) float32 { return float32(math.Exp(float64(x))) }

// FutureMask builds the causal attention mask for full-sequence decoding.
// The result is a flattened [batch, time, time] boolean tensor where entry
// (b, q, k) is true when key position k is visible to query position q:
// k <= q and k within example b's sequence length.  lengths may be nil, in
// which case every example defaults to the full time dimension.
func FutureMask(lengths []int, batch, time int) []bool {
	mask := make([]bool, batch*time*time)
	for b := 0; b < batch; b++ {
		limit := time
		if lengths != nil && lengths[b] < limit {
			limit = lengths[b]
		}
		for q := 0; q < time; q++ {
			row := mask[(b*time+q)*time : (b*time+q+1)*time]
			for k := 0; k <= q && k < limit; k++ {
				row[k] = true
			}
		}
	}
	return mask
}

// SequenceMask builds a flattened [batch, time] boolean mask marking valid
// (non-padding) positions up to each example's length.  A nil lengths slice
// yields a nil mask, meaning full attention over the source.
func SequenceMask(lengths []int, batch, time int) []bool {
	if lengths == nil {
		return nil
	}
	mask := make([]bool, batch*time)
	for b := 0; b < batch; b++ {
		limit := time
		if lengths[b] < limit {
			limit = lengths[b]
		}
		for t := 0; t < limit; t++ {
			mask[b*time+t] = true
		}
	}
	return mask
}

// maskedSoftmax normalises scores in place over the positions marked valid,
// leaving every invalid position exactly zero.  A nil valid slice treats all
// positions as valid.
func maskedSoftmax(scores []float32, valid []bool) {
	if valid == nil {
		softmaxAll(scores)
		return
	}
	var maxv float32
	found := false
	for i, v := range scores {
		if !valid[i] {
			continue
		}
		if !found || v > maxv {
			maxv = v
			found = true
		}
	}
	if !found {
		for i := range scores {
			scores[i] = 0
		}
		return
	}
	var sum float64
	for i := range scores {
		if !valid[i] {
			scores[i] = 0
			continue
		}
		e := expf(scores[i] - maxv)
		scores[i] = e
		sum += float64(e)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range scores {
		scores[i] *= inv
	}
}

func softmaxAll(scores []float32) {
	if len(scores) == 0 {
		return
	}
	maxv := scores[0]
	for _, v := range scores[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i := range scores {
		e := expf(scores[i] - maxv)
		scores[i] = e
		sum += float64(e)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range scores {
		scores[i] *= inv
	}
}
