package decoder

import (
	"math"
	"testing"
)

func TestFutureMaskPattern(t *testing.T) {
	const batch, time = 2, 4
	mask := FutureMask([]int{4, 2}, batch, time)
	for b := 0; b < batch; b++ {
		limit := []int{4, 2}[b]
		for q := 0; q < time; q++ {
			for k := 0; k < time; k++ {
				want := k <= q && k < limit
				if got := mask[(b*time+q)*time+k]; got != want {
					t.Fatalf("mask[%d,%d,%d] = %v, want %v", b, q, k, got, want)
				}
			}
		}
	}
}

func TestFutureMaskDefaultsToFullLength(t *testing.T) {
	const time = 3
	mask := FutureMask(nil, 1, time)
	for q := 0; q < time; q++ {
		for k := 0; k <= q; k++ {
			if !mask[q*time+k] {
				t.Fatalf("mask[%d,%d] false without lengths", q, k)
			}
		}
	}
}

func TestSequenceMask(t *testing.T) {
	mask := SequenceMask([]int{1, 3}, 2, 3)
	want := []bool{true, false, false, true, true, true}
	for i := range want {
		if mask[i] != want[i] {
			t.Fatalf("sequence mask[%d] = %v, want %v", i, mask[i], want[i])
		}
	}
	if SequenceMask(nil, 2, 3) != nil {
		t.Fatalf("nil lengths should yield nil mask")
	}
}

func TestMaskedSoftmaxExactZeros(t *testing.T) {
	scores := []float32{1, 2, 3, 4}
	maskedSoftmax(scores, []bool{true, true, false, false})
	if scores[2] != 0 || scores[3] != 0 {
		t.Fatalf("masked positions not exactly zero: %v", scores)
	}
	sum := float64(scores[0] + scores[1])
	if math.Abs(sum-1) > 1e-6 {
		t.Fatalf("valid probabilities sum to %v", sum)
	}
	if scores[1] <= scores[0] {
		t.Fatalf("ordering lost: %v", scores)
	}
}

func TestMaskedSoftmaxAllMasked(t *testing.T) {
	scores := []float32{5, 6}
	maskedSoftmax(scores, []bool{false, false})
	if scores[0] != 0 || scores[1] != 0 {
		t.Fatalf("fully masked row not zeroed: %v", scores)
	}
}
