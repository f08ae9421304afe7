package decoder

import (
	"math"
	"testing"
)

func TestSinusoidalEncoderSignal(t *testing.T) {
	const width = 6
	row := make([]float32, width)
	SinusoidalEncoder{}.Encode(row, 1, 1, width, 3)

	for i := 0; i+1 < width; i += 2 {
		angle := 3 / math.Pow(10000, float64(i)/float64(width))
		compareSlices(t, "sin", row[i:i+1], []float32{float32(math.Sin(angle))}, 1e-6)
		compareSlices(t, "cos", row[i+1:i+2], []float32{float32(math.Cos(angle))}, 1e-6)
	}
}

// Every channel must receive a positional signal, including the unpaired
// final channel of an odd width.
func TestSinusoidalEncoderCoversOddWidth(t *testing.T) {
	const width, time = 5, 3
	x := make([]float32, time*width)
	SinusoidalEncoder{}.Encode(x, 1, time, width, 1)

	for ti := 0; ti < time; ti++ {
		last := x[ti*width+width-1]
		if last == 0 {
			t.Fatalf("timestep %d: final channel received no signal", ti)
		}
		angle := float64(ti+1) / math.Pow(10000, float64(width-1)/float64(width))
		compareSlices(t, "final channel", []float32{last}, []float32{float32(math.Sin(angle))}, 1e-6)
	}
}
