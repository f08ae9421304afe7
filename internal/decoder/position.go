package decoder

import "math"

// PositionEncoder adds a positional signal to a block of embedded inputs.
// x holds batch*time rows of length width; the row for timestep t receives
// the signal for absolute position startPos+t.  Positions are 1-based: a
// full-sequence pass uses startPos=1 and an incremental step at timestep t
// uses startPos=t+1.
type PositionEncoder interface {
	Encode(x []float32, batch, time, width, startPos int)
}

// SinusoidalEncoder is the standard fixed sin/cos position encoding, with
// frequencies interleaved across the width.
type SinusoidalEncoder struct{}

func (SinusoidalEncoder) Encode(x []float32, batch, time, width, startPos int) {
	for b := 0; b < batch; b++ {
		for t := 0; t < time; t++ {
			row := x[(b*time+t)*width : (b*time+t+1)*width]
			pos := float64(startPos + t)
			for i := 0; i+1 < width; i += 2 {
				angle := pos / math.Pow(10000, float64(i)/float64(width))
				row[i] += float32(math.Sin(angle))
				row[i+1] += float32(math.Cos(angle))
			}
			// An odd width leaves one channel without a cos partner; it
			// still gets the sin term at its own frequency.
			if width%2 == 1 {
				angle := pos / math.Pow(10000, float64(width-1)/float64(width))
				row[width-1] += float32(math.Sin(angle))
			}
		}
	}
}
