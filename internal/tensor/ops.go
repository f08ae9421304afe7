package tensor

import (
	"math"
	"math/rand"
)

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Scale multiplies every element of x by s in place.
func Scale(x []float32, s float32) {
	for i := range x {
		x[i] *= s
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// LayerNorm normalises src to zero mean and unit variance, then applies the
// learned gain and bias.  dst and src may alias.
func LayerNorm(dst, src, gamma, beta []float32, eps float32) {
	var sum float32
	for _, v := range src {
		sum += v
	}
	mean := sum / float32(len(src))
	var sq float32
	for _, v := range src {
		d := v - mean
		sq += d * d
	}
	variance := sq / float32(len(src))
	scale := float32(1.0) / float32(math.Sqrt(float64(variance+eps)))
	for i := range src {
		dst[i] = (src[i]-mean)*scale*gamma[i] + beta[i]
	}
}

// Softmax applies the softmax function to x.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// ReLU applies the rectified linear unit activation in place.
func ReLU(x []float32) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// GELU applies the Gaussian error linear unit activation in place, using the
// tanh approximation.
func GELU(x []float32) {
	const c = 0.7978845608028654 // sqrt(2/pi)
	for i := range x {
		v := float64(x[i])
		x[i] = float32(0.5 * v * (1 + math.Tanh(c*(v+0.044715*v*v*v))))
	}
}

// Dropout zeroes each element of x with probability rate and scales the
// survivors by 1/(1-rate).  A nil rng or a non-positive rate leaves x
// untouched.
func Dropout(x []float32, rate float32, rng *rand.Rand) {
	if rng == nil || rate <= 0 {
		return
	}
	if rate >= 1 {
		for i := range x {
			x[i] = 0
		}
		return
	}
	keep := float32(1.0) / (1 - rate)
	for i := range x {
		if rng.Float32() < rate {
			x[i] = 0
		} else {
			x[i] *= keep
		}
	}
}
