package tensor

import (
	"math"
	"testing"
)

func matVecNaive(dst []float32, w *Mat, x []float32) {
	for i := 0; i < w.R; i++ {
		row := w.Data[i*w.Stride : i*w.Stride+w.C]
		var sum float32
		for j := 0; j < w.C; j++ {
			sum += row[j] * x[j]
		}
		dst[i] = sum
	}
}

func TestMatVecMatchesNaive(t *testing.T) {
	r, c := 37, 53
	w := NewMat(r, c)
	FillRand(&w, 7)
	x := make([]float32, c)
	FillRandVec(x, 11)

	got := make([]float32, r)
	want := make([]float32, r)
	MatVec(got, &w, x)
	matVecNaive(want, &w, x)

	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > 1e-5 {
			t.Fatalf("mismatch at %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestMatVecRowsMatchesPerRow(t *testing.T) {
	r, c, rows := 16, 24, 9
	w := NewMat(r, c)
	FillRand(&w, 3)
	xs := make([]float32, rows*c)
	FillRandVec(xs, 5)

	got := make([]float32, rows*r)
	MatVecRows(got, &w, xs, rows)

	want := make([]float32, rows*r)
	for i := 0; i < rows; i++ {
		MatVec(want[i*r:(i+1)*r], &w, xs[i*c:(i+1)*c])
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("row batch mismatch at %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func BenchmarkMatVecRows(b *testing.B) {
	r, c, rows := 512, 512, 32
	w := NewMat(r, c)
	FillRand(&w, 1)
	xs := make([]float32, rows*c)
	dst := make([]float32, rows*r)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MatVecRows(dst, &w, xs, rows)
	}
}
