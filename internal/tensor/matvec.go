package tensor

import (
	"runtime"
	"sync"
)

// MatVec computes dst = w * x where w is a matrix and x is a vector of
// length w.C.  Row i of w produces dst[i].
func MatVec(dst []float32, w *Mat, x []float32) {
	if w.R == 0 || w.C == 0 {
		return
	}
	if len(dst) < w.R || len(x) < w.C {
		panic("matvec shape mismatch")
	}
	matVecRange(dst, w, x, 0, w.R)
}

func matVecRange(dst []float32, w *Mat, x []float32, rs, re int) {
	for r := rs; r < re; r++ {
		row := w.Data[r*w.Stride : r*w.Stride+w.C]
		var sum float32
		for j := 0; j < w.C; j++ {
			sum += row[j] * x[j]
		}
		dst[r] = sum
	}
}

// MatVecRows applies MatVec to a batch of row vectors.  xs holds rows
// vectors of length w.C back to back and dst receives rows vectors of
// length w.R back to back.  Rows are distributed over GOMAXPROCS workers.
func MatVecRows(dst []float32, w *Mat, xs []float32, rows int) {
	if rows <= 0 {
		return
	}
	if len(xs) < rows*w.C || len(dst) < rows*w.R {
		panic("matvec rows shape mismatch")
	}
	workers := min(runtime.GOMAXPROCS(0), rows)
	if workers <= 1 {
		for r := 0; r < rows; r++ {
			matVecRange(dst[r*w.R:(r+1)*w.R], w, xs[r*w.C:(r+1)*w.C], 0, w.R)
		}
		return
	}
	var wg sync.WaitGroup
	chunk := (rows + workers - 1) / workers
	for i := range workers {
		rs := i * chunk
		re := min(rs+chunk, rows)
		if rs >= re {
			break
		}
		wg.Add(1)
		go func(rs, re int) {
			defer wg.Done()
			for r := rs; r < re; r++ {
				matVecRange(dst[r*w.R:(r+1)*w.R], w, xs[r*w.C:(r+1)*w.C], 0, w.R)
			}
		}(rs, re)
	}
	wg.Wait()
}
