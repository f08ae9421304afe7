package decoder

import (
	"fmt"

	"github.com/alloynmt/alloy/internal/tensor"
)

// OutputLayer maps normalised decoder hidden states to vocabulary logits.
// Implementations must make both execution modes available; for a bundle
// equal in value to the held parameters the two must agree exactly.
type OutputLayer interface {
	Project(h []float32, rows int) []float32
	ProjectWithBundle(h []float32, rows int, b Bundle) ([]float32, error)
	VocabSize() int
}

// Dense is the default output projection, a single linear layer.
type Dense struct {
	w tensor.Mat // [vocab, width]
	b []float32
}

// NewDense builds a dense projection with deterministic random weights.
func NewDense(vocab, width int, seed int64) *Dense {
	d := &Dense{
		w: tensor.NewMat(vocab, width),
		b: make([]float32, vocab),
	}
	tensor.FillRand(&d.w, keySeed(seed, "dense/w"))
	return d
}

func (l *Dense) VocabSize() int { return l.w.R }

func (l *Dense) Project(h []float32, rows int) []float32 {
	logits := make([]float32, rows*l.w.R)
	tensor.MatVecRows(logits, &l.w, h, rows)
	addBiasRows(logits, rows, l.b)
	return logits
}

func (l *Dense) ProjectWithBundle(h []float32, rows int, b Bundle) ([]float32, error) {
	src := bundleSource{b: b}
	w, err := src.mat("dense/w", l.w.R, l.w.C)
	if err != nil {
		return nil, err
	}
	bias, err := src.vec("dense/b", len(l.b))
	if err != nil {
		return nil, err
	}
	logits := make([]float32, rows*w.R)
	tensor.MatVecRows(logits, &w, h, rows)
	addBiasRows(logits, rows, bias)
	return logits, nil
}

// Bundle exports the projection's parameters under their bundle keys.  The
// returned map aliases the layer's backing arrays.
func (l *Dense) Bundle() Bundle {
	return Bundle{
		"dense/w": l.w.Data,
		"dense/b": l.b,
	}
}

// Apply copies parameter values from a bundle into the held weights.
func (l *Dense) Apply(b Bundle) error {
	if data, ok := b["dense/w"]; ok {
		if len(data) != len(l.w.Data) {
			return fmt.Errorf("decoder: dense/w has %d values, want %d", len(data), len(l.w.Data))
		}
		copy(l.w.Data, data)
	}
	if data, ok := b["dense/b"]; ok {
		if len(data) != len(l.b) {
			return fmt.Errorf("decoder: dense/b has %d values, want %d", len(data), len(l.b))
		}
		copy(l.b, data)
	}
	return nil
}
