package decoder

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/alloynmt/alloy/internal/tensor"
)

// Bundle is an externally supplied parameter set, keyed by the decoder's
// parameter names.  Matrix values are flattened row-major with the output
// dimension as rows.  A bundle equal in value to a decoder's own parameters
// drives ForwardWithBundle to outputs numerically identical to Forward.
type Bundle map[string][]float32

// Keys returns the sorted-insertion view of the bundle's keys; mainly a
// debugging aid.
func (b Bundle) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	return keys
}

type normWeights struct {
	gamma, beta []float32
}

type attnWeights struct {
	norm           normWeights
	wq, wk, wv, wo tensor.Mat
	bq, bk, bv, bo []float32
}

type ffnWeights struct {
	norm normWeights
	w1   tensor.Mat
	b1   []float32
	w2   tensor.Mat
	b2   []float32
}

type layerWeights struct {
	self  attnWeights
	cross []attnWeights
	ffn   ffnWeights
}

type adapterWeights struct {
	norm  normWeights
	up    tensor.Mat
	bup   []float32
	down  tensor.Mat
	bdown []float32
}

// weights is the full parameter set of a decoder stack.  Both execution
// modes run through a *weights: the owned one built at construction, or one
// resolved from an external Bundle.  bundle aliases every parameter's
// backing array under its key.
type weights struct {
	layers   []layerWeights
	adapters []adapterWeights
	norm     normWeights
	bundle   Bundle
}

// paramSource yields parameter values during weight construction.  The two
// implementations are deterministic random initialisation (owned mode) and
// lookup in an external bundle (explicit-parameter mode).
type paramSource interface {
	mat(key string, r, c int) (tensor.Mat, error)
	vec(key string, n int) ([]float32, error)
}

type initSource struct {
	seed int64
}

func keySeed(seed int64, key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return seed ^ int64(h.Sum64())
}

func (s initSource) mat(key string, r, c int) (tensor.Mat, error) {
	m := tensor.NewMat(r, c)
	tensor.FillRand(&m, keySeed(s.seed, key))
	return m, nil
}

func (s initSource) vec(key string, n int) ([]float32, error) {
	v := make([]float32, n)
	if strings.HasSuffix(key, "gamma") {
		for i := range v {
			v[i] = 1
		}
	}
	return v, nil
}

type bundleSource struct {
	b Bundle
}

func (s bundleSource) mat(key string, r, c int) (tensor.Mat, error) {
	data, ok := s.b[key]
	if !ok {
		return tensor.Mat{}, fmt.Errorf("decoder: bundle missing parameter %q", key)
	}
	if len(data) != r*c {
		return tensor.Mat{}, fmt.Errorf("decoder: bundle parameter %q has %d values, want %d", key, len(data), r*c)
	}
	return tensor.NewMatFromData(r, c, data), nil
}

func (s bundleSource) vec(key string, n int) ([]float32, error) {
	data, ok := s.b[key]
	if !ok {
		return nil, fmt.Errorf("decoder: bundle missing parameter %q", key)
	}
	if len(data) != n {
		return nil, fmt.Errorf("decoder: bundle parameter %q has %d values, want %d", key, len(data), n)
	}
	return data, nil
}

// recordingSource wraps another source and records every parameter into a
// bundle, so the owned weights and their exported bundle always alias the
// same arrays.
type recordingSource struct {
	inner paramSource
	into  Bundle
}

func (s recordingSource) mat(key string, r, c int) (tensor.Mat, error) {
	m, err := s.inner.mat(key, r, c)
	if err != nil {
		return tensor.Mat{}, err
	}
	s.into[key] = m.Data
	return m, nil
}

func (s recordingSource) vec(key string, n int) ([]float32, error) {
	v, err := s.inner.vec(key, n)
	if err != nil {
		return nil, err
	}
	s.into[key] = v
	return v, nil
}

func buildNorm(src paramSource, prefix string, width int) (normWeights, error) {
	gamma, err := src.vec(prefix+"gamma", width)
	if err != nil {
		return normWeights{}, err
	}
	beta, err := src.vec(prefix+"beta", width)
	if err != nil {
		return normWeights{}, err
	}
	return normWeights{gamma: gamma, beta: beta}, nil
}

func buildAttn(src paramSource, prefix string, width int) (attnWeights, error) {
	var w attnWeights
	var err error
	if w.norm, err = buildNorm(src, prefix+"norm_", width); err != nil {
		return w, err
	}
	mats := []struct {
		dst *tensor.Mat
		key string
	}{
		{&w.wq, "wq"}, {&w.wk, "wk"}, {&w.wv, "wv"}, {&w.wo, "wo"},
	}
	for _, m := range mats {
		if *m.dst, err = src.mat(prefix+m.key, width, width); err != nil {
			return w, err
		}
	}
	vecs := []struct {
		dst *[]float32
		key string
	}{
		{&w.bq, "bq"}, {&w.bk, "bk"}, {&w.bv, "bv"}, {&w.bo, "bo"},
	}
	for _, v := range vecs {
		if *v.dst, err = src.vec(prefix+v.key, width); err != nil {
			return w, err
		}
	}
	return w, nil
}

func buildFFN(src paramSource, prefix string, width, inner int) (ffnWeights, error) {
	var w ffnWeights
	var err error
	if w.norm, err = buildNorm(src, prefix+"norm_", width); err != nil {
		return w, err
	}
	if w.w1, err = src.mat(prefix+"w1", inner, width); err != nil {
		return w, err
	}
	if w.b1, err = src.vec(prefix+"b1", inner); err != nil {
		return w, err
	}
	if w.w2, err = src.mat(prefix+"w2", width, inner); err != nil {
		return w, err
	}
	if w.b2, err = src.vec(prefix+"b2", width); err != nil {
		return w, err
	}
	return w, nil
}

func buildAdapter(src paramSource, prefix string, width, bank int) (adapterWeights, error) {
	var w adapterWeights
	var err error
	if w.norm, err = buildNorm(src, prefix+"norm_", width); err != nil {
		return w, err
	}
	if w.up, err = src.mat(prefix+"up", bank, width); err != nil {
		return w, err
	}
	if w.bup, err = src.vec(prefix+"b_up", bank); err != nil {
		return w, err
	}
	if w.down, err = src.mat(prefix+"down", width, bank); err != nil {
		return w, err
	}
	if w.bdown, err = src.vec(prefix+"b_down", width); err != nil {
		return w, err
	}
	return w, nil
}

// buildWeights constructs a full decoder parameter set from a source.  Both
// execution modes share this single shape definition, so the owned and
// externally-supplied layer compositions cannot diverge.
func buildWeights(cfg *Config, src paramSource) (*weights, error) {
	bundle := make(Bundle)
	src = recordingSource{inner: src, into: bundle}

	w := &weights{
		layers:   make([]layerWeights, cfg.NumLayers),
		adapters: make([]adapterWeights, cfg.NumLayers),
		bundle:   bundle,
	}
	width := cfg.NumUnits
	var err error
	for i := range w.layers {
		prefix := fmt.Sprintf("layer_%d/", i)
		lw := &w.layers[i]
		if lw.self, err = buildAttn(src, prefix+"self/", width); err != nil {
			return nil, err
		}
		lw.cross = make([]attnWeights, cfg.NumSources)
		for s := range lw.cross {
			mp := fmt.Sprintf("%smemory_%d/", prefix, s)
			if lw.cross[s], err = buildAttn(src, mp, width); err != nil {
				return nil, err
			}
		}
		if lw.ffn, err = buildFFN(src, prefix+"ffn/", width, cfg.FFNInnerDim); err != nil {
			return nil, err
		}
		ap := fmt.Sprintf("adapter_%d/", i)
		if w.adapters[i], err = buildAdapter(src, ap, width, cfg.BankUnits()); err != nil {
			return nil, err
		}
	}
	if w.norm, err = buildNorm(src, "norm/", width); err != nil {
		return nil, err
	}
	return w, nil
}
