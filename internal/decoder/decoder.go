// Package decoder implements an autoregressive self-attention decoder with
// per-layer domain adapters.  A domain id attached to each input example
// selects, through a constant mask table, which slice of every adapter's
// parameter bank is active, so batches mixing domains run in one pass.
//
// The decoder exposes three driving modes over a single layer composition:
// a full-sequence pass (Forward), an explicit-parameter variant of it
// (ForwardWithBundle) for meta-learning style weight injection, and
// one-timestep incremental decoding over a caller-owned key/value cache
// (Step).  All three route through the same run path; the explicit and
// owned parameter modes differ only in where weights are resolved from.
package decoder

import (
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/alloynmt/alloy/internal/tensor"
)

// Decoder is the multi-domain self-attention decoder stack.  It owns its
// layer, adapter and normalisation parameters for its full lifetime.  The
// incremental decode cache is owned by the caller instead, so independent
// sessions may share one Decoder provided each session serialises its own
// Step calls.
type Decoder struct {
	cfg        Config
	pos        PositionEncoder
	domainMask tensor.Mat
	w          *weights
	out        OutputLayer
	seed       int64
	dropSeq    atomic.Int64
}

// Option configures a Decoder at construction.
type Option func(*Decoder)

// WithPositionEncoder overrides the default sinusoidal position encoder.
// Passing nil disables position encoding entirely.
func WithPositionEncoder(pe PositionEncoder) Option {
	return func(d *Decoder) { d.pos = pe }
}

// WithSeed fixes the seed used for parameter initialisation and dropout.
func WithSeed(seed int64) Option {
	return func(d *Decoder) { d.seed = seed }
}

// New constructs a decoder with deterministically initialised parameters
// and the precomputed domain mask table.
func New(cfg Config, opts ...Option) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Decoder{
		cfg:  cfg,
		pos:  SinusoidalEncoder{},
		seed: 1,
	}
	for _, opt := range opts {
		opt(d)
	}
	var err error
	if d.w, err = buildWeights(&d.cfg, initSource{seed: d.seed}); err != nil {
		return nil, err
	}
	d.domainMask = BuildDomainMask(cfg.NumDomains, cfg.NumDomainUnits)
	return d, nil
}

// Config returns the decoder's immutable configuration.
func (d *Decoder) Config() Config { return d.cfg }

// Setup installs the output projection.  Exactly one of vocabSize and
// output must be provided; ErrNoOutputLayer is returned when neither is.
func (d *Decoder) Setup(vocabSize int, output OutputLayer) error {
	if output != nil {
		d.out = output
		return nil
	}
	if vocabSize <= 0 {
		return ErrNoOutputLayer
	}
	d.out = NewDense(vocabSize, d.cfg.NumUnits, d.seed)
	return nil
}

// Input is the decoder's per-call input pair: embedded target tokens and
// one domain id per example.  Embedded holds batch*time rows of width
// values, example-major.
type Input struct {
	Embedded []float32
	Batch    int
	Time     int
	Domains  []int
}

// Memory is one encoder output the decoder cross-attends to.  Values holds
// batch*time rows of width values; Lengths, when non-nil, gives each
// example's valid (non-padding) source length.
type Memory struct {
	Values  []float32
	Time    int
	Lengths []int
}

// Options carries the per-call arguments shared by the driving modes.
type Options struct {
	// Lengths gives per-example target lengths for the causal mask in
	// full-sequence mode; nil means every example spans the full time axis.
	// Step ignores Lengths: each new position attends to the whole cached
	// history.
	Lengths []int
	// Memory lists the encoder outputs, at most Config.NumSources of them.
	Memory []Memory
	// SamplingProbability requests scheduled sampling, which this decoder
	// rejects; any non-nil value fails with ErrScheduledSampling.
	SamplingProbability *float64
	// Training enables dropout.
	Training bool
}

// Forward runs the full-sequence pass: the whole target sequence is
// processed at once under the causal mask, and the returned cache holds
// every position's key/value projections (usable to continue with Step).
// The attention result is the last layer's head-averaged weights over the
// single memory source, or nil unless exactly one source is configured.
func (d *Decoder) Forward(in Input, opts Options) (logits []float32, cache *Cache, attn []float32, err error) {
	if opts.SamplingProbability != nil {
		return nil, nil, nil, ErrScheduledSampling
	}
	if d.out == nil {
		return nil, nil, nil, ErrNotSetUp
	}
	cache, err = d.InitialCache(in.Batch, F32)
	if err != nil {
		return nil, nil, nil, err
	}
	outputs, attn, err := d.run(d.w, in, cache, runOpts{step: -1, lengths: opts.Lengths, memory: opts.Memory, training: opts.Training})
	if err != nil {
		return nil, nil, nil, err
	}
	return d.out.Project(outputs, in.Batch*in.Time), cache, attn, nil
}

// ForwardWithBundle is Forward in explicit-parameter mode: every weight is
// resolved from the supplied bundle instead of the decoder's own state.
// The layer composition, masking and cache threading are exactly those of
// Forward.
func (d *Decoder) ForwardWithBundle(in Input, b Bundle, opts Options) (logits []float32, cache *Cache, attn []float32, err error) {
	if opts.SamplingProbability != nil {
		return nil, nil, nil, ErrScheduledSampling
	}
	if d.out == nil {
		return nil, nil, nil, ErrNotSetUp
	}
	w, err := buildWeights(&d.cfg, bundleSource{b: b})
	if err != nil {
		return nil, nil, nil, err
	}
	cache, err = d.InitialCache(in.Batch, F32)
	if err != nil {
		return nil, nil, nil, err
	}
	outputs, attn, err := d.run(w, in, cache, runOpts{step: -1, lengths: opts.Lengths, memory: opts.Memory, training: opts.Training})
	if err != nil {
		return nil, nil, nil, err
	}
	logits, err = d.out.ProjectWithBundle(outputs, in.Batch*in.Time, b)
	if err != nil {
		return nil, nil, nil, err
	}
	return logits, cache, attn, nil
}

// Step advances an incremental decode by one timestep.  in must hold
// exactly one timestep per example; timestep is the absolute 0-based
// position, used for the positional signal.  The cache is mutated in
// place: every layer's self key/value history grows by one position, and
// memory projections are computed on the first step that sees them.  Step
// returns the normalised hidden state with the time dimension squeezed out
// (rows of width values); apply Project to obtain logits.
func (d *Decoder) Step(in Input, timestep int, cache *Cache, opts Options) (hidden []float32, attn []float32, err error) {
	if opts.SamplingProbability != nil {
		return nil, nil, ErrScheduledSampling
	}
	if in.Time != 1 {
		return nil, nil, fmt.Errorf("decoder: step input must have a single timestep, got %d", in.Time)
	}
	return d.run(d.w, in, cache, runOpts{step: timestep, memory: opts.Memory, training: opts.Training})
}

// StepWithBundle is Step in explicit-parameter mode.
func (d *Decoder) StepWithBundle(in Input, b Bundle, timestep int, cache *Cache, opts Options) (hidden []float32, attn []float32, err error) {
	if opts.SamplingProbability != nil {
		return nil, nil, ErrScheduledSampling
	}
	if in.Time != 1 {
		return nil, nil, fmt.Errorf("decoder: step input must have a single timestep, got %d", in.Time)
	}
	w, err := buildWeights(&d.cfg, bundleSource{b: b})
	if err != nil {
		return nil, nil, err
	}
	return d.run(w, in, cache, runOpts{step: timestep, memory: opts.Memory, training: opts.Training})
}

// Project maps hidden states (rows of width values) to vocabulary logits
// through the output layer installed by Setup.
func (d *Decoder) Project(hidden []float32, rows int) ([]float32, error) {
	if d.out == nil {
		return nil, ErrNotSetUp
	}
	return d.out.Project(hidden, rows), nil
}

// WeightsBundle exports the decoder's own parameters under their bundle
// keys.  The values alias the decoder's backing arrays; feeding the result
// to ForwardWithBundle reproduces Forward exactly.
func (d *Decoder) WeightsBundle() Bundle {
	b := make(Bundle, len(d.w.bundle)+2)
	for k, v := range d.w.bundle {
		b[k] = v
	}
	if dense, ok := d.out.(*Dense); ok {
		for k, v := range dense.Bundle() {
			b[k] = v
		}
	}
	return b
}

// ApplyBundle copies matching parameter values from b into the decoder's
// own weights.  Keys absent from b keep their current values; a present
// key with the wrong length is an error.  Unknown keys are ignored.
func (d *Decoder) ApplyBundle(b Bundle) error {
	for key, dst := range d.w.bundle {
		src, ok := b[key]
		if !ok {
			continue
		}
		if len(src) != len(dst) {
			return fmt.Errorf("decoder: bundle parameter %q has %d values, want %d", key, len(src), len(dst))
		}
		copy(dst, src)
	}
	if dense, ok := d.out.(*Dense); ok {
		return dense.Apply(b)
	}
	return nil
}

type runOpts struct {
	step     int // absolute timestep for Step, -1 for full-sequence mode
	lengths  []int
	memory   []Memory
	training bool
}

func (d *Decoder) checkInput(in Input, memory []Memory) error {
	cfg := &d.cfg
	if in.Batch <= 0 || in.Time <= 0 {
		return fmt.Errorf("decoder: batch and time must be positive, got %d and %d", in.Batch, in.Time)
	}
	if len(in.Embedded) != in.Batch*in.Time*cfg.NumUnits {
		return fmt.Errorf("decoder: embedded input has %d values, want %d", len(in.Embedded), in.Batch*in.Time*cfg.NumUnits)
	}
	if len(in.Domains) != in.Batch {
		return fmt.Errorf("decoder: %d domain ids for batch of %d", len(in.Domains), in.Batch)
	}
	for _, dom := range in.Domains {
		if dom < 0 || dom >= cfg.NumDomains {
			return fmt.Errorf("decoder: domain id %d outside [0,%d)", dom, cfg.NumDomains)
		}
	}
	if len(memory) > cfg.NumSources {
		return fmt.Errorf("decoder: %d memory sources, decoder configured for %d", len(memory), cfg.NumSources)
	}
	for s, mem := range memory {
		if mem.Time == 0 && mem.Values == nil {
			continue
		}
		if len(mem.Values) != in.Batch*mem.Time*cfg.NumUnits {
			return fmt.Errorf("decoder: memory source %d has %d values, want %d", s, len(mem.Values), in.Batch*mem.Time*cfg.NumUnits)
		}
		if mem.Lengths != nil && len(mem.Lengths) != in.Batch {
			return fmt.Errorf("decoder: memory source %d has %d lengths for batch of %d", s, len(mem.Lengths), in.Batch)
		}
	}
	return nil
}

// run is the single execution path shared by every driving mode and both
// parameter modes.  Any divergence between modes is a correctness bug, so
// nothing here may branch on where w came from.
func (d *Decoder) run(w *weights, in Input, cache *Cache, ro runOpts) ([]float32, []float32, error) {
	cfg := &d.cfg
	if err := d.checkInput(in, ro.memory); err != nil {
		return nil, nil, err
	}
	if cache == nil || len(cache.Layers) != cfg.NumLayers {
		return nil, nil, fmt.Errorf("decoder: cache does not match decoder layer count")
	}
	if cache.Batch != in.Batch {
		return nil, nil, fmt.Errorf("decoder: cache batch %d does not match input batch %d", cache.Batch, in.Batch)
	}
	batch, time, width := in.Batch, in.Time, cfg.NumUnits
	rows := batch * time

	// Gather each example's domain mask row.
	bank := cfg.BankUnits()
	dm := make([]float32, batch*bank)
	for b, dom := range in.Domains {
		copy(dm[b*bank:(b+1)*bank], d.domainMask.Row(dom))
	}

	// Scale, position-encode and regularise the inputs.
	x := append([]float32(nil), in.Embedded...)
	tensor.Scale(x, float32(math.Sqrt(float64(width))))
	if d.pos != nil {
		start := 1
		if ro.step >= 0 {
			start = ro.step + 1
		}
		d.pos.Encode(x, batch, time, width, start)
	}
	// Dropout draws from a per-call stream so concurrent callers never
	// share generator state.
	var rng *rand.Rand
	if ro.training {
		rng = rand.New(rand.NewSource(d.seed + d.dropSeq.Add(1)))
	}
	tensor.Dropout(x, cfg.Dropout, rng)

	// Masks: causal only in full-sequence mode, memory masks per source.
	var causal []bool
	if ro.step < 0 {
		causal = FutureMask(ro.lengths, batch, time)
	}
	memMasks := make([][]bool, len(ro.memory))
	for s, mem := range ro.memory {
		memMasks[s] = SequenceMask(mem.Lengths, batch, mem.Time)
	}

	var attn []float32
	for i := range w.layers {
		lw := &w.layers[i]
		lc := &cache.Layers[i]

		y := d.selfAttention(&lw.self, x, batch, time, lc, causal, rng)
		tensor.Dropout(y, cfg.Dropout, rng)
		tensor.Add(x, y)

		for s := range lw.cross {
			var mem Memory
			if s < len(ro.memory) {
				mem = ro.memory[s]
			}
			var mask []bool
			if s < len(memMasks) {
				mask = memMasks[s]
			}
			wantAttn := s == 0 && cfg.NumSources == 1
			y, aw := d.crossAttention(&lw.cross[s], x, batch, time, mem, &lc.Memory[s], mask, wantAttn, rng)
			if y == nil {
				continue
			}
			if aw != nil {
				attn = aw
			}
			tensor.Dropout(y, cfg.Dropout, rng)
			tensor.Add(x, y)
		}

		y = d.feedForward(&lw.ffn, x, rows, rng)
		tensor.Dropout(y, cfg.Dropout, rng)
		tensor.Add(x, y)

		// Domain adapter, residually added without dropout.
		tensor.Add(x, d.runAdapter(&w.adapters[i], x, batch, time, dm, rng))
	}

	out := make([]float32, rows*width)
	layerNormRows(out, x, rows, width, &w.norm)
	return out, attn, nil
}
