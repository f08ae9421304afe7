package decode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alloynmt/alloy/internal/decoder"
	"github.com/alloynmt/alloy/internal/logits"
)

// Stats summarises one generation run.
type Stats struct {
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

// Session is a single-sequence incremental decode. It owns its cache
// and position counter, so independent sessions over the same model
// never interfere. Not safe for concurrent use.
type Session struct {
	ID      string
	model   *Model
	domain  int
	memory  []decoder.Memory
	sampler *logits.Sampler
	cache   *decoder.Cache
	pos     int

	lastLogits []float32
	lastAttn   []float32
}

// NewSession opens a session decoding in the given domain, optionally
// cross-attending to memory.
func (m *Model) NewSession(domain int, memory []decoder.Memory, sampler *logits.Sampler) (*Session, error) {
	if domain < 0 || domain >= m.dec.Config().NumDomains {
		return nil, fmt.Errorf("decode: domain %d out of range [0,%d)", domain, m.dec.Config().NumDomains)
	}
	if sampler == nil {
		sampler = logits.NewSampler(logits.SamplerConfig{})
	}
	cache, err := m.dec.InitialCache(1, decoder.F32)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:      uuid.NewString(),
		model:   m,
		domain:  domain,
		memory:  memory,
		sampler: sampler,
		cache:   cache,
	}, nil
}

// Pos returns the number of tokens fed so far.
func (s *Session) Pos() int { return s.pos }

// Attention returns the memory attention weights from the latest step,
// or nil when the model has no single memory source.
func (s *Session) Attention() []float32 { return s.lastAttn }

// Next feeds one token and returns the logits predicting the token
// after it.
func (s *Session) Next(tok int) ([]float32, error) {
	in, err := s.model.Embed([]int{tok}, s.domain)
	if err != nil {
		return nil, err
	}
	hidden, attn, err := s.model.dec.Step(in, s.pos, s.cache, decoder.Options{Memory: s.memory})
	if err != nil {
		return nil, err
	}
	s.pos++
	lg, err := s.model.dec.Project(hidden, 1)
	if err != nil {
		return nil, err
	}
	s.lastLogits = lg
	s.lastAttn = attn
	return lg, nil
}

// Generate feeds the prompt, then samples up to steps tokens, invoking
// callback (when non-nil) for each one. The sampled token is fed back
// into the session, so generation can resume after Generate returns.
func (s *Session) Generate(ctx context.Context, prompt []int, steps int, callback func(int)) ([]int, Stats, error) {
	var stats Stats
	if len(prompt) == 0 {
		return nil, stats, errors.New("decode: empty prompt")
	}

	var lg []float32
	var err error
	for _, id := range prompt {
		lg, err = s.Next(id)
		if err != nil {
			return nil, stats, fmt.Errorf("prefill: %w", err)
		}
	}

	toks := make([]int, 0, steps)
	start := time.Now()
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return toks, stats, ctx.Err()
		default:
		}

		next := s.sampler.Sample(lg)
		toks = append(toks, next)
		if callback != nil {
			callback(next)
		}

		lg, err = s.Next(next)
		if err != nil {
			return toks, stats, fmt.Errorf("generation step %d: %w", i, err)
		}
		stats.TokensGenerated++
	}

	stats.Duration = time.Since(start)
	if stats.Duration.Seconds() > 0 {
		stats.TPS = float64(stats.TokensGenerated) / stats.Duration.Seconds()
	}
	return toks, stats, nil
}
