// Package decode drives a decoder end to end: token embedding, the
// incremental generation loop, and teacher-forced scoring.
package decode

import (
	"fmt"
	"math"

	"github.com/alloynmt/alloy/internal/decoder"
	"github.com/alloynmt/alloy/internal/tensor"
)

// Model pairs a decoder with a token embedding table and an output
// projection over the vocabulary.
type Model struct {
	dec   *decoder.Decoder
	emb   tensor.Mat
	vocab int
}

// NewModel builds a model with randomly initialized embeddings and
// decoder weights derived from seed. Load a bundle afterwards to use
// trained parameters.
func NewModel(cfg decoder.Config, vocabSize int, seed int64) (*Model, error) {
	if vocabSize <= 0 {
		return nil, fmt.Errorf("decode: vocab size must be positive, got %d", vocabSize)
	}
	dec, err := decoder.New(cfg, decoder.WithSeed(seed))
	if err != nil {
		return nil, err
	}
	if err := dec.Setup(vocabSize, nil); err != nil {
		return nil, err
	}
	emb := tensor.NewMat(vocabSize, cfg.NumUnits)
	tensor.FillRand(&emb, seed+0x1d)
	return &Model{dec: dec, emb: emb, vocab: vocabSize}, nil
}

// Decoder exposes the underlying decoder, e.g. for bundle transfer.
func (m *Model) Decoder() *decoder.Decoder { return m.dec }

// VocabSize returns the size of the output vocabulary.
func (m *Model) VocabSize() int { return m.vocab }

// Embed turns a single-example token sequence into a decoder input.
func (m *Model) Embed(tokens []int, domain int) (decoder.Input, error) {
	width := m.emb.C
	x := make([]float32, len(tokens)*width)
	for t, id := range tokens {
		if id < 0 || id >= m.vocab {
			return decoder.Input{}, fmt.Errorf("decode: token %d out of range [0,%d)", id, m.vocab)
		}
		copy(x[t*width:(t+1)*width], m.emb.Row(id))
	}
	return decoder.Input{
		Embedded: x,
		Batch:    1,
		Time:     len(tokens),
		Domains:  []int{domain},
	}, nil
}

// Score returns the log-likelihood of each token given the ones before
// it, plus the sequence total. tokens must hold at least two entries;
// the first conditions the rest and is not scored.
func (m *Model) Score(tokens []int, domain int, memory []decoder.Memory) ([]float64, float64, error) {
	if len(tokens) < 2 {
		return nil, 0, fmt.Errorf("decode: scoring needs at least two tokens, got %d", len(tokens))
	}
	in, err := m.Embed(tokens[:len(tokens)-1], domain)
	if err != nil {
		return nil, 0, err
	}
	lg, _, _, err := m.dec.Forward(in, decoder.Options{Memory: memory})
	if err != nil {
		return nil, 0, err
	}

	scores := make([]float64, len(tokens)-1)
	var total float64
	for i := range scores {
		row := lg[i*m.vocab : (i+1)*m.vocab]
		scores[i] = logProb(row, tokens[i+1])
		total += scores[i]
	}
	return scores, total, nil
}

// logProb computes log softmax(logits)[id].
func logProb(logits []float32, id int) float64 {
	maxv := logits[0]
	for _, v := range logits[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v - maxv))
	}
	return float64(logits[id]-maxv) - math.Log(sum)
}
