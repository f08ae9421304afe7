package logits

import "testing"

func TestSamplerDeterminism(t *testing.T) {
	logs := []float32{0, 1, 2, 3, 4, 5}
	s1 := NewSampler(SamplerConfig{Seed: 42, Temperature: 0.9, TopK: 4, TopP: 0.95})
	s2 := NewSampler(SamplerConfig{Seed: 42, Temperature: 0.9, TopK: 4, TopP: 0.95})
	for i := 0; i < 20; i++ {
		a := s1.Sample(logs)
		b := s2.Sample(logs)
		if a != b {
			t.Fatalf("step %d: expected deterministic sample, got %d vs %d", i, a, b)
		}
	}
}

func TestSamplerGreedy(t *testing.T) {
	logs := []float32{-1, 5, 3, 7, 2}
	s := NewSampler(SamplerConfig{Seed: 99})
	if idx := s.Sample(logs); idx != 3 {
		t.Fatalf("expected greedy index 3, got %d", idx)
	}
}

func TestSamplerTopK1(t *testing.T) {
	logs := []float32{0.5, 9, 1}
	s := NewSampler(SamplerConfig{Seed: 5, Temperature: 1.2, TopK: 1})
	if idx := s.Sample(logs); idx != 1 {
		t.Fatalf("expected index 1 with top-k 1, got %d", idx)
	}
}

func TestSamplerTopP(t *testing.T) {
	// First candidate dominates the softmax, so the cumulative cut at
	// 0.5 leaves only index 0.
	logs := []float32{10, 0, 0, 0, 0}
	s := NewSampler(SamplerConfig{Seed: 7, Temperature: 1.0, TopK: 5, TopP: 0.5})
	for i := 0; i < 10; i++ {
		if idx := s.Sample(logs); idx != 0 {
			t.Fatalf("top-p sampling returned unexpected index %d", idx)
		}
	}
}

func TestSamplerSamplesWithinTopK(t *testing.T) {
	logs := []float32{1, 2, 3, 4, 5, 6}
	s := NewSampler(SamplerConfig{Seed: 3, Temperature: 1.0, TopK: 2})
	for i := 0; i < 50; i++ {
		idx := s.Sample(logs)
		if idx != 4 && idx != 5 {
			t.Fatalf("sample %d outside top-2 shortlist", idx)
		}
	}
}
