package decoder

import "testing"

func TestLoadLegacyBundleMapsNames(t *testing.T) {
	data := []byte(`{
		"dense": {"kernel": [[1, 2, 3], [4, 5, 6]], "bias": [7, 8, 9]},
		"LayerNorm": {"gamma": [1, 1], "beta": [0, 0]},
		"layer_0": {
			"masked_multi_head": {
				"LayerNorm": {"gamma": [1]},
				"query": {"kernel": [[1, 2], [3, 4]], "bias": [5, 6]}
			},
			"multi_head_0": {"output": {"bias": [1]}},
			"ffn": {"inner": {"kernel": [[1]]}, "outer": {"bias": [2]}}
		},
		"ADAP_1": {"inner": {"kernel": [[9]]}, "outer": {"bias": [3]}},
		"mystery": {"blob": [1, 2]}
	}`)

	bundle, unmapped, err := LoadLegacyBundle(data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// Kernels are stored input-major upstream and must arrive transposed.
	compareSlices(t, "dense/w", bundle["dense/w"], []float32{1, 4, 2, 5, 3, 6}, 0)
	compareSlices(t, "dense/b", bundle["dense/b"], []float32{7, 8, 9}, 0)
	compareSlices(t, "self wq", bundle["layer_0/self/wq"], []float32{1, 3, 2, 4}, 0)
	compareSlices(t, "self bq", bundle["layer_0/self/bq"], []float32{5, 6}, 0)

	for _, key := range []string{
		"norm/gamma", "norm/beta",
		"layer_0/self/norm_gamma",
		"layer_0/memory_0/bo",
		"layer_0/ffn/w1", "layer_0/ffn/b2",
		"adapter_1/up", "adapter_1/b_down",
	} {
		if _, ok := bundle[key]; !ok {
			t.Fatalf("missing mapped key %q; have %v", key, bundle.Keys())
		}
	}

	if len(unmapped) != 1 || unmapped[0] != "mystery/blob" {
		t.Fatalf("unmapped = %v, want [mystery/blob]", unmapped)
	}
	if _, ok := bundle["mystery/blob"]; !ok {
		t.Fatalf("unrecognised leaf should keep its joined key")
	}
}

func TestApplyBundleTransfersWeights(t *testing.T) {
	cfg := testConfig()
	a := newTestDecoder(t, cfg)
	b, err := New(cfg, WithSeed(99))
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	if err := b.Setup(testVocab, nil); err != nil {
		t.Fatalf("setup: %v", err)
	}

	in := randInput(cfg, 1, 3, []int{1}, 31)
	before, _, _, err := b.Forward(in, Options{})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if err := b.ApplyBundle(a.WeightsBundle()); err != nil {
		t.Fatalf("apply bundle: %v", err)
	}
	after, _, _, err := b.Forward(in, Options{})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	want, _, _, err := a.Forward(in, Options{})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	compareSlices(t, "transferred weights", after, want, 0)
	same := true
	for i := range before {
		if before[i] != after[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("apply bundle changed nothing")
	}
}

func TestApplyBundleRejectsWrongLength(t *testing.T) {
	cfg := testConfig()
	d := newTestDecoder(t, cfg)
	if err := d.ApplyBundle(Bundle{"layer_0/self/wq": []float32{1}}); err == nil {
		t.Fatalf("short parameter accepted")
	}
}
