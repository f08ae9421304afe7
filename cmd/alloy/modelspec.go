package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/alloynmt/alloy/internal/decode"
	"github.com/alloynmt/alloy/internal/decoder"
	"github.com/alloynmt/alloy/internal/logger"
)

// ModelSpec describes a decoder architecture, loaded from a YAML file.
// Weights, when set, names a legacy checkpoint export to apply on top
// of the seeded initialization; the path is resolved relative to the
// spec file.
type ModelSpec struct {
	VocabSize   int    `yaml:"vocab_size"`
	Layers      int    `yaml:"layers"`
	Units       int    `yaml:"units"`
	Heads       int    `yaml:"heads"`
	FFNInner    int    `yaml:"ffn_inner"`
	Domains     int    `yaml:"domains"`
	DomainUnits int    `yaml:"domain_units"`
	Sources     int    `yaml:"sources"`
	Activation  string `yaml:"activation"`
	Weights     string `yaml:"weights"`
}

func loadModel(path string, seed int64, log logger.Logger) (*decode.Model, error) {
	if path == "" {
		return nil, fmt.Errorf("no model spec given, pass --model or set model_path in the config file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model spec: %w", err)
	}
	var spec ModelSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse model spec: %w", err)
	}

	act, err := decoder.ParseActivation(spec.Activation)
	if err != nil {
		return nil, err
	}
	cfg := decoder.Config{
		NumLayers:      spec.Layers,
		NumUnits:       spec.Units,
		NumHeads:       spec.Heads,
		FFNInnerDim:    spec.FFNInner,
		NumDomains:     spec.Domains,
		NumDomainUnits: spec.DomainUnits,
		NumSources:     spec.Sources,
		Activation:     act,
	}
	m, err := decode.NewModel(cfg, spec.VocabSize, seed)
	if err != nil {
		return nil, err
	}

	if spec.Weights != "" {
		wpath := spec.Weights
		if !filepath.IsAbs(wpath) {
			wpath = filepath.Join(filepath.Dir(path), wpath)
		}
		bundle, unmapped, err := decoder.LoadLegacyBundleFile(wpath)
		if err != nil {
			return nil, fmt.Errorf("load weights: %w", err)
		}
		for _, key := range unmapped {
			log.Warn("skipping unrecognized weight", "key", key)
		}
		if err := m.Decoder().ApplyBundle(bundle); err != nil {
			return nil, fmt.Errorf("apply weights: %w", err)
		}
		log.Info("applied weights", "path", wpath, "params", len(bundle))
	}
	return m, nil
}
