package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alloynmt/alloy/internal/logger"
)

func TestLoadModelFromSpec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	spec := `vocab_size: 11
layers: 2
units: 16
heads: 2
ffn_inner: 32
domains: 2
domain_units: 4
sources: 1
activation: relu
`
	if err := os.WriteFile(path, []byte(spec), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	m, err := loadModel(path, 42, logger.Default())
	if err != nil {
		t.Fatalf("loadModel: %v", err)
	}
	if m.VocabSize() != 11 {
		t.Fatalf("expected vocab size 11, got %d", m.VocabSize())
	}
	cfg := m.Decoder().Config()
	if cfg.NumLayers != 2 || cfg.NumUnits != 16 || cfg.NumDomains != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadModelMissingFile(t *testing.T) {
	if _, err := loadModel(filepath.Join(t.TempDir(), "absent.yaml"), 1, logger.Default()); err == nil {
		t.Fatal("expected error for missing spec file")
	}
}

func TestParseTokenList(t *testing.T) {
	ids, err := parseTokenList(" 3, 17,4 ")
	if err != nil {
		t.Fatalf("parseTokenList: %v", err)
	}
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 17 || ids[2] != 4 {
		t.Fatalf("unexpected tokens: %v", ids)
	}
	if _, err := parseTokenList("1,x"); err == nil {
		t.Fatal("expected error for non-numeric token")
	}
	if ids, err := parseTokenList(""); err != nil || ids != nil {
		t.Fatalf("empty input should yield nil, got %v %v", ids, err)
	}
}
