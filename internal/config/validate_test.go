package config

import "testing"

func TestValidate_MissingVersion(t *testing.T) {
	err := Validate(&Config{})
	if err == nil {
		t.Fatal("expected error for missing version")
	}
}

func TestValidate_UnsupportedVersion(t *testing.T) {
	err := Validate(&Config{Version: "2"})
	if err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestValidate_NegativeWorkers(t *testing.T) {
	err := Validate(&Config{Version: "1", Workers: -1})
	if err == nil {
		t.Fatal("expected error for negative workers")
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := &Config{
		Version: "1",
		Workers: 4,
		Pool:    PoolConfig{MaxIdlePipelines: 32},
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
