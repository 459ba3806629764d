package types_test

import (
	"path/filepath"
	"testing"

	"github.com/pybundle/pybundle/pkg/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := types.DefaultConfig()

	if cfg.Name != "PdfScanCompressor" {
		t.Errorf("default name = %q", cfg.Name)
	}
	if cfg.EntryPoint != "main.py" {
		t.Errorf("default entry point = %q", cfg.EntryPoint)
	}
	if cfg.Requirements != "requirements.txt" {
		t.Errorf("default requirements = %q", cfg.Requirements)
	}
	if cfg.VenvDir != ".venv" {
		t.Errorf("default venv dir = %q", cfg.VenvDir)
	}
	if cfg.Windowed == nil || !*cfg.Windowed {
		t.Error("default should be windowed")
	}
	if cfg.OneDir == nil || !*cfg.OneDir {
		t.Error("default should be one-directory")
	}
	if cfg.Clean == nil || !*cfg.Clean {
		t.Error("default should clean caches")
	}
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	f := false
	cfg := &types.Config{
		Name:     "MyApp",
		Windowed: &f,
	}
	cfg.ApplyDefaults()

	if cfg.Name != "MyApp" {
		t.Errorf("explicit name overwritten: %q", cfg.Name)
	}
	if *cfg.Windowed {
		t.Error("explicit windowed=false overwritten")
	}
	if cfg.EntryPoint != "main.py" {
		t.Errorf("unset entry point not defaulted: %q", cfg.EntryPoint)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *types.Config) {}, false},
		{"empty name", func(c *types.Config) { c.Name = "   " }, true},
		{"name with separator", func(c *types.Config) { c.Name = "a/b" }, true},
		{"empty entry point", func(c *types.Config) { c.EntryPoint = "" }, true},
		{"absolute dist dir", func(c *types.Config) { c.DistDir = string(filepath.Separator) + "dist" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := types.DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestArtifactDir(t *testing.T) {
	cfg := types.DefaultConfig()
	want := filepath.Join("dist", "PdfScanCompressor")
	if got := cfg.ArtifactDir(); got != want {
		t.Errorf("ArtifactDir() = %q, want %q", got, want)
	}
}
