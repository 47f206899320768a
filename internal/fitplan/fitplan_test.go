package fitplan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateModelPath(t *testing.T) {
	cases := []struct {
		name string
		path string
		ok   bool
	}{
		{"empty", "", false},
		{"relative", "models/foo.gguf", false},
		{"traversal", "/home/user/../etc/passwd.gguf", false},
		{"wrong extension", "/home/user/models/foo.bin", false},
		{"protected etc", "/etc/foo.gguf", false},
		{"protected proc", "/proc/foo.gguf", false},
		{"ok", "/home/user/models/llama.gguf", true},
		{"ok uppercase ext", "/home/user/models/LLAMA.GGUF", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateModelPath(c.path)
			if c.ok && err != nil {
				t.Fatalf("expected valid path, got error: %v", err)
			}
			if !c.ok && err == nil {
				t.Fatalf("expected error for path %q, got nil", c.path)
			}
		})
	}
}

func TestEstimateLayers(t *testing.T) {
	cases := []struct {
		sizeMB int64
		want   int
	}{
		{100, 22},
		{2047, 22},
		{2048, 32},
		{5119, 32},
		{5120, 40},
		{9215, 40},
		{9216, 48},
		{20479, 48},
		{20480, 64},
		{40959, 64},
		{40960, 80},
		{200000, 80},
	}
	for _, c := range cases {
		if got := estimateLayers(c.sizeMB); got != c.want {
			t.Errorf("estimateLayers(%d) = %d, want %d", c.sizeMB, got, c.want)
		}
	}
}

func TestAnalyzeSize_FitsLocally(t *testing.T) {
	a := analyzeSize(1000, 4000, nil)
	if a.FitStatus != FitsLocally {
		t.Fatalf("expected FitsLocally, got %s", a.FitStatus)
	}
	if a.RecommendedGPULayers != -1 {
		t.Fatalf("expected all layers on GPU (-1), got %d", a.RecommendedGPULayers)
	}
	if len(a.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", a.Warnings)
	}
}

func TestAnalyzeSize_FitsDistributed(t *testing.T) {
	// 8000MB model, 3000MB local, 8000MB across two peers: 90% of 11000 = 9900 >= 8000.
	a := analyzeSize(8000, 3000, []int64{4000, 4000})
	if a.FitStatus != FitsDistributed {
		t.Fatalf("expected FitsDistributed, got %s", a.FitStatus)
	}
	if a.ClusterFreeMB != 8000 {
		t.Fatalf("expected cluster free 8000, got %d", a.ClusterFreeMB)
	}
	if a.RecommendedGPULayers <= 0 {
		t.Fatalf("expected a positive partial layer count, got %d", a.RecommendedGPULayers)
	}
}

func TestAnalyzeSize_PartialGPU_NoCluster(t *testing.T) {
	a := analyzeSize(3000, 3200, nil)
	if a.FitStatus != PartialGPU {
		t.Fatalf("expected PartialGPU, got %s", a.FitStatus)
	}
	if len(a.Warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", a.Warnings)
	}
}

func TestAnalyzeSize_TooLarge(t *testing.T) {
	a := analyzeSize(100000, 2000, []int64{2000})
	if a.FitStatus != TooLarge {
		t.Fatalf("expected TooLarge, got %s", a.FitStatus)
	}
	if a.RecommendedGPULayers != 0 {
		t.Fatalf("expected 0 gpu layers, got %d", a.RecommendedGPULayers)
	}
	if len(a.Warnings) != 1 {
		t.Fatalf("expected a too-large warning, got %v", a.Warnings)
	}
}

func TestAnalyze_ModelNotFound(t *testing.T) {
	_, err := Analyze("/home/user/models/does-not-exist.gguf", 4000, nil)
	if err != ErrModelNotFound {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestAnalyze_ReadsRealFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.gguf")
	// filepath.IsAbs requires the path to be absolute; t.TempDir() is.
	if err := os.WriteFile(path, make([]byte, 3*1024*1024), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	a, err := Analyze(path, 4000, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ModelSizeMB != 3 {
		t.Fatalf("expected 3MB model, got %d", a.ModelSizeMB)
	}
}

func TestAnalyze_Determinism(t *testing.T) {
	a1 := analyzeSize(8000, 3000, []int64{4000, 4000})
	a2 := analyzeSize(8000, 3000, []int64{4000, 4000})
	if a1.FitStatus != a2.FitStatus || a1.RecommendedGPULayers != a2.RecommendedGPULayers ||
		a1.RecommendedCtxSize != a2.RecommendedCtxSize || len(a1.Warnings) != len(a2.Warnings) {
		t.Fatalf("Analyze is not deterministic: %+v vs %+v", a1, a2)
	}
}
