// Package fitplan is a pure computation over (model file, local free
// memory, peer free memory) that decides whether a model fits the
// cluster and what launch parameters the engine should use. It has no
// dependencies beyond the standard library by design: ported 1:1 from
// the heuristics in the original sharedLLM implementation's
// analyze_model, restated as idiomatic Go (spec §4.5).
package fitplan

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath     = errors.New("fitplan: invalid model path")
	ErrModelNotFound    = errors.New("fitplan: model not found or empty")
)

// protectedPrefixes mirrors spec §4.5's hard-coded system-directory list.
var protectedPrefixes = []string{
	"/etc/", "/proc/", "/sys/", "/dev/", "/boot/", "/run/", "/var/run/",
	"/bin/", "/sbin/", "/usr/bin/", "/usr/sbin/",
}

// ValidateModelPath applies the structural rules from spec §4.5. It never
// echoes the rejected path back to the caller — only a generic error.
func ValidateModelPath(path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	if !filepath.IsAbs(path) {
		return ErrInvalidPath
	}
	if strings.Contains(path, "..") {
		return ErrInvalidPath
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gguf") {
		return ErrInvalidPath
	}
	for _, prefix := range protectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return ErrInvalidPath
		}
	}
	return nil
}

// FitStatus is the planner's categorical verdict.
type FitStatus string

const (
	FitsLocally     FitStatus = "fits-locally"
	FitsDistributed FitStatus = "fits-distributed"
	PartialGPU      FitStatus = "partial-gpu"
	TooLarge        FitStatus = "too-large"
)

// Analysis is the full output of Analyze: inputs, verdict, both
// recommendations, and any warnings.
type Analysis struct {
	ModelSizeMB           int64     `json:"model_size_mb"`
	EstimatedLayers       int       `json:"estimated_layers"`
	LocalFreeMB           int64     `json:"local_free_mb"`
	ClusterFreeMB         int64     `json:"cluster_free_mb"`
	TotalAvailableMB      int64     `json:"total_available_mb"`
	FitStatus             FitStatus `json:"fit_status"`
	RecommendedGPULayers  int       `json:"recommended_n_gpu_layers"`
	RecommendedCtxSize    int       `json:"recommended_ctx_size"`
	Warnings              []string  `json:"warnings"`
}

// estimateLayers is the heuristic table from spec §4.5.
func estimateLayers(sizeMB int64) int {
	switch {
	case sizeMB <= 2047:
		return 22
	case sizeMB <= 5119:
		return 32
	case sizeMB <= 9215:
		return 40
	case sizeMB <= 20479:
		return 48
	case sizeMB <= 40959:
		return 64
	default:
		return 80
	}
}

func recommendedCtxSize(remainingMB int64) int {
	switch {
	case remainingMB <= 1023:
		return 2048
	case remainingMB <= 2047:
		return 4096
	case remainingMB <= 4095:
		return 8192
	default:
		return 16384
	}
}

func roundDiv(num, den int64) int {
	if den == 0 {
		return 0
	}
	// round-half-up, matching f64 .round() semantics for positive values.
	q := float64(num) / float64(den)
	if q < 0 {
		return int(q - 0.5)
	}
	return int(q + 0.5)
}

// modelSizeMB stats the file at path and converts to whole MB, truncating.
func modelSizeMB(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, ErrModelNotFound
	}
	size := info.Size() / (1024 * 1024)
	if size == 0 {
		return 0, ErrModelNotFound
	}
	return size, nil
}

// Analyze is the pure entry point: validated model path, local free MB,
// and the peer free-MB list in, a single Analysis out. Same inputs
// always produce identical outputs (spec §8 purity invariant).
func Analyze(modelPath string, localFreeMB int64, peerFreeMB []int64) (Analysis, error) {
	if err := ValidateModelPath(modelPath); err != nil {
		return Analysis{}, err
	}

	sizeMB, err := modelSizeMB(modelPath)
	if err != nil {
		return Analysis{}, err
	}

	return analyzeSize(sizeMB, localFreeMB, peerFreeMB), nil
}

// analyzeSize is the size-already-known core, split out so tests can
// drive the decision table without touching the filesystem.
func analyzeSize(sizeMB, localFreeMB int64, peerFreeMB []int64) Analysis {
	var clusterFreeMB int64
	for _, p := range peerFreeMB {
		clusterFreeMB += p
	}
	totalAvailMB := localFreeMB + clusterFreeMB

	usableLocal := int64(float64(localFreeMB) * 0.90)
	usableTotal := int64(float64(totalAvailMB) * 0.90)

	layers := estimateLayers(sizeMB)
	var warnings []string
	var status FitStatus

	switch {
	case sizeMB <= usableLocal:
		status = FitsLocally
	case sizeMB <= usableTotal && clusterFreeMB > 0:
		status = FitsDistributed
	case sizeMB <= totalAvailMB:
		status = PartialGPU
		if clusterFreeMB == 0 {
			warnings = append(warnings, "Add cluster devices to offload layers and fit this model")
		} else {
			warnings = append(warnings, "Model may not fit — very tight on memory")
		}
	default:
		status = TooLarge
		neededGB := (sizeMB + 1023) / 1024
		availGB := (totalAvailMB + 1023) / 1024
		warnings = append(warnings, formatTooLarge(neededGB, availGB))
	}

	var gpuLayers int
	switch status {
	case FitsLocally:
		gpuLayers = -1
	case FitsDistributed:
		gpuLayers = roundDiv(int64(layers)*localFreeMB, totalAvailMB)
	case PartialGPU:
		frac := 1.0
		if sizeMB > 0 {
			frac = float64(localFreeMB) / float64(sizeMB)
			if frac > 1.0 {
				frac = 1.0
			}
		}
		gpuLayers = int(frac*float64(layers) + 0.5)
	case TooLarge:
		gpuLayers = 0
	}

	remaining := totalAvailMB - sizeMB
	if remaining < 0 {
		remaining = 0
	}

	return Analysis{
		ModelSizeMB:          sizeMB,
		EstimatedLayers:      layers,
		LocalFreeMB:          localFreeMB,
		ClusterFreeMB:        clusterFreeMB,
		TotalAvailableMB:     totalAvailMB,
		FitStatus:            status,
		RecommendedGPULayers: gpuLayers,
		RecommendedCtxSize:   recommendedCtxSize(remaining),
		Warnings:             warnings,
	}
}

func formatTooLarge(neededGB, availGB int64) string {
	return "Model needs ~" + itoa(neededGB) + " GB but only " + itoa(availGB) + " GB available across cluster"
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
