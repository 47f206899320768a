package memorypool

import (
	"context"

	"github.com/sharedmem/controller/internal/memorypool/providers"
	"github.com/sharedmem/controller/pkg/xlog"
)

// DetectProviders probes the host for every supported memory source.
// System RAM is always appended last as the universal fallback, unless
// Apple unified memory was already detected — on Apple Silicon that
// pool already covers system RAM, so reporting both would double count.
func DetectProviders(ctx context.Context, log *xlog.Logger) []Provider {
	var found []Provider
	hasAppleSilicon := false

	if p := providers.DetectNvidia(ctx); p != nil {
		log.Infof("detected NVIDIA GPU: %s", p.DisplayName())
		found = append(found, p)
	}
	if p := providers.DetectAMD(ctx); p != nil {
		log.Infof("detected AMD GPU: %s", p.DisplayName())
		found = append(found, p)
	}
	if p := providers.DetectApple(ctx); p != nil {
		log.Infof("detected Apple Silicon: %s", p.DisplayName())
		hasAppleSilicon = true
		found = append(found, p)
	}
	if p := providers.DetectIntel(ctx); p != nil {
		log.Infof("detected Intel iGPU: %s", p.DisplayName())
		found = append(found, p)
	}

	if hasAppleSilicon {
		log.Info("skipping system RAM provider: Apple Silicon unified memory already covers it")
	} else {
		ram := providers.NewSystemRAM()
		log.Infof("system RAM provider: %s", ram.DisplayName())
		found = append(found, ram)
	}

	return found
}
