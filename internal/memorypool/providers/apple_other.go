//go:build !darwin

package providers

import "context"

// AppleProvider is a stub on non-Darwin platforms; DetectApple always
// returns nil since unified memory doesn't exist there. The methods
// below exist only so the type satisfies Provider at build time on
// this GOOS.
type AppleProvider struct{}

func DetectApple(ctx context.Context) *AppleProvider { return nil }

func (p *AppleProvider) ID() string          { return "apple" }
func (p *AppleProvider) DisplayName() string { return "Apple Silicon Unified Memory" }
func (p *AppleProvider) Kind() Kind          { return KindAppleUnified }

func (p *AppleProvider) Snapshot(ctx context.Context) (total, used, free int64, ok bool) {
	return 0, 0, 0, false
}
