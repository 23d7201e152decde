package identity

import "github.com/cedros-gateway/gateway/internal/config"

func testIdentityConfig() config.IdentityConfig {
	return config.IdentityConfig{
		ArgonMemory:      64 * 1024,
		ArgonIterations:  3,
		ArgonParallelism: 2,
		ArgonSaltLength:  16,
		ArgonKeyLength:   32,
	}
}
