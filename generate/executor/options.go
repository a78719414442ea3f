package executor

import (
	"time"

	"github.com/wbrown/janus-generate/generate/registry"
)

// Options configures query execution
type Options struct {
	// DebugTemplate embeds evaluation failures as visible [error: ...]
	// fragments in TEMPLATE output instead of dropping them
	DebugTemplate bool

	// MaxExecutionTime bounds a top-level execution. Zero means no limit
	// beyond the caller's context.
	MaxExecutionTime time.Duration

	// Workers bounds the goroutines shared by one execution (0 = NumCPU)
	Workers int

	// CacheSize bounds the FUNCTION evaluation cache of a registry
	// created from these options
	CacheSize int
}

// DefaultOptions returns the default execution options
func DefaultOptions() Options {
	return Options{
		DebugTemplate:    false,
		MaxExecutionTime: 0,
		Workers:          0,
		CacheSize:        registry.DefaultCacheSize,
	}
}
