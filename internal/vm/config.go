package vm

import (
	"go.uber.org/zap"

	"github.com/stephenalindsay/factorcore/internal/gc"
	"github.com/stephenalindsay/factorcore/internal/objmodel"
)

// Config is the recognized set of startup parameters (spec.md §6
// "Configuration"): per-context stack sizes, heap layout, and the
// HAS_AGING toggle, modeled as an ordinary runtime struct since this is a
// Go module rather than a build carrying preprocessor flags.
type Config struct {
	// DSSize, RSSize are the per-context data/retain-stack segment sizes.
	DSSize uintptr
	RSSize uintptr

	// HasAging gates the aging generation; when false there are only two
	// generations (nursery, tenured) and aging code paths are unreachable.
	HasAging bool

	NurserySize uintptr
	AgingSize   uintptr
	TenuredSize uintptr

	// UserEnvSize is the length of the user-environment array root
	// (spec.md's `userenv`), sized by the caller to whatever slots its
	// hosted-language embedding needs (CURRENT_CALLBACK_ENV, CATCHSTACK_ENV,
	// and whatever else the collaborator defines).
	UserEnvSize int

	// Model is the external object-system oracle (spec.md §6 "Consumed").
	// Defaults to objmodel.RefModel{}, the package's reference
	// implementation, when left nil.
	Model objmodel.Model

	// Hooks are the code-heap collaborators GC must call but does not
	// implement. A zero value is a valid no-op set.
	Hooks gc.Hooks

	// Logger receives structured GC-cycle, escalation, and primitive-error
	// records. Defaults to zap.NewNop() when nil, so a VM never panics for
	// want of a logger.
	Logger *zap.Logger
}

const (
	defaultDSSize      = 16 * 1024
	defaultRSSize      = 16 * 1024
	defaultNurserySize = 1 << 20
	defaultAgingSize   = 4 << 20
	defaultTenuredSize = 16 << 20
)

func (c Config) withDefaults() Config {
	if c.DSSize == 0 {
		c.DSSize = defaultDSSize
	}
	if c.RSSize == 0 {
		c.RSSize = defaultRSSize
	}
	if c.NurserySize == 0 {
		c.NurserySize = defaultNurserySize
	}
	if c.AgingSize == 0 {
		c.AgingSize = defaultAgingSize
	}
	if c.TenuredSize == 0 {
		c.TenuredSize = defaultTenuredSize
	}
	if c.Model == nil {
		c.Model = objmodel.RefModel{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
