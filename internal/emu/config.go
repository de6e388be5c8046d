package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace    bool // log every CPU instruction to stderr
	LimitFPS bool // pace CPU/PPU advancement against wall-clock time
}

// Defaults fills zero-valued fields with reasonable defaults. Config has no
// fields that need a non-zero default today; it exists for symmetry with
// ui.Config and so callers can rely on it staying here as the struct grows.
func (c *Config) Defaults() {}
