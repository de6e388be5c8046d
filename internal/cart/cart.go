package cart

import "fmt"

// Cartridge defines the minimal interface the Bus needs for ROM/RAM access.
// Addresses are CPU addresses. Save-state and battery persistence are
// deliberately absent: spec.md scopes "Persisted state: None".
type Cartridge interface {
	// Read returns a byte from ROM (0x0000-0x7FFF).
	Read(addr uint16) byte
	// Write handles writes into the ROM address range; a no-MBC cartridge
	// has no control registers there, so this is a no-op.
	Write(addr uint16, value byte)
	// ReadRAM/WriteRAM access external RAM (0xA000-0xBFFF). ok is false
	// when the cartridge has no RAM at that address, so the Bus can raise
	// the prohibited-access fault spec.md §7 documents.
	ReadRAM(addr uint16) (v byte, ok bool)
	WriteRAM(addr uint16, value byte) (ok bool)
	// Header returns the parsed ROM header for diagnostics.
	Header() *Header
}

// NewCartridge selects a cartridge implementation from the ROM header.
// Only cartridge type 0x00 (ROM ONLY, no memory-bank controller) is
// supported; every other type is reported as an error rather than
// silently mapped to the nearest wired controller, per spec.md §6 ("other
// values terminate with a clear error"). Memory-bank controllers are an
// explicit Non-goal.
func NewCartridge(rom []byte) (Cartridge, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, fmt.Errorf("parsing cartridge header: %w", err)
	}
	if h.CartType != 0x00 {
		return nil, fmt.Errorf("unsupported cartridge type %#02x (%s): only ROM ONLY (no MBC) is supported", h.CartType, h.CartTypeStr)
	}
	return NewROMOnly(rom, h), nil
}
