package cpu

import (
	"testing"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/bus"
)

func newCPUWithROM(t *testing.T, code []byte) *CPU {
	t.Helper()
	rom := make([]byte, 0x8000)
	copy(rom, code)
	b, err := bus.New(rom)
	if err != nil {
		t.Fatalf("bus.New: %v", err)
	}
	c := New(b)
	c.PC = 0
	return c
}

func mustStep(t *testing.T, c *CPU) int {
	t.Helper()
	cycles, err := c.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	return cycles
}

func TestCPU_NopAndPC(t *testing.T) {
	c := newCPUWithROM(t, []byte{0x00}) // NOP
	if cycles := mustStep(t, c); cycles != 1 {
		t.Fatalf("NOP cycles got %d want 1", cycles)
	}
	if c.PC != 1 {
		t.Fatalf("PC after NOP got %#04x want 0x0001", c.PC)
	}
}

func TestCPU_LD_A_d8_And_XOR_A(t *testing.T) {
	c := newCPUWithROM(t, []byte{0x3E, 0x12, 0xAF}) // LD A,0x12; XOR A
	mustStep(t, c)
	if c.A != 0x12 {
		t.Fatalf("A after LD got %02x want 12", c.A)
	}
	mustStep(t, c)
	if c.A != 0x00 {
		t.Fatalf("A after XOR got %02x want 00", c.A)
	}
	if c.F&0x80 == 0 {
		t.Fatalf("Z flag not set after XOR A")
	}
}

func TestCPU_LD_a16_A_and_LD_A_a16(t *testing.T) {
	prog := []byte{0x3E, 0x77, 0xEA, 0x00, 0xC0, 0x3E, 0x00, 0xFA, 0x00, 0xC0}
	c := newCPUWithROM(t, prog)
	mustStep(t, c) // LD A,77
	mustStep(t, c) // LD (C000),A
	if a := c.bus.Read(0xC000); a != 0x77 {
		t.Fatalf("WRAM at C000 got %02x want 77", a)
	}
	mustStep(t, c) // LD A,00
	mustStep(t, c) // LD A,(C000)
	if c.A != 0x77 {
		t.Fatalf("A after LD A,(C000) got %02x want 77", c.A)
	}
}

func TestCPU_JP_and_JR(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0xC3 // JP 0x0010
	rom[0x0001] = 0x10
	rom[0x0002] = 0x00
	rom[0x0010] = 0x18 // JR -2
	rom[0x0011] = 0xFE
	b, err := bus.New(rom)
	if err != nil {
		t.Fatalf("bus.New: %v", err)
	}
	c := New(b)
	c.PC = 0
	cycles := mustStep(t, c)
	if cycles != 4 || c.PC != 0x0010 {
		t.Fatalf("JP cycles=%d PC=%#04x want cycles=4 PC=0x0010", cycles, c.PC)
	}
	pcBefore := c.PC
	mustStep(t, c) // JR -2
	if c.PC != pcBefore {
		t.Fatalf("JR -2 PC got %#04x want %#04x", c.PC, pcBefore)
	}
}

func TestCPU_INC_B_Flags(t *testing.T) {
	c := newCPUWithROM(t, []byte{0x04, 0x04}) // INC B twice
	c.B = 0x0F
	c.F = 0x10 // carry set initially
	mustStep(t, c)
	if c.B != 0x10 {
		t.Fatalf("INC B result got %02x want 10", c.B)
	}
	if c.F&0x20 == 0 {
		t.Fatalf("INC B should set H flag")
	}
	if c.F&0x10 == 0 {
		t.Fatalf("INC B should preserve C flag")
	}
	c.B = 0xFF
	mustStep(t, c)
	if c.B != 0x00 || c.F&0x80 == 0 {
		t.Fatalf("INC B to 0 should set Z flag, B=%02x, F=%02x", c.B, c.F)
	}
}

func TestCPU_LD_16bit_and_LDH(t *testing.T) {
	prog := []byte{
		0x21, 0x00, 0xC0, // LD HL, C000
		0x36, 0x5A, // LD (HL), 5A
		0x3E, 0x00, // LD A, 00
		0xF0, 0x00, // LD A, (FF00+0)
		0xE0, 0x01, // LD (FF00+1), A
	}
	c := newCPUWithROM(t, prog)
	c.Bus().Write(0xFF00, 0x30) // select none -> read returns 0x0F lower bits
	c.Bus().Write(0xFF80, 0xA7)

	for i := 0; i < 5; i++ {
		mustStep(t, c)
	}
	if v := c.Bus().Read(0xC000); v != 0x5A {
		t.Fatalf("WRAM C000 got %02x want 5A", v)
	}
	if v := c.Bus().Read(0xFF01); v != c.A {
		t.Fatalf("LDH (FF00+1),A expected write to FF01 with A=%02x got %02x", c.A, v)
	}
}

func TestCPU_CALL_RET(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0xCD // CALL 0x0005
	rom[0x0001] = 0x05
	rom[0x0002] = 0x00
	rom[0x0005] = 0xC9 // RET
	b, err := bus.New(rom)
	if err != nil {
		t.Fatalf("bus.New: %v", err)
	}
	c := New(b)
	c.PC = 0
	mustStep(t, c) // CALL
	if c.PC != 0x0005 {
		t.Fatalf("PC after CALL got %04x want 0005", c.PC)
	}
	retCycles := mustStep(t, c)
	if c.PC != 0x0003 || retCycles != 4 {
		t.Fatalf("RET did not return to 0003; PC=%04x cyc=%d", c.PC, retCycles)
	}
}

func TestCPU_HALT_IsFatal(t *testing.T) {
	c := newCPUWithROM(t, []byte{0x76})
	if _, err := c.Step(); err == nil {
		t.Fatalf("expected HALT to return a fatal error")
	}
}

func TestCPU_IllegalOpcode_IsFatal(t *testing.T) {
	c := newCPUWithROM(t, []byte{0xD3})
	if _, err := c.Step(); err == nil {
		t.Fatalf("expected illegal opcode to return a fatal error")
	}
}

func TestCPU_EI_DelaysOneInstruction(t *testing.T) {
	// EI; NOP; NOP — interrupt must not fire until after the NOP following EI.
	c := newCPUWithROM(t, []byte{0xFB, 0x00, 0x00})
	c.Bus().Write(0xFFFF, 0x01) // enable VBlank
	c.Bus().Write(0xFF0F, 0x01) // request VBlank
	mustStep(t, c)              // EI
	if c.IME {
		t.Fatalf("IME should not be set immediately after EI")
	}
	mustStep(t, c) // NOP following EI: still no dispatch
	if c.PC != 2 {
		t.Fatalf("interrupt fired before the instruction following EI completed, PC=%#04x", c.PC)
	}
	if !c.IME {
		t.Fatalf("IME should be set after the instruction following EI")
	}
	mustStep(t, c) // now the pending interrupt should dispatch instead of fetching
	if c.PC != 0x0040 {
		t.Fatalf("expected interrupt dispatch to 0x0040, got PC=%#04x", c.PC)
	}
	if c.IME {
		t.Fatalf("IME should be cleared once the interrupt is dispatched")
	}
}

func TestCPU_DI_CancelsPendingEI(t *testing.T) {
	c := newCPUWithROM(t, []byte{0xFB, 0xF3, 0x00})
	mustStep(t, c) // EI
	mustStep(t, c) // DI, cancels the pending enable
	if c.IME {
		t.Fatalf("DI should clear IME even if EI was pending")
	}
	mustStep(t, c) // NOP
	if c.IME {
		t.Fatalf("IME should remain false: the EI before DI should not take effect")
	}
}

func TestCPU_RETI_EnablesIMEImmediately(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0] = 0xD9 // RETI
	b, err := bus.New(rom)
	if err != nil {
		t.Fatalf("bus.New: %v", err)
	}
	c := New(b)
	c.PC = 0
	c.SP = 0xFFFC
	c.Bus().Write(0xFFFC, 0x00)
	c.Bus().Write(0xFFFD, 0x01)
	mustStep(t, c)
	if !c.IME {
		t.Fatalf("RETI should enable IME immediately")
	}
	if c.PC != 0x0100 {
		t.Fatalf("RETI should pop the return address, got PC=%#04x", c.PC)
	}
}
