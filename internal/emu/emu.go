// Package emu wires the CPU, bus and PPU into a runnable Game Boy system
// loop: it paces instruction execution against wall-clock time, collects
// the PPU's composed framebuffer once per vblank, and turns a fatal CPU
// condition into a register/PC/opcode dump.
package emu

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/bus"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cpu"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/debugger"
)

const (
	screenW = 160
	screenH = 144

	// nsPerCycle is the wall-clock duration of one machine cycle
	// (4 master clocks at ~4.194304 MHz).
	nsPerCycle = 954 * time.Nanosecond
	// nsPerDot is the wall-clock duration of one PPU dot. The pacing loop
	// does not use it: it paces whole instructions by nsPerCycle.
	nsPerDot = 238 * time.Nanosecond
)

// Buttons is the host-independent joypad state; SetButtons maps it onto the
// bus's JOYP model.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.A {
		m |= bus.JoypA
	}
	if b.B {
		m |= bus.JoypB
	}
	if b.Select {
		m |= bus.JoypSelectBtn
	}
	if b.Start {
		m |= bus.JoypStart
	}
	if b.Right {
		m |= bus.JoypRight
	}
	if b.Left {
		m |= bus.JoypLeft
	}
	if b.Up {
		m |= bus.JoypUp
	}
	if b.Down {
		m |= bus.JoypDown
	}
	return m
}

// FatalError wraps a *cpu.FatalError with the rendering needed to print a
// state dump per spec: registers, flags, last opcode and the instruction
// count that led there.
type FatalError struct {
	*cpu.FatalError
	Instructions uint64
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s (after %d instructions)", e.FatalError.Error(), e.Instructions)
}

// Dump renders a human-readable register/flag snapshot for a fatal stop.
// Error() gives the one-line form; Dump adds the register pairs and flags.
func (e *FatalError) Dump() string {
	r := e.Regs
	var flags strings.Builder
	for _, f := range []struct {
		name string
		set  bool
	}{
		{"Z", r.Zero()},
		{"N", r.Subtract()},
		{"H", r.HalfCarry()},
		{"C", r.Carry()},
	} {
		if f.set {
			flags.WriteString(f.name)
		} else {
			flags.WriteString("-")
		}
	}
	return fmt.Sprintf(
		"FATAL at pc=%04x opcode=%02x: %s\n"+
			"  AF=%04x BC=%04x DE=%04x HL=%04x SP=%04x\n"+
			"  flags=%s instructions=%d",
		e.AtPC, e.Opcode, e.Reason,
		r.AF(), r.BC(), r.DE(), r.HL(), r.SP,
		flags.String(), e.Instructions)
}

// Machine owns one Game Boy system: bus, CPU, and the clock that drives them.
type Machine struct {
	cfg Config

	b   *bus.Bus
	cpu *cpu.CPU

	romPath string
	header  *cart.Header

	instructions uint64
	nextCPU      time.Time

	buttons Buttons

	dbg *debugger.Debugger
}

// AttachDebugger wires d to this machine: every subsequent instruction is
// offered to d.Before first (so breakpoints/single-stepping/watches work),
// and the CPU's branch instructions feed d's jump tracker.
func (m *Machine) AttachDebugger(d *debugger.Debugger) {
	m.dbg = d
	if m.cpu != nil {
		m.cpu.SetJumpTracker(d.Jumps())
	}
}

// New constructs a Machine with no cartridge loaded; call LoadCartridge or
// LoadROMFromFile before stepping it.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// LoadCartridge resets the machine around rom's bytes.
func (m *Machine) LoadCartridge(rom []byte) error {
	b, err := bus.New(rom)
	if err != nil {
		return fmt.Errorf("load cartridge: %w", err)
	}
	if h, err := cart.ParseHeader(rom); err == nil {
		m.header = h
		log.Printf("ROM: %q type=%s banks=%d ram=%dB", h.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes)
	}
	m.b = b
	m.cpu = cpu.New(b)
	m.instructions = 0
	m.nextCPU = time.Time{}
	if m.dbg != nil {
		m.cpu.SetJumpTracker(m.dbg.Jumps())
	}
	return nil
}

// LoadROMFromFile reads path and loads it as the current cartridge,
// recording path for ROMPath/ROMTitle.
func (m *Machine) LoadROMFromFile(path string) error {
	rom, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rom: %w", err)
	}
	if err := m.LoadCartridge(rom); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the path LoadROMFromFile was last called with, or "".
func (m *Machine) ROMPath() string { return m.romPath }

// ROMTitle returns the cartridge header title, or "" if none is loaded.
func (m *Machine) ROMTitle() string {
	if m.header == nil {
		return ""
	}
	return m.header.Title
}

// SetSerialWriter forwards every byte shifted out over SB/SC to w, the
// instrumentation hook used to observe test-ROM serial output.
func (m *Machine) SetSerialWriter(w io.Writer) {
	m.b.SetSerialSink(func(v byte) { _, _ = w.Write([]byte{v}) })
}

// SetButtons updates the joypad state the bus reports to JOYP.
func (m *Machine) SetButtons(b Buttons) {
	m.buttons = b
	m.b.SetJoypadState(b.mask())
}

// Bus exposes the underlying bus, e.g. for the debugger's memory reads.
func (m *Machine) Bus() *bus.Bus { return m.b }

// CPU exposes the underlying CPU, e.g. for the debugger's register dump.
func (m *Machine) CPU() *cpu.CPU { return m.cpu }

// step runs one CPU instruction (dispatching a pending interrupt first, per
// cpu.Step), converting a fatal stop into a *FatalError carrying the
// instruction count.
func (m *Machine) step() (int, error) {
	if m.dbg != nil {
		m.dbg.Before(m.b, m.cpu)
	}
	cycles, err := m.cpu.Step()
	if err != nil {
		var fe *cpu.FatalError
		if e, ok := err.(*cpu.FatalError); ok {
			fe = e
		}
		return cycles, &FatalError{FatalError: fe, Instructions: m.instructions}
	}
	m.instructions++
	if m.cfg.Trace {
		log.Printf("pc=%04x op step cycles=%d", m.cpu.PC, cycles)
	}
	return cycles, nil
}

// StepFrame runs instructions, pacing them against wall-clock time at
// nsPerCycle per machine cycle when cfg.LimitFPS is set, until the PPU
// reports a freshly composed frame.
func (m *Machine) StepFrame() error {
	if m.nextCPU.IsZero() {
		m.nextCPU = time.Now()
	}
	for {
		cycles, err := m.step()
		if err != nil {
			return err
		}
		if m.cfg.LimitFPS {
			m.nextCPU = m.nextCPU.Add(time.Duration(cycles) * nsPerCycle)
			if d := time.Until(m.nextCPU); d > 0 {
				time.Sleep(d)
			}
		}
		if _, ok := m.b.PPU().Frame(); ok {
			return nil
		}
	}
}

// StepFrameNoRender runs one frame's worth of instructions at full speed,
// ignoring cfg.LimitFPS; used by headless test-ROM harnesses that only care
// about serial output, not real-time pacing or the framebuffer.
func (m *Machine) StepFrameNoRender() error {
	for {
		_, err := m.step()
		if err != nil {
			return err
		}
		if _, ok := m.b.PPU().Frame(); ok {
			return nil
		}
	}
}

// shades maps a 2-bit DMG color index to a grayscale RGBA value, the
// classic four-shade palette every DMG-compatible renderer uses absent a
// CGB palette (an explicit Non-goal here).
var shades = [4][4]byte{
	{0xFF, 0xFF, 0xFF, 0xFF},
	{0xAA, 0xAA, 0xAA, 0xFF},
	{0x55, 0x55, 0x55, 0xFF},
	{0x00, 0x00, 0x00, 0xFF},
}

// Framebuffer renders the PPU's last composed frame as packed RGBA8888,
// ready for ebiten.Image.WritePixels or image/png encoding.
func (m *Machine) Framebuffer() []byte {
	fb := make([]byte, screenW*screenH*4)
	if m.b == nil {
		return fb
	}
	frame, _ := m.b.PPU().Frame()
	for y := 0; y < screenH; y++ {
		for x := 0; x < screenW; x++ {
			c := shades[frame[y][x]&0x03]
			i := (y*screenW + x) * 4
			copy(fb[i:i+4], c[:])
		}
	}
	return fb
}
