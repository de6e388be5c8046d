package debugger

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type fakeBus struct{ mem [0x10000]byte }

func (f *fakeBus) Read(addr uint16) byte { return f.mem[addr] }

type fakeCPU struct{ pc uint16 }

func (f *fakeCPU) PC16() uint16   { return f.pc }
func (f *fakeCPU) String() string { return "fake-cpu" }

func TestDebugger_BreakAndRead(t *testing.T) {
	var out bytes.Buffer
	d := New(strings.NewReader("break 100\nread 100\n"), &out)
	b := &fakeBus{}
	b.mem[0x0100] = 0x42

	// Give the background stdin goroutine time to queue both lines, then
	// drain one command per Before call; neither "break" nor "read" pauses
	// execution, so each call returns immediately.
	time.Sleep(20 * time.Millisecond)
	d.Before(b, &fakeCPU{pc: 0})
	d.Before(b, &fakeCPU{pc: 0})

	if len(d.breakAddrs) != 1 || d.breakAddrs[0] != 0x0100 {
		t.Fatalf("expected breakpoint at 0x0100, got %v", d.breakAddrs)
	}
	if !strings.Contains(out.String(), "0x42") {
		t.Fatalf("expected read output to mention 0x42, got %q", out.String())
	}
}

func TestJumpTracker_ConditionalTakenAndSkipped(t *testing.T) {
	tr := NewJumpTracker()
	tr.JumpConditional(0x100, 0x200, "JP", "Z", true, 3)
	tr.JumpConditional(0x100, 0x200, "JP", "Z", false, 3)

	out := tr.PrintJumps(nil)
	if !strings.Contains(out, "taken and skipped") {
		t.Fatalf("expected combined taken+skipped record, got %q", out)
	}
}

func TestJumpTracker_MultipleDestinations(t *testing.T) {
	tr := NewJumpTracker()
	tr.JumpUnconditional(0x100, 0x200, "RET")
	tr.JumpUnconditional(0x100, 0x300, "RET")

	out := tr.PrintJumps(nil)
	if !strings.Contains(out, "multiple destinations") {
		t.Fatalf("expected multiple-destinations record, got %q", out)
	}
	if !strings.Contains(out, "0x0200") || !strings.Contains(out, "0x0300") {
		t.Fatalf("expected both destinations listed, got %q", out)
	}
}

func TestJumpTracker_Clear(t *testing.T) {
	tr := NewJumpTracker()
	tr.JumpUnconditional(0x10, 0x20, "JP")
	tr.Clear()
	out := tr.PrintJumps(nil)
	if strings.Contains(out, "0x0010") {
		t.Fatalf("expected cleared tracker to have no records, got %q", out)
	}
}
