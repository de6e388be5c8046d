// Package ppu implements the four-mode dot-stepped picture processing unit:
// VRAM/OAM storage, LCDC/STAT/scroll/palette registers, OAM scan, and the
// background/window/object FIFO composition that produces the 160x144
// framebuffer. Grounded on the teacher's internal/ppu/ppu.go mode scheduler,
// with the teacher's previously-unwired fetcher.go/scanline.go helpers wired
// into per-scanline composition and a new sprite compositor.
package ppu

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT).
type InterruptRequester func(bit int)

const (
	ScreenWidth  = 160
	ScreenHeight = 144
)

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, timing, and the rendered
// framebuffer (palette indices 0-3, pre-shade-mapping).
type PPU struct {
	vram [0x2000]byte // 0x8000-0x9FFF
	oam  [0xA0]byte   // 0xFE00-0xFE9F

	lcdc byte // FF40
	stat byte // FF41 (mode bits 0-1, coincidence flag bit2, enables bits3-6)
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot        int  // dots within current line [0..455]
	windowLine int  // internal window-line counter, increments only on lines the window was drawn
	statLine   bool // combined STAT-interrupt condition, for rising-edge detection

	frame [ScreenHeight][ScreenWidth]byte // composed palette indices, written at end of mode 3
	ready bool                            // a fresh frame is available (set at vblank entry)

	req InterruptRequester
}

func New(req InterruptRequester) *PPU { return &PPU{req: req} }

// Read implements VRAMReader for the fetcher helpers.
func (p *PPU) Read(addr uint16) byte { return p.vram[addr&0x1FFF] }

// CPURead returns bytes for VRAM, OAM, and PPU IO registers.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return 0xFF
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM, and PPU IO regs.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if (p.lcdc&0x80) == 0 && (prev&0x80) != 0 {
			p.ly = 0
			p.dot = 0
			p.windowLine = 0
			p.setMode(0)
			p.updateLYC()
		} else if (p.lcdc&0x80) != 0 && (prev&0x80) == 0 {
			p.ly = 0
			p.dot = 0
			p.windowLine = 0
			p.setMode(2)
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
		p.evalSTATLine()
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		p.ly = 0
		p.dot = 0
		p.updateLYC()
		if (p.lcdc & 0x80) != 0 {
			p.setMode(2)
		}
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

// Tick advances PPU state by the given number of dots (4 per machine cycle).
func (p *PPU) Tick(dots int) {
	for i := 0; i < dots; i++ {
		if (p.lcdc & 0x80) == 0 {
			continue
		}
		p.dot++

		var mode byte
		if p.ly >= 144 {
			mode = 1
		} else {
			switch {
			case p.dot < 80:
				mode = 2
			case p.dot < 80+172:
				mode = 3
			default:
				mode = 0
			}
		}
		if (p.stat&0x03) == 3 && mode == 0 {
			p.renderScanline()
		}
		p.setMode(mode)

		if p.dot >= 456 {
			p.dot = 0
			p.ly++
			if p.ly == 144 {
				p.ready = true
				if p.req != nil {
					p.req(0)
				}
			} else if p.ly > 153 {
				p.ly = 0
				p.windowLine = 0
			}
			p.updateLYC()
			if p.ly >= 144 {
				p.setMode(1)
			} else {
				p.setMode(2)
			}
		}
	}
}

func (p *PPU) setMode(mode byte) {
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	p.evalSTATLine()
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
	} else {
		p.stat &^= 1 << 2
	}
	p.evalSTATLine()
}

// evalSTATLine computes the OR of every enabled STAT-interrupt source and
// requests IF bit 1 only on the line's rising edge, per spec.md §4.4.
func (p *PPU) evalSTATLine() {
	mode := p.stat & 0x03
	line := (mode == 0 && p.stat&(1<<3) != 0) ||
		(mode == 2 && p.stat&(1<<5) != 0) ||
		(mode == 1 && p.stat&(1<<4) != 0) ||
		(p.stat&(1<<2) != 0 && p.stat&(1<<6) != 0)
	if line && !p.statLine {
		if p.req != nil {
			p.req(1)
		}
	}
	p.statLine = line
}

// Frame returns the last composed framebuffer. ok reports whether a new
// frame has completed vblank entry since the last call; the framebuffer
// itself is always the most recent one composed, even on repeat calls
// after ok has gone false, so callers that read pixel data after already
// consuming the freshness signal (e.g. emu.Machine.Framebuffer after
// StepFrame) still see real pixels instead of a blanked buffer.
func (p *PPU) Frame() (fb [ScreenHeight][ScreenWidth]byte, ok bool) {
	ok = p.ready
	p.ready = false
	return p.frame, ok
}

// renderScanline composes one visible row of the framebuffer from the
// background/window tilemaps and OAM sprites, run once per line at the
// mode-3-to-mode-0 boundary.
func (p *PPU) renderScanline() {
	ly := p.ly
	if ly >= ScreenHeight {
		return
	}

	bgEnabled := p.lcdc&0x01 != 0
	var bg [ScreenWidth]byte
	if bgEnabled {
		mapBase := uint16(0x9800)
		if p.lcdc&0x08 != 0 {
			mapBase = 0x9C00
		}
		bg = RenderBGScanlineUsingFetcher(p, mapBase, p.lcdc&0x10 != 0, p.scx, p.scy, ly)
	}

	windowDrawn := false
	if bgEnabled && p.lcdc&0x20 != 0 && ly >= p.wy && p.wx <= 166 {
		wxStart := int(p.wx) - 7
		if wxStart < 160 {
			mapBase := uint16(0x9800)
			if p.lcdc&0x40 != 0 {
				mapBase = 0x9C00
			}
			win := RenderWindowScanlineUsingFetcher(p, mapBase, p.lcdc&0x10 != 0, wxStart, byte(p.windowLine))
			start := wxStart
			if start < 0 {
				start = 0
			}
			for x := start; x < 160; x++ {
				bg[x] = win[x]
			}
			windowDrawn = true
		}
	}
	if windowDrawn {
		p.windowLine++
	}

	var composed [160]byte
	for x := 0; x < 160; x++ {
		composed[x] = p.applyPalette(p.bgp, bg[x])
	}

	if p.lcdc&0x02 != 0 {
		sprites := p.scanOAM(ly)
		tall := p.lcdc&0x04 != 0
		line := ComposeSpriteLine(p, sprites, ly, bg, tall)
		for x := 0; x < 160; x++ {
			if line[x] == 0 {
				continue
			}
			attr := spriteAttrAt(sprites, x, ly, tall, p)
			pal := p.obp0
			if attr&0x10 != 0 {
				pal = p.obp1
			}
			composed[x] = p.applyPalette(pal, line[x])
		}
	}

	p.frame[ly] = composed
}

func (p *PPU) applyPalette(palette, colorIndex byte) byte {
	return (palette >> (colorIndex * 2)) & 0x03
}

// Sprite is one OAM entry decoded for scanline selection/compositing.
type Sprite struct {
	X, Y     int
	Tile     byte
	Attr     byte
	OAMIndex int
}

// scanOAM selects up to 10 sprites intersecting scanline ly, in OAM order,
// per spec.md's OAM-scan invariant.
func (p *PPU) scanOAM(ly byte) []Sprite {
	tall := p.lcdc&0x04 != 0
	h := 8
	if tall {
		h = 16
	}
	var out []Sprite
	for i := 0; i < 40 && len(out) < 10; i++ {
		base := i * 4
		y := int(p.oam[base+0]) - 16
		x := int(p.oam[base+1]) - 8
		tile := p.oam[base+2]
		attr := p.oam[base+3]
		if int(ly) < y || int(ly) >= y+h {
			continue
		}
		out = append(out, Sprite{X: x, Y: y, Tile: tile, Attr: attr, OAMIndex: i})
	}
	return out
}

func spriteAttrAt(sprites []Sprite, x int, ly byte, tall bool, mem VRAMReader) byte {
	for _, s := range sprites {
		if x >= s.X && x < s.X+8 {
			return s.Attr
		}
	}
	return 0
}

func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }
