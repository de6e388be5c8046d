// Package ui hosts the emulator in an ebiten window: it uploads the PPU's
// composed framebuffer once per frame and polls the keyboard for the eight
// Game Boy buttons, forwarding them into the Machine, plus a pause key (P)
// and a fullscreen toggle (Escape). There is no reset key.
package ui

import (
	"log"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/emu"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// App implements ebiten.Game around a *emu.Machine.
type App struct {
	cfg Config
	m   *emu.Machine
	tex *ebiten.Image

	paused bool
}

// NewApp constructs the host window around m. cfg.Defaults() is applied if
// the caller hasn't already called it.
func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)
	if m != nil && m.ROMTitle() != "" {
		ebiten.SetWindowTitle(cfg.Title + " - " + m.ROMTitle())
	}
	return &App{cfg: cfg, m: m}
}

// Run starts the ebiten main loop; it blocks until the window closes.
func (a *App) Run() error { return ebiten.RunGame(a) }

func (a *App) Update() error {
	var btn emu.Buttons
	if ebiten.IsKeyPressed(ebiten.KeyRight) {
		btn.Right = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyLeft) {
		btn.Left = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyUp) {
		btn.Up = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyDown) {
		btn.Down = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyZ) {
		btn.A = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyX) {
		btn.B = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyEnter) {
		btn.Start = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		btn.Select = true
	}
	a.m.SetButtons(btn)

	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		ebiten.SetFullscreen(!ebiten.IsFullscreen())
	}
	if a.paused {
		return nil
	}
	if err := a.m.StepFrame(); err != nil {
		log.Print(err)
		return err
	}
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	a.tex.WritePixels(a.m.Framebuffer())
	screen.DrawImage(a.tex, nil)
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) { return 160, 144 }
