// Package display is the ambient display collaborator spec §4.5/§5
// describe in the abstract: an ebiten.Game that blits the VM's GPU
// display buffer and turns keyboard input into 6-bit MCL key codes.
// Adapted from the teacher's cmd/desktop/main.go Game loop, retargeted
// from its 128x128 indexed framebuffer to MCL's 32x32 monochrome
// bit-plane GPU.
package display

import (
	"context"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"mcl/pkg/cpu"
	"mcl/pkg/vm"
)

const (
	gridSize     = 32
	pixelScale   = 8 // 32x32 grid rendered at 8x -> 256x256 window
	windowSize   = gridSize * pixelScale
	stepsPerTick = 2000 // instructions executed per 60Hz frame, teacher's fixed-clock idiom
)

// Window is an ebiten.Game driving a vm.Host: it steps the host a fixed
// number of instructions per frame (the teacher's "run at a fixed,
// maximum clock speed" idiom in cmd/desktop/main.go's Update), blits
// the GPU's display buffer on every frame (Host.Dirty is not read), and feeds
// keyboard input into a vm.QueueKeySource the host reads KEYIN from.
type Window struct {
	host *vm.Host
	keys *vm.QueueKeySource
	ctx  context.Context

	img   *ebiten.Image
	ended bool
}

// NewWindow builds a Window over host, attaching a fresh key queue as
// the host's KeySource. ctx governs the run's lifetime — cancelling it
// (e.g. on SIGINT) unblocks any pending KEYIN and stops stepping.
func NewWindow(host *vm.Host, ctx context.Context) *Window {
	keys := vm.NewQueueKeySource(64)
	host.SetKeySource(keys)
	return &Window{host: host, keys: keys, ctx: ctx}
}

func (w *Window) Update() error {
	if w.ctx.Err() != nil {
		return ebiten.Termination
	}
	for _, r := range ebiten.AppendInputChars(nil) {
		w.keys.PushRune(r)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		w.keys.PushRune('\n')
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		w.keys.Push(vm.BackspaceKey)
	}

	if w.ended {
		return nil
	}
	for i := 0; i < stepsPerTick; i++ {
		out := w.host.StepOne(w.ctx)
		if out.Status != cpu.Running {
			w.ended = true
			break
		}
	}
	return nil
}

func (w *Window) Draw(screen *ebiten.Image) {
	if w.img == nil {
		w.img = ebiten.NewImage(gridSize, gridSize)
	}

	buf := w.host.CPU().GPU.DisplaySnapshot()
	pixels := make([]byte, gridSize*gridSize*4)
	for y := 0; y < gridSize; y++ {
		row := buf[y]
		for x := 0; x < gridSize; x++ {
			lit := row&(1<<uint(31-x)) != 0
			off := (y*gridSize + x) * 4
			var c color.RGBA
			if lit {
				c = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
			} else {
				c = color.RGBA{0, 0, 0, 0xFF}
			}
			pixels[off] = c.R
			pixels[off+1] = c.G
			pixels[off+2] = c.B
			pixels[off+3] = c.A
		}
	}
	w.img.WritePixels(pixels)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(pixelScale, pixelScale)
	screen.DrawImage(w.img, op)
}

func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return windowSize, windowSize
}

// Run opens the window and blocks until it's closed or ctx is
// cancelled. title is shown in the title bar; scale multiplies the
// default window size (the CLI's --scale flag).
func Run(ctx context.Context, host *vm.Host, title string, scale int) error {
	w := NewWindow(host, ctx)
	if scale < 1 {
		scale = 1
	}
	ebiten.SetWindowSize(windowSize*scale, windowSize*scale)
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(w)
}
