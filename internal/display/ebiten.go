package display

import (
	"image"
	"math"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// EbitenDisplay renders the host's screenshots using Ebitengine.
type EbitenDisplay struct {
	title   string
	actions Actions

	mu     sync.Mutex
	frame  *image.RGBA
	status string
	dirty  bool

	ebitenImage *ebiten.Image
}

// NewEbitenDisplay creates an Ebitengine-based display.
func NewEbitenDisplay(title string, actions Actions) *EbitenDisplay {
	return &EbitenDisplay{title: title, actions: actions}
}

// SetFrame updates the displayed frame (called from network goroutine).
// img must have a zero origin and a tight stride.
func (d *EbitenDisplay) SetFrame(img *image.RGBA) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = img
	d.dirty = true
}

// SetStatus replaces the overlay text.
func (d *EbitenDisplay) SetStatus(status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = status
}

// Run starts the Ebitengine game loop. Must be called from the main goroutine.
func (d *EbitenDisplay) Run() error {
	ebiten.SetWindowSize(1280, 720)
	ebiten.SetWindowTitle(d.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(d)
}

// --- ebiten.Game interface ---

func (d *EbitenDisplay) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyC) && d.actions.OnCapture != nil {
		go d.actions.OnCapture()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) && d.actions.OnReset != nil {
		go d.actions.OnReset()
	}
	return nil
}

func (d *EbitenDisplay) Draw(screen *ebiten.Image) {
	d.mu.Lock()
	frame, status, dirty := d.frame, d.status, d.dirty
	d.dirty = false
	d.mu.Unlock()

	if frame != nil {
		fw, fh := frame.Bounds().Dx(), frame.Bounds().Dy()
		if d.ebitenImage == nil ||
			d.ebitenImage.Bounds().Dx() != fw ||
			d.ebitenImage.Bounds().Dy() != fh {
			d.ebitenImage = ebiten.NewImage(fw, fh)
			dirty = true
		}
		if dirty {
			d.ebitenImage.WritePixels(frame.Pix)
		}

		sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
		scale, offsetX, offsetY := aspectFitTransform(float64(sw), float64(sh), float64(fw), float64(fh))

		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(offsetX, offsetY)
		op.Filter = ebiten.FilterLinear
		screen.DrawImage(d.ebitenImage, op)
	}

	if status != "" {
		ebitenutil.DebugPrint(screen, status)
	}
}

func (d *EbitenDisplay) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}
